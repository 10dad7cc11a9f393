package order

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/notify"
)

// --- In-memory transactional store ---

type memState struct {
	products map[int64]product.Product
	promos   map[string]promo.Code
	orders   []Order
	mails    []notify.Message
	events   []notify.Event
	nextID   int64
}

func (s *memState) clone() *memState {
	c := &memState{
		products: make(map[int64]product.Product, len(s.products)),
		promos:   make(map[string]promo.Code, len(s.promos)),
		orders:   append([]Order(nil), s.orders...),
		mails:    append([]notify.Message(nil), s.mails...),
		events:   append([]notify.Event(nil), s.events...),
		nextID:   s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.promos {
		c.promos[k] = v
	}
	return c
}

type memDB struct {
	state     *memState
	calls     int
	createErr error
}

func newMemDB(products ...product.Product) *memDB {
	st := &memState{
		products: map[int64]product.Product{},
		promos:   map[string]promo.Code{},
	}
	for _, p := range products {
		st.products[p.ID] = p
	}
	return &memDB{state: st}
}

func (db *memDB) addPromo(c promo.Code) {
	db.state.promos[c.Code] = c
}

func (db *memDB) Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	db.calls++
	tx := db.state.clone()
	cur := func() *memState { return tx }
	stores := Stores{
		Products: memProducts{cur},
		Promos:   memPromos{cur},
		Orders:   memOrders{state: cur, createErr: db.createErr},
		Outbox:   &memQueue{state: cur},
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}
	db.state = tx
	return nil
}

func (db *memDB) current() *memState { return db.state }

type memProducts struct{ state func() *memState }

func (m memProducts) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.state().products))
	for _, p := range m.state().products {
		out = append(out, p)
	}
	return out, nil
}

func (m memProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.state().products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m memProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.state().products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m memProducts) Create(_ context.Context, p *product.Product) error {
	m.state().products[p.ID] = *p
	return nil
}

func (m memProducts) Update(_ context.Context, p *product.Product) error {
	if _, ok := m.state().products[p.ID]; !ok {
		return product.ErrNotFound
	}
	m.state().products[p.ID] = *p
	return nil
}

func (m memProducts) Delete(_ context.Context, id int64) error {
	delete(m.state().products, id)
	return nil
}

func (m memProducts) DecrementStock(_ context.Context, id int64, amount int) (*product.Product, error) {
	p, ok := m.state().products[id]
	if !ok || p.Quantity < amount {
		return nil, product.ErrInsufficientStock
	}
	p.Quantity -= amount
	m.state().products[id] = p
	return &p, nil
}

type memPromos struct{ state func() *memState }

func (m memPromos) List(_ context.Context) ([]promo.Code, error) { return nil, nil }

func (m memPromos) GetByID(_ context.Context, _ int64) (*promo.Code, error) {
	return nil, promo.ErrNotFound
}

func (m memPromos) FindByCode(_ context.Context, code string) (*promo.Code, error) {
	c, ok := m.state().promos[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &c, nil
}

func (m memPromos) Create(_ context.Context, _ *promo.Code) error { return nil }
func (m memPromos) Update(_ context.Context, _ *promo.Code) error { return nil }
func (m memPromos) Delete(_ context.Context, _ int64) error       { return nil }

type memOrders struct {
	state     func() *memState
	createErr error
}

func (m memOrders) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	st := m.state()
	st.nextID++
	o.ID = st.nextID
	o.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st.orders = append(st.orders, *o)
	return nil
}

func (m memOrders) GetByID(_ context.Context, id int64) (*Order, error) {
	for _, o := range m.state().orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m memOrders) List(_ context.Context) ([]Order, error) {
	out := append([]Order(nil), m.state().orders...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m memOrders) UpdateStatus(_ context.Context, id int64, status Status) (*Order, error) {
	st := m.state()
	for i := range st.orders {
		if st.orders[i].ID == id {
			st.orders[i].Status = status
			o := st.orders[i]
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m memOrders) Totals(_ context.Context) (*Stats, error) {
	s := &Stats{Revenue: decimal.Zero, ByStatus: map[Status]int{}}
	for _, o := range m.state().orders {
		s.Orders++
		s.Revenue = s.Revenue.Add(o.Total)
		s.ByStatus[o.Status]++
	}
	return s, nil
}

type memQueue struct {
	state func() *memState
	fail  error
}

func (q *memQueue) EnqueueMail(_ context.Context, msg notify.Message) error {
	if q.fail != nil {
		return q.fail
	}
	st := q.state()
	st.mails = append(st.mails, msg)
	return nil
}

func (q *memQueue) EnqueueEvent(_ context.Context, evt notify.Event) error {
	if q.fail != nil {
		return q.fail
	}
	st := q.state()
	st.events = append(st.events, evt)
	return nil
}

// --- Helpers ---

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestProduct(id int64, name, price string, qty int) product.Product {
	return product.Product{
		ID:          id,
		Name:        name,
		Description: name + " description",
		Price:       d(price),
		Category:    product.CategoryMen,
		Quantity:    qty,
		Images:      []string{"/uploads/" + name + ".jpg"},
	}
}

func newTestService(t *testing.T, db *memDB, cfg Config) (*Service, *memQueue) {
	t.Helper()
	tpl, err := notify.NewTemplates()
	require.NoError(t, err)

	queue := &memQueue{state: db.current}
	svc := NewService(db, memProducts{db.current}, memOrders{state: db.current}, queue, tpl, cfg)
	svc.newReference = func() string { return "LENSTEST" }
	return svc, queue
}

func validRequest(items ...RequestItem) PlaceOrderRequest {
	return PlaceOrderRequest{
		Customer: Customer{
			Name:    "Ada Lovelace",
			Email:   "ada@example.com",
			Phone:   "+44 20 7946 0000",
			Address: "12 Analytical Row",
		},
		Items: items,
	}
}

// --- PlaceOrder ---

func TestPlaceOrder_AppliesPromoAndDecrementsStock(t *testing.T) {
	db := newMemDB(newTestProduct(7, "aviator", "25.00", 10))
	db.addPromo(promo.Code{ID: 1, Code: "SAVE10", Discount: 10})
	svc, _ := newTestService(t, db, Config{OperatorAddress: "ops@lens.test"})

	req := validRequest(RequestItem{ProductID: 7, Quantity: 2})
	req.TotalAmount = d("50.00")
	req.PromoCode = "SAVE10"

	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, "LENSTEST", o.Reference)
	assert.True(t, d("45.00").Equal(o.Total), "got %s", o.Total)
	assert.Equal(t, 10, o.Discount)
	assert.Equal(t, "SAVE10", o.PromoCode)
	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, LineItem{ProductID: 7, Quantity: 2, Price: d("25.00")}, o.Items[0])

	st := db.current()
	assert.Equal(t, 8, st.products[7].Quantity)
	require.Len(t, st.orders, 1)

	require.Len(t, st.mails, 2, "operator and customer are notified")
	assert.Equal(t, "ops@lens.test", st.mails[0].To)
	assert.Equal(t, "ada@example.com", st.mails[1].To)
	assert.Contains(t, st.mails[1].HTML, "45.00")
	assert.Empty(t, st.events)
}

func TestPlaceOrder_UnknownPromoIsIgnored(t *testing.T) {
	db := newMemDB(newTestProduct(1, "round", "100.00", 5))
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 1, Quantity: 1})
	req.TotalAmount = d("100.00")
	req.PromoCode = "BADCODE"

	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d("100.00").Equal(o.Total))
	assert.Equal(t, "", o.PromoCode)
	assert.Equal(t, 0, o.Discount)

	require.Len(t, db.current().mails, 1, "no operator address configured")
}

func TestPlaceOrder_TrustsDeclaredTotal(t *testing.T) {
	db := newMemDB(newTestProduct(7, "aviator", "25.00", 10))
	db.addPromo(promo.Code{ID: 1, Code: "SAVE10", Discount: 10})
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 7, Quantity: 2})
	req.TotalAmount = d("40.00")
	req.PromoCode = "SAVE10"

	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d("36.00").Equal(o.Total), "got %s", o.Total)
	assert.Equal(t, d("25.00"), o.Items[0].Price, "snapshot keeps the catalog price")
}

func TestPlaceOrder_MaxDiscountDoesNotCapTotal(t *testing.T) {
	db := newMemDB(newTestProduct(7, "aviator", "50.00", 10))
	db.addPromo(promo.Code{ID: 1, Code: "HALF", Discount: 50, MaxDiscount: decimal.NewNullDecimal(d("10"))})
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 7, Quantity: 2})
	req.TotalAmount = d("100.00")
	req.PromoCode = "HALF"

	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d("50.00").Equal(o.Total), "got %s", o.Total)
	assert.Equal(t, 50, o.Discount)
	assert.Equal(t, "HALF", o.PromoCode)
}

func TestPlaceOrder_OutOfStockRollsBack(t *testing.T) {
	db := newMemDB(
		newTestProduct(1, "aviator", "25.00", 5),
		newTestProduct(2, "cat-eye", "40.00", 1),
	)
	svc, _ := newTestService(t, db, Config{OperatorAddress: "ops@lens.test"})

	req := validRequest(
		RequestItem{ProductID: 1, Quantity: 2},
		RequestItem{ProductID: 2, Quantity: 3},
	)
	req.TotalAmount = d("170.00")

	_, err := svc.PlaceOrder(context.Background(), req)

	var stockErr *OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)

	st := db.current()
	assert.Equal(t, 5, st.products[1].Quantity, "earlier decrement is rolled back")
	assert.Equal(t, 1, st.products[2].Quantity)
	assert.Empty(t, st.orders)
	assert.Empty(t, st.mails)
}

func TestPlaceOrder_MissingProductIsOutOfStock(t *testing.T) {
	db := newMemDB()
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 99, Quantity: 1})
	_, err := svc.PlaceOrder(context.Background(), req)

	var stockErr *OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(99), stockErr.ProductID)
}

func TestPlaceOrder_ExactStockSucceeds(t *testing.T) {
	db := newMemDB(newTestProduct(1, "aviator", "25.00", 2))
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 1, Quantity: 2})
	req.TotalAmount = d("50.00")
	_, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, db.current().products[1].Quantity)

	_, err = svc.PlaceOrder(context.Background(), req)
	var stockErr *OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, db.current().products[1].Quantity, "stock never goes negative")
}

func TestPlaceOrder_StoreErrorRollsBack(t *testing.T) {
	db := newMemDB(newTestProduct(1, "aviator", "25.00", 5))
	db.createErr = errors.New("connection reset")
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 1, Quantity: 2})
	_, err := svc.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")

	var stockErr *OutOfStockError
	assert.False(t, errors.As(err, &stockErr))
	assert.Equal(t, 5, db.current().products[1].Quantity)
}

func TestPlaceOrder_PublishesEvent(t *testing.T) {
	db := newMemDB(newTestProduct(1, "aviator", "25.00", 5))
	svc, _ := newTestService(t, db, Config{PublishEvents: true})

	req := validRequest(RequestItem{ProductID: 1, Quantity: 1})
	req.TotalAmount = d("25.00")
	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	events := db.current().events
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventOrderPlaced, events[0].Type)
	assert.Equal(t, o.ID, events[0].OrderID)
	assert.Equal(t, "order-1", events[0].Key())
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
		field  string
	}{
		{name: "no items", mutate: func(r *PlaceOrderRequest) { r.Items = nil }, field: "items"},
		{name: "zero quantity", mutate: func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 }, field: "items"},
		{name: "missing product id", mutate: func(r *PlaceOrderRequest) { r.Items[0].ProductID = 0 }, field: "items"},
		{name: "blank name", mutate: func(r *PlaceOrderRequest) { r.Customer.Name = "  " }, field: "name"},
		{name: "bad email", mutate: func(r *PlaceOrderRequest) { r.Customer.Email = "ada-at-example" }, field: "email"},
		{name: "display name email", mutate: func(r *PlaceOrderRequest) { r.Customer.Email = "Ada <ada@example.com>" }, field: "email"},
		{name: "missing phone", mutate: func(r *PlaceOrderRequest) { r.Customer.Phone = "" }, field: "phone"},
		{name: "missing address", mutate: func(r *PlaceOrderRequest) { r.Customer.Address = "" }, field: "address"},
		{name: "negative total", mutate: func(r *PlaceOrderRequest) { r.TotalAmount = d("-1") }, field: "totalAmount"},
		{name: "total overflows column", mutate: func(r *PlaceOrderRequest) { r.TotalAmount = d("1e13") }, field: "totalAmount"},
		{name: "total at bound", mutate: func(r *PlaceOrderRequest) { r.TotalAmount = d("10000000000") }, field: "totalAmount"},
		{name: "quantity overflows column", mutate: func(r *PlaceOrderRequest) { r.Items[0].Quantity = math.MaxInt32 + 1 }, field: "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newMemDB(newTestProduct(1, "aviator", "25.00", 5))
			svc, _ := newTestService(t, db, Config{})

			req := validRequest(RequestItem{ProductID: 1, Quantity: 1})
			tt.mutate(&req)

			_, err := svc.PlaceOrder(context.Background(), req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Zero(t, db.calls, "no transaction is opened for invalid input")
		})
	}
}

// --- UpdateStatus ---

func placeOne(t *testing.T, svc *Service) *Order {
	t.Helper()
	req := validRequest(RequestItem{ProductID: 1, Quantity: 1})
	req.TotalAmount = d("25.00")
	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return o
}

func TestUpdateStatus(t *testing.T) {
	db := newMemDB(newTestProduct(1, "aviator", "25.00", 5))
	svc, _ := newTestService(t, db, Config{})
	o := placeOne(t, svc)
	ctx := context.Background()
	mailsBefore := len(db.current().mails)

	updated, err := svc.UpdateStatus(ctx, o.ID, "Shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)

	updated, err = svc.UpdateStatus(ctx, o.ID, "Shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status, "repeating a status is idempotent")

	mails := db.current().mails[mailsBefore:]
	require.Len(t, mails, 2)
	assert.Equal(t, "ada@example.com", mails[0].To)
	assert.Contains(t, mails[0].Subject, "Shipped")

	updated, err = svc.UpdateStatus(ctx, o.ID, "Pending")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status, "any transition is allowed")
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	db := newMemDB(newTestProduct(1, "aviator", "25.00", 5))
	svc, _ := newTestService(t, db, Config{})
	o := placeOne(t, svc)

	for _, status := range []string{"NotAStatus", "shipped", ""} {
		_, err := svc.UpdateStatus(context.Background(), o.ID, status)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, status)
		require.ErrorIs(t, err, ErrInvalidStatus)
	}

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Order.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(t, newMemDB(), Config{})
	_, err := svc.UpdateStatus(context.Background(), 404, "Shipped")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_QueueFailureIsNotSurfaced(t *testing.T) {
	db := newMemDB(newTestProduct(1, "aviator", "25.00", 5))
	svc, queue := newTestService(t, db, Config{PublishEvents: true})
	o := placeOne(t, svc)

	queue.fail = errors.New("outbox unavailable")
	updated, err := svc.UpdateStatus(context.Background(), o.ID, "Delivered")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)
}

// --- Get / List / Stats ---

func TestGet_EnrichesWithCurrentMetadata(t *testing.T) {
	db := newMemDB(
		newTestProduct(1, "aviator", "25.00", 5),
		newTestProduct(2, "cat-eye", "40.00", 5),
	)
	svc, _ := newTestService(t, db, Config{})

	req := validRequest(RequestItem{ProductID: 1, Quantity: 2}, RequestItem{ProductID: 2, Quantity: 1})
	req.TotalAmount = d("90.00")
	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	renamed := db.current().products[1]
	renamed.Name = "Aviator Gold"
	renamed.Price = d("99.00")
	db.current().products[1] = renamed
	delete(db.current().products, 2)

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)

	first := got.Items[0]
	assert.True(t, first.Found)
	assert.Equal(t, "Aviator Gold", first.Name, "display fields are live")
	assert.Equal(t, d("25.00"), first.Price, "price is frozen")
	assert.Equal(t, 2, first.Quantity)
	assert.Equal(t, "/uploads/aviator.jpg", first.Image)
	assert.Equal(t, product.CategoryMen, first.Category)

	second := got.Items[1]
	assert.False(t, second.Found, "deleted product leaves the item un-enriched")
	assert.Empty(t, second.Name)
	assert.Equal(t, d("40.00"), second.Price)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t, newMemDB(), Config{})
	_, err := svc.Get(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAndStats(t *testing.T) {
	db := newMemDB(
		newTestProduct(1, "aviator", "25.00", 50),
		newTestProduct(2, "cat-eye", "40.00", 3),
	)
	svc, _ := newTestService(t, db, Config{})
	ctx := context.Background()

	first := placeOne(t, svc)
	second := placeOne(t, svc)
	_, err := svc.UpdateStatus(ctx, second.ID, "Cancelled")
	require.NoError(t, err)

	orders, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID, "newest first")
	assert.Equal(t, first.ID, orders[1].ID)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Orders)
	assert.True(t, d("50.00").Equal(stats.Revenue))
	assert.Equal(t, 1, stats.ByStatus[StatusPending])
	assert.Equal(t, 1, stats.ByStatus[StatusCancelled])
	assert.Contains(t, stats.ByStatus, StatusShipped, "every status is reported")
	assert.Equal(t, 2, stats.Products)
	assert.Equal(t, 1, stats.LowStockItems)
}
