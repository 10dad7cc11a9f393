package order

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/notify"
)

// RequestItem is a cart line submitted at checkout. Any price the client
// echoes is ignored.
type RequestItem struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Customer Customer
	Items    []RequestItem
	// TotalAmount is the client-declared pre-discount total.
	TotalAmount decimal.Decimal
	PromoCode   string
}

// Validate normalizes the request and checks it is well formed.
func (r *PlaceOrderRequest) Validate() error {
	c := &r.Customer
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	r.PromoCode = strings.TrimSpace(r.PromoCode)

	switch {
	case c.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case c.Email == "":
		return &ValidationError{Field: "email", Reason: "required"}
	case c.Phone == "":
		return &ValidationError{Field: "phone", Reason: "required"}
	case c.Address == "":
		return &ValidationError{Field: "address", Reason: "required"}
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}

	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for _, item := range r.Items {
		if item.ProductID <= 0 {
			return &ValidationError{Field: "items", Reason: "product id is required"}
		}
		if item.Quantity <= 0 {
			return &ValidationError{Field: "items", Reason: "quantity must be greater than 0"}
		}
		if item.Quantity > product.MaxQuantity {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("quantity must not exceed %d", product.MaxQuantity)}
		}
	}
	if r.TotalAmount.IsNegative() {
		return &ValidationError{Field: "totalAmount", Reason: "must not be negative"}
	}
	if r.TotalAmount.GreaterThanOrEqual(product.MaxAmount) {
		return &ValidationError{Field: "totalAmount", Reason: "must be less than " + product.MaxAmount.String()}
	}
	return nil
}

// Config tunes the order Service.
type Config struct {
	// OperatorAddress receives a copy of every new order. Empty disables it.
	OperatorAddress string
	// QueryTimeout bounds the database work of a single call.
	QueryTimeout time.Duration
	// PublishEvents enqueues order lifecycle events for the broker.
	PublishEvents bool
}

// Service encapsulates the order workflow.
type Service struct {
	uow       UnitOfWork
	products  product.Repository
	orders    Repository
	queue     notify.Queue
	templates *notify.Templates
	cfg       Config

	now          func() time.Time
	newReference func() string
}

// NewService creates an order Service. products, orders and queue are used
// outside of transactions; uow provides the transactional equivalents.
func NewService(
	uow UnitOfWork,
	products product.Repository,
	orders Repository,
	queue notify.Queue,
	templates *notify.Templates,
	cfg Config,
) *Service {
	return &Service{
		uow:          uow,
		products:     products,
		orders:       orders,
		queue:        queue,
		templates:    templates,
		cfg:          cfg,
		now:          time.Now,
		newReference: newReference,
	}
}

func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "LENS" + strings.ToUpper(id[:10])
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

// PlaceOrder reserves stock for every item, resolves the promo code, stores
// the order and queues the confirmation e-mails, all in one transaction.
// A shortfall on any item returns OutOfStockError and leaves stock untouched.
// An unknown promo code is ignored.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	lg := zctx.From(ctx)

	var placed *Order
	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		o := &Order{
			Reference: s.newReference(),
			Customer:  req.Customer,
			Items:     make([]LineItem, 0, len(req.Items)),
			Status:    StatusPending,
		}
		views := make([]notify.ItemView, 0, len(req.Items))

		subtotal := decimal.Zero
		for _, item := range req.Items {
			p, err := st.Products.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				if errors.Is(err, product.ErrInsufficientStock) || errors.Is(err, product.ErrNotFound) {
					return &OutOfStockError{ProductID: item.ProductID, Requested: item.Quantity}
				}
				return errors.Wrapf(err, "reserve product %d", item.ProductID)
			}
			o.Items = append(o.Items, LineItem{
				ProductID: p.ID,
				Quantity:  item.Quantity,
				Price:     p.Price,
			})
			views = append(views, notify.ItemView{Name: p.Name, Quantity: item.Quantity, Price: p.Price})
			subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		code, err := s.resolvePromo(ctx, st.Promos, req.PromoCode)
		if err != nil {
			return err
		}
		if !subtotal.Equal(req.TotalAmount) {
			lg.Warn("Declared total differs from catalog subtotal",
				zap.String("declared", req.TotalAmount.String()),
				zap.String("catalog", subtotal.String()),
			)
		}
		applied := promo.Apply(code, req.TotalAmount)
		o.Total = applied.Total
		o.PromoCode = applied.Code
		o.Discount = applied.Percentage

		if err := st.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		msgs, err := s.templates.OrderPlaced(s.cfg.OperatorAddress, s.view(o, views))
		if err != nil {
			lg.Error("Render order confirmation", zap.String("reference", o.Reference), zap.Error(err))
		}
		for _, msg := range msgs {
			if err := st.Outbox.EnqueueMail(ctx, msg); err != nil {
				return errors.Wrap(err, "enqueue confirmation")
			}
		}
		if s.cfg.PublishEvents {
			if err := st.Outbox.EnqueueEvent(ctx, s.event(notify.EventOrderPlaced, o)); err != nil {
				return errors.Wrap(err, "enqueue order event")
			}
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg.Info("Order placed",
		zap.Int64("order_id", placed.ID),
		zap.String("reference", placed.Reference),
		zap.String("total", placed.Total.String()),
		zap.String("promo_code", placed.PromoCode),
	)
	return placed, nil
}

func (s *Service) resolvePromo(ctx context.Context, promos promo.Repository, code string) (*promo.Code, error) {
	if code == "" {
		return nil, nil
	}
	c, err := promos.FindByCode(ctx, code)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, promo.ErrNotFound):
		zctx.From(ctx).Info("Ignoring unknown promo code", zap.String("promo_code", code))
		return nil, nil
	default:
		return nil, errors.Wrap(err, "lookup promo code")
	}
}

// UpdateStatus moves an order to status. Any transition is allowed and
// repeating the current status is a no-op apart from the notification.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*Order, error) {
	st := Status(status)
	if !st.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + status, Err: ErrInvalidStatus}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o, err := s.orders.UpdateStatus(ctx, id, st)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "update order %d status", id)
	}

	lg := zctx.From(ctx).With(zap.Int64("order_id", o.ID), zap.String("status", string(o.Status)))
	lg.Info("Order status updated")

	msg, err := s.templates.StatusChanged(s.view(o, nil))
	if err != nil {
		lg.Error("Render status update", zap.Error(err))
	} else if err := s.queue.EnqueueMail(ctx, msg); err != nil {
		lg.Error("Enqueue status update", zap.Error(err))
	}
	if s.cfg.PublishEvents {
		if err := s.queue.EnqueueEvent(ctx, s.event(notify.EventOrderStatusChanged, o)); err != nil {
			lg.Error("Enqueue status event", zap.Error(err))
		}
	}
	return o, nil
}

// Get returns the order with each item joined to the product's current
// name, description, image and category. Price and quantity stay as
// purchased.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}

	ids := make([]int64, 0, len(o.Items))
	seen := make(map[int64]struct{}, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	current, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get order products")
	}
	byID := make(map[int64]product.Product, len(current))
	for _, p := range current {
		byID[p.ID] = p
	}

	items := make([]EnrichedItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = EnrichedItem{LineItem: item}
		if p, ok := byID[item.ProductID]; ok {
			items[i].Name = p.Name
			items[i].Description = p.Description
			items[i].Image = p.FirstImage()
			items[i].Category = p.Category
			items[i].Found = true
		}
	}
	return &Detail{Order: o, Items: items}, nil
}

// List returns all orders, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Stats builds the admin dashboard summary.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats, err := s.orders.Totals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "order totals")
	}
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	stats.Products = len(products)
	for _, p := range products {
		if p.Quantity < product.LowStockThreshold {
			stats.LowStockItems++
		}
	}
	if stats.ByStatus == nil {
		stats.ByStatus = make(map[Status]int, len(Statuses))
	}
	for _, st := range Statuses {
		if _, ok := stats.ByStatus[st]; !ok {
			stats.ByStatus[st] = 0
		}
	}
	return stats, nil
}

func (s *Service) view(o *Order, items []notify.ItemView) notify.OrderView {
	placed := o.CreatedAt
	if placed.IsZero() {
		placed = s.now()
	}
	return notify.OrderView{
		Reference:    o.Reference,
		CustomerName: o.Customer.Name,
		Email:        o.Customer.Email,
		Phone:        o.Customer.Phone,
		Address:      o.Customer.Address,
		Status:       string(o.Status),
		Items:        items,
		PromoCode:    o.PromoCode,
		Discount:     o.Discount,
		Total:        o.Total,
		PlacedAt:     placed,
	}
}

func (s *Service) event(typ string, o *Order) notify.Event {
	return notify.Event{
		Type:       typ,
		OrderID:    o.ID,
		Reference:  o.Reference,
		Status:     string(o.Status),
		Total:      o.Total,
		OccurredAt: s.now().UTC(),
	}
}
