package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
)

const orderColumns = `id, reference, name, email, phone, address, items,
	total_amount, promo_code, discount_applied, order_status, created_at`

const (
	createOrderSQL = `INSERT INTO orders
		(reference, name, email, phone, address, items, total_amount, promo_code, discount_applied, order_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	updateOrderStatusSQL = `UPDATE orders SET order_status = $2 WHERE id = $1 RETURNING ` + orderColumns

	orderTotalsSQL = `SELECT order_status, count(*), COALESCE(sum(total_amount), 0)
		FROM orders GROUP BY order_status`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order. The line item snapshot is serialized to JSON
// for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	err = r.db.QueryRow(ctx, createOrderSQL,
		o.Reference, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Customer.Address,
		itemsJSON, o.Total, o.PromoCode, o.Discount, string(o.Status),
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Reference, err)
	}
	return nil
}

// GetByID returns an order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus sets the order status and returns the updated row.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	rows, err := r.db.Query(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}
	return &o, nil
}

// Totals aggregates order count and revenue per status.
func (r *OrderRepository) Totals(ctx context.Context) (*order.Stats, error) {
	rows, err := r.db.Query(ctx, orderTotalsSQL)
	if err != nil {
		return nil, fmt.Errorf("aggregating orders: %w", err)
	}
	defer rows.Close()

	stats := &order.Stats{Revenue: decimal.Zero, ByStatus: make(map[order.Status]int)}
	for rows.Next() {
		var (
			status  string
			count   int
			revenue decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &revenue); err != nil {
			return nil, fmt.Errorf("scanning order totals: %w", err)
		}
		stats.ByStatus[order.Status(status)] = count
		stats.Orders += count
		stats.Revenue = stats.Revenue.Add(revenue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregating orders: %w", err)
	}
	return stats, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		items  []byte
		status string
	)
	err := row.Scan(
		&o.ID, &o.Reference, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Customer.Address,
		&items, &o.Total, &o.PromoCode, &o.Discount, &status, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of order %d: %w", o.ID, err)
	}
	return o, nil
}
