package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/notify"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// Valid reports whether s is a known status. Values are case-sensitive.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is wrapped by the ValidationError returned for an
	// unknown status value.
	ErrInvalidStatus = errors.New("invalid order status")
)

// ValidationError describes a malformed order command.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// OutOfStockError is returned when a product is missing or holds fewer units
// than requested. No stock is reserved when it is returned.
type OutOfStockError struct {
	ProductID int64
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d is out of stock for quantity %d", e.ProductID, e.Requested)
}

// Customer holds the contact details captured at checkout.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// LineItem is the frozen snapshot of a purchased product. Price is the
// catalog price at the moment the order was placed.
type LineItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order is a placed customer order. Only Status changes after creation.
type Order struct {
	ID        int64
	Reference string
	Customer  Customer
	Items     []LineItem
	Total     decimal.Decimal
	PromoCode string
	Discount  int
	Status    Status
	CreatedAt time.Time
}

// EnrichedItem is a snapshot line item joined with the product's current
// display metadata. Found is false when the product has since been deleted.
type EnrichedItem struct {
	LineItem
	Name        string
	Description string
	Image       string
	Category    product.Category
	Found       bool
}

// Detail is an order with enriched line items.
type Detail struct {
	Order *Order
	Items []EnrichedItem
}

// Stats summarises orders and stock for the admin dashboard.
type Stats struct {
	Orders        int
	Revenue       decimal.Decimal
	ByStatus      map[Status]int
	Products      int
	LowStockItems int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts o and fills in ID and CreatedAt.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	// List returns all orders, newest first.
	List(ctx context.Context) ([]Order, error)
	// UpdateStatus sets the status and returns the updated order.
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
	// Totals returns the order count, revenue and per-status counts.
	Totals(ctx context.Context) (*Stats, error)
}

// Stores are the repositories bound to a single transaction.
type Stores struct {
	Products product.Repository
	Promos   promo.Repository
	Orders   Repository
	Outbox   notify.Queue
}

// UnitOfWork runs fn in one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
