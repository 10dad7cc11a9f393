package product

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxImages is the maximum number of image references a product may carry.
const MaxImages = 5

// LowStockThreshold marks products the dashboard reports as running low.
const LowStockThreshold = 10

// MaxQuantity is the largest stock count or ordered quantity that is stored.
const MaxQuantity = math.MaxInt32

// MaxAmount is the exclusive upper bound of stored money values.
var MaxAmount = decimal.New(1, 10)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by DecrementStock when the product is
	// missing or holds fewer units than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Category is the audience a product is listed under.
type Category string

const (
	CategoryMen      Category = "men"
	CategoryWomen    Category = "women"
	CategoryChildren Category = "children"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryMen, CategoryWomen, CategoryChildren:
		return true
	default:
		return false
	}
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Category    Category
	Quantity    int
	Images      []string
	CreatedAt   time.Time
}

// FirstImage returns the primary image reference or "" when there is none.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
	// DecrementStock atomically removes amount units from the product and
	// returns its updated row. It never lets quantity drop below zero.
	DecrementStock(ctx context.Context, id int64, amount int) (*Product, error)
}
