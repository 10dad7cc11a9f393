package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no promo code matches the lookup.
	ErrNotFound = errors.New("promo code not found")
	// ErrDuplicateCode is returned when a write would create a second code
	// with the same text.
	ErrDuplicateCode = errors.New("promo code already exists")
)

// Code is a redeemable percentage discount.
type Code struct {
	ID int64
	// Code is matched exactly and case-sensitively.
	Code string
	// Discount is a whole percentage in [1, 100].
	Discount int
	// MaxDiscount caps the monetary discount when valid.
	MaxDiscount decimal.NullDecimal
	CreatedAt   time.Time
}

// Validation is the storefront view of a redeemable code.
type Validation struct {
	Code               string
	DiscountPercentage int
	MaxDiscount        decimal.NullDecimal
}

// Repository provides lookup and mutation of promo codes.
type Repository interface {
	List(ctx context.Context) ([]Code, error)
	GetByID(ctx context.Context, id int64) (*Code, error)
	FindByCode(ctx context.Context, code string) (*Code, error)
	Create(ctx context.Context, c *Code) error
	Update(ctx context.Context, c *Code) error
	Delete(ctx context.Context, id int64) error
}
