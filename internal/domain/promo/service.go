package promo

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ValidationError describes a promo code payload that cannot be stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid promo code %s: %s", e.Field, e.Reason)
}

// Service implements promo code management and storefront validation.
type Service struct {
	repo Repository
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Validate looks up code for the storefront. It has no side effects and
// returns ErrNotFound for unknown or blank codes.
func (s *Service) Validate(ctx context.Context, code string) (*Validation, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}
	return &Validation{
		Code:               c.Code,
		DiscountPercentage: c.Discount,
		MaxDiscount:        c.MaxDiscount,
	}, nil
}

// List returns all promo codes.
func (s *Service) List(ctx context.Context) ([]Code, error) {
	codes, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promo codes")
	}
	return codes, nil
}

// Create validates c and stores it. The store reports ErrDuplicateCode
// when the code text is taken.
func (s *Service) Create(ctx context.Context, c *Code) error {
	if err := validate(c); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return ErrDuplicateCode
		}
		return errors.Wrap(err, "create promo code")
	}
	return nil
}

// Update replaces the code text and discount of an existing promo code.
func (s *Service) Update(ctx context.Context, c *Code) error {
	if err := validate(c); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return ErrNotFound
		case errors.Is(err, ErrDuplicateCode):
			return ErrDuplicateCode
		}
		return errors.Wrapf(err, "update promo code %d", c.ID)
	}
	return nil
}

// Delete removes a promo code. Orders keep the code text they were placed with.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "delete promo code %d", id)
	}
	return nil
}

func validate(c *Code) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if c.Discount < 1 || c.Discount > 100 {
		return &ValidationError{Field: "discount", Reason: "must be between 1 and 100"}
	}
	if c.MaxDiscount.Valid && c.MaxDiscount.Decimal.IsNegative() {
		return &ValidationError{Field: "maxDiscount", Reason: "must not be negative"}
	}
	if c.MaxDiscount.Valid && c.MaxDiscount.Decimal.GreaterThanOrEqual(maxAmount) {
		return &ValidationError{Field: "maxDiscount", Reason: "must be less than " + maxAmount.String()}
	}
	return nil
}
