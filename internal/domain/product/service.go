package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ValidationError describes a product payload that cannot be stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

// Service implements the admin management operations over the catalog.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns every product in the catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates p and inserts it, filling in the generated ID.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// Update validates p and replaces the stored product with the same ID.
func (s *Service) Update(ctx context.Context, p *Product) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "update product %d", p.ID)
	}
	return nil
}

// Delete removes a product. Orders keep their line item snapshot.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "delete product %d", id)
	}
	return nil
}

// Validate checks the catalog invariants and normalizes p in place.
func Validate(p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !p.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("must be one of men, women, children; got %q", p.Category)}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if p.Price.GreaterThanOrEqual(MaxAmount) {
		return &ValidationError{Field: "price", Reason: "must be less than " + MaxAmount.String()}
	}
	if p.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if p.Quantity > MaxQuantity {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must not exceed %d", MaxQuantity)}
	}
	if len(p.Images) > MaxImages {
		return &ValidationError{Field: "images", Reason: fmt.Sprintf("at most %d images allowed", MaxImages)}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return nil
}
