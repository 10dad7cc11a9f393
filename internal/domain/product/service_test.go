package product

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	created   *Product
	updated   *Product
	deletedID int64
	err       error
}

func (m *mockRepo) List(_ context.Context) ([]Product, error) { return nil, m.err }

func (m *mockRepo) GetByID(_ context.Context, _ int64) (*Product, error) { return nil, m.err }

func (m *mockRepo) GetByIDs(_ context.Context, _ []int64) ([]Product, error) { return nil, m.err }

func (m *mockRepo) Create(_ context.Context, p *Product) error {
	if m.err != nil {
		return m.err
	}
	p.ID = 42
	m.created = p
	return nil
}

func (m *mockRepo) Update(_ context.Context, p *Product) error {
	m.updated = p
	return m.err
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	m.deletedID = id
	return m.err
}

func (m *mockRepo) DecrementStock(_ context.Context, _ int64, _ int) (*Product, error) {
	return nil, m.err
}

func validProduct() *Product {
	return &Product{
		Name:     "Aviator",
		Price:    decimal.RequireFromString("25.00"),
		Category: CategoryMen,
		Quantity: 4,
		Images:   []string{"/uploads/a.jpg"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Product)
		wantField string
	}{
		{name: "valid", mutate: func(*Product) {}},
		{name: "blank name", mutate: func(p *Product) { p.Name = "   " }, wantField: "name"},
		{name: "unknown category", mutate: func(p *Product) { p.Category = "pets" }, wantField: "category"},
		{name: "negative price", mutate: func(p *Product) { p.Price = decimal.NewFromInt(-1) }, wantField: "price"},
		{name: "negative quantity", mutate: func(p *Product) { p.Quantity = -1 }, wantField: "quantity"},
		{name: "price overflows column", mutate: func(p *Product) { p.Price = decimal.RequireFromString("1e10") }, wantField: "price"},
		{name: "largest price", mutate: func(p *Product) { p.Price = decimal.RequireFromString("9999999999.99") }},
		{name: "quantity overflows column", mutate: func(p *Product) { p.Quantity = MaxQuantity + 1 }, wantField: "quantity"},
		{
			name: "six images",
			mutate: func(p *Product) {
				p.Images = []string{"1", "2", "3", "4", "5", "6"}
			},
			wantField: "images",
		},
		{
			name: "five images allowed",
			mutate: func(p *Product) {
				p.Images = []string{"1", "2", "3", "4", "5"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(p)

			err := Validate(p)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestValidate_NilImagesNormalized(t *testing.T) {
	p := validProduct()
	p.Images = nil

	require.NoError(t, Validate(p))
	assert.NotNil(t, p.Images)
	assert.Empty(t, p.Images)
}

func TestService_Create(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	p := validProduct()
	require.NoError(t, svc.Create(context.Background(), p))
	assert.Equal(t, int64(42), p.ID)
	assert.Same(t, p, repo.created)
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	p := validProduct()
	p.Category = "unisex"

	var vErr *ValidationError
	require.ErrorAs(t, svc.Create(context.Background(), p), &vErr)
	assert.Nil(t, repo.created, "invalid product must not reach the store")
}

func TestService_UpdateNotFound(t *testing.T) {
	svc := NewService(&mockRepo{err: ErrNotFound})

	p := validProduct()
	p.ID = 9
	require.ErrorIs(t, svc.Update(context.Background(), p), ErrNotFound)
}

func TestService_DeleteWrapsStoreError(t *testing.T) {
	svc := NewService(&mockRepo{err: errors.New("db down")})

	err := svc.Delete(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete product 3")
}
