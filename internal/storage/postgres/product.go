package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
)

const productColumns = `id, name, description, price, category, quantity, images, created_at`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id DESC`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (name, description, price, category, quantity, images)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, category = $5, quantity = $6, images = $7
		WHERE id = $1
		RETURNING created_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products SET quantity = quantity - $2
		WHERE id = $1 AND quantity >= $2
		RETURNING ` + productColumns
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the catalog, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts p and fills in its ID and CreatedAt.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	images, err := marshalImages(p.Images)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, createProductSQL,
		p.Name, p.Description, p.Price, string(p.Category), p.Quantity, images,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

// Update replaces every editable field of p.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	images, err := marshalImages(p.Images)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, string(p.Category), p.Quantity, images,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return nil
}

// Delete removes a product. Orders keep their snapshot of it.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock removes amount units in a single conditional UPDATE, so
// concurrent orders can never drive quantity below zero.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, amount int) (*product.Product, error) {
	rows, err := r.db.Query(ctx, decrementStockSQL, id, amount)
	if err != nil {
		return nil, fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrInsufficientStock
		}
		return nil, fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}
	return &p, nil
}

func marshalImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshaling product images: %w", err)
	}
	return data, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		category string
		images   []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &category, &p.Quantity, &images, &p.CreatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Category = product.Category(category)
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return p, fmt.Errorf("decoding images of product %d: %w", p.ID, err)
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return p, nil
}
