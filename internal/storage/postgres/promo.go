package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
)

const promoColumns = `id, code, discount, max_discount, created_at`

const (
	listPromosSQL = `SELECT ` + promoColumns + ` FROM promo_codes ORDER BY created_at DESC, id DESC`

	getPromoByIDSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE id = $1`

	getPromoByCodeSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1`

	createPromoSQL = `INSERT INTO promo_codes (code, discount, max_discount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	updatePromoSQL = `UPDATE promo_codes SET code = $2, discount = $3, max_discount = $4
		WHERE id = $1
		RETURNING created_at`

	deletePromoSQL = `DELETE FROM promo_codes WHERE id = $1`

	upsertPromoSQL = `INSERT INTO promo_codes (code, discount, max_discount)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET discount = EXCLUDED.discount, max_discount = EXCLUDED.max_discount`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	db DBTX
}

// NewPromoRepository returns a PromoRepository that uses db.
func NewPromoRepository(db DBTX) *PromoRepository {
	return &PromoRepository{db: db}
}

// List returns all promo codes, newest first.
func (r *PromoRepository) List(ctx context.Context) ([]promo.Code, error) {
	rows, err := r.db.Query(ctx, listPromosSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promo codes: %w", err)
	}
	return pgx.CollectRows(rows, scanPromo)
}

// GetByID returns a promo code by its identifier.
func (r *PromoRepository) GetByID(ctx context.Context, id int64) (*promo.Code, error) {
	return r.getOne(ctx, getPromoByIDSQL, id)
}

// FindByCode looks a code up by exact, case-sensitive match.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	return r.getOne(ctx, getPromoByCodeSQL, code)
}

func (r *PromoRepository) getOne(ctx context.Context, sql string, arg any) (*promo.Code, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting promo code %v: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("getting promo code %v: %w", arg, err)
	}
	return &c, nil
}

// Create inserts c and fills in its ID and CreatedAt.
func (r *PromoRepository) Create(ctx context.Context, c *promo.Code) error {
	err := r.db.QueryRow(ctx, createPromoSQL, c.Code, c.Discount, c.MaxDiscount).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return promo.ErrDuplicateCode
		}
		return fmt.Errorf("creating promo code %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces the code text, discount and cap.
func (r *PromoRepository) Update(ctx context.Context, c *promo.Code) error {
	err := r.db.QueryRow(ctx, updatePromoSQL, c.ID, c.Code, c.Discount, c.MaxDiscount).Scan(&c.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return promo.ErrNotFound
		case isUniqueViolation(err):
			return promo.ErrDuplicateCode
		}
		return fmt.Errorf("updating promo code %d: %w", c.ID, err)
	}
	return nil
}

// Delete removes a promo code.
func (r *PromoRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, deletePromoSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promo code %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// Upsert inserts codes in one batch, overwriting the discount and cap of
// codes that already exist. It returns the number of rows written.
func (r *PromoRepository) Upsert(ctx context.Context, codes []promo.Code) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(upsertPromoSQL, c.Code, c.Discount, c.MaxDiscount)
	}

	br := r.db.SendBatch(ctx, batch)
	var written int64
	for range codes {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return written, fmt.Errorf("upserting promo codes: %w", err)
		}
		written += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return written, fmt.Errorf("closing promo batch: %w", err)
	}
	return written, nil
}

func scanPromo(row pgx.CollectableRow) (promo.Code, error) {
	var c promo.Code
	err := row.Scan(&c.ID, &c.Code, &c.Discount, &c.MaxDiscount, &c.CreatedAt)
	return c, err
}
