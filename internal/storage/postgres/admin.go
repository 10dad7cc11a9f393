package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/auth"
)

const (
	createAdminSQL = `INSERT INTO admins (email, password_hash) VALUES ($1, $2) RETURNING id, created_at`

	getAdminByEmailSQL = `SELECT id, email, password_hash, created_at FROM admins WHERE email = $1`
)

var _ auth.Repository = (*AdminRepository)(nil)

// AdminRepository stores dashboard administrators.
type AdminRepository struct {
	db DBTX
}

// NewAdminRepository returns an AdminRepository that uses db.
func NewAdminRepository(db DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create inserts a. A taken e-mail yields auth.ErrAdminExists.
func (r *AdminRepository) Create(ctx context.Context, a *auth.Admin) error {
	err := r.db.QueryRow(ctx, createAdminSQL, a.Email, a.PasswordHash).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAdminExists
		}
		return fmt.Errorf("creating admin: %w", err)
	}
	return nil
}

// FindByEmail returns the administrator registered with email.
func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*auth.Admin, error) {
	var a auth.Admin
	err := r.db.QueryRow(ctx, getAdminByEmailSQL, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding admin: %w", err)
	}
	return &a, nil
}
