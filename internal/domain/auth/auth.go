// Package auth authenticates dashboard administrators.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// RoleAdmin is the only role tokens are issued for.
const RoleAdmin = "admin"

var (
	// ErrNotFound is returned by the Repository for unknown e-mails.
	ErrNotFound = errors.New("admin not found")
	// ErrAdminExists is returned when registering a taken e-mail.
	ErrAdminExists = errors.New("admin already exists")
	// ErrInvalidCredentials is returned for a wrong e-mail or password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Admin is a dashboard user.
type Admin struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository stores administrators.
type Repository interface {
	// Create inserts a and fills in ID and CreatedAt. A taken e-mail
	// yields ErrAdminExists.
	Create(ctx context.Context, a *Admin) error
	FindByEmail(ctx context.Context, email string) (*Admin, error)
}
