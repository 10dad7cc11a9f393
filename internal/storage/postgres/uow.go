package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
)

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs the order workflow in a single pgx transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that uses the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do commits when fn returns nil and rolls back otherwise. fn's error is
// returned unwrapped so callers can match domain errors.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s order.Stores) error) error {
	return pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, order.Stores{
			Products: NewProductRepository(tx),
			Promos:   NewPromoRepository(tx),
			Orders:   NewOrderRepository(tx),
			Outbox:   NewOutbox(tx),
		})
	})
}
