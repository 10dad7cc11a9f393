package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoaibmehmood243/lensciaga/internal/notify"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (topic, key, payload) VALUES ($1, $2, $3)`

	claimOutboxSQL = `UPDATE outbox SET claimed_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox
			WHERE sent_at IS NULL AND failed_at IS NULL
				AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED)
		RETURNING id, topic, key, payload, attempts`

	markOutboxSentSQL = `UPDATE outbox
		SET sent_at = now(), attempts = attempts + 1, last_error = '', claimed_until = NULL
		WHERE id = $1`

	markOutboxFailedSQL = `UPDATE outbox
		SET attempts = $2, last_error = $3, failed_at = CASE WHEN $4::boolean THEN now() END,
			claimed_until = NULL
		WHERE id = $1`
)

// maxErrorLength truncates stored delivery errors, in bytes.
const maxErrorLength = 1024

// DefaultClaimLease is how long claimed records stay hidden from other
// relays before an unfinished batch is picked up again.
const DefaultClaimLease = 5 * time.Minute

var _ notify.Queue = (*Outbox)(nil)

// Outbox queues notifications in the outbox table. Bound to a transaction
// it commits or rolls back together with the caller's writes.
type Outbox struct {
	db DBTX
}

// NewOutbox returns an Outbox that writes through db.
func NewOutbox(db DBTX) *Outbox {
	return &Outbox{db: db}
}

// EnqueueMail queues an e-mail.
func (o *Outbox) EnqueueMail(ctx context.Context, msg notify.Message) error {
	return o.insert(ctx, notify.TopicMail, msg.To, msg)
}

// EnqueueEvent queues an order event.
func (o *Outbox) EnqueueEvent(ctx context.Context, evt notify.Event) error {
	return o.insert(ctx, notify.TopicOrderEvents, evt.Key(), evt)
}

func (o *Outbox) insert(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	if _, err := o.db.Exec(ctx, insertOutboxSQL, topic, key, data); err != nil {
		return fmt.Errorf("inserting %s outbox record: %w", topic, err)
	}
	return nil
}

var _ notify.Store = (*OutboxStore)(nil)

// OutboxStore hands pending outbox records to the relay. Rows are leased
// with a short claim statement using FOR UPDATE SKIP LOCKED, so several
// relays can share one table without holding locks while they deliver.
type OutboxStore struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

// NewOutboxStore returns an OutboxStore that uses the given pool and the
// DefaultClaimLease.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool, lease: DefaultClaimLease}
}

// WithLease returns a copy of s that claims records for d.
func (s *OutboxStore) WithLease(d time.Duration) *OutboxStore {
	c := *s
	c.lease = d
	return &c
}

// Process leases a batch, commits the claim, then calls fn for every record
// and stores each outcome on its own. A record whose outcome could not be
// stored becomes claimable again once its lease expires.
func (s *OutboxStore) Process(ctx context.Context, limit, maxAttempts int, fn func(context.Context, notify.Record) error) (int, error) {
	rows, err := s.pool.Query(ctx, claimOutboxSQL, limit, s.lease.Seconds())
	if err != nil {
		return 0, fmt.Errorf("claiming outbox records: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notify.Record, error) {
		var r notify.Record
		err := row.Scan(&r.ID, &r.Topic, &r.Key, &r.Payload, &r.Attempts)
		return r, err
	})
	if err != nil {
		return 0, fmt.Errorf("claiming outbox records: %w", err)
	}
	slices.SortFunc(recs, func(a, b notify.Record) int { return cmp.Compare(a.ID, b.ID) })

	var firstErr error
	for _, rec := range recs {
		if err := s.record(ctx, rec, maxAttempts, fn(ctx, rec)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(recs), firstErr
}

func (s *OutboxStore) record(ctx context.Context, rec notify.Record, maxAttempts int, sendErr error) error {
	// The outcome is stored even when the relay is stopping.
	ctx = context.WithoutCancel(ctx)
	if sendErr == nil {
		if _, err := s.pool.Exec(ctx, markOutboxSentSQL, rec.ID); err != nil {
			return fmt.Errorf("marking outbox record %d sent: %w", rec.ID, err)
		}
		return nil
	}

	attempts := rec.Attempts + 1
	reason := truncateUTF8(sendErr.Error(), maxErrorLength)
	if _, err := s.pool.Exec(ctx, markOutboxFailedSQL, rec.ID, attempts, reason, attempts >= maxAttempts); err != nil {
		return fmt.Errorf("recording outbox failure %d: %w", rec.ID, err)
	}
	return nil
}

// truncateUTF8 returns s as valid UTF-8 of at most n bytes, cut on a rune
// boundary.
func truncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Pending counts records that are neither sent nor abandoned.
func (s *OutboxStore) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE sent_at IS NULL AND failed_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending outbox records: %w", err)
	}
	return n, nil
}
