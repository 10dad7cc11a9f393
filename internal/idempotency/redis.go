// Package idempotency makes order submission safe to retry by remembering
// which Idempotency-Key produced which order.
package idempotency

import (
	"context"
	"strconv"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// MaxKeyLength bounds client supplied keys.
const MaxKeyLength = 128

const pendingValue = "pending"

// DefaultPendingTTL bounds how long a reservation survives a request that
// never completes or releases it, e.g. after a crash.
const DefaultPendingTTL = time.Minute

// ErrInvalidKey is returned for empty, oversized or non printable keys.
var ErrInvalidKey = errors.New("invalid idempotency key")

// State is the outcome of a reservation.
type State int

const (
	// StateNew means the caller owns the key and must Complete or Release it.
	StateNew State = iota
	// StatePending means another request holding the key is still running.
	StatePending
	// StateDone means the key already produced an order.
	StateDone
)

// ValidateKey checks a client supplied key.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return ErrInvalidKey
		}
	}
	return nil
}

// Store keeps keys in Redis.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewStore creates a Store. Completed keys expire after ttl, reservations
// after DefaultPendingTTL.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, prefix: prefix, ttl: ttl, pendingTTL: min(DefaultPendingTTL, ttl)}
}

// WithPendingTTL returns a copy of s whose reservations expire after d.
func (s *Store) WithPendingTTL(d time.Duration) *Store {
	c := *s
	c.pendingTTL = d
	return &c
}

func (s *Store) key(k string) string {
	return s.prefix + ":idempotency:" + k
}

// Reserve claims key. For StateDone the id of the order it produced is
// returned as well.
func (s *Store) Reserve(ctx context.Context, key string) (State, int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, 0, err
	}
	k := s.key(key)

	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pendingValue, s.pendingTTL).Result()
		if err != nil {
			return 0, 0, errors.Wrap(err, "reserve key")
		}
		if ok {
			return StateNew, 0, nil
		}

		v, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired or released between SETNX and GET.
			continue
		}
		if err != nil {
			return 0, 0, errors.Wrap(err, "read key")
		}
		if v == pendingValue {
			return StatePending, 0, nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "parse stored order id %q", v)
		}
		return StateDone, id, nil
	}
	return StatePending, 0, nil
}

// Complete records the order produced for key and keeps it for the full
// ttl.
func (s *Store) Complete(ctx context.Context, key string, orderID int64) error {
	if err := s.client.Set(ctx, s.key(key), strconv.FormatInt(orderID, 10), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete key")
	}
	return nil
}

// Release forgets key so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrap(err, "release key")
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
