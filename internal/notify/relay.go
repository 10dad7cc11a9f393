package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Record is a pending outbox row.
type Record struct {
	ID       int64
	Topic    string
	Key      string
	Payload  []byte
	Attempts int
}

// Store is the outbox backing the Relay.
type Store interface {
	// Process claims up to limit undelivered records and calls fn for each.
	// A nil error marks the record sent; otherwise the attempt is recorded
	// and the record is parked once it has been tried maxAttempts times.
	Process(ctx context.Context, limit, maxAttempts int, fn func(context.Context, Record) error) (int, error)
}

// Publisher forwards order events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// RelayConfig tunes outbox draining.
type RelayConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	SendTimeout   time.Duration
	RatePerSecond float64
}

func (c *RelayConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
}

// Relay drains the outbox, handing e-mails to a Sender and order events to a
// Publisher. Delivery failures are logged and never propagate to the code
// that enqueued the notification.
type Relay struct {
	store   Store
	mail    Sender
	events  Publisher
	cfg     RelayConfig
	limiter *rate.Limiter
	lg      *zap.Logger

	delivered metric.Int64Counter
}

// NewRelay creates a Relay. events may be nil, in which case order events
// are acknowledged without being published.
func NewRelay(store Store, mail Sender, events Publisher, cfg RelayConfig, lg *zap.Logger, mp metric.MeterProvider) (*Relay, error) {
	cfg.setDefaults()

	delivered, err := mp.Meter("lens/notify").Int64Counter("notify.outbox.delivered",
		metric.WithDescription("Outbox records processed, by topic and result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create delivered counter")
	}

	return &Relay{
		store:     store,
		mail:      mail,
		events:    events,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		lg:        lg,
		delivered: delivered,
	}, nil
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.lg.Info("Outbox relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			// Keep draining while full batches come back.
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.lg.Error("Outbox flush failed", zap.Error(err))
					}
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// Flush processes a single batch and returns how many records it claimed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	n, err := r.store.Process(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, r.deliver)
	if err != nil {
		return n, errors.Wrap(err, "process outbox")
	}
	return n, nil
}

func (r *Relay) deliver(ctx context.Context, rec Record) error {
	err := r.dispatch(ctx, rec)

	result := "sent"
	if err != nil {
		result = "failed"
		err = &DeliveryError{Topic: rec.Topic, ID: rec.ID, Err: err}
		r.lg.Warn("Notification delivery failed",
			zap.Int64("outbox_id", rec.ID),
			zap.String("topic", rec.Topic),
			zap.Int("attempt", rec.Attempts+1),
			zap.Error(err),
		)
	}
	r.delivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", rec.Topic),
		attribute.String("result", result),
	))
	return err
}

func (r *Relay) dispatch(ctx context.Context, rec Record) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit")
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	switch rec.Topic {
	case TopicMail:
		var msg Message
		if err := json.Unmarshal(rec.Payload, &msg); err != nil {
			return errors.Wrap(err, "decode message")
		}
		if err := r.mail.Send(ctx, msg); err != nil {
			return errors.Wrap(err, "send mail")
		}
		r.lg.Debug("Mail sent", zap.Int64("outbox_id", rec.ID), zap.String("subject", msg.Subject))
		return nil
	case TopicOrderEvents:
		if r.events == nil {
			return nil
		}
		if err := r.events.Publish(ctx, rec.Key, rec.Payload); err != nil {
			return errors.Wrap(err, "publish event")
		}
		return nil
	default:
		return errors.Errorf("unknown topic %q", rec.Topic)
	}
}
