// Package notify delivers transactional e-mails and order events through a
// database outbox. Producers enqueue inside their own transaction; a Relay
// drains the outbox in the background so request latency never depends on
// the mail transport.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Outbox topics.
const (
	TopicMail        = "mail"
	TopicOrderEvents = "order_events"
)

// Event types published on TopicOrderEvents.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// Message is a rendered e-mail ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Event is an order lifecycle notification for downstream consumers.
type Event struct {
	Type       string          `json:"type"`
	OrderID    int64           `json:"order_id"`
	Reference  string          `json:"reference"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Key is the partition key used when the event is published.
func (e Event) Key() string {
	return fmt.Sprintf("order-%d", e.OrderID)
}

// Queue accepts notifications for asynchronous delivery. Implementations
// must not block on the delivery transport.
type Queue interface {
	EnqueueMail(ctx context.Context, msg Message) error
	EnqueueEvent(ctx context.Context, evt Event) error
}

// Sender delivers a single e-mail.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryError reports a notification that could not be handed to its
// transport. It is logged by the Relay and never surfaced to API callers.
type DeliveryError struct {
	Topic string
	ID    int64
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s record %d: %v", e.Topic, e.ID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
