package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, ParseBrokers(" kafka-1:9092, ,kafka-2:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(nil, "orders")
	require.Error(t, err)

	_, err = NewPublisher([]string{"localhost:9092"}, "")
	require.Error(t, err)

	p, err := NewPublisher([]string{"localhost:9092"}, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", p.topic)
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Publisher{w: w, topic: "orders", now: func() time.Time { return at }}

	require.NoError(t, p.Publish(context.Background(), "order-3", []byte(`{"type":"order.placed"}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-3", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"type":"order.placed"}`, string(w.msgs[0].Value))
	assert.Equal(t, at, w.msgs[0].Time)

	w.err = errors.New("leader not available")
	err := p.Publish(context.Background(), "order-3", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write to orders")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
