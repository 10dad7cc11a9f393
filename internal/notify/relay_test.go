package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	records []Record
	sent    map[int64]bool
	failed  map[int64]string
	parked  map[int64]bool
}

func newMemStore(recs ...Record) *memStore {
	return &memStore{
		records: recs,
		sent:    map[int64]bool{},
		failed:  map[int64]string{},
		parked:  map[int64]bool{},
	}
}

func (s *memStore) Process(ctx context.Context, limit, maxAttempts int, fn func(context.Context, Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.records {
		rec := &s.records[i]
		if s.sent[rec.ID] || s.parked[rec.ID] {
			continue
		}
		if n == limit {
			break
		}
		n++
		if err := fn(ctx, *rec); err != nil {
			rec.Attempts++
			s.failed[rec.ID] = err.Error()
			if rec.Attempts >= maxAttempts {
				s.parked[rec.ID] = true
			}
			continue
		}
		s.sent[rec.ID] = true
	}
	return n, nil
}

type fakeSender struct {
	mu   sync.Mutex
	got  []Message
	fail error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, msg)
	return nil
}

type fakePublisher struct {
	keys []string
}

func (f *fakePublisher) Publish(_ context.Context, key string, _ []byte) error {
	f.keys = append(f.keys, key)
	return nil
}

func mailRecord(t *testing.T, id int64, to string) Record {
	t.Helper()
	payload, err := json.Marshal(Message{To: to, Subject: "hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	return Record{ID: id, Topic: TopicMail, Payload: payload}
}

func newTestRelay(t *testing.T, store Store, sender Sender, pub Publisher, cfg RelayConfig) *Relay {
	t.Helper()
	cfg.RatePerSecond = 1000
	r, err := NewRelay(store, sender, pub, cfg, zap.NewNop(), noop.NewMeterProvider())
	require.NoError(t, err)
	return r
}

func TestRelay_FlushSendsMail(t *testing.T) {
	store := newMemStore(mailRecord(t, 1, "ops@lens.test"), mailRecord(t, 2, "ada@example.com"))
	sender := &fakeSender{}
	r := newTestRelay(t, store, sender, nil, RelayConfig{})

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, sender.got, 2)
	assert.Equal(t, "ops@lens.test", sender.got[0].To)
	assert.Equal(t, "ada@example.com", sender.got[1].To)
	assert.True(t, store.sent[1])
	assert.True(t, store.sent[2])
}

func TestRelay_FailureIsParkedAfterMaxAttempts(t *testing.T) {
	store := newMemStore(mailRecord(t, 1, "ada@example.com"))
	sender := &fakeSender{fail: errors.New("smtp: 421 try later")}
	r := newTestRelay(t, store, sender, nil, RelayConfig{MaxAttempts: 2})
	ctx := context.Background()

	_, err := r.Flush(ctx)
	require.NoError(t, err, "delivery failures do not fail the flush")
	assert.False(t, store.parked[1], "first failure is retried")
	assert.Contains(t, store.failed[1], "421")

	_, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, store.parked[1])
	assert.False(t, store.sent[1])

	n, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "parked records are not retried")
}

func TestRelay_DefaultsToSingleAttempt(t *testing.T) {
	store := newMemStore(mailRecord(t, 1, "ada@example.com"))
	r := newTestRelay(t, store, &fakeSender{fail: errors.New("boom")}, nil, RelayConfig{})

	_, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, store.parked[1])
}

func TestRelay_OrderEvents(t *testing.T) {
	evt := Record{ID: 7, Topic: TopicOrderEvents, Key: "order-3", Payload: []byte(`{"type":"order.placed"}`)}

	t.Run("published", func(t *testing.T) {
		pub := &fakePublisher{}
		store := newMemStore(evt)
		r := newTestRelay(t, store, &fakeSender{}, pub, RelayConfig{})

		_, err := r.Flush(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"order-3"}, pub.keys)
		assert.True(t, store.sent[7])
	})

	t.Run("acknowledged without broker", func(t *testing.T) {
		store := newMemStore(evt)
		r := newTestRelay(t, store, &fakeSender{}, nil, RelayConfig{})

		_, err := r.Flush(context.Background())
		require.NoError(t, err)
		assert.True(t, store.sent[7])
	})
}

func TestRelay_UnknownTopic(t *testing.T) {
	store := newMemStore(Record{ID: 9, Topic: "sms", Payload: []byte(`{}`)})
	r := newTestRelay(t, store, &fakeSender{}, nil, RelayConfig{})

	var captured error
	_, err := store.Process(context.Background(), 1, 1, func(ctx context.Context, rec Record) error {
		captured = r.deliver(ctx, rec)
		return captured
	})
	require.NoError(t, err)

	var dErr *DeliveryError
	require.ErrorAs(t, captured, &dErr)
	assert.Equal(t, "sms", dErr.Topic)
	assert.Equal(t, int64(9), dErr.ID)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := newMemStore(mailRecord(t, 1, "ada@example.com"))
	sender := &fakeSender{}
	r := newTestRelay(t, store, sender, nil, RelayConfig{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.got) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
