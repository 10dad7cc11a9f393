package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Status string
	Ready  bool
	Errors map[string]string
	OK     map[string]bool
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) report {
	t.Helper()
	rep := report{Errors: map[string]string{}, OK: map[string]bool{}}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			rep.Status = v
			return err
		case "ready":
			v, err := d.Bool()
			rep.Ready = v
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				return d.Obj(func(d *jx.Decoder, field string) error {
					switch field {
					case "ok":
						v, err := d.Bool()
						rep.OK[name] = v
						return err
					case "error":
						v, err := d.Str()
						rep.Errors[name] = v
						return err
					default:
						return d.Skip()
					}
				})
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return rep
}

func probe(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

// flaky fails while fail is set.
type flaky struct {
	mu   sync.Mutex
	fail bool
}

func (f *flaky) set(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *flaky) check(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func TestLivez(t *testing.T) {
	r := New()
	db := &flaky{fail: true}
	r.Add(Check{Name: "goroutines", Kind: Liveness, Func: Goroutines(1 << 20)})
	r.Add(Check{Name: "postgres", Kind: Liveness, Func: db.check})

	w := probe(r.Livez)
	assert.Equal(t, http.StatusOK, w.Code, "checks start out passing")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	s := r.snapshot(Liveness)[1]
	ctx := context.Background()
	s.observe(ctx, time.Now())
	s.observe(ctx, time.Now())
	assert.Equal(t, http.StatusOK, probe(r.Livez).Code, "below the failure threshold")

	s.observe(ctx, time.Now())
	w = probe(r.Livez)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	rep := decodeReport(t, w)
	assert.Equal(t, "unavailable", rep.Status)
	assert.False(t, rep.OK["postgres"])
	assert.True(t, rep.OK["goroutines"])
	assert.Equal(t, "connection refused", rep.Errors["postgres"])

	db.set(false)
	s.observe(ctx, time.Now())
	w = probe(r.Livez)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeReport(t, w).Errors)
}

func TestReadyz(t *testing.T) {
	r := New()
	redis := &flaky{}
	r.Add(Check{Name: "redis", Kind: Readiness, Func: redis.check, FailAfter: 1, RecoverAfter: 2})
	r.Add(Check{Name: "goroutines", Kind: Liveness, Func: Goroutines(0)})

	w := probe(r.Readyz)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	rep := decodeReport(t, w)
	assert.False(t, rep.Ready)
	assert.NotContains(t, rep.OK, "goroutines", "liveness checks are not part of readiness")

	r.SetReady(true)
	assert.True(t, r.Ready())
	assert.Equal(t, http.StatusOK, probe(r.Readyz).Code)

	s := r.snapshot(Readiness)[0]
	ctx := context.Background()
	redis.set(true)
	s.observe(ctx, time.Now())
	assert.False(t, r.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, probe(r.Readyz).Code)

	redis.set(false)
	s.observe(ctx, time.Now())
	assert.False(t, r.Ready(), "needs two successes to recover")
	s.observe(ctx, time.Now())
	assert.True(t, r.Ready())

	r.SetReady(false)
	assert.False(t, r.Ready())
}

func TestRegistry_Run(t *testing.T) {
	r := New()
	r.SetReady(true)
	r.Add(Check{Name: "postgres", Kind: Readiness, Func: func(context.Context) error {
		return errors.New("down")
	}, FailAfter: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool { return !r.Ready() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCheck_Timeout(t *testing.T) {
	r := New()
	r.Add(Check{Name: "slow", Kind: Liveness, Timeout: 10 * time.Millisecond, FailAfter: 1, Func: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	r.snapshot(Liveness)[0].observe(context.Background(), time.Now())

	rep := decodeReport(t, probe(r.Livez))
	assert.Equal(t, context.DeadlineExceeded.Error(), rep.Errors["slow"])
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Ping(pinger{})(ctx))
	assert.ErrorContains(t, Ping(pinger{err: errors.New("refused")})(ctx), "refused")

	assert.NoError(t, Goroutines(1<<20)(ctx))
	assert.Error(t, Goroutines(0)(ctx))

	count := func(n int, err error) func(context.Context) (int, error) {
		return func(context.Context) (int, error) { return n, err }
	}
	assert.NoError(t, Backlog(count(3, nil), 100)(ctx))
	assert.ErrorContains(t, Backlog(count(101, nil), 100)(ctx), "101 items pending")
	assert.ErrorContains(t, Backlog(count(0, errors.New("no table")), 100)(ctx), "no table")
}
