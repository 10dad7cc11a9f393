// Package health serves the /livez and /readyz probes.
//
// Checks run in the background on a fixed interval and the handlers only
// report the latest outcome, so a slow dependency never stalls a probe. A
// check flips to failing after FailAfter consecutive errors and back after
// RecoverAfter consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	// Liveness checks failing means the process should be restarted.
	Liveness Kind = iota
	// Readiness checks failing means traffic should be routed elsewhere.
	Readiness
)

// Check describes a single background check.
type Check struct {
	Name string
	Kind Kind
	Func CheckFunc
	// Timeout bounds one execution. Defaults to one second.
	Timeout time.Duration
	// FailAfter is the number of consecutive errors before the check fails.
	// Defaults to 3.
	FailAfter int
	// RecoverAfter is the number of consecutive successes before a failing
	// check passes again. Defaults to 1.
	RecoverAfter int
}

type state struct {
	Check

	passing atomic.Bool
	lastErr atomic.Pointer[string]
	checked atomic.Int64

	// Owned by the goroutine running the check.
	errs, oks int
}

func (s *state) observe(ctx context.Context, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := s.Func(ctx)
	s.checked.Store(now.Unix())
	if err == nil {
		s.errs = 0
		s.oks++
		s.lastErr.Store(nil)
		if s.oks >= s.RecoverAfter {
			s.passing.Store(true)
		}
		return
	}

	msg := err.Error()
	s.lastErr.Store(&msg)
	s.oks = 0
	s.errs++
	if s.errs >= s.FailAfter {
		s.passing.Store(false)
	}
}

// Registry holds the checks of a service and its manual readiness flag.
type Registry struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
}

// New returns an empty registry. It reports not ready until SetReady(true).
func New() *Registry {
	return &Registry{}
}

// Add registers c. Checks start out passing.
func (r *Registry) Add(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailAfter <= 0 {
		c.FailAfter = 3
	}
	if c.RecoverAfter <= 0 {
		c.RecoverAfter = 1
	}
	s := &state{Check: c}
	s.passing.Store(true)

	r.mu.Lock()
	r.checks = append(r.checks, s)
	r.mu.Unlock()
}

// SetReady flips the manual readiness flag, e.g. off at shutdown so the load
// balancer drains the instance before the server stops.
func (r *Registry) SetReady(ready bool) { r.ready.Store(ready) }

// Ready reports whether the service is marked ready and every readiness check
// passes.
func (r *Registry) Ready() bool {
	if !r.ready.Load() {
		return false
	}
	for _, s := range r.snapshot(Readiness) {
		if !s.passing.Load() {
			return false
		}
	}
	return true
}

// Run executes every check now and then on each interval tick until ctx is
// cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	r.mu.RLock()
	checks := slices.Clone(r.checks)
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range checks {
		g.Go(func() error {
			s.observe(ctx, time.Now())
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case now := <-ticker.C:
					s.observe(ctx, now)
				}
			}
		})
	}
	return g.Wait()
}

func (r *Registry) snapshot(kind Kind) []*state {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*state
	for _, s := range r.checks {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Livez serves the liveness probe.
func (r *Registry) Livez(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, r.snapshot(Liveness), true)
}

// Readyz serves the readiness probe.
func (r *Registry) Readyz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, r.snapshot(Readiness), r.ready.Load())
}

// writeReport renders
//
//	{"status":"ok|unavailable","ready":bool,"checks":{"name":{"ok":bool,"error":"...","checked_at":unix}}}
func writeReport(w http.ResponseWriter, checks []*state, ready bool) {
	ok := ready
	for _, s := range checks {
		ok = ok && s.passing.Load()
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("status")
	if ok {
		e.Str("ok")
	} else {
		e.Str("unavailable")
	}
	e.FieldStart("ready")
	e.Bool(ready)
	e.FieldStart("checks")
	e.ObjStart()
	for _, s := range checks {
		e.FieldStart(s.Name)
		e.ObjStart()
		e.FieldStart("ok")
		e.Bool(s.passing.Load())
		if msg := s.lastErr.Load(); msg != nil {
			e.FieldStart("error")
			e.Str(*msg)
		}
		if at := s.checked.Load(); at != 0 {
			e.FieldStart("checked_at")
			e.Int64(at)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	e.ObjEnd()

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
