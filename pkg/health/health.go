// Package health serves liveness and readiness probes.
//
// Probes run in the background and flip state only after a streak of equal
// results, so a single slow ping does not take a replica out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Check reports whether a dependency works.
type Check func(ctx context.Context) error

// Kind tells which endpoint a probe contributes to.
type Kind int

// Probe kinds.
const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Probe is a named check.
type Probe struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Check   Check
	// FailAfter consecutive failures mark the probe down; RecoverAfter
	// consecutive successes mark it up again. Zero means 3 and 1.
	FailAfter    int
	RecoverAfter int
}

type probeState struct {
	Probe

	up      atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the probe goroutine.
	fails, oks int
}

func (p *probeState) run(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Check(ctx)
	if err == nil {
		p.fails = 0
		p.oks++
		if p.oks >= p.RecoverAfter && !p.up.Swap(true) {
			lg.Info("Probe recovered", zap.String("probe", p.Name))
		}
		return
	}

	msg := err.Error()
	p.lastErr.Store(&msg)
	p.oks = 0
	p.fails++
	if p.fails >= p.FailAfter && p.up.Swap(false) {
		lg.Warn("Probe failing",
			zap.String("probe", p.Name),
			zap.Stringer("kind", p.Kind),
			zap.Error(err),
		)
	}
}

func (p *probeState) failure() (string, bool) {
	if p.up.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "unhealthy", true
}

// Monitor owns a set of probes and the readiness gate.
type Monitor struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probeState
}

// New creates a Monitor. The service is not ready until SetReady(true).
func New(lg *zap.Logger) *Monitor {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Monitor{lg: lg.Named("health")}
}

// Register adds a probe. Probes start up.
func (m *Monitor) Register(p Probe) {
	if p.Timeout <= 0 {
		p.Timeout = time.Second
	}
	if p.FailAfter <= 0 {
		p.FailAfter = 3
	}
	if p.RecoverAfter <= 0 {
		p.RecoverAfter = 1
	}
	s := &probeState{Probe: p}
	s.up.Store(true)

	m.mu.Lock()
	m.probes = append(m.probes, s)
	m.mu.Unlock()
}

// SetReady opens or closes the readiness gate. Services close it at the
// start of shutdown so load balancers drain them.
func (m *Monitor) SetReady(ready bool) { m.ready.Store(ready) }

// Run executes every probe at interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	m.mu.RLock()
	probes := append([]*probeState(nil), m.probes...)
	m.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range probes {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx, m.lg)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// Ready reports whether the gate is open and every readiness probe is up.
func (m *Monitor) Ready() bool {
	return m.ready.Load() && len(m.failures(Readiness)) == 0
}

func (m *Monitor) failures(kind Kind) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]string{}
	for _, p := range m.probes {
		if p.Kind != kind {
			continue
		}
		if msg, failed := p.failure(); failed {
			out[p.Name] = msg
		}
	}
	return out
}

// Mount registers /livez and /readyz on r.
func (m *Monitor) Mount(r chi.Router) {
	r.Get("/livez", m.Live)
	r.Get("/readyz", m.Readyz)
}

// Live serves the liveness probe.
func (m *Monitor) Live(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, m.failures(Liveness))
}

// Readyz serves the readiness probe.
func (m *Monitor) Readyz(w http.ResponseWriter, _ *http.Request) {
	failures := m.failures(Readiness)
	if !m.ready.Load() {
		failures["gate"] = "not ready"
	}
	writeStatus(w, failures)
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failures) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
