// Package health implements liveness and readiness probes for the POS server.
//
// Checks run on a background ticker and flip state only after consecutive
// results cross a threshold, so a single slow database ping does not bounce
// the register out of the load balancer. Readiness additionally gates on an
// explicit ready flag that serving code sets after startup and clears during
// shutdown.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Kind separates process-level liveness checks from traffic-readiness checks.
type Kind int

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Kind = iota
	// Readiness checks decide whether the process should receive traffic.
	Readiness
)

// Probe configures thresholds for one registered check.
type Probe struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Check   CheckFunc

	// FailAfter is how many consecutive failures flip the probe unhealthy.
	// Zero defaults to 3.
	FailAfter int
	// PassAfter is how many consecutive successes flip it back. Zero
	// defaults to 1.
	PassAfter int
}

// probeState is the runtime state of one probe.
//
// run is only ever called from the probe's own ticker goroutine, so the
// consecutive counters need no locking. healthy and lastErr are read from
// request handlers and use atomics.
type probeState struct {
	Probe

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probeState) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		if p.fails++; p.fails >= p.FailAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	if p.oks++; p.oks >= p.PassAfter {
		p.healthy.Store(true)
	}
}

func (p *probeState) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "check is unhealthy", true
}

// Service aggregates probes and serves the /livez and /readyz endpoints.
type Service struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probeState
	cancel context.CancelFunc
}

// NewService creates an empty Service. It starts not-ready; call
// SetReady(true) once startup finishes.
func NewService() *Service {
	return &Service{}
}

// Register adds a probe. Probes start healthy and must fail FailAfter times
// before they report otherwise. Register before Start.
func (s *Service) Register(p Probe) {
	if p.FailAfter <= 0 {
		p.FailAfter = 3
	}
	if p.PassAfter <= 0 {
		p.PassAfter = 1
	}

	st := &probeState{Probe: p}
	st.healthy.Store(true)

	s.mu.Lock()
	s.probes = append(s.probes, st)
	s.mu.Unlock()
}

// Start runs every registered probe on its own ticker until ctx is cancelled
// or Stop is called. Each probe fires once immediately.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := make([]*probeState, len(s.probes))
	copy(probes, s.probes)
	s.mu.Unlock()

	for _, p := range probes {
		go func(p *probeState) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the explicit readiness gate. Serving code sets it true after
// startup and false at the start of graceful shutdown.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	return len(s.failures(Readiness)) == 0
}

func (s *Service) failures(kind Kind) map[string]string {
	s.mu.RLock()
	probes := make([]*probeState, len(s.probes))
	copy(probes, s.probes)
	s.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range probes {
		if p.Kind != kind {
			continue
		}
		if msg, failed := p.failure(); failed {
			out[p.Name] = msg
		}
	}
	return out
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the liveness probe: 200 while every liveness check
// passes, 503 with the failing checks otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, s.failures(Liveness))
}

// ReadyEndpoint serves the readiness probe. It fails while the ready gate is
// closed even if every check passes.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := s.failures(Readiness)
	if !s.ready.Load() {
		failures["_gate"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failures}
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
