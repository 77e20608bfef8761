// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/identity/pkg/httputil"
)

// DefaultTimeout bounds a whole readiness probe.
const DefaultTimeout = 5 * time.Second

// Checker probes one dependency. A nil error means the dependency is usable.
type Checker func(ctx context.Context) error

// Status of a dependency or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the probe body.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one dependency.
type CheckResult struct {
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type check struct {
	name     string
	fn       Checker
	critical bool
}

// Handler owns the registered checks.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
	now     func() time.Time
}

// NewHandler returns a Handler with no checks and DefaultTimeout.
func NewHandler() *Handler {
	return &Handler{
		checks:  make(map[string]check),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

// RegisterCritical adds a check whose failure takes the service out of
// rotation (503).
func (h *Handler) RegisterCritical(name string, fn Checker) {
	h.add(check{name: name, fn: fn, critical: true})
}

// RegisterNonCritical adds a check whose failure only reports degraded.
func (h *Handler) RegisterNonCritical(name string, fn Checker) {
	h.add(check{name: name, fn: fn})
}

func (h *Handler) add(c check) {
	h.mu.Lock()
	h.checks[c.name] = c
	h.mu.Unlock()
}

// SetTimeout overrides the probe deadline.
func (h *Handler) SetTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// LivenessHandler answers 200 as long as the process serves HTTP.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: h.now().UTC()})
	}
}

// ReadinessHandler runs every check concurrently. Any failing critical check
// answers 503 "down"; failing non-critical checks answer 200 "degraded".
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())

		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// Check runs the registered checks and aggregates the result.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := h.snapshot()
	results := make([]CheckResult, len(checks))

	// Checks report through results, so the group never returns an error.
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			start := h.now()
			err := c.fn(ctx)
			res := CheckResult{
				Status:    StatusUp,
				Critical:  c.critical,
				LatencyMS: h.now().Sub(start).Milliseconds(),
			}
			if err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{
		Status:    StatusUp,
		Timestamp: h.now().UTC(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, c := range checks {
		res := results[i]
		resp.Checks[c.name] = res
		if res.Status != StatusDown {
			continue
		}
		if res.Critical {
			resp.Status = StatusDown
		} else if resp.Status == StatusUp {
			resp.Status = StatusDegraded
		}
	}
	return resp
}

func (h *Handler) snapshot() []check {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]check, 0, len(h.checks))
	for _, c := range h.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
