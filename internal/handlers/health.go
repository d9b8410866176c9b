package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/httpx"
)

// ReadinessReporter collects dependency health for /readyz.
type ReadinessReporter interface {
	Collect(ctx context.Context) domain.ReadinessReport
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	CommitSHA string
	StartedAt time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	readiness ReadinessReporter
	build     BuildInfo
	clock     func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithReadinessReporter sets the dependency prober used by /readyz.
func WithReadinessReporter(r ReadinessReporter) HealthOption {
	return func(h *HealthHandlers) { h.readiness = r }
}

// WithHealthBuildInfo attaches version metadata to /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

// WithHealthClock overrides the clock, mostly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs probe handlers. Without a reporter /readyz mirrors /healthz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status       string                     `json:"status"`
	Dependencies []dependencyStatusResponse `json:"dependencies"`
	GeneratedAt  string                     `json:"generated_at"`
}

type dependencyStatusResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    domain.ReadinessOK,
		Version:   h.build.Version,
		CommitSHA: h.build.CommitSHA,
		Uptime:    now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// Readyz probes dependencies. Degraded still answers 200 so traffic keeps flowing; down
// answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil {
		h.Healthz(w, r)
		return
	}
	report := h.readiness.Collect(r.Context())

	names := make([]string, 0, len(report.Dependencies))
	for name := range report.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	deps := make([]dependencyStatusResponse, 0, len(names))
	for _, name := range names {
		dep := report.Dependencies[name]
		deps = append(deps, dependencyStatusResponse{
			Name:      name,
			Status:    dep.Status,
			Detail:    dep.Detail,
			LatencyMS: dep.Latency.Milliseconds(),
		})
	}

	status := http.StatusOK
	if report.Status == domain.ReadinessDown {
		status = http.StatusServiceUnavailable
	}
	setNoStore(w)
	httpx.WriteJSON(w, status, readinessResponse{
		Status:       report.Status,
		Dependencies: deps,
		GeneratedAt:  report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
