package domain

import "time"

// Readiness states reported by /readyz.
const (
	ReadinessOK       = "ok"
	ReadinessDegraded = "degraded"
	ReadinessDown     = "down"
)

// DependencyStatus is the outcome of a single dependency probe.
type DependencyStatus struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// ReadinessReport aggregates dependency probes.
type ReadinessReport struct {
	Status       string
	Dependencies map[string]DependencyStatus
	GeneratedAt  time.Time
}
