package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck probes one backing service (Firestore, the blob bucket, ...).
type DependencyCheck struct {
	Name string
	// Critical failures mark the whole service down; others only degrade it.
	Critical bool
	Timeout  time.Duration
	Check    func(context.Context) error
}

// ReadinessChecker runs every dependency probe concurrently.
type ReadinessChecker struct {
	checks []DependencyCheck
	now    func() time.Time
}

// NewReadinessChecker validates the probe set.
func NewReadinessChecker(checks []DependencyCheck, clock func() time.Time) (*ReadinessChecker, error) {
	if len(checks) == 0 {
		return nil, errors.New("readiness: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" || check.Check == nil {
			return nil, errors.New("readiness: every check needs a name and a probe")
		}
	}
	if clock == nil {
		clock = time.Now
	}
	return &ReadinessChecker{checks: append([]DependencyCheck(nil), checks...), now: clock}, nil
}

// Collect probes all dependencies and folds them into one report.
func (c *ReadinessChecker) Collect(ctx context.Context) domain.ReadinessReport {
	results := make(map[string]domain.DependencyStatus, len(c.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.probe(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := domain.ReadinessOK
	for _, check := range c.checks {
		if results[check.Name].Status == domain.ReadinessOK {
			continue
		}
		if check.Critical {
			status = domain.ReadinessDown
			break
		}
		status = domain.ReadinessDegraded
	}
	return domain.ReadinessReport{Status: status, Dependencies: results, GeneratedAt: c.now()}
}

func (c *ReadinessChecker) probe(ctx context.Context, check DependencyCheck) domain.DependencyStatus {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.now()
	err := check.Check(probeCtx)
	end := c.now()

	result := domain.DependencyStatus{Status: domain.ReadinessOK, Detail: "ok", Latency: end.Sub(start), CheckedAt: end}
	switch {
	case err == nil && probeCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		result.Status, result.Detail = domain.ReadinessDown, "timeout"
	case err == nil:
		result.Status, result.Detail = domain.ReadinessDown, probeCtx.Err().Error()
	default:
		result.Status, result.Detail = domain.ReadinessDown, err.Error()
	}
	return result
}
