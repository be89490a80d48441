// Package monitoring evaluates readiness probes for the service dependencies.
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

const defaultProbeTimeout = 2 * time.Second

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Probe checks a single dependency and returns nil when it is reachable.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	optional bool
}

// HealthManager runs readiness probes in parallel, each bounded by a timeout.
type HealthManager struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
}

// NewHealthManager constructs an empty health manager. A non-positive timeout uses two seconds.
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthManager{timeout: timeout}
}

// Register adds a required dependency; its failure marks the service down.
func (m *HealthManager) Register(name string, probe Probe) {
	m.add(check{name: name, probe: probe})
}

// RegisterOptional adds a dependency whose failure only degrades the service.
func (m *HealthManager) RegisterOptional(name string, probe Probe) {
	m.add(check{name: name, probe: probe, optional: true})
}

func (m *HealthManager) add(c check) {
	if c.name == "" || c.probe == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, c)
}

// Evaluate executes every registered probe.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.RLock()
	checks := append([]check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			results[i] = m.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := HealthReport{Success: true, Status: StatusUp, Checks: results}
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			report.Success = false
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (m *HealthManager) run(ctx context.Context, c check) (result ProbeResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Component: c.name, Status: StatusDown, Details: "panic recovered", Duration: time.Since(start)}
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := c.probe(probeCtx)
	result = ProbeResult{Component: c.name, Status: StatusUp, Duration: time.Since(start)}
	if err == nil {
		return result
	}

	result.Details = err.Error()
	switch {
	case c.optional:
		result.Status = StatusDegraded
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusDegraded
	default:
		result.Status = StatusDown
	}
	return result
}
