package services

import (
	"context"
	"sync"
	"time"
)

// HealthChecker reports the reachability of one dependency.
type HealthChecker interface {
	Health(ctx context.Context) ComponentHealth
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// Health calls f.
func (f HealthCheckFunc) Health(ctx context.Context) ComponentHealth {
	return f(ctx)
}

// SessionCounter reports live conversations.
type SessionCounter interface {
	Count() int
}

// HealthReport aggregates every dependency.
type HealthReport struct {
	Status         string                     `json:"status"`
	Service        string                     `json:"service"`
	Version        string                     `json:"version"`
	Timestamp      time.Time                  `json:"timestamp"`
	ActiveSessions int                        `json:"active_sessions"`
	Checks         map[string]ComponentHealth `json:"checks"`
}

// Healthy reports whether the service can accept submissions.
func (r HealthReport) Healthy() bool {
	return r.Status != HealthUnhealthy
}

// HealthService runs all dependency checks concurrently.
type HealthService struct {
	version  string
	checks   map[string]HealthChecker
	required map[string]bool
	sessions SessionCounter
}

// NewHealthService creates a health aggregator. The board is required; the
// enricher only degrades the status.
func NewHealthService(version string, enrichment, board HealthChecker, sessions SessionCounter) *HealthService {
	checks := map[string]HealthChecker{}
	if enrichment != nil {
		checks[ServiceEnrichment] = enrichment
	}
	if board != nil {
		checks[ServiceBoard] = board
	}
	return &HealthService{
		version:  version,
		checks:   checks,
		required: map[string]bool{ServiceBoard: true},
		sessions: sessions,
	}
}

// AddCheck registers another dependency. A required check failing makes the
// whole report unhealthy; an optional one only degrades it.
func (h *HealthService) AddCheck(name string, check HealthChecker, required bool) {
	h.checks[name] = check
	h.required[name] = required
}

// Check runs every check and summarizes them.
func (h *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    HealthHealthy,
		Service:   "KB Request Bot",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]ComponentHealth, len(h.checks)),
	}
	if h.sessions != nil {
		report.ActiveSessions = h.sessions.Count()
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check HealthChecker) {
			defer wg.Done()
			res := check.Health(ctx)
			mu.Lock()
			report.Checks[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	for name, res := range report.Checks {
		if res.Status != HealthUnhealthy {
			continue
		}
		if h.required[name] {
			report.Status = HealthUnhealthy
		} else if report.Status == HealthHealthy {
			report.Status = HealthDegraded
		}
	}
	return report
}
