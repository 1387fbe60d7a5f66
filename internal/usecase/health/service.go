// Package health aggregates component health for the readiness endpoint.
package health

import "context"

// StorePinger checks the backing store.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks the embedding provider.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a non-critical component is failing; enrichment and
	// indexing are impaired but stored data remains readable.
	Degraded Status = "degraded"
	// Unhealthy indicates the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult is one component's outcome.
type CheckResult string

const (
	// CheckOK indicates a passing check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing check.
	CheckError CheckResult = "error"
)

// Report aggregates check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding}
}

// Check probes all components. The store is critical: without it nothing can
// be served and the report is Unhealthy. An embedding provider failure only
// degrades.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
		status = Unhealthy
	} else {
		checks["store"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["embedding"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
