// Package enrich orchestrates source acquisition and merging: cache, rate
// limiter, adapter and validator per source, fanned out concurrently, merged
// into a new immutable profile version.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
	"github.com/vitae-cloud/profilex/internal/ratelimit"
	"github.com/vitae-cloud/profilex/internal/usecase/validate"
)

// Source outcome statuses.
const (
	StatusFetched = "fetched"
	StatusCached  = "cached"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Outcome reports how one source fared during an enrichment run.
type Outcome struct {
	Source source.Source
	Status string
	Facts  int
	Err    error
}

// Report summarizes an enrichment run.
type Report struct {
	Outcomes   []Outcome
	Violations []validate.Violation
}

// Succeeded counts sources that contributed data (fetched or cached).
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusFetched || o.Status == StatusCached {
			n++
		}
	}
	return n
}

// Config holds orchestration settings.
type Config struct {
	MaxParallel    int
	Retry          ratelimit.Policy
	SourcePriority []source.Source
}

// Service runs enrichment.
type Service struct {
	adapters   map[source.Source]Adapter
	cache      RecordCache
	limiter    Limiter
	screener   Screener
	tokens     TokenProvider
	baseReader BaseDocumentReader
	profiles   ProfileStore
	cfg        Config
	fetchTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates the enrichment service.
// fetchTotal is a counter vec with labels "source" and "status", passed explicitly.
func New(
	adapters []Adapter,
	cache RecordCache,
	limiter Limiter,
	screener Screener,
	tokens TokenProvider,
	baseReader BaseDocumentReader,
	profiles ProfileStore,
	cfg Config,
	fetchTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	bySource := make(map[source.Source]Adapter, len(adapters))
	for _, a := range adapters {
		bySource[a.Source()] = a
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &Service{
		adapters:   bySource,
		cache:      cache,
		limiter:    limiter,
		screener:   screener,
		tokens:     tokens,
		baseReader: baseReader,
		profiles:   profiles,
		cfg:        cfg,
		fetchTotal: fetchTotal,
		logger:     logger,
	}
}

// Enrich fetches all configured sources for a subject, merges the results
// around the base document and publishes a new profile version.
//
// Partial acquisition is success: a failed source is reported in the Report
// and excluded from the merge. Only a missing base document is fatal.
func (s *Service) Enrich(ctx context.Context, subjectID string, forceRefresh bool) (profile.Profile, Report, error) {
	base, err := s.baseReader.GetBase(ctx, subjectID)
	if err != nil {
		if errors.Is(err, domain.ErrBaseDocumentMissing) {
			return profile.Profile{}, Report{}, err
		}
		return profile.Profile{}, Report{}, fmt.Errorf("load base document: %w", err)
	}

	srcs := s.enabledSources()
	records := make([]source.Record, len(srcs))
	outcomes := make([]Outcome, len(srcs))
	violations := make([][]validate.Violation, len(srcs))

	// Bulkhead: each source runs in its own goroutine and reports through its
	// slot; a panic-free failure never propagates to siblings.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)
	for i, src := range srcs {
		g.Go(func() error {
			records[i], violations[i], outcomes[i] = s.acquire(gctx, src, subjectID, forceRefresh)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	report := Report{Outcomes: outcomes}
	merged := make([]source.Record, 0, len(records))
	for i := range records {
		report.Violations = append(report.Violations, violations[i]...)
		if outcomes[i].Status == StatusFetched || outcomes[i].Status == StatusCached {
			merged = append(merged, records[i])
		}
	}

	version, err := s.profiles.NextVersion(ctx, subjectID)
	if err != nil {
		return profile.Profile{}, report, err
	}

	sections := mergeRecords(base, merged, s.cfg.SourcePriority)
	score := qualityScore(sections, report.Succeeded(), len(srcs), time.Now().UTC())

	p, err := profile.New(base, sections, score, version)
	if err != nil {
		return profile.Profile{}, report, fmt.Errorf("assemble profile: %w", err)
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return profile.Profile{}, report, err
	}

	s.logger.Info("enrichment complete",
		zap.String("subject_id", subjectID),
		zap.Int("version", version),
		zap.Int("sources_ok", report.Succeeded()),
		zap.Int("sources_total", len(srcs)),
		zap.Int("quality_score", score))

	return p, report, nil
}

// acquire runs the per-source pipeline: cache, token, limiter, fetch with
// retries, screen, cache write.
func (s *Service) acquire(
	ctx context.Context, src source.Source, subjectID string, forceRefresh bool,
) (source.Record, []validate.Violation, Outcome) {
	if forceRefresh {
		if err := s.cache.Invalidate(ctx, src, subjectID); err != nil {
			s.logger.Warn("cache invalidation failed",
				zap.String("source", string(src)), zap.Error(err))
		}
	} else if rec, ok := s.cache.Get(ctx, src, subjectID); ok {
		s.countFetch(src, StatusCached)
		return rec, nil, Outcome{Source: src, Status: StatusCached, Facts: len(rec.Facts)}
	}

	auth, err := s.tokens.Token(ctx, src, subjectID)
	if err != nil || !auth.Valid(time.Now()) {
		if err == nil {
			err = fmt.Errorf("no valid authorization for %s", src)
		}
		s.countFetch(src, StatusSkipped)
		return source.Record{}, nil, Outcome{Source: src, Status: StatusSkipped, Err: err}
	}

	if err := s.limiter.Acquire(ctx, src, subjectID); err != nil {
		s.countFetch(src, StatusFailed)
		return source.Record{}, nil, Outcome{Source: src, Status: StatusFailed, Err: err}
	}

	var rec source.Record
	err = s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		rec, fetchErr = s.adapters[src].Fetch(ctx, subjectID, auth)
		return fetchErr
	})
	if err != nil {
		s.countFetch(src, StatusFailed)
		s.logger.Warn("source fetch failed",
			zap.String("source", string(src)),
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return source.Record{}, nil, Outcome{Source: src, Status: StatusFailed, Err: err}
	}

	clean, viols := s.screener.Screen(rec)
	s.cache.Put(ctx, clean)
	s.countFetch(src, StatusFetched)
	return clean, viols, Outcome{Source: src, Status: StatusFetched, Facts: len(clean.Facts)}
}

func (s *Service) enabledSources() []source.Source {
	srcs := make([]source.Source, 0, len(s.adapters))
	for _, src := range source.All() {
		if _, ok := s.adapters[src]; ok {
			srcs = append(srcs, src)
		}
	}
	return srcs
}

func (s *Service) countFetch(src source.Source, status string) {
	if s.fetchTotal != nil {
		s.fetchTotal.WithLabelValues(string(src), status).Inc()
	}
}
