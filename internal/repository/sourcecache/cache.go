// Package sourcecache is the read-through TTL cache for normalized adapter
// responses, keyed by (source, subjectID). A hit bypasses the rate limiter
// entirely; a cold cache costs latency, never correctness.
package sourcecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// store is the consumer interface for the source cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Cache stores validated source records with per-source TTLs.
type Cache struct {
	store      store
	prefix     string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a source record cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, prefix string, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: s, prefix: prefix, cacheTotal: cacheTotal, logger: logger}
}

// recordDTO is the storage representation of a source.Record.
type recordDTO struct {
	Source        string        `json:"source"`
	SubjectID     string        `json:"subject_id"`
	FetchedAt     time.Time     `json:"fetched_at"`
	SchemaVersion int           `json:"schema_version"`
	TTLSeconds    int64         `json:"ttl_seconds"`
	Handle        string        `json:"handle,omitempty"`
	DisplayName   string        `json:"display_name,omitempty"`
	ProfileURL    string        `json:"profile_url,omitempty"`
	Facts         []source.Fact `json:"facts"`
}

// Get returns the cached record for (src, subjectID) if present and fresh.
// Storage failures degrade to a miss.
func (c *Cache) Get(ctx context.Context, src source.Source, subjectID string) (source.Record, bool) {
	key := c.key(src, subjectID)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("source cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return source.Record{}, false
	}

	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		c.logger.Warn("source cache entry corrupt", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return source.Record{}, false
	}

	c.incCache("hit")
	return source.Record{
		Source:        source.Source(dto.Source),
		SubjectID:     dto.SubjectID,
		FetchedAt:     dto.FetchedAt,
		SchemaVersion: dto.SchemaVersion,
		TTL:           time.Duration(dto.TTLSeconds) * time.Second,
		Identity: source.Identity{
			Handle:      dto.Handle,
			DisplayName: dto.DisplayName,
			ProfileURL:  dto.ProfileURL,
		},
		Facts: dto.Facts,
	}, true
}

// Put stores a record under its own TTL. Failures are logged, not returned:
// the cache is not a correctness-critical store.
func (c *Cache) Put(ctx context.Context, rec source.Record) {
	dto := recordDTO{
		Source:        string(rec.Source),
		SubjectID:     rec.SubjectID,
		FetchedAt:     rec.FetchedAt,
		SchemaVersion: rec.SchemaVersion,
		TTLSeconds:    int64(rec.TTL.Seconds()),
		Handle:        rec.Identity.Handle,
		DisplayName:   rec.Identity.DisplayName,
		ProfileURL:    rec.Identity.ProfileURL,
		Facts:         rec.Facts,
	}
	data, err := json.Marshal(dto)
	if err != nil {
		c.logger.Warn("source cache marshal failed", zap.Error(err))
		return
	}

	key := c.key(rec.Source, rec.SubjectID)
	if err := c.store.SetWithTTL(ctx, key, data, rec.TTL); err != nil {
		c.logger.Warn("source cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the cached record for (src, subjectID), e.g. when the
// subject re-authorizes a data refresh.
func (c *Cache) Invalidate(ctx context.Context, src source.Source, subjectID string) error {
	if err := c.store.Del(ctx, c.key(src, subjectID)); err != nil {
		return fmt.Errorf("invalidate source cache: %w", err)
	}
	return nil
}

func (c *Cache) key(src source.Source, subjectID string) string {
	return c.prefix + "srccache:" + string(src) + ":" + subjectID
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
