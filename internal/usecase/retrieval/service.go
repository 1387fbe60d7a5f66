// Package retrieval answers queries against a pinned profile version's chunk
// index: query embedding, KNN search, similarity floor and re-ranking.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/chunk"
	"github.com/vitae-cloud/profilex/internal/repository/chunkindex"
)

// Re-rank weights. Similarity dominates; confidence and recency break ties
// between near-equal matches.
const (
	weightSimilarity = 0.7
	weightConfidence = 0.2
	weightRecency    = 0.1
)

// recencyHalfLife matches the profile quality scoring decay.
const recencyHalfLife = 180 * 24 * time.Hour

// MetaReader reads index build metadata.
type MetaReader interface {
	ReadMeta(ctx context.Context, subjectID string, version int) (chunkindex.Meta, error)
}

// Searcher runs KNN queries against a version's index.
type Searcher interface {
	Search(ctx context.Context, subjectID string, version int, vector []float32, k int, category string) ([]chunkindex.Hit, error)
}

// Embedder vectorizes queries with a pinned model version.
type Embedder interface {
	domain.Embedder
	domain.ModelVersioner
}

// RankedChunk is one retrieved chunk with its scores.
type RankedChunk struct {
	Chunk      chunk.Chunk
	Similarity float64
	Score      float64
}

// Config holds retrieval settings.
type Config struct {
	MinSimilarity float64
	DefaultK      int
}

// Service retrieves grounding chunks.
type Service struct {
	meta     MetaReader
	searcher Searcher
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates the retrieval service.
func New(meta MetaReader, searcher Searcher, embedder Embedder, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 6
	}
	return &Service{meta: meta, searcher: searcher, embedder: embedder, cfg: cfg, logger: logger}
}

// Search retrieves the top-k chunks of (subjectID, version) relevant to the
// query. An index built with a different embedding model than the current one
// is rejected with ErrIndexVersionMismatch: mixing vector spaces would return
// silently wrong results, which is worse than an error.
//
// No chunk clearing the similarity floor is a valid empty result, not an error.
func (s *Service) Search(
	ctx context.Context, subjectID string, version int, query string, k int, category string,
) ([]RankedChunk, error) {
	if k <= 0 {
		k = s.cfg.DefaultK
	}

	meta, err := s.meta.ReadMeta(ctx, subjectID, version)
	if err != nil {
		return nil, err
	}
	if meta.Model != s.embedder.ModelVersion() {
		return nil, fmt.Errorf("%w: index built with %s, current model %s",
			domain.ErrIndexVersionMismatch, meta.Model, s.embedder.ModelVersion())
	}

	res, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the similarity floor and re-rank still fill k slots.
	hits, err := s.searcher.Search(ctx, subjectID, version, res.Embedding, k*2, category)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ranked := make([]RankedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < s.cfg.MinSimilarity {
			continue
		}
		ranked = append(ranked, RankedChunk{
			Chunk:      h.Chunk,
			Similarity: h.Similarity,
			Score:      rerankScore(h, now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	s.logger.Debug("retrieval complete",
		zap.String("subject_id", subjectID),
		zap.Int("version", version),
		zap.Int("hits", len(hits)),
		zap.Int("returned", len(ranked)))

	return ranked, nil
}

func rerankScore(h chunkindex.Hit, now time.Time) float64 {
	age := now.Sub(h.Chunk.MergedAt())
	recency := 1.0
	if age > 0 {
		recency = math.Exp2(-float64(age) / float64(recencyHalfLife))
	}
	return weightSimilarity*h.Similarity + weightConfidence*h.Chunk.Confidence() + weightRecency*recency
}
