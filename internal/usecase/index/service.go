// Package index builds the per-version vector index: sentence-safe chunking,
// incremental re-embedding by content hash, batch embedding with retries, and
// superseded-version cleanup.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain/chunk"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/ratelimit"
	"github.com/vitae-cloud/profilex/internal/repository/chunkindex"
)

// Config holds indexing settings.
type Config struct {
	Dimensions int
	BatchSize  int
	Retry      ratelimit.Policy
	GCGrace    time.Duration
}

// Report summarizes one index build.
type Report struct {
	Chunks   int
	Embedded int
	Reused   int
	Skipped  int
}

// Service builds chunk indexes.
type Service struct {
	profiles    ProfileReader
	chunks      ChunkStore
	embedder    Embedder
	chunker     *Chunker
	cfg         Config
	embedTokens prometheus.Counter
	logger      *zap.Logger
}

// New creates the indexing service.
// embedTokens counts embedding tokens consumed, passed explicitly.
func New(
	profiles ProfileReader,
	chunks ChunkStore,
	embedder Embedder,
	chunker *Chunker,
	cfg Config,
	embedTokens prometheus.Counter,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Service{
		profiles:    profiles,
		chunks:      chunks,
		embedder:    embedder,
		chunker:     chunker,
		cfg:         cfg,
		embedTokens: embedTokens,
		logger:      logger,
	}
}

// BuildIndex chunks and embeds one profile version and publishes its index.
// Chunks whose content hash already exists in the previous version reuse
// that vector. A chunk whose embedding fails after retries is skipped and
// logged; the build continues with the rest.
//
// The version meta key is written only after every surviving chunk is stored,
// so retrieval never sees a partially built index.
func (s *Service) BuildIndex(ctx context.Context, subjectID string, version int) (Report, error) {
	p, err := s.profiles.Get(ctx, subjectID, version)
	if err != nil {
		return Report{}, err
	}

	chunks := s.chunkProfile(&p)
	report := Report{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return report, fmt.Errorf("profile %s v%d produced no chunks", subjectID, version)
	}

	prevVectors := s.previousVectors(ctx, subjectID, version)

	var toEmbed []*chunk.Chunk
	for i := range chunks {
		if vec, ok := prevVectors[chunks[i].Hash()]; ok {
			chunks[i].SetEmbedding(vec)
			report.Reused++
			continue
		}
		toEmbed = append(toEmbed, &chunks[i])
	}

	embedded, skipped := s.embedBatches(ctx, toEmbed)
	report.Embedded = embedded
	report.Skipped = skipped

	ready := make([]chunk.Chunk, 0, len(chunks))
	for i := range chunks {
		if len(chunks[i].Embedding()) > 0 {
			ready = append(ready, chunks[i])
		}
	}
	if len(ready) == 0 {
		return report, fmt.Errorf("embedding failed for every chunk of %s v%d", subjectID, version)
	}

	if err := s.chunks.EnsureIndex(ctx, subjectID, version, s.cfg.Dimensions); err != nil {
		return report, err
	}
	if err := s.chunks.PutChunks(ctx, subjectID, ready); err != nil {
		return report, err
	}
	meta := chunkindex.Meta{
		Model:     s.embedder.ModelVersion(),
		Dim:       s.cfg.Dimensions,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.chunks.WriteMeta(ctx, subjectID, version, meta); err != nil {
		return report, err
	}

	if err := s.chunks.PruneVersions(ctx, subjectID, version, s.cfg.GCGrace); err != nil {
		s.logger.Warn("index version pruning failed",
			zap.String("subject_id", subjectID), zap.Error(err))
	}

	s.logger.Info("index built",
		zap.String("subject_id", subjectID),
		zap.Int("version", version),
		zap.Int("chunks", report.Chunks),
		zap.Int("embedded", report.Embedded),
		zap.Int("reused", report.Reused),
		zap.Int("skipped", report.Skipped))

	return report, nil
}

// chunkProfile turns every profile section into token-bounded chunks.
func (s *Service) chunkProfile(p *profile.Profile) []chunk.Chunk {
	var chunks []chunk.Chunk
	seq := 0
	for _, sec := range p.Sections() {
		for _, text := range s.chunker.Split(sec.Text()) {
			id := fmt.Sprintf("%s-%03d", sec.Category(), seq)
			seq++
			c, err := chunk.New(
				id, p.Version(), sec.Category(), text,
				sec.Attributions(), sec.Confidence(), p.LastMerged(),
			)
			if err != nil {
				s.logger.Warn("dropping invalid chunk", zap.String("id", id), zap.Error(err))
				continue
			}
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// previousVectors returns hash->vector from the newest indexed version below
// the one being built. Any failure degrades to a full re-embed.
func (s *Service) previousVectors(ctx context.Context, subjectID string, version int) map[string][]float32 {
	versions, err := s.chunks.Versions(ctx, subjectID)
	if err != nil {
		s.logger.Warn("listing indexed versions failed", zap.String("subject_id", subjectID), zap.Error(err))
		return nil
	}

	prev := 0
	for _, v := range versions {
		if v < version && v > prev {
			prev = v
		}
	}
	if prev == 0 {
		return nil
	}

	vectors, err := s.chunks.VectorsByHash(ctx, subjectID, prev)
	if err != nil {
		s.logger.Warn("loading previous vectors failed",
			zap.String("subject_id", subjectID), zap.Int("version", prev), zap.Error(err))
		return nil
	}
	return vectors
}

// embedBatches embeds chunks in batches under the retry policy. A batch that
// still fails after retries skips its chunks instead of failing the build.
func (s *Service) embedBatches(ctx context.Context, toEmbed []*chunk.Chunk) (embedded, skipped int) {
	for start := 0; start < len(toEmbed); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(toEmbed))
		batch := toEmbed[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text()
		}

		var vectors [][]float32
		err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			res, embedErr := s.embedder.BatchEmbed(ctx, texts)
			if embedErr != nil {
				return embedErr
			}
			if len(res.Embeddings) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(res.Embeddings), len(texts))
			}
			vectors = res.Embeddings
			if s.embedTokens != nil {
				s.embedTokens.Add(float64(res.TotalTokens))
			}
			return nil
		})
		if err != nil {
			skipped += len(batch)
			s.logger.Warn("embedding batch failed, skipping chunks",
				zap.Int("batch_size", len(batch)), zap.Error(err))
			continue
		}

		for i, c := range batch {
			c.SetEmbedding(vectors[i])
		}
		embedded += len(batch)
	}
	return embedded, skipped
}
