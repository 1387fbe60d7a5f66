package index

import (
	"context"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/chunk"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/repository/chunkindex"
)

// ProfileReader loads profile versions to index.
type ProfileReader interface {
	Get(ctx context.Context, subjectID string, version int) (profile.Profile, error)
}

// ChunkStore persists chunk documents and per-version vector indexes.
type ChunkStore interface {
	EnsureIndex(ctx context.Context, subjectID string, version, dim int) error
	PutChunks(ctx context.Context, subjectID string, chunks []chunk.Chunk) error
	WriteMeta(ctx context.Context, subjectID string, version int, meta chunkindex.Meta) error
	Versions(ctx context.Context, subjectID string) ([]int, error)
	VectorsByHash(ctx context.Context, subjectID string, version int) (map[string][]float32, error)
	PruneVersions(ctx context.Context, subjectID string, keep int, grace time.Duration) error
}

// Embedder vectorizes chunk batches with a pinned model version.
type Embedder interface {
	domain.BatchEmbedder
	domain.ModelVersioner
}
