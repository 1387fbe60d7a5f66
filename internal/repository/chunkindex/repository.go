// Package chunkindex persists profile chunks as hash documents and maintains
// one FT vector index per (subject, version). Versions are isolated: a query
// only ever sees chunks of the version it names, and the version meta key is
// written last so an index is never visible half-built.
package chunkindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/chunk"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// store is the consumer interface for the chunk index (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWParams tunes the vector index build.
type HNSWParams struct {
	M           int
	EFConstruct int
}

// Meta describes how a version's index was built. Retrieval refuses to mix
// query vectors from one model with an index built by another.
type Meta struct {
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is one KNN match with its similarity in [0,1].
type Hit struct {
	Chunk      chunk.Chunk
	Similarity float64
}

// Repository stores and searches per-version chunk indexes.
type Repository struct {
	store  store
	prefix string
	hnsw   HNSWParams
	logger *zap.Logger
}

// New creates a chunk index repository.
func New(s store, prefix string, hnsw HNSWParams, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: s, prefix: prefix, hnsw: hnsw, logger: logger}
}

// EnsureIndex creates the FT index for (subjectID, version) if absent.
func (r *Repository) EnsureIndex(ctx context.Context, subjectID string, version, dim int) error {
	name := r.indexName(subjectID, version)

	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     name,
		Prefixes: []string{r.docPrefix(subjectID, version)},
		Fields: []db.IndexField{
			{Name: "category", Type: db.IndexFieldTag},
			{Name: "confidence", Type: db.IndexFieldNumeric},
			{Name: "merged_at", Type: db.IndexFieldNumeric},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition %s: %w", name, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// PutChunks writes chunk documents in one pipelined batch. Chunks without an
// embedding are rejected: an unembedded chunk must never enter the index.
func (r *Repository) PutChunks(ctx context.Context, subjectID string, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding()) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID())
		}
		attrs, err := marshalAttributions(c.Attributions())
		if err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID(), err)
		}
		items = append(items, db.HashSetItem{
			Key: r.docPrefix(subjectID, c.ProfileVersion()) + c.ID(),
			Fields: map[string]string{
				"__text":       c.Text(),
				"vector":       vectorToBytes(c.Embedding()),
				"category":     c.Category(),
				"confidence":   strconv.FormatFloat(c.Confidence(), 'f', -1, 64),
				"merged_at":    strconv.FormatInt(c.MergedAt().Unix(), 10),
				"hash":         c.Hash(),
				"attributions": attrs,
			},
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("put %d chunks for %s: %w", len(chunks), subjectID, err)
	}
	return nil
}

// WriteMeta publishes the version meta key. Callers write it after the
// documents and the index so readers never observe a partial version.
func (r *Repository) WriteMeta(ctx context.Context, subjectID string, version int, meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal index meta: %w", err)
	}
	if err := r.store.Set(ctx, r.metaKey(subjectID, version), data); err != nil {
		return fmt.Errorf("write index meta %s v%d: %w", subjectID, version, err)
	}
	return nil
}

// ReadMeta returns the meta for (subjectID, version), or ErrNotFound when the
// version was never indexed.
func (r *Repository) ReadMeta(ctx context.Context, subjectID string, version int) (Meta, error) {
	data, err := r.store.Get(ctx, r.metaKey(subjectID, version))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Meta{}, fmt.Errorf("%w: index meta %s v%d", domain.ErrNotFound, subjectID, version)
		}
		return Meta{}, fmt.Errorf("read index meta %s v%d: %w", subjectID, version, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("unmarshal index meta %s v%d: %w", subjectID, version, err)
	}
	return meta, nil
}

// Search runs a KNN query against the (subjectID, version) index.
// An optional category filter narrows the candidate set before KNN.
func (r *Repository) Search(
	ctx context.Context, subjectID string, version int,
	vector []float32, k int, category string,
) ([]Hit, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(subjectID, version),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"__text", "category", "confidence", "merged_at", "hash", "attributions", "__vector_score"},
	}
	if category != "" {
		q.Filters = map[string]string{"category": category}
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("%w: index %s v%d", domain.ErrNotFound, subjectID, version)
		}
		return nil, fmt.Errorf("search chunks %s v%d: %w", subjectID, version, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := r.docPrefix(subjectID, version)
	hits := make([]Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		c, err := entryToChunk(strings.TrimPrefix(entry.Key, prefix), version, entry.Fields)
		if err != nil {
			r.logger.Warn("skipping unparsable chunk entry",
				zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		hits = append(hits, Hit{Chunk: c, Similarity: entry.Score})
	}
	return hits, nil
}

// VectorsByHash returns content-hash -> embedding for every chunk of a
// version. Index builds use it to skip re-embedding unchanged chunks.
func (r *Repository) VectorsByHash(ctx context.Context, subjectID string, version int) (map[string][]float32, error) {
	keys, err := r.store.Scan(ctx, r.docPrefix(subjectID, version)+"*")
	if err != nil {
		return nil, fmt.Errorf("scan chunks %s v%d: %w", subjectID, version, err)
	}
	if len(keys) == 0 {
		return map[string][]float32{}, nil
	}

	docs, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks %s v%d: %w", subjectID, version, err)
	}

	vectors := make(map[string][]float32, len(docs))
	for _, fields := range docs {
		hash, vec := fields["hash"], bytesToVector(fields["vector"])
		if hash == "" || vec == nil {
			continue
		}
		vectors[hash] = vec
	}
	return vectors, nil
}

// Versions returns all indexed versions for a subject, from the meta keys.
func (r *Repository) Versions(ctx context.Context, subjectID string) ([]int, error) {
	metaPrefix := r.prefix + "chunkmeta:" + subjectID + ":v"
	keys, err := r.store.Scan(ctx, metaPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan index versions for %s: %w", subjectID, err)
	}

	versions := make([]int, 0, len(keys))
	for _, k := range keys {
		v, err := strconv.Atoi(strings.TrimPrefix(k, metaPrefix))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// DropVersion removes the index, documents and meta of one version.
func (r *Repository) DropVersion(ctx context.Context, subjectID string, version int) error {
	name := r.indexName(subjectID, version)
	if err := r.store.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", name, err)
	}

	keys, err := r.store.Scan(ctx, r.docPrefix(subjectID, version)+"*")
	if err != nil {
		return fmt.Errorf("scan chunks %s v%d: %w", subjectID, version, err)
	}
	for _, k := range keys {
		if err := r.store.Del(ctx, k); err != nil {
			return fmt.Errorf("delete chunk %s: %w", k, err)
		}
	}

	if err := r.store.Del(ctx, r.metaKey(subjectID, version)); err != nil {
		return fmt.Errorf("delete index meta %s v%d: %w", subjectID, version, err)
	}
	return nil
}

// PruneVersions drops superseded versions older than the grace period,
// measured from when each version's index was built. The kept version and
// anything newer are never touched; sessions pinned to a recent version keep
// working until the grace elapses.
func (r *Repository) PruneVersions(ctx context.Context, subjectID string, keep int, grace time.Duration) error {
	versions, err := r.Versions(ctx, subjectID)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-grace)
	for _, v := range versions {
		if v >= keep {
			continue
		}
		meta, err := r.ReadMeta(ctx, subjectID, v)
		if err != nil {
			r.logger.Warn("prune: unreadable index meta",
				zap.String("subject", subjectID), zap.Int("version", v), zap.Error(err))
			continue
		}
		if meta.CreatedAt.After(cutoff) {
			continue
		}
		if err := r.DropVersion(ctx, subjectID, v); err != nil {
			return fmt.Errorf("prune version %d for %s: %w", v, subjectID, err)
		}
		r.logger.Info("pruned superseded index version",
			zap.String("subject", subjectID), zap.Int("version", v))
	}
	return nil
}

func (r *Repository) indexName(subjectID string, version int) string {
	return r.prefix + "chunk:" + subjectID + ":v" + strconv.Itoa(version) + ":idx"
}

func (r *Repository) docPrefix(subjectID string, version int) string {
	return r.prefix + "chunk:" + subjectID + ":v" + strconv.Itoa(version) + ":"
}

func (r *Repository) metaKey(subjectID string, version int) string {
	return r.prefix + "chunkmeta:" + subjectID + ":v" + strconv.Itoa(version)
}

type attributionDTO struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

func marshalAttributions(attrs []profile.Attribution) (string, error) {
	dtos := make([]attributionDTO, 0, len(attrs))
	for _, a := range attrs {
		dtos = append(dtos, attributionDTO{Source: string(a.Source), FetchedAt: a.FetchedAt})
	}
	data, err := json.Marshal(dtos)
	if err != nil {
		return "", fmt.Errorf("marshal attributions: %w", err)
	}
	return string(data), nil
}

func unmarshalAttributions(s string) ([]profile.Attribution, error) {
	var dtos []attributionDTO
	if err := json.Unmarshal([]byte(s), &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal attributions: %w", err)
	}
	attrs := make([]profile.Attribution, 0, len(dtos))
	for _, d := range dtos {
		attrs = append(attrs, profile.Attribution{Source: source.Source(d.Source), FetchedAt: d.FetchedAt})
	}
	return attrs, nil
}

func entryToChunk(id string, version int, fields map[string]string) (chunk.Chunk, error) {
	text := fields["__text"]
	if text == "" {
		return chunk.Chunk{}, fmt.Errorf("entry %s has no text", id)
	}
	confidence, err := strconv.ParseFloat(fields["confidence"], 64)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("parse confidence: %w", err)
	}
	mergedUnix, err := strconv.ParseInt(fields["merged_at"], 10, 64)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("parse merged_at: %w", err)
	}
	attrs, err := unmarshalAttributions(fields["attributions"])
	if err != nil {
		return chunk.Chunk{}, err
	}

	return chunk.Reconstruct(
		id, version, fields["category"], text,
		attrs, confidence, time.Unix(mergedUnix, 0).UTC(),
		fields["hash"], nil,
	), nil
}

// vectorToBytes serializes []float32 to the binary layout FT vector fields expect.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
