package chunkindex

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain/chunk"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn          func(ctx context.Context, key string) ([]byte, error)
	setFn          func(ctx context.Context, key string, value []byte) error
	delFn          func(ctx context.Context, key string) error
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
	hsetMultiFn    func(ctx context.Context, items []db.HashSetItem) error
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn    func(ctx context.Context, name string) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repository, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, "profilex:", HNSWParams{M: 16, EFConstruct: 200}, nil)
	return repo, ms
}

func testVector() []float32 {
	vec := make([]float32, 4)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec
}

func testAttrs() []profile.Attribution {
	return []profile.Attribution{
		{Source: source.GitHub, FetchedAt: time.Unix(1700000000, 0).UTC()},
	}
}

func metaJSON(t *testing.T, m Meta) []byte {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	return data
}

func embeddedChunk(t *testing.T, id string, version int, text string) chunk.Chunk {
	t.Helper()
	c, err := chunk.New(id, version, "skills", text, testAttrs(), 0.8, time.Unix(1700000000, 0).UTC())
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	c.SetEmbedding(testVector())
	return c
}
