package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

type fakeStore struct {
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.values[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.values[key] = value
	return nil
}

func (f *fakeStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func TestPutToken_RoundTrip(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")
	auth := source.Authorization{Token: "secret", Handle: "octocat", Scopes: []string{"read:user"}}

	if err := repo.Put(context.Background(), source.GitHub, "subject-1", auth); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := repo.Token(context.Background(), source.GitHub, "subject-1")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got.Token != "secret" || got.Handle != "octocat" {
		t.Errorf("round trip lost data: %+v", got)
	}
	if !got.Valid(time.Now()) {
		t.Error("non-expiring grant should be valid")
	}
}

func TestPut_ExpiringTokenGetsTTL(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "profilex:")
	auth := source.Authorization{Token: "secret", Handle: "octocat", ExpiresAt: time.Now().Add(time.Hour)}

	if err := repo.Put(context.Background(), source.GitHub, "subject-1", auth); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ttl := store.ttls["profilex:token:github:subject-1"]
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected TTL matching expiry, got %v", ttl)
	}
}

func TestPut_AlreadyExpiredRejected(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")
	auth := source.Authorization{Token: "secret", Handle: "octocat", ExpiresAt: time.Now().Add(-time.Hour)}

	if err := repo.Put(context.Background(), source.GitHub, "subject-1", auth); err == nil {
		t.Error("expected error for an already-expired grant")
	}
}

func TestToken_Missing(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	_, err := repo.Token(context.Background(), source.GitHub, "subject-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")
	auth := source.Authorization{Token: "secret", Handle: "octocat"}

	if err := repo.Put(context.Background(), source.GitHub, "subject-1", auth); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Revoke(context.Background(), source.GitHub, "subject-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := repo.Token(context.Background(), source.GitHub, "subject-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected revoked grant to be gone, got %v", err)
	}
}

func TestTokens_IsolatedPerSource(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	if err := repo.Put(context.Background(), source.GitHub, "subject-1", source.Authorization{Token: "a", Handle: "h"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := repo.Token(context.Background(), source.Network, "subject-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("network grant should not exist, got %v", err)
	}
}
