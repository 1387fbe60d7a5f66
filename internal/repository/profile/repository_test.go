package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// --- Fake store ---

type fakeStore struct {
	values   map[string][]byte
	counters map[string]int64
	setKeys  []string
	getErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string][]byte), counters: make(map[string]int64)}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.values[key] = value
	f.setKeys = append(f.setKeys, key)
	return nil
}

func (f *fakeStore) Incr(_ context.Context, key string) (int64, error) {
	f.counters[key]++
	return f.counters[key], nil
}

// --- Tests ---

func testProfile(t *testing.T, version int) profile.Profile {
	t.Helper()
	base := profile.BaseDocument{
		SubjectID: "subject-1",
		FullName:  "Jane Doe",
		Headline:  "Systems engineer",
		Sections:  []profile.BaseSection{{Category: "summary", Text: "Engineer."}},
	}
	sec := profile.ReconstructSection("skills", "Go expert",
		[]profile.Attribution{{Source: source.GitHub, FetchedAt: time.Now().UTC().Truncate(time.Second)}},
		0.8, false)
	p, err := profile.New(base, []profile.Section{sec}, 72, version)
	if err != nil {
		t.Fatalf("profile.New: %v", err)
	}
	return p
}

func TestNextVersion_Monotonic(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	for want := 1; want <= 3; want++ {
		got, err := repo.NextVersion(context.Background(), "subject-1")
		if err != nil {
			t.Fatalf("NextVersion: %v", err)
		}
		if got != want {
			t.Errorf("expected version %d, got %d", want, got)
		}
	}
}

func TestSaveGet_RoundTrip(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")
	p := testProfile(t, 2)

	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Get(context.Background(), "subject-1", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version() != 2 || got.QualityScore() != 72 {
		t.Errorf("round trip lost data: v%d score=%d", got.Version(), got.QualityScore())
	}
	if len(got.Sections()) != 1 || got.Sections()[0].Text() != "Go expert" {
		t.Errorf("sections lost: %+v", got.Sections())
	}
	if got.Base().FullName != "Jane Doe" {
		t.Errorf("base document lost: %+v", got.Base())
	}
}

func TestSave_PublishesVersionLast(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "profilex:")

	if err := repo.Save(context.Background(), testProfile(t, 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(store.setKeys) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(store.setKeys))
	}
	// The version document lands before the current pointer.
	if store.setKeys[0] != "profilex:profile:subject-1:v1" {
		t.Errorf("first write should be the version key, got %s", store.setKeys[0])
	}
	if store.setKeys[1] != "profilex:profile:subject-1:current" {
		t.Errorf("second write should publish current, got %s", store.setKeys[1])
	}
}

func TestGet_Missing(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	_, err := repo.Get(context.Background(), "subject-1", 9)
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestGetCurrent_FollowsPointer(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	for v := 1; v <= 3; v++ {
		if err := repo.Save(context.Background(), testProfile(t, v)); err != nil {
			t.Fatalf("Save v%d: %v", v, err)
		}
	}
	got, err := repo.GetCurrent(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if got.Version() != 3 {
		t.Errorf("expected current v3, got v%d", got.Version())
	}
	// Older versions remain readable.
	if _, err := repo.Get(context.Background(), "subject-1", 1); err != nil {
		t.Errorf("v1 should remain readable: %v", err)
	}
}

func TestCurrentVersion_NoPublished(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	_, err := repo.CurrentVersion(context.Background(), "subject-1")
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestBaseDocument_RoundTrip(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")
	doc := profile.BaseDocument{
		SubjectID: "subject-1",
		FullName:  "Jane Doe",
		Sections:  []profile.BaseSection{{Category: "summary", Text: "Engineer."}},
	}

	if err := repo.SaveBase(context.Background(), doc); err != nil {
		t.Fatalf("SaveBase: %v", err)
	}
	got, err := repo.GetBase(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("GetBase: %v", err)
	}
	if got.FullName != "Jane Doe" || len(got.Sections) != 1 {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestGetBase_Missing(t *testing.T) {
	repo := New(newFakeStore(), "profilex:")

	_, err := repo.GetBase(context.Background(), "subject-1")
	if !errors.Is(err, domain.ErrBaseDocumentMissing) {
		t.Errorf("expected ErrBaseDocumentMissing, got %v", err)
	}
}
