package enrich

import (
	"context"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
	"github.com/vitae-cloud/profilex/internal/usecase/validate"
)

// Adapter fetches one external source. Fetch errors carry a
// Transient/Permanent classification.
type Adapter interface {
	Source() source.Source
	Fetch(ctx context.Context, subjectID string, auth source.Authorization) (source.Record, error)
}

// RecordCache is the read-through cache in front of the adapters. A hit
// bypasses the rate limiter.
type RecordCache interface {
	Get(ctx context.Context, src source.Source, subjectID string) (source.Record, bool)
	Put(ctx context.Context, rec source.Record)
	Invalidate(ctx context.Context, src source.Source, subjectID string) error
}

// Limiter gates outbound calls per (source, account).
type Limiter interface {
	Acquire(ctx context.Context, src source.Source, account string) error
}

// Screener validates and privacy-filters a fetched record.
type Screener interface {
	Screen(rec source.Record) (source.Record, []validate.Violation)
}

// TokenProvider resolves the subject's delegated authorization for a source.
// Sources without authorization are skipped, never fetched anonymously.
type TokenProvider interface {
	Token(ctx context.Context, src source.Source, subjectID string) (source.Authorization, error)
}

// BaseDocumentReader loads the subject's authoritative base document.
type BaseDocumentReader interface {
	GetBase(ctx context.Context, subjectID string) (profile.BaseDocument, error)
}

// ProfileStore allocates versions and persists merged profiles.
type ProfileStore interface {
	NextVersion(ctx context.Context, subjectID string) (int, error)
	Save(ctx context.Context, p profile.Profile) error
}
