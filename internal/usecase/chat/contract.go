package chat

import (
	"context"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/session"
	"github.com/vitae-cloud/profilex/internal/usecase/retrieval"
)

// SessionStore persists chat sessions.
type SessionStore interface {
	Save(ctx context.Context, s session.Session) error
	Get(ctx context.Context, id string) (session.Session, error)
}

// ProfileReader resolves the published profile version a new session pins,
// and the profile it talks about.
type ProfileReader interface {
	CurrentVersion(ctx context.Context, subjectID string) (int, error)
	Get(ctx context.Context, subjectID string, version int) (profile.Profile, error)
}

// Retriever fetches grounding chunks from the pinned index version.
type Retriever interface {
	Search(ctx context.Context, subjectID string, version int, query string, k int, category string) ([]retrieval.RankedChunk, error)
}

// Generator produces the answer text from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, turns []session.Turn) (string, error)
}
