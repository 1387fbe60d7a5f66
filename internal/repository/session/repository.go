// Package session persists chat sessions as JSON values under the session
// TTL, so abandoned sessions disappear without a sweeper.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/session"
)

// store is the consumer interface for session persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repository stores chat sessions.
type Repository struct {
	store  store
	prefix string
}

// New creates a session repository.
func New(s store, prefix string) *Repository {
	return &Repository{store: s, prefix: prefix}
}

type turnDTO struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type sessionDTO struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	Visitor        string    `json:"visitor,omitempty"`
	ProfileVersion int       `json:"profile_version"`
	State          string    `json:"state"`
	History        []turnDTO `json:"history"`
	WindowStart    time.Time `json:"window_start"`
	WindowCount    int       `json:"window_count"`
	LastActivity   time.Time `json:"last_activity"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Save persists the session. The key TTL tracks the session's hard expiry,
// floored at one minute so an almost-expired session can still be loaded and
// rejected with a proper error instead of vanishing.
func (r *Repository) Save(ctx context.Context, s session.Session) error {
	dto := toDTO(s)
	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt())
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := r.store.SetWithTTL(ctx, r.key(s.ID()), data, ttl); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID(), err)
	}
	return nil
}

// Get loads a session by ID.
func (r *Repository) Get(ctx context.Context, id string) (session.Session, error) {
	data, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return session.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return session.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}

	var dto sessionDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return fromDTO(dto), nil
}

// Delete removes a session.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (r *Repository) key(id string) string {
	return r.prefix + "session:" + id
}

func toDTO(s session.Session) sessionDTO {
	history := make([]turnDTO, 0, len(s.History()))
	for _, t := range s.History() {
		history = append(history, turnDTO{Role: string(t.Role), Text: t.Text, At: t.At})
	}
	return sessionDTO{
		ID:             s.ID(),
		SubjectID:      s.SubjectID(),
		Visitor:        s.Visitor(),
		ProfileVersion: s.ProfileVersion(),
		State:          string(s.CurrentState()),
		History:        history,
		WindowStart:    s.WindowStart(),
		WindowCount:    s.WindowCount(),
		LastActivity:   s.LastActivity(),
		CreatedAt:      s.CreatedAt(),
		ExpiresAt:      s.ExpiresAt(),
	}
}

func fromDTO(dto sessionDTO) session.Session {
	history := make([]session.Turn, 0, len(dto.History))
	for _, t := range dto.History {
		history = append(history, session.Turn{Role: session.Role(t.Role), Text: t.Text, At: t.At})
	}
	return session.Reconstruct(
		dto.ID, dto.SubjectID, dto.Visitor, dto.ProfileVersion, session.State(dto.State),
		history, dto.WindowStart, dto.WindowCount,
		dto.LastActivity, dto.CreatedAt, dto.ExpiresAt,
	)
}
