// Package tokenstore persists the delegated source authorizations subjects
// grant during onboarding. Tokens expire out of storage with their own
// expiry; a missing token means the source is skipped, never fetched
// anonymously.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// store is the consumer interface for token persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repository stores per-(subject, source) authorizations.
type Repository struct {
	store  store
	prefix string
}

// New creates a token repository.
func New(s store, prefix string) *Repository {
	return &Repository{store: s, prefix: prefix}
}

type authDTO struct {
	Token     string    `json:"token"`
	Handle    string    `json:"handle"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Put stores an authorization. Expiring tokens get a matching key TTL.
func (r *Repository) Put(ctx context.Context, src source.Source, subjectID string, auth source.Authorization) error {
	data, err := json.Marshal(authDTO{
		Token:     auth.Token,
		Handle:    auth.Handle,
		Scopes:    auth.Scopes,
		ExpiresAt: auth.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal authorization: %w", err)
	}

	key := r.key(src, subjectID)
	if auth.ExpiresAt.IsZero() {
		if err := r.store.Set(ctx, key, data); err != nil {
			return fmt.Errorf("store authorization %s/%s: %w", src, subjectID, err)
		}
		return nil
	}

	ttl := time.Until(auth.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization for %s already expired", src)
	}
	if err := r.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("store authorization %s/%s: %w", src, subjectID, err)
	}
	return nil
}

// Token implements the enrichment TokenProvider contract.
func (r *Repository) Token(ctx context.Context, src source.Source, subjectID string) (source.Authorization, error) {
	data, err := r.store.Get(ctx, r.key(src, subjectID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return source.Authorization{}, fmt.Errorf("%w: no authorization for %s/%s", domain.ErrNotFound, src, subjectID)
		}
		return source.Authorization{}, fmt.Errorf("load authorization %s/%s: %w", src, subjectID, err)
	}

	var dto authDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return source.Authorization{}, fmt.Errorf("unmarshal authorization %s/%s: %w", src, subjectID, err)
	}
	return source.Authorization{
		Token:     dto.Token,
		Handle:    dto.Handle,
		Scopes:    dto.Scopes,
		ExpiresAt: dto.ExpiresAt,
	}, nil
}

// Revoke removes a stored authorization.
func (r *Repository) Revoke(ctx context.Context, src source.Source, subjectID string) error {
	if err := r.store.Del(ctx, r.key(src, subjectID)); err != nil {
		return fmt.Errorf("revoke authorization %s/%s: %w", src, subjectID, err)
	}
	return nil
}

func (r *Repository) key(src source.Source, subjectID string) string {
	return r.prefix + "token:" + string(src) + ":" + subjectID
}
