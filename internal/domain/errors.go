package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a retryable failure (network, 5xx, 429, deadline).
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks a non-retryable failure (auth, schema, not found).
	ErrPermanent = errors.New("permanent failure")
	// ErrRateLimited signals a local rate limit hit before the call left the process.
	ErrRateLimited = errors.New("rate limited")
	// ErrSourceUnavailable signals a source whose retries were exhausted.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrProfileNotFound signals a missing enriched profile or version.
	ErrProfileNotFound = fmt.Errorf("profile %w", ErrNotFound)
	// ErrBaseDocumentMissing signals a missing base document; enrichment cannot proceed.
	ErrBaseDocumentMissing = errors.New("base document missing")
	// ErrIndexVersionMismatch signals a query against an index built with a
	// different embedding model version. The index must be rebuilt, never mixed.
	ErrIndexVersionMismatch = errors.New("index version mismatch")

	// ErrSessionNotFound signals an unknown chat session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired signals a chat session past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionClosed signals an explicitly terminated chat session.
	ErrSessionClosed = errors.New("session closed")
	// ErrTooManyRequests signals a session over its message rate window.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationUnavailable signals a generation collaborator failure or timeout.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient reports whether err is classified retryable.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsPermanent reports whether err is classified non-retryable.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
