// Package source defines external data sources and their fetch records.
package source

import (
	"fmt"
	"time"
)

// Source identifies one external data source.
type Source string

const (
	// GitHub is the code-hosting profile source.
	GitHub Source = "github"
	// Network is the professional network profile source.
	Network Source = "network"
	// Website is the personal website source.
	Website Source = "website"
	// WebSearch is the public web search source.
	WebSearch Source = "websearch"

	// Base attributes facts that come from the subject's own base document.
	// It is an attribution origin only, never fetched through an adapter.
	Base Source = "base"
)

// All lists every fetchable source in canonical order.
func All() []Source {
	return []Source{GitHub, Network, Website, WebSearch}
}

// Parse validates a source name.
func Parse(s string) (Source, error) {
	switch Source(s) {
	case GitHub, Network, Website, WebSearch:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Fact is one professional claim extracted from a source.
//
// Subject identifies what the claim is about (e.g. "engineer@acme") and is
// the key used for corroboration and conflict detection across sources.
type Fact struct {
	Category string
	Subject  string
	Claim    string
	Observed time.Time
}

// Record is one adapter's normalized fetch result. Raw per-source response
// shapes are decoded into Facts inside the adapter; untyped payloads never
// cross this boundary.
type Record struct {
	Source        Source
	SubjectID     string
	FetchedAt     time.Time
	SchemaVersion int
	TTL           time.Duration
	Identity      Identity
	Facts         []Fact
}

// Identity carries the core identity fields a record must present to be
// accepted by the validator.
type Identity struct {
	Handle      string
	DisplayName string
	ProfileURL  string
}

// NewRecord creates a Record stamped with the fetch time.
func NewRecord(src Source, subjectID string, identity Identity, facts []Fact, ttl time.Duration, schemaVersion int) (Record, error) {
	if subjectID == "" {
		return Record{}, fmt.Errorf("subject ID is required")
	}
	if _, err := Parse(string(src)); err != nil {
		return Record{}, err
	}
	if ttl <= 0 {
		return Record{}, fmt.Errorf("ttl must be positive")
	}
	return Record{
		Source:        src,
		SubjectID:     subjectID,
		FetchedAt:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		TTL:           ttl,
		Identity:      identity,
		Facts:         facts,
	}, nil
}

// Empty reports whether the record carries no facts.
func (r *Record) Empty() bool { return len(r.Facts) == 0 }
