// Package profile defines the enriched profile aggregate.
package profile

import (
	"fmt"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// BaseDocument is the subject's own structured CV. It is authoritative and
// read-only: enrichment merges around it, never into it.
type BaseDocument struct {
	SubjectID string
	FullName  string
	Headline  string
	Sections  []BaseSection
}

// BaseSection is one category of base document content.
type BaseSection struct {
	Category string
	Text     string
}

// Attribution records which source a claim came from and when it was fetched.
type Attribution struct {
	Source    source.Source
	FetchedAt time.Time
}

// Profile is the merged, versioned view of a subject's professional data
// (immutable value object). A new version is produced on every enrichment
// run; prior versions are never mutated.
type Profile struct {
	subjectID    string
	base         BaseDocument
	sections     []Section
	qualityScore int
	version      int
	lastMerged   time.Time
}

// New validates and creates a Profile. Every section must carry at least one
// attribution: merged content never appears without provenance.
func New(base BaseDocument, sections []Section, qualityScore, version int) (Profile, error) {
	if base.SubjectID == "" {
		return Profile{}, fmt.Errorf("base document subject ID is required")
	}
	if version <= 0 {
		return Profile{}, fmt.Errorf("version must be positive")
	}
	if qualityScore < 0 || qualityScore > 100 {
		return Profile{}, fmt.Errorf("quality score must be in [0,100], got %d", qualityScore)
	}
	for i := range sections {
		if len(sections[i].attributions) == 0 {
			return Profile{}, fmt.Errorf("section %d (%s) has no attribution", i, sections[i].category)
		}
		if sections[i].text == "" {
			return Profile{}, fmt.Errorf("section %d (%s) has empty text", i, sections[i].category)
		}
	}

	return Profile{
		subjectID:    base.SubjectID,
		base:         base,
		sections:     sections,
		qualityScore: qualityScore,
		version:      version,
		lastMerged:   time.Now().UTC(),
	}, nil
}

// Reconstruct creates a Profile without validation (storage hydration).
func Reconstruct(
	base BaseDocument, sections []Section, qualityScore, version int, lastMerged time.Time,
) Profile {
	return Profile{
		subjectID:    base.SubjectID,
		base:         base,
		sections:     sections,
		qualityScore: qualityScore,
		version:      version,
		lastMerged:   lastMerged,
	}
}

// SubjectID returns the profile owner identifier.
func (p *Profile) SubjectID() string { return p.subjectID }

// Base returns the authoritative base document.
func (p *Profile) Base() BaseDocument { return p.base }

// Sections returns the merged sections in deterministic order.
func (p *Profile) Sections() []Section { return p.sections }

// QualityScore returns the derived 0-100 quality score.
func (p *Profile) QualityScore() int { return p.qualityScore }

// Version returns the monotonically increasing profile version.
func (p *Profile) Version() int { return p.version }

// LastMerged returns the time of the enrichment run that produced this version.
func (p *Profile) LastMerged() time.Time { return p.lastMerged }
