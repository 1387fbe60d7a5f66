package profile

import (
	"fmt"
	"time"
)

// Section is one merged category of profile content.
type Section struct {
	category     string
	text         string
	attributions []Attribution
	confidence   float64
	conflicting  bool
}

// NewSection validates and creates a Section.
func NewSection(category, text string, attributions []Attribution, confidence float64, conflicting bool) (Section, error) {
	if category == "" {
		return Section{}, fmt.Errorf("category is required")
	}
	if text == "" {
		return Section{}, fmt.Errorf("text is required")
	}
	if len(attributions) == 0 {
		return Section{}, fmt.Errorf("at least one attribution is required")
	}
	if confidence < 0 || confidence > 1 {
		return Section{}, fmt.Errorf("confidence must be in [0,1], got %g", confidence)
	}
	return Section{
		category:     category,
		text:         text,
		attributions: attributions,
		confidence:   confidence,
		conflicting:  conflicting,
	}, nil
}

// ReconstructSection creates a Section without validation (storage hydration).
func ReconstructSection(category, text string, attributions []Attribution, confidence float64, conflicting bool) Section {
	return Section{
		category:     category,
		text:         text,
		attributions: attributions,
		confidence:   confidence,
		conflicting:  conflicting,
	}
}

// Category returns the semantic category (experience, skills, ...).
func (s *Section) Category() string { return s.category }

// Text returns the merged section text.
func (s *Section) Text() string { return s.text }

// Attributions returns the sources this text traces to.
func (s *Section) Attributions() []Attribution { return s.attributions }

// Confidence returns the corroboration-derived confidence in [0,1].
func (s *Section) Confidence() float64 { return s.confidence }

// Conflicting reports whether sources asserted mutually exclusive claims for
// this section. Conflicting claims are retained side by side, never dropped.
func (s *Section) Conflicting() bool { return s.conflicting }

// NewestAttribution returns the most recent fetch time across attributions.
func (s *Section) NewestAttribution() time.Time {
	var newest time.Time
	for _, a := range s.attributions {
		if a.FetchedAt.After(newest) {
			newest = a.FetchedAt
		}
	}
	return newest
}
