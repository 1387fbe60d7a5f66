package enrich

import (
	"strings"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

func record(src source.Source, fetchedAt time.Time, facts ...source.Fact) source.Record {
	return source.Record{
		Source:        src,
		SubjectID:     "subject-1",
		FetchedAt:     fetchedAt,
		SchemaVersion: 1,
		Facts:         facts,
	}
}

func fact(category, subject, claim string) source.Fact {
	return source.Fact{Category: category, Subject: subject, Claim: claim}
}

func baseDoc() profile.BaseDocument {
	return profile.BaseDocument{
		SubjectID: "subject-1",
		FullName:  "Jane Doe",
		Headline:  "Systems engineer",
		Sections: []profile.BaseSection{
			{Category: "summary", Text: "Ten years building backend systems."},
		},
	}
}

func findSection(t *testing.T, sections []profile.Section, category string) *profile.Section {
	t.Helper()
	for i := range sections {
		if sections[i].Category() == category {
			return &sections[i]
		}
	}
	t.Fatalf("no section for category %q", category)
	return nil
}

func TestMergeRecords_BaseSectionsFirst(t *testing.T) {
	now := time.Now()
	sections := mergeRecords(baseDoc(), []source.Record{
		record(source.GitHub, now, fact("skills", "Go", "Primary language")),
	}, nil)

	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	first := sections[0]
	if first.Category() != "summary" {
		t.Errorf("expected base summary first, got %s", first.Category())
	}
	attrs := first.Attributions()
	if len(attrs) != 1 || attrs[0].Source != source.Base {
		t.Errorf("expected base attribution, got %+v", attrs)
	}
	if first.Confidence() != 1.0 {
		t.Errorf("expected base confidence 1.0, got %g", first.Confidence())
	}
}

func TestMergeRecords_SingleSourceConfidence(t *testing.T) {
	now := time.Now()
	sections := mergeRecords(baseDoc(), []source.Record{
		record(source.GitHub, now, fact("skills", "Go", "Primary language")),
	}, nil)

	s := findSection(t, sections, "skills")
	if s.Confidence() != 0.6 {
		t.Errorf("expected 0.6, got %g", s.Confidence())
	}
	if s.Conflicting() {
		t.Error("single claim should not conflict")
	}
}

func TestMergeRecords_CorroborationRaisesConfidence(t *testing.T) {
	now := time.Now()
	sections := mergeRecords(baseDoc(), []source.Record{
		record(source.GitHub, now, fact("skills", "Go", "Primary language")),
		record(source.Network, now, fact("skills", "Go", "primary   LANGUAGE")),
	}, nil)

	s := findSection(t, sections, "skills")
	// 0.6 + 0.2 for the second agreeing source.
	if diff := s.Confidence() - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected 0.8, got %g", s.Confidence())
	}
	if s.Conflicting() {
		t.Error("normalized-equal claims should corroborate, not conflict")
	}
	if len(s.Attributions()) != 2 {
		t.Errorf("expected 2 attributions, got %d", len(s.Attributions()))
	}
}

func TestMergeRecords_ConfidenceCapped(t *testing.T) {
	now := time.Now()
	sections := mergeRecords(baseDoc(), []source.Record{
		record(source.GitHub, now, fact("skills", "Go", "Primary language")),
		record(source.Network, now, fact("skills", "Go", "Primary language")),
		record(source.Website, now, fact("skills", "Go", "Primary language")),
		record(source.WebSearch, now, fact("skills", "Go", "Primary language")),
	}, nil)

	s := findSection(t, sections, "skills")
	if s.Confidence() != 1.0 {
		t.Errorf("expected cap at 1.0, got %g", s.Confidence())
	}
}

func TestMergeRecords_ConflictKeepsBothClaims(t *testing.T) {
	now := time.Now()
	sections := mergeRecords(baseDoc(), []source.Record{
		record(source.GitHub, now, fact("experience", "Acme", "Senior engineer since 2020")),
		record(source.Network, now, fact("experience", "Acme", "Staff engineer since 2019")),
	}, nil)

	s := findSection(t, sections, "experience")
	if !s.Conflicting() {
		t.Error("expected conflicting flag")
	}
	if !strings.Contains(s.Text(), "Senior engineer since 2020") || !strings.Contains(s.Text(), "Staff engineer since 2019") {
		t.Errorf("expected both claims kept, got %q", s.Text())
	}
	// 0.6 + 0.2 corroboration - 0.2 conflict penalty.
	if diff := s.Confidence() - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected 0.6, got %g", s.Confidence())
	}
}

func TestMergeRecords_Deterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	recs := []source.Record{
		record(source.Network, now, fact("skills", "Redis", "Caching"), fact("education", "MIT", "BSc")),
		record(source.GitHub, now, fact("skills", "Go", "Primary language"), fact("projects", "vecdex", "Maintainer")),
	}

	a := mergeRecords(baseDoc(), recs, nil)
	// Reversed input order must not change the output.
	b := mergeRecords(baseDoc(), []source.Record{recs[1], recs[0]}, nil)

	if len(a) != len(b) {
		t.Fatalf("section counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Category() != b[i].Category() || a[i].Text() != b[i].Text() {
			t.Errorf("section %d differs: %s/%q vs %s/%q",
				i, a[i].Category(), a[i].Text(), b[i].Category(), b[i].Text())
		}
	}
}

func TestMergeRecords_PriorityOrdersConflictText(t *testing.T) {
	now := time.Now()
	recs := []source.Record{
		record(source.Network, now, fact("experience", "Acme", "Staff engineer")),
		record(source.GitHub, now, fact("experience", "Acme", "Senior engineer")),
	}

	sections := mergeRecords(baseDoc(), recs, []source.Source{source.GitHub, source.Network})
	s := findSection(t, sections, "experience")
	// GitHub outranks Network, so its claim leads.
	if !strings.HasPrefix(s.Text(), "Senior engineer") {
		t.Errorf("expected priority source first, got %q", s.Text())
	}
}

func TestMergeRecords_CategoriesInCanonicalOrder(t *testing.T) {
	now := time.Now()
	sections := mergeRecords(profile.BaseDocument{SubjectID: "subject-1"}, []source.Record{
		record(source.GitHub, now,
			fact("projects", "vecdex", "Maintainer"),
			fact("experience", "Acme", "Engineer"),
			fact("skills", "Go", "Primary language"),
		),
	}, nil)

	var got []string
	for i := range sections {
		got = append(got, sections[i].Category())
	}
	want := []string{"experience", "skills", "projects"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestNormalizeClaim(t *testing.T) {
	if normalizeClaim("  Primary   LANGUAGE ") != "primary language" {
		t.Errorf("unexpected normalization: %q", normalizeClaim("  Primary   LANGUAGE "))
	}
}
