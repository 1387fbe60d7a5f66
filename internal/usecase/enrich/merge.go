package enrich

import (
	"sort"
	"strings"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// Single-source confidence and the per-corroboration bump.
const (
	baseConfidence     = 0.6
	corroborationBonus = 0.2
	conflictingPenalty = 0.2
	baseDocConfidence  = 1.0
	maxConfidence      = 1.0
)

// canonicalCategories orders merged sections deterministically.
var canonicalCategories = []string{
	"summary", "experience", "education", "skills", "projects", "publications",
}

// claimGroup collects what every source said about one fact subject.
type claimGroup struct {
	category string
	subject  string
	claims   []claim
}

type claim struct {
	text      string
	src       source.Source
	fetchedAt time.Time
}

// mergeRecords folds validated records into ordered sections around the base
// document. The merge is deterministic: identical inputs produce an identical
// section list regardless of fetch completion order.
//
// Facts with the same subject corroborate when their normalized claims agree;
// disagreeing claims are kept side by side and the section is flagged
// conflicting with lowered confidence.
func mergeRecords(base profile.BaseDocument, records []source.Record, priority []source.Source) []profile.Section {
	now := time.Now().UTC()

	sections := make([]profile.Section, 0, len(base.Sections))
	for _, bs := range base.Sections {
		if bs.Text == "" {
			continue
		}
		sections = append(sections, profile.ReconstructSection(
			bs.Category, bs.Text,
			[]profile.Attribution{{Source: source.Base, FetchedAt: now}},
			baseDocConfidence, false,
		))
	}

	ordered := orderRecords(records, priority)

	groups := make(map[string]*claimGroup)
	var keys []string
	for _, rec := range ordered {
		for _, f := range rec.Facts {
			key := f.Category + "\x00" + f.Subject
			g, ok := groups[key]
			if !ok {
				g = &claimGroup{category: f.Category, subject: f.Subject}
				groups[key] = g
				keys = append(keys, key)
			}
			g.claims = append(g.claims, claim{text: f.Claim, src: rec.Source, fetchedAt: rec.FetchedAt})
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		gi, gj := groups[keys[i]], groups[keys[j]]
		if gi.category != gj.category {
			return categoryRank(gi.category) < categoryRank(gj.category)
		}
		return gi.subject < gj.subject
	})

	for _, key := range keys {
		sections = append(sections, groupToSection(groups[key]))
	}
	return sections
}

// groupToSection resolves corroboration and conflicts for one claim group.
func groupToSection(g *claimGroup) profile.Section {
	type variant struct {
		text    string
		sources map[source.Source]time.Time
	}

	variants := make(map[string]*variant)
	var order []string
	for _, c := range g.claims {
		norm := normalizeClaim(c.text)
		v, ok := variants[norm]
		if !ok {
			v = &variant{text: c.text, sources: make(map[source.Source]time.Time)}
			variants[norm] = v
			order = append(order, norm)
		}
		if prev, seen := v.sources[c.src]; !seen || c.fetchedAt.After(prev) {
			v.sources[c.src] = c.fetchedAt
		}
	}

	conflicting := len(variants) > 1

	distinctSources := make(map[source.Source]time.Time)
	texts := make([]string, 0, len(order))
	for _, norm := range order {
		v := variants[norm]
		texts = append(texts, v.text)
		for src, at := range v.sources {
			if prev, seen := distinctSources[src]; !seen || at.After(prev) {
				distinctSources[src] = at
			}
		}
	}

	confidence := baseConfidence + corroborationBonus*float64(len(distinctSources)-1)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	if conflicting {
		confidence -= conflictingPenalty
		if confidence < 0 {
			confidence = 0
		}
	}

	attrs := make([]profile.Attribution, 0, len(distinctSources))
	for src, at := range distinctSources {
		attrs = append(attrs, profile.Attribution{Source: src, FetchedAt: at})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Source < attrs[j].Source })

	text := strings.Join(texts, " / ")
	return profile.ReconstructSection(g.category, text, attrs, confidence, conflicting)
}

// orderRecords sorts a copy of records by the configured source priority,
// falling back to the canonical source order.
func orderRecords(records []source.Record, priority []source.Source) []source.Record {
	rank := make(map[source.Source]int, len(priority))
	for i, src := range priority {
		rank[src] = i
	}
	fallback := len(priority)
	for i, src := range source.All() {
		if _, ok := rank[src]; !ok {
			rank[src] = fallback + i
		}
	}

	out := make([]source.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i].Source] < rank[out[j].Source] })
	return out
}

func categoryRank(category string) int {
	for i, c := range canonicalCategories {
		if c == category {
			return i
		}
	}
	return len(canonicalCategories)
}

// normalizeClaim canonicalizes a claim for equality comparison: case folding
// and whitespace collapsing, nothing semantic.
func normalizeClaim(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
