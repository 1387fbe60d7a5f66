package enrich

import (
	"math"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// recencyHalfLife is the age at which a section's recency weight halves.
const recencyHalfLife = 180 * 24 * time.Hour

// qualityScore derives the 0-100 profile quality score from source coverage,
// data recency and cross-source corroboration:
//
//	score = round(100 * (0.4*coverage + 0.3*recency + 0.3*corroboration))
//
// Base document sections count toward neither recency nor corroboration; they
// are always present and would only dilute the signal.
func qualityScore(
	sections []profile.Section,
	succeededSources, totalSources int, now time.Time,
) int {
	coverage := 0.0
	if totalSources > 0 {
		coverage = float64(succeededSources) / float64(totalSources)
	}

	var recencySum float64
	var corroborated, enriched int
	for i := range sections {
		s := &sections[i]
		if isBaseOnly(s) {
			continue
		}
		enriched++
		recencySum += recencyWeight(now.Sub(s.NewestAttribution()))
		if len(s.Attributions()) >= 2 {
			corroborated++
		}
	}

	recency, corroboration := 0.0, 0.0
	if enriched > 0 {
		recency = recencySum / float64(enriched)
		corroboration = float64(corroborated) / float64(enriched)
	}

	score := int(math.Round(100 * (0.4*coverage + 0.3*recency + 0.3*corroboration)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// recencyWeight decays exponentially with age, halving every half-life.
func recencyWeight(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(recencyHalfLife))
}

func isBaseOnly(s *profile.Section) bool {
	attrs := s.Attributions()
	return len(attrs) == 1 && attrs[0].Source == source.Base
}
