// Package validate screens fetched source records before they reach the
// merge: identity verification, category allow-listing, privacy filtering,
// and size caps. Validation never fails a record outright except for a
// missing identity; everything else degrades to dropped or redacted facts,
// reported as violations.
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// Violation codes.
const (
	CodeIdentityMismatch  = "identity_mismatch"
	CodeUnknownCategory   = "unknown_category"
	CodeEmptyClaim        = "empty_claim"
	CodeClaimTooLong      = "claim_too_long"
	CodeSensitiveRedacted = "sensitive_redacted"
	CodeTooManyFacts      = "too_many_facts"
)

// Violation reports one screening decision for observability. Violations are
// informational; the cleaned record is always usable.
type Violation struct {
	Code    string
	Source  source.Source
	Subject string
	Detail  string
}

// Config bounds per-record fact volume.
type Config struct {
	MaxFactsPerSource int
	MaxClaimLength    int
}

// Service validates source records.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a validation service.
func New(cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, logger: logger}
}

var allowedCategories = map[string]bool{
	"experience":   true,
	"education":    true,
	"skills":       true,
	"projects":     true,
	"summary":      true,
	"publications": true,
}

// AllowedCategory reports whether a fact category is on the allow-list.
func AllowedCategory(category string) bool {
	return allowedCategories[category]
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// International and common local phone formats, 7+ digits with separators.
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s().]{6,}\d`)
)

const redactedMarker = "[redacted]"

// Screen returns a cleaned copy of the record plus the violations found.
//
// A record whose identity section is empty fails verification: all of its
// facts are discarded, since nothing ties them to the subject. Every other
// problem is handled per fact.
func (s *Service) Screen(rec source.Record) (source.Record, []Violation) {
	var violations []Violation

	if rec.Identity.Handle == "" && rec.Identity.DisplayName == "" {
		violations = append(violations, Violation{
			Code:   CodeIdentityMismatch,
			Source: rec.Source,
			Detail: "record carries no identity fields",
		})
		s.logViolations(rec, violations)
		rec.Facts = nil
		return rec, violations
	}

	clean := make([]source.Fact, 0, len(rec.Facts))
	for _, f := range rec.Facts {
		f.Category = strings.ToLower(strings.TrimSpace(f.Category))
		f.Claim = strings.TrimSpace(f.Claim)

		if !allowedCategories[f.Category] {
			violations = append(violations, Violation{
				Code: CodeUnknownCategory, Source: rec.Source, Subject: f.Subject,
				Detail: "category " + f.Category,
			})
			continue
		}
		if f.Claim == "" {
			violations = append(violations, Violation{
				Code: CodeEmptyClaim, Source: rec.Source, Subject: f.Subject,
			})
			continue
		}

		if redacted, changed := redactSensitive(f.Claim); changed {
			violations = append(violations, Violation{
				Code: CodeSensitiveRedacted, Source: rec.Source, Subject: f.Subject,
			})
			f.Claim = redacted
			if strings.TrimSpace(strings.ReplaceAll(f.Claim, redactedMarker, "")) == "" {
				// Nothing left once contact data is removed.
				continue
			}
		}

		if s.cfg.MaxClaimLength > 0 && utf8.RuneCountInString(f.Claim) > s.cfg.MaxClaimLength {
			violations = append(violations, Violation{
				Code: CodeClaimTooLong, Source: rec.Source, Subject: f.Subject,
			})
			f.Claim = truncateRunes(f.Claim, s.cfg.MaxClaimLength)
		}

		clean = append(clean, f)
	}

	if s.cfg.MaxFactsPerSource > 0 && len(clean) > s.cfg.MaxFactsPerSource {
		violations = append(violations, Violation{
			Code: CodeTooManyFacts, Source: rec.Source,
			Detail: "dropped " + strconv.Itoa(len(clean)-s.cfg.MaxFactsPerSource) + " facts over cap",
		})
		clean = clean[:s.cfg.MaxFactsPerSource]
	}

	s.logViolations(rec, violations)
	rec.Facts = clean
	return rec, violations
}

func (s *Service) logViolations(rec source.Record, violations []Violation) {
	if len(violations) == 0 {
		return
	}
	counts := make(map[string]int, len(violations))
	for _, v := range violations {
		counts[v.Code]++
	}
	s.logger.Info("validation violations",
		zap.String("source", string(rec.Source)),
		zap.String("subject_id", rec.SubjectID),
		zap.Any("counts", counts))
}

// redactSensitive replaces contact data (emails, phone numbers) in a claim.
func redactSensitive(claim string) (string, bool) {
	out := emailPattern.ReplaceAllString(claim, redactedMarker)
	out = phonePattern.ReplaceAllString(out, redactedMarker)
	return out, out != claim
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
