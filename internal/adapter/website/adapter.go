// Package website extracts professional content from a subject's personal
// site.
package website

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vitae-cloud/profilex/internal/adapter"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// SchemaVersion is the normalized payload schema this adapter emits.
const SchemaVersion = 1

const (
	maxBodyBytes   = 2 << 20 // 2MB
	maxSectionRune = 1200
	maxSections    = 12
)

// Adapter implements the source adapter contract for personal websites.
// The auth Handle carries the site URL; no token is required.
type Adapter struct {
	http *http.Client
	ttl  time.Duration
}

// Config holds the website adapter settings.
type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// New creates a website adapter.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Adapter{
		http: &http.Client{Timeout: timeout},
		ttl:  ttl,
	}
}

// Source returns the source this adapter serves.
func (a *Adapter) Source() source.Source { return source.Website }

// Fetch downloads the subject's site and extracts headline content and
// named sections from the markup.
func (a *Adapter) Fetch(ctx context.Context, subjectID string, auth source.Authorization) (source.Record, error) {
	siteURL := auth.Handle
	if !strings.HasPrefix(siteURL, "http://") && !strings.HasPrefix(siteURL, "https://") {
		return source.Record{}, domain.Permanent(fmt.Errorf("invalid site URL %q", siteURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return source.Record{}, domain.Permanent(err)
	}
	req.Header.Set("User-Agent", "profilex/1.0")

	resp, err := a.http.Do(req)
	if err != nil {
		return source.Record{}, fmt.Errorf("website: %w", adapter.ClassifyErr(err))
	}
	defer resp.Body.Close()

	if cerr := adapter.ClassifyStatus(resp.StatusCode); cerr != nil {
		return source.Record{}, fmt.Errorf("website: %w", cerr)
	}

	doc, err := goquery.NewDocumentFromReader(http.MaxBytesReader(nil, resp.Body, maxBodyBytes))
	if err != nil {
		return source.Record{}, domain.Permanent(fmt.Errorf("parse html: %w", err))
	}

	identity := source.Identity{
		Handle:      siteURL,
		DisplayName: strings.TrimSpace(doc.Find("title").First().Text()),
		ProfileURL:  siteURL,
	}

	return source.NewRecord(source.Website, subjectID, identity, extractFacts(doc), a.ttl, SchemaVersion)
}

func extractFacts(doc *goquery.Document) []source.Fact {
	now := time.Now().UTC()
	var facts []source.Fact

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			facts = append(facts, source.Fact{
				Category: "summary",
				Subject:  "site-description",
				Claim:    desc,
				Observed: now,
			})
		}
	}

	// Each h2/h3 heading starts a section; the following paragraphs up to the
	// next heading are its body.
	doc.Find("h2, h3").EachWithBreak(func(i int, h *goquery.Selection) bool {
		if i >= maxSections {
			return false
		}
		heading := strings.TrimSpace(h.Text())
		if heading == "" {
			return true
		}

		var body strings.Builder
		h.NextUntil("h2, h3").Filter("p, li").Each(func(_ int, p *goquery.Selection) {
			text := strings.Join(strings.Fields(p.Text()), " ")
			if text == "" || body.Len() >= maxSectionRune {
				return
			}
			if body.Len() > 0 {
				body.WriteString(" ")
			}
			body.WriteString(text)
		})
		if body.Len() == 0 {
			return true
		}

		facts = append(facts, source.Fact{
			Category: categorize(heading),
			Subject:  "section:" + strings.ToLower(heading),
			Claim:    truncate(body.String(), maxSectionRune),
			Observed: now,
		})
		return true
	})

	return facts
}

// categorize maps a page heading to a profile category.
func categorize(heading string) string {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "project") || strings.Contains(h, "work") || strings.Contains(h, "portfolio"):
		return "projects"
	case strings.Contains(h, "experience") || strings.Contains(h, "career"):
		return "experience"
	case strings.Contains(h, "skill") || strings.Contains(h, "stack") || strings.Contains(h, "tech"):
		return "skills"
	case strings.Contains(h, "education") || strings.Contains(h, "study"):
		return "education"
	case strings.Contains(h, "talk") || strings.Contains(h, "publication") || strings.Contains(h, "writing"):
		return "publications"
	default:
		return "summary"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
