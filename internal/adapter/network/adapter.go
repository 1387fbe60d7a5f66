// Package network fetches a subject's professional-network profile through
// the network's member REST API.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/vitae-cloud/profilex/internal/adapter"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// SchemaVersion is the normalized payload schema this adapter emits.
const SchemaVersion = 2

const maxResponseBytes = 1 << 20 // 1MB

// Adapter implements the source adapter contract for the professional network.
type Adapter struct {
	baseURL string
	timeout time.Duration
	ttl     time.Duration
}

// Config holds the network adapter settings.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// New creates a network adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Adapter{baseURL: cfg.BaseURL, timeout: timeout, ttl: ttl}, nil
}

// Source returns the source this adapter serves.
func (a *Adapter) Source() source.Source { return source.Network }

// memberProfile is the network API's response shape. Decoded here, at the
// adapter boundary; untyped maps never leave this package.
type memberProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Headline  string `json:"headline"`
	URL       string `json:"publicProfileUrl"`
	Positions []struct {
		Title     string `json:"title"`
		Company   string `json:"companyName"`
		StartDate string `json:"startDate"` // YYYY-MM
		EndDate   string `json:"endDate"`   // YYYY-MM, empty when current
	} `json:"positions"`
	Educations []struct {
		School string `json:"schoolName"`
		Degree string `json:"degree"`
		Field  string `json:"fieldOfStudy"`
		Year   string `json:"endYear"`
	} `json:"educations"`
	Skills []struct {
		Name string `json:"name"`
	} `json:"skills"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fetch retrieves the subject's member profile.
func (a *Adapter) Fetch(ctx context.Context, subjectID string, auth source.Authorization) (source.Record, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token}))
	client.Timeout = a.timeout

	endpoint := fmt.Sprintf("%s/v2/members/%s", a.baseURL, url.PathEscape(auth.Handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return source.Record{}, domain.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return source.Record{}, fmt.Errorf("network: %w", adapter.ClassifyErr(err))
	}
	defer resp.Body.Close()

	if cerr := adapter.ClassifyStatus(resp.StatusCode); cerr != nil {
		return source.Record{}, fmt.Errorf("network: %w", cerr)
	}

	var mp memberProfile
	if err := json.NewDecoder(http.MaxBytesReader(nil, resp.Body, maxResponseBytes)).Decode(&mp); err != nil {
		return source.Record{}, domain.Permanent(fmt.Errorf("decode member profile: %w", err))
	}

	identity := source.Identity{
		Handle:      mp.ID,
		DisplayName: mp.FirstName + " " + mp.LastName,
		ProfileURL:  mp.URL,
	}

	return source.NewRecord(source.Network, subjectID, identity, memberFacts(&mp), a.ttl, SchemaVersion)
}

func memberFacts(mp *memberProfile) []source.Fact {
	observed := mp.UpdatedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	var facts []source.Fact

	if mp.Headline != "" {
		facts = append(facts, source.Fact{
			Category: "summary",
			Subject:  "headline",
			Claim:    mp.Headline,
			Observed: observed,
		})
	}

	for _, p := range mp.Positions {
		if p.Title == "" || p.Company == "" {
			continue
		}
		claim := p.Title + " at " + p.Company
		span := p.StartDate
		if p.EndDate != "" {
			span += " to " + p.EndDate
		} else if span != "" {
			span += " to present"
		}
		if span != "" {
			claim += " (" + span + ")"
		}
		facts = append(facts, source.Fact{
			Category: "experience",
			Subject:  positionKey(p.Title, p.Company),
			Claim:    claim,
			Observed: observed,
		})
	}

	for _, e := range mp.Educations {
		if e.School == "" {
			continue
		}
		claim := e.School
		if e.Degree != "" {
			claim = e.Degree + ", " + e.School
		}
		if e.Field != "" {
			claim += " (" + e.Field + ")"
		}
		facts = append(facts, source.Fact{
			Category: "education",
			Subject:  "school:" + e.School,
			Claim:    claim,
			Observed: observed,
		})
	}

	for _, s := range mp.Skills {
		if s.Name == "" {
			continue
		}
		facts = append(facts, source.Fact{
			Category: "skills",
			Subject:  "skill:" + s.Name,
			Claim:    s.Name,
			Observed: observed,
		})
	}

	return facts
}

// positionKey builds the cross-source conflict-detection key for a role.
// Two sources reporting the same title+company with different claims (e.g.
// different end dates) collide on this key and get flagged downstream.
func positionKey(title, company string) string {
	return "position:" + title + "@" + company
}
