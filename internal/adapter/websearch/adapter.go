// Package websearch pulls public-web mentions of a subject from a search
// API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vitae-cloud/profilex/internal/adapter"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// SchemaVersion is the normalized payload schema this adapter emits.
const SchemaVersion = 1

const (
	maxResults       = 10
	maxResponseBytes = 1 << 20 // 1MB
)

// Adapter implements the source adapter contract for web search.
type Adapter struct {
	http    *http.Client
	baseURL string
	ttl     time.Duration
}

// Config holds the websearch adapter settings.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// New creates a websearch adapter.
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
		ttl = 30 * time.Minute
	}
	return &Adapter{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		ttl:     ttl,
	}, nil
}

// Source returns the source this adapter serves.
func (a *Adapter) Source() source.Source { return source.WebSearch }

// searchResponse is the search API's response shape.
type searchResponse struct {
	Results []struct {
		Title     string    `json:"title"`
		Snippet   string    `json:"snippet"`
		URL       string    `json:"url"`
		Published time.Time `json:"published"`
	} `json:"results"`
}

// Fetch queries the search API for the subject's display handle.
func (a *Adapter) Fetch(ctx context.Context, subjectID string, auth source.Authorization) (source.Record, error) {
	q := url.Values{}
	q.Set("q", auth.Handle)
	q.Set("limit", fmt.Sprint(maxResults))

	endpoint := a.baseURL + "/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return source.Record{}, domain.Permanent(err)
	}
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return source.Record{}, fmt.Errorf("websearch: %w", adapter.ClassifyErr(err))
	}
	defer resp.Body.Close()

	if cerr := adapter.ClassifyStatus(resp.StatusCode); cerr != nil {
		return source.Record{}, fmt.Errorf("websearch: %w", cerr)
	}

	var sr searchResponse
	if err := json.NewDecoder(http.MaxBytesReader(nil, resp.Body, maxResponseBytes)).Decode(&sr); err != nil {
		return source.Record{}, domain.Permanent(fmt.Errorf("decode search response: %w", err))
	}

	identity := source.Identity{Handle: auth.Handle, DisplayName: auth.Handle}

	facts := make([]source.Fact, 0, len(sr.Results))
	for i, r := range sr.Results {
		if i >= maxResults || r.Snippet == "" {
			continue
		}
		observed := r.Published
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		facts = append(facts, source.Fact{
			Category: "publications",
			Subject:  "mention:" + r.URL,
			Claim:    r.Title + ": " + r.Snippet,
			Observed: observed,
		})
	}

	return source.NewRecord(source.WebSearch, subjectID, identity, facts, a.ttl, SchemaVersion)
}
