// Package github fetches a subject's code-hosting profile via the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	gh "github.com/google/go-github/v80/github"
	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/adapter"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// SchemaVersion is the normalized payload schema this adapter emits.
const SchemaVersion = 1

const maxRepos = 30

// Adapter implements the source adapter contract for GitHub.
type Adapter struct {
	http    *http.Client
	baseURL string
	ttl     time.Duration
	logger  *zap.Logger
}

// Config holds the GitHub adapter settings.
type Config struct {
	BaseURL  string // override for GitHub Enterprise / tests
	Timeout  time.Duration
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// New creates a GitHub adapter.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		ttl:     ttl,
		logger:  logger,
	}
}

// Source returns the source this adapter serves.
func (a *Adapter) Source() source.Source { return source.GitHub }

// Fetch retrieves the subject's GitHub profile and repositories and
// normalizes them into facts. Idempotent; side-effect-free beyond the
// remote calls.
func (a *Adapter) Fetch(ctx context.Context, subjectID string, auth source.Authorization) (source.Record, error) {
	client, err := a.client(auth.Token)
	if err != nil {
		return source.Record{}, domain.Permanent(err)
	}

	user, resp, err := client.Users.Get(ctx, auth.Handle)
	if err != nil {
		return source.Record{}, classify(resp, err)
	}

	repos, resp, err := client.Repositories.ListByUser(ctx, auth.Handle, &gh.RepositoryListByUserOptions{
		Sort:        "pushed",
		ListOptions: gh.ListOptions{PerPage: maxRepos},
	})
	if err != nil {
		// Profile alone is still a usable record; repo listing is best effort.
		a.logger.Warn("github repo listing failed", zap.String("handle", auth.Handle), zap.Error(err))
		repos = nil
	}

	identity := source.Identity{
		Handle:      user.GetLogin(),
		DisplayName: user.GetName(),
		ProfileURL:  user.GetHTMLURL(),
	}

	facts := profileFacts(user)
	facts = append(facts, repoFacts(repos)...)

	return source.NewRecord(source.GitHub, subjectID, identity, facts, a.ttl, SchemaVersion)
}

func (a *Adapter) client(token string) (*gh.Client, error) {
	client := gh.NewClient(a.http)
	if a.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(a.baseURL, a.baseURL)
		if err != nil {
			return nil, fmt.Errorf("enterprise base URL: %w", err)
		}
	}
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client, nil
}

func profileFacts(user *gh.User) []source.Fact {
	var facts []source.Fact
	observed := user.GetUpdatedAt().Time

	if bio := user.GetBio(); bio != "" {
		facts = append(facts, source.Fact{
			Category: "summary",
			Subject:  "bio",
			Claim:    bio,
			Observed: observed,
		})
	}
	if company := user.GetCompany(); company != "" {
		facts = append(facts, source.Fact{
			Category: "experience",
			Subject:  "current-company",
			Claim:    "Works at " + company,
			Observed: observed,
		})
	}
	return facts
}

func repoFacts(repos []*gh.Repository) []source.Fact {
	// Deterministic ordering regardless of API paging quirks.
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].GetStargazersCount() != repos[j].GetStargazersCount() {
			return repos[i].GetStargazersCount() > repos[j].GetStargazersCount()
		}
		return repos[i].GetName() < repos[j].GetName()
	})

	var facts []source.Fact
	languages := make(map[string]bool)

	for _, r := range repos {
		if r.GetFork() || r.GetPrivate() {
			continue
		}
		claim := r.GetName()
		if desc := r.GetDescription(); desc != "" {
			claim += ": " + desc
		}
		if lang := r.GetLanguage(); lang != "" {
			claim += fmt.Sprintf(" (%s)", lang)
			languages[lang] = true
		}
		facts = append(facts, source.Fact{
			Category: "projects",
			Subject:  "repo:" + r.GetFullName(),
			Claim:    claim,
			Observed: r.GetPushedAt().Time,
		})
	}

	langs := make([]string, 0, len(languages))
	for l := range languages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		facts = append(facts, source.Fact{
			Category: "skills",
			Subject:  "language:" + l,
			Claim:    l,
			Observed: time.Now().UTC(),
		})
	}

	return facts
}

// classify maps go-github errors onto the transient/permanent taxonomy.
func classify(resp *gh.Response, err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return domain.Transient(err)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return domain.Transient(err)
	}
	if resp != nil {
		if c := adapter.ClassifyStatus(resp.StatusCode); c != nil {
			return fmt.Errorf("github: %w", c)
		}
	}
	return adapter.ClassifyErr(err)
}
