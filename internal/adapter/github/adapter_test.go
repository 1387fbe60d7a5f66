package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

func newTestAdapter(serverURL string) *Adapter {
	return New(Config{BaseURL: serverURL})
}

func testAuth() source.Authorization {
	return source.Authorization{Handle: "octocat", Token: "gh-token"}
}

// The enterprise base URL makes go-github hit the test server under /api/v3/.
func TestFetch_Normalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gh-token" {
			t.Errorf("unexpected auth header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/users/octocat/repos"):
			json.NewEncoder(w).Encode([]map[string]any{
				{
					"name":             "small",
					"full_name":        "octocat/small",
					"description":      "a small tool",
					"language":         "Go",
					"stargazers_count": 2,
					"pushed_at":        "2025-06-01T00:00:00Z",
				},
				{
					"name":             "big",
					"full_name":        "octocat/big",
					"language":         "Rust",
					"stargazers_count": 90,
					"pushed_at":        "2025-07-01T00:00:00Z",
				},
				{
					"name":             "forked",
					"full_name":        "octocat/forked",
					"fork":             true,
					"stargazers_count": 500,
				},
			})
		case strings.HasSuffix(r.URL.Path, "/users/octocat"):
			json.NewEncoder(w).Encode(map[string]any{
				"login":      "octocat",
				"name":       "Mona Lisa",
				"html_url":   "https://github.com/octocat",
				"bio":        "Builds things",
				"company":    "Acme",
				"updated_at": "2025-08-01T00:00:00Z",
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)
	rec, err := a.Fetch(context.Background(), "subject-1", testAuth())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if rec.Source != source.GitHub || rec.SubjectID != "subject-1" {
		t.Errorf("unexpected record header: %+v", rec)
	}
	if rec.Identity.Handle != "octocat" || rec.Identity.DisplayName != "Mona Lisa" {
		t.Errorf("unexpected identity: %+v", rec.Identity)
	}

	byCategory := make(map[string][]source.Fact)
	for _, f := range rec.Facts {
		byCategory[f.Category] = append(byCategory[f.Category], f)
	}

	if len(byCategory["summary"]) != 1 || byCategory["summary"][0].Claim != "Builds things" {
		t.Errorf("unexpected summary facts: %+v", byCategory["summary"])
	}
	if len(byCategory["experience"]) != 1 || byCategory["experience"][0].Claim != "Works at Acme" {
		t.Errorf("unexpected experience facts: %+v", byCategory["experience"])
	}

	projects := byCategory["projects"]
	if len(projects) != 2 {
		t.Fatalf("expected 2 project facts (fork dropped), got %+v", projects)
	}
	// Star-count descending.
	if projects[0].Subject != "repo:octocat/big" || projects[1].Subject != "repo:octocat/small" {
		t.Errorf("unexpected project order: %s, %s", projects[0].Subject, projects[1].Subject)
	}
	if projects[1].Claim != "small: a small tool (Go)" {
		t.Errorf("unexpected project claim: %q", projects[1].Claim)
	}

	skills := byCategory["skills"]
	if len(skills) != 2 || skills[0].Subject != "language:Go" || skills[1].Subject != "language:Rust" {
		t.Errorf("unexpected skill facts: %+v", skills)
	}
}

func TestFetch_ProfileWithoutRepos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/repos") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"login": "octocat",
			"bio":   "Builds things",
		})
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)
	rec, err := a.Fetch(context.Background(), "subject-1", testAuth())
	if err != nil {
		t.Fatalf("repo listing failure must not fail the fetch: %v", err)
	}
	if len(rec.Facts) != 1 || rec.Facts[0].Subject != "bio" {
		t.Errorf("expected profile facts only, got %+v", rec.Facts)
	}
}

func TestFetch_UserNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)
	_, err := a.Fetch(context.Background(), "subject-1", testAuth())
	if !domain.IsPermanent(err) {
		t.Errorf("expected permanent error for 404, got %v", err)
	}
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)
	_, err := a.Fetch(context.Background(), "subject-1", testAuth())
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error for 502, got %v", err)
	}
}
