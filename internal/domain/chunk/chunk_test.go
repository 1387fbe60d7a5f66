package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
)

func attrs() []profile.Attribution {
	return []profile.Attribution{{Source: "github", FetchedAt: time.Now()}}
}

func TestNew_Validation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		id      string
		version int
		text    string
		attrs   []profile.Attribution
	}{
		{"empty id", "", 1, "text", attrs()},
		{"zero version", "c-1", 0, "text", attrs()},
		{"empty text", "c-1", 1, "", attrs()},
		{"oversized text", "c-1", 1, strings.Repeat("x", MaxTextBytes+1), attrs()},
		{"no attributions", "c-1", 1, "text", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.version, "skills", tc.text, tc.attrs, 0.8, now); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNew_ComputesHash(t *testing.T) {
	c, err := New("c-1", 1, "skills", "Go, Redis", attrs(), 0.8, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Hash() != ContentHash("skills", "Go, Redis") {
		t.Errorf("hash mismatch: %s", c.Hash())
	}
}

func TestContentHash_Stable(t *testing.T) {
	a := ContentHash("skills", "Go, Redis")
	b := ContentHash("skills", "Go, Redis")
	if a != b {
		t.Errorf("hash not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestContentHash_CategoryDistinguishes(t *testing.T) {
	// The separator prevents ("ab","c") colliding with ("a","bc").
	if ContentHash("ab", "c") == ContentHash("a", "bc") {
		t.Error("expected distinct hashes across category boundary")
	}
	if ContentHash("skills", "Go") == ContentHash("experience", "Go") {
		t.Error("expected category to affect hash")
	}
}

func TestSetEmbedding(t *testing.T) {
	c, err := New("c-1", 1, "skills", "Go", attrs(), 0.8, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Embedding() != nil {
		t.Error("expected nil embedding before SetEmbedding")
	}
	c.SetEmbedding([]float32{0.1, 0.2})
	if len(c.Embedding()) != 2 {
		t.Errorf("expected 2 dims, got %d", len(c.Embedding()))
	}
}
