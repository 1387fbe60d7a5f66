package index

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 2},
		{"one two three", 4},
		{"a b c d e f", 8},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	c := NewChunker(250, 300)
	if got := c.Split(""); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
	if got := c.Split("   \n  "); got != nil {
		t.Errorf("expected nil for whitespace, got %v", got)
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(250, 300)
	got := c.Split("Ten years of Go. Built vector search systems.")
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(got), got)
	}
}

func TestSplit_RespectsSentenceBoundaries(t *testing.T) {
	// Each sentence estimates to 14 tokens; with target 20 a second sentence
	// overflows the window, so each sentence gets its own chunk.
	sentence := "Alpha beta gamma delta epsilon zeta eta theta iota kappa."
	c := NewChunker(20, 30)
	got := c.Split(sentence + " " + sentence + " " + sentence)

	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(got), got)
	}
	for i, chunk := range got {
		if !strings.HasSuffix(chunk, ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", i, chunk)
		}
	}
}

func TestSplit_PacksToTarget(t *testing.T) {
	short := "Go expert."
	c := NewChunker(250, 300)
	got := c.Split(strings.Repeat(short+" ", 10))
	if len(got) != 1 {
		t.Errorf("short sentences should pack into one window, got %d", len(got))
	}
}

func TestSplit_HardSplitsOversizedSentence(t *testing.T) {
	// One sentence far over the hard cap, no terminal punctuation inside.
	words := strings.Repeat("word ", 100)
	c := NewChunker(20, 30)
	got := c.Split(strings.TrimSpace(words) + ".")

	if len(got) < 2 {
		t.Fatalf("expected the oversized sentence to be split, got %d chunks", len(got))
	}
	for i, chunk := range got {
		if tokens := EstimateTokens(chunk); tokens > 30 {
			t.Errorf("chunk %d has %d estimated tokens, cap 30", i, tokens)
		}
	}
}

func TestSplit_ParagraphBreaks(t *testing.T) {
	c := NewChunker(20, 30)
	got := c.Split("First paragraph without terminal punctuation\nSecond paragraph here")
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "First paragraph") || !strings.Contains(joined, "Second paragraph") {
		t.Errorf("paragraph content lost: %v", got)
	}
}

func TestSplit_AbbreviationMidSentenceNotSplit(t *testing.T) {
	c := NewChunker(250, 300)
	// A period not followed by whitespace does not end a sentence.
	got := c.Split("Worked on v1.2 release pipeline. Shipped it.")
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(got), got)
	}
	if !strings.Contains(got[0], "v1.2 release") {
		t.Errorf("version number split: %q", got[0])
	}
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, 0)
	if c.targetTokens != 250 {
		t.Errorf("expected default target 250, got %d", c.targetTokens)
	}
	if c.maxTokens < c.targetTokens {
		t.Errorf("cap %d below target %d", c.maxTokens, c.targetTokens)
	}
}
