package chat

import (
	"fmt"
	"strings"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/usecase/retrieval"
)

// degradedAnswer is returned verbatim when generation is unavailable.
const degradedAnswer = "The assistant is temporarily unavailable. Your message has been recorded; please try again shortly."

// buildSystemPrompt assembles the grounding context for one message: who the
// profile belongs to, the retrieved chunks with their provenance, and the
// grounding rules the model must follow.
func buildSystemPrompt(p *profile.Profile, chunks []retrieval.RankedChunk) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional-profile assistant answering questions about %s", p.Base().FullName)
	if p.Base().Headline != "" {
		fmt.Fprintf(&b, " (%s)", p.Base().Headline)
	}
	b.WriteString(".\n\n")

	b.WriteString("Answer only from the profile excerpts below. ")
	b.WriteString("If the excerpts do not cover the question, say so instead of guessing. ")
	b.WriteString("When you use an excerpt, mention where the information comes from.\n\n")

	if len(chunks) == 0 {
		b.WriteString("No relevant profile excerpts were found for this question.\n")
		return b.String()
	}

	b.WriteString("Profile excerpts:\n")
	for i, rc := range chunks {
		fmt.Fprintf(&b, "\n[%d] (%s; %s)\n%s\n", i+1, rc.Chunk.Category(), provenance(rc), rc.Chunk.Text())
	}
	return b.String()
}

// provenance renders a chunk's attributions as "source: github, updated 2025-03".
func provenance(rc retrieval.RankedChunk) string {
	parts := make([]string, 0, len(rc.Chunk.Attributions()))
	for _, a := range rc.Chunk.Attributions() {
		parts = append(parts, fmt.Sprintf("source: %s, updated %s", a.Source, a.FetchedAt.Format("2006-01")))
	}
	return strings.Join(parts, "; ")
}
