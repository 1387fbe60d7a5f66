package index

import (
	"strings"
	"unicode"
)

// Chunker packs section text into token-bounded windows without breaking
// sentences. Only a single sentence longer than the hard cap is split
// mid-sentence, at a word boundary.
type Chunker struct {
	targetTokens int
	maxTokens    int
}

// NewChunker creates a chunker with a soft target and hard cap, in estimated
// tokens.
func NewChunker(targetTokens, maxTokens int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = 250
	}
	if maxTokens < targetTokens {
		maxTokens = targetTokens + targetTokens/5
	}
	return &Chunker{targetTokens: targetTokens, maxTokens: maxTokens}
}

// Split chunks one section's text. Windows are filled up to the target; a
// sentence that would push a window past the target starts the next one.
func (c *Chunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var window []string
	windowTokens := 0

	flush := func() {
		if len(window) > 0 {
			chunks = append(chunks, strings.Join(window, " "))
			window = window[:0]
			windowTokens = 0
		}
	}

	for _, sentence := range sentences {
		tokens := EstimateTokens(sentence)

		if tokens > c.maxTokens {
			flush()
			chunks = append(chunks, c.hardSplit(sentence)...)
			continue
		}

		if windowTokens > 0 && windowTokens+tokens > c.targetTokens {
			flush()
		}
		window = append(window, sentence)
		windowTokens += tokens
	}
	flush()

	return chunks
}

// hardSplit breaks an oversized sentence at word boundaries.
func (c *Chunker) hardSplit(sentence string) []string {
	words := strings.Fields(sentence)

	var chunks []string
	var part []string
	partTokens := 0
	for _, w := range words {
		wt := tokensForWords(1)
		if partTokens+wt > c.maxTokens && len(part) > 0 {
			chunks = append(chunks, strings.Join(part, " "))
			part = part[:0]
			partTokens = 0
		}
		part = append(part, w)
		partTokens += wt
	}
	if len(part) > 0 {
		chunks = append(chunks, strings.Join(part, " "))
	}
	return chunks
}

// EstimateTokens approximates the token count of a text as words x 4/3.
// Close enough for window sizing without pulling in a model tokenizer.
func EstimateTokens(text string) int {
	return tokensForWords(len(strings.Fields(text)))
}

func tokensForWords(n int) int {
	return (n*4 + 2) / 3
}

// splitSentences breaks text on terminal punctuation followed by whitespace,
// and on paragraph breaks.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	emit := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			emit()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				emit()
			}
		}
	}
	emit()

	return sentences
}
