// Package chunk defines the atomic retrievable unit of the vector index.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
)

// MaxTextBytes bounds chunk text size.
const MaxTextBytes = 8192

// Chunk is a bounded passage of profile text with its embedding. A chunk
// belongs to exactly one profile version.
type Chunk struct {
	id             string
	profileVersion int
	category       string
	text           string
	attributions   []profile.Attribution
	confidence     float64
	mergedAt       time.Time
	hash           string
	embedding      []float32
}

// New validates and creates a Chunk.
func New(
	id string, profileVersion int, category, text string,
	attributions []profile.Attribution, confidence float64, mergedAt time.Time,
) (Chunk, error) {
	if id == "" {
		return Chunk{}, fmt.Errorf("chunk ID is required")
	}
	if profileVersion <= 0 {
		return Chunk{}, fmt.Errorf("profile version must be positive")
	}
	if text == "" {
		return Chunk{}, fmt.Errorf("text is required")
	}
	if len(text) > MaxTextBytes {
		return Chunk{}, fmt.Errorf("text too large (max %d bytes)", MaxTextBytes)
	}
	if len(attributions) == 0 {
		return Chunk{}, fmt.Errorf("at least one attribution is required")
	}

	return Chunk{
		id:             id,
		profileVersion: profileVersion,
		category:       category,
		text:           text,
		attributions:   attributions,
		confidence:     confidence,
		mergedAt:       mergedAt,
		hash:           ContentHash(category, text),
	}, nil
}

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(
	id string, profileVersion int, category, text string,
	attributions []profile.Attribution, confidence float64, mergedAt time.Time,
	hash string, embedding []float32,
) Chunk {
	return Chunk{
		id:             id,
		profileVersion: profileVersion,
		category:       category,
		text:           text,
		attributions:   attributions,
		confidence:     confidence,
		mergedAt:       mergedAt,
		hash:           hash,
		embedding:      embedding,
	}
}

// ContentHash returns the stable content hash for a (category, text) pair.
// Chunks with an unchanged hash are not re-embedded across index rebuilds.
func ContentHash(category, text string) string {
	h := sha256.Sum256([]byte(category + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// ID returns the chunk identifier.
func (c *Chunk) ID() string { return c.id }

// ProfileVersion returns the owning profile version.
func (c *Chunk) ProfileVersion() int { return c.profileVersion }

// Category returns the semantic category.
func (c *Chunk) Category() string { return c.category }

// Text returns the chunk text.
func (c *Chunk) Text() string { return c.text }

// Attributions returns the sources this text traces to.
func (c *Chunk) Attributions() []profile.Attribution { return c.attributions }

// Confidence returns the owning section's confidence.
func (c *Chunk) Confidence() float64 { return c.confidence }

// MergedAt returns when the owning profile version was merged.
func (c *Chunk) MergedAt() time.Time { return c.mergedAt }

// Hash returns the stable content hash.
func (c *Chunk) Hash() string { return c.hash }

// Embedding returns the embedding vector (nil until embedded).
func (c *Chunk) Embedding() []float32 { return c.embedding }

// SetEmbedding sets the embedding vector in place.
func (c *Chunk) SetEmbedding(v []float32) { c.embedding = v }
