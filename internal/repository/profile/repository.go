// Package profile persists versioned enriched profiles and base documents.
// Versions are immutable: a new enrichment run allocates the next version via
// an atomic counter, writes the document, and only then publishes the
// current-version pointer, so readers never observe a half-written version.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vitae-cloud/profilex/internal/db"
	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// store is the consumer interface for the profile repository (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Repository stores profiles and base documents as JSON values.
type Repository struct {
	store  store
	prefix string
}

// New creates a profile repository.
func New(s store, prefix string) *Repository {
	return &Repository{store: s, prefix: prefix}
}

type attributionDTO struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

type sectionDTO struct {
	Category     string           `json:"category"`
	Text         string           `json:"text"`
	Attributions []attributionDTO `json:"attributions"`
	Confidence   float64          `json:"confidence"`
	Conflicting  bool             `json:"conflicting,omitempty"`
}

type baseSectionDTO struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type baseDocumentDTO struct {
	SubjectID string           `json:"subject_id"`
	FullName  string           `json:"full_name"`
	Headline  string           `json:"headline,omitempty"`
	Sections  []baseSectionDTO `json:"sections"`
}

type profileDTO struct {
	Base         baseDocumentDTO `json:"base"`
	Sections     []sectionDTO    `json:"sections"`
	QualityScore int             `json:"quality_score"`
	Version      int             `json:"version"`
	LastMerged   time.Time       `json:"last_merged"`
}

// NextVersion atomically allocates the next profile version for a subject.
func (r *Repository) NextVersion(ctx context.Context, subjectID string) (int, error) {
	v, err := r.store.Incr(ctx, r.prefix+"profile:"+subjectID+":version")
	if err != nil {
		return 0, fmt.Errorf("allocate profile version: %w", err)
	}
	return int(v), nil
}

// Save writes the profile at its version key and then publishes it as current.
func (r *Repository) Save(ctx context.Context, p profile.Profile) error {
	dto := toDTO(p)
	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	versionKey := r.versionKey(p.SubjectID(), p.Version())
	if err := r.store.Set(ctx, versionKey, data); err != nil {
		return fmt.Errorf("save profile %s: %w", versionKey, err)
	}

	currentKey := r.prefix + "profile:" + p.SubjectID() + ":current"
	if err := r.store.Set(ctx, currentKey, []byte(strconv.Itoa(p.Version()))); err != nil {
		return fmt.Errorf("publish profile version %d: %w", p.Version(), err)
	}
	return nil
}

// Get returns a specific immutable profile version.
func (r *Repository) Get(ctx context.Context, subjectID string, version int) (profile.Profile, error) {
	data, err := r.store.Get(ctx, r.versionKey(subjectID, version))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return profile.Profile{}, fmt.Errorf("%w: profile %s v%d", domain.ErrProfileNotFound, subjectID, version)
		}
		return profile.Profile{}, fmt.Errorf("get profile %s v%d: %w", subjectID, version, err)
	}

	var dto profileDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return profile.Profile{}, fmt.Errorf("unmarshal profile %s v%d: %w", subjectID, version, err)
	}
	return fromDTO(dto), nil
}

// CurrentVersion returns the published version for a subject.
func (r *Repository) CurrentVersion(ctx context.Context, subjectID string) (int, error) {
	data, err := r.store.Get(ctx, r.prefix+"profile:"+subjectID+":current")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, fmt.Errorf("%w: no published profile for %s", domain.ErrProfileNotFound, subjectID)
		}
		return 0, fmt.Errorf("get current profile version for %s: %w", subjectID, err)
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("parse current profile version for %s: %w", subjectID, err)
	}
	return v, nil
}

// GetCurrent returns the currently published profile for a subject.
func (r *Repository) GetCurrent(ctx context.Context, subjectID string) (profile.Profile, error) {
	v, err := r.CurrentVersion(ctx, subjectID)
	if err != nil {
		return profile.Profile{}, err
	}
	return r.Get(ctx, subjectID, v)
}

// SaveBase stores the subject's authoritative base document.
func (r *Repository) SaveBase(ctx context.Context, doc profile.BaseDocument) error {
	dto := toBaseDTO(doc)
	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal base document: %w", err)
	}
	if err := r.store.Set(ctx, r.baseKey(doc.SubjectID), data); err != nil {
		return fmt.Errorf("save base document for %s: %w", doc.SubjectID, err)
	}
	return nil
}

// GetBase returns the subject's base document. A missing base document is
// fatal to enrichment, never silently tolerated.
func (r *Repository) GetBase(ctx context.Context, subjectID string) (profile.BaseDocument, error) {
	data, err := r.store.Get(ctx, r.baseKey(subjectID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return profile.BaseDocument{}, fmt.Errorf("%w: %s", domain.ErrBaseDocumentMissing, subjectID)
		}
		return profile.BaseDocument{}, fmt.Errorf("get base document for %s: %w", subjectID, err)
	}

	var dto baseDocumentDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return profile.BaseDocument{}, fmt.Errorf("unmarshal base document for %s: %w", subjectID, err)
	}
	return fromBaseDTO(dto), nil
}

func (r *Repository) versionKey(subjectID string, version int) string {
	return r.prefix + "profile:" + subjectID + ":v" + strconv.Itoa(version)
}

func (r *Repository) baseKey(subjectID string) string {
	return r.prefix + "basedoc:" + subjectID
}

func toDTO(p profile.Profile) profileDTO {
	sections := make([]sectionDTO, 0, len(p.Sections()))
	for _, s := range p.Sections() {
		attrs := make([]attributionDTO, 0, len(s.Attributions()))
		for _, a := range s.Attributions() {
			attrs = append(attrs, attributionDTO{Source: string(a.Source), FetchedAt: a.FetchedAt})
		}
		sections = append(sections, sectionDTO{
			Category:     s.Category(),
			Text:         s.Text(),
			Attributions: attrs,
			Confidence:   s.Confidence(),
			Conflicting:  s.Conflicting(),
		})
	}
	return profileDTO{
		Base:         toBaseDTO(p.Base()),
		Sections:     sections,
		QualityScore: p.QualityScore(),
		Version:      p.Version(),
		LastMerged:   p.LastMerged(),
	}
}

func fromDTO(dto profileDTO) profile.Profile {
	sections := make([]profile.Section, 0, len(dto.Sections))
	for _, s := range dto.Sections {
		attrs := make([]profile.Attribution, 0, len(s.Attributions))
		for _, a := range s.Attributions {
			attrs = append(attrs, profile.Attribution{Source: source.Source(a.Source), FetchedAt: a.FetchedAt})
		}
		sections = append(sections, profile.ReconstructSection(
			s.Category, s.Text, attrs, s.Confidence, s.Conflicting,
		))
	}
	return profile.Reconstruct(fromBaseDTO(dto.Base), sections, dto.QualityScore, dto.Version, dto.LastMerged)
}

func toBaseDTO(doc profile.BaseDocument) baseDocumentDTO {
	sections := make([]baseSectionDTO, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		sections = append(sections, baseSectionDTO{Category: s.Category, Text: s.Text})
	}
	return baseDocumentDTO{
		SubjectID: doc.SubjectID,
		FullName:  doc.FullName,
		Headline:  doc.Headline,
		Sections:  sections,
	}
}

func fromBaseDTO(dto baseDocumentDTO) profile.BaseDocument {
	sections := make([]profile.BaseSection, 0, len(dto.Sections))
	for _, s := range dto.Sections {
		sections = append(sections, profile.BaseSection{Category: s.Category, Text: s.Text})
	}
	return profile.BaseDocument{
		SubjectID: dto.SubjectID,
		FullName:  dto.FullName,
		Headline:  dto.Headline,
		Sections:  sections,
	}
}
