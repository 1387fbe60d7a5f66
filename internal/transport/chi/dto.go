package chi

import (
	"time"

	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
	chatuc "github.com/vitae-cloud/profilex/internal/usecase/chat"
	enrichuc "github.com/vitae-cloud/profilex/internal/usecase/enrich"
	retrievaluc "github.com/vitae-cloud/profilex/internal/usecase/retrieval"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type baseSectionRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type baseDocumentRequest struct {
	FullName string               `json:"full_name"`
	Headline string               `json:"headline,omitempty"`
	Sections []baseSectionRequest `json:"sections"`
}

func (r *baseDocumentRequest) toDomain(subjectID string) profile.BaseDocument {
	sections := make([]profile.BaseSection, 0, len(r.Sections))
	for _, s := range r.Sections {
		sections = append(sections, profile.BaseSection{Category: s.Category, Text: s.Text})
	}
	return profile.BaseDocument{
		SubjectID: subjectID,
		FullName:  r.FullName,
		Headline:  r.Headline,
		Sections:  sections,
	}
}

type authorizationRequest struct {
	Token     string    `json:"token"`
	Handle    string    `json:"handle"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (r *authorizationRequest) toDomain() source.Authorization {
	return source.Authorization{
		Token:     r.Token,
		Handle:    r.Handle,
		Scopes:    r.Scopes,
		ExpiresAt: r.ExpiresAt,
	}
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

type profileDTO struct {
	SubjectID    string       `json:"subject_id"`
	FullName     string       `json:"full_name"`
	Headline     string       `json:"headline,omitempty"`
	Sections     []sectionDTO `json:"sections"`
	QualityScore int          `json:"quality_score"`
	Version      int          `json:"version"`
	LastMerged   time.Time    `json:"last_merged"`
}

func profileToDTO(p *profile.Profile) profileDTO {
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
		SubjectID:    p.SubjectID(),
		FullName:     p.Base().FullName,
		Headline:     p.Base().Headline,
		Sections:     sections,
		QualityScore: p.QualityScore(),
		Version:      p.Version(),
		LastMerged:   p.LastMerged(),
	}
}

type outcomeDTO struct {
	Source string `json:"source"`
	Status string `json:"status"`
	Facts  int    `json:"facts,omitempty"`
	Error  string `json:"error,omitempty"`
}

type reportDTO struct {
	Outcomes   []outcomeDTO `json:"outcomes"`
	Violations int          `json:"violations"`
}

func reportToDTO(r enrichuc.Report) reportDTO {
	outcomes := make([]outcomeDTO, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		dto := outcomeDTO{Source: string(o.Source), Status: o.Status, Facts: o.Facts}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		outcomes = append(outcomes, dto)
	}
	return reportDTO{Outcomes: outcomes, Violations: len(r.Violations)}
}

type enrichResponse struct {
	Profile profileDTO `json:"profile"`
	Report  reportDTO  `json:"report"`
}

type indexResponse struct {
	Version  int `json:"version"`
	Chunks   int `json:"chunks"`
	Embedded int `json:"embedded"`
	Reused   int `json:"reused"`
	Skipped  int `json:"skipped,omitempty"`
}

type searchRequest struct {
	Query    string `json:"query"`
	Version  int    `json:"version,omitempty"`
	K        int    `json:"k,omitempty"`
	Category string `json:"category,omitempty"`
}

type searchResultItem struct {
	Text         string           `json:"text"`
	Category     string           `json:"category"`
	Similarity   float64          `json:"similarity"`
	Score        float64          `json:"score"`
	Confidence   float64          `json:"confidence"`
	Attributions []attributionDTO `json:"attributions"`
}

func rankedToDTO(rc *retrievaluc.RankedChunk) searchResultItem {
	attrs := make([]attributionDTO, 0, len(rc.Chunk.Attributions()))
	for _, a := range rc.Chunk.Attributions() {
		attrs = append(attrs, attributionDTO{Source: string(a.Source), FetchedAt: a.FetchedAt})
	}
	return searchResultItem{
		Text:         rc.Chunk.Text(),
		Category:     rc.Chunk.Category(),
		Similarity:   rc.Similarity,
		Score:        rc.Score,
		Confidence:   rc.Chunk.Confidence(),
		Attributions: attrs,
	}
}

type searchResponse struct {
	Version int                `json:"version"`
	Items   []searchResultItem `json:"items"`
}

type openSessionRequest struct {
	SubjectID string `json:"subject_id"`
	Visitor   string `json:"visitor,omitempty"`
}

type sessionResponse struct {
	SessionID      string    `json:"session_id"`
	SubjectID      string    `json:"subject_id"`
	ProfileVersion int       `json:"profile_version"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type sourceRefDTO struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

type answerResponse struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Sources   []sourceRefDTO `json:"sources,omitempty"`
	Degraded  bool           `json:"degraded,omitempty"`
}

func answerToDTO(a chatuc.Answer) answerResponse {
	sources := make([]sourceRefDTO, 0, len(a.Sources))
	for _, ref := range a.Sources {
		sources = append(sources, sourceRefDTO{Source: ref.Source, FetchedAt: ref.FetchedAt})
	}
	return answerResponse{
		SessionID: a.SessionID,
		Text:      a.Text,
		Sources:   sources,
		Degraded:  a.Degraded,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
