// Package chi exposes the enrichment, indexing, retrieval and chat operations
// over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/profile"
	"github.com/vitae-cloud/profilex/internal/domain/source"
	logpkg "github.com/vitae-cloud/profilex/internal/logger"
	"github.com/vitae-cloud/profilex/internal/metrics"
	profilerepo "github.com/vitae-cloud/profilex/internal/repository/profile"
	"github.com/vitae-cloud/profilex/internal/repository/tokenstore"
	chatuc "github.com/vitae-cloud/profilex/internal/usecase/chat"
	enrichuc "github.com/vitae-cloud/profilex/internal/usecase/enrich"
	healthuc "github.com/vitae-cloud/profilex/internal/usecase/health"
	indexuc "github.com/vitae-cloud/profilex/internal/usecase/index"
	retrievaluc "github.com/vitae-cloud/profilex/internal/usecase/retrieval"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	enrich        *enrichuc.Service
	index         *indexuc.Service
	retrieval     *retrievaluc.Service
	chat          *chatuc.Service
	profiles      *profilerepo.Repository
	tokens        *tokenstore.Repository
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	enrich *enrichuc.Service,
	index *indexuc.Service,
	retrieval *retrievaluc.Service,
	chat *chatuc.Service,
	profiles *profilerepo.Repository,
	tokens *tokenstore.Repository,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		enrich:    enrich,
		index:     index,
		retrieval: retrieval,
		chat:      chat,
		profiles:  profiles,
		tokens:    tokens,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrBaseDocumentMissing, http.StatusUnprocessableEntity, "base_document_missing"),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"),
		sentinelHandler(domain.ErrSessionExpired, http.StatusGone, "session_expired"),
		sentinelHandler(domain.ErrSessionClosed, http.StatusConflict, "session_closed"),
		sentinelHandler(domain.ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrIndexVersionMismatch, http.StatusConflict, "index_version_mismatch"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrGenerationUnavailable, http.StatusServiceUnavailable, "generation_unavailable"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
	}
	return s
}

// Routes builds the router with auth, metrics and recovery middleware.
// If apiKeys is empty, authentication is disabled.
func (s *Server) Routes(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.jsonRecoverer)
	r.Use(s.wideEventMiddleware)
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/profiles/{subjectID}", func(r chi.Router) {
			r.Put("/base", s.PutBaseDocument)
			r.Put("/sources/{source}/authorization", s.PutAuthorization)
			r.Delete("/sources/{source}/authorization", s.DeleteAuthorization)
			r.Post("/enrich", s.EnrichProfile)
			r.Get("/", s.GetProfile)
			r.Post("/index", s.BuildIndex)
			r.Post("/search", s.SearchProfile)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.OpenSession)
			r.Post("/{sessionID}/messages", s.PostMessage)
			r.Delete("/{sessionID}", s.CloseSession)
		})
	})
	return r
}

// PutBaseDocument handles PUT /v1/profiles/{subjectID}/base.
func (s *Server) PutBaseDocument(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	var req baseDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	doc := req.toDomain(subjectID)
	if doc.FullName == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "full_name is required")
		return
	}

	if err := s.profiles.SaveBase(r.Context(), doc); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutAuthorization handles PUT /v1/profiles/{subjectID}/sources/{source}/authorization.
func (s *Server) PutAuthorization(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	src, err := source.Parse(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var req authorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Handle == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "handle is required")
		return
	}

	if err := s.tokens.Put(r.Context(), src, subjectID, req.toDomain()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAuthorization handles DELETE /v1/profiles/{subjectID}/sources/{source}/authorization.
func (s *Server) DeleteAuthorization(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	src, err := source.Parse(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := s.tokens.Revoke(r.Context(), src, subjectID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnrichProfile handles POST /v1/profiles/{subjectID}/enrich.
func (s *Server) EnrichProfile(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	p, report, err := s.enrich.Enrich(r.Context(), subjectID, forceRefresh)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, enrichResponse{
		Profile: profileToDTO(&p),
		Report:  reportToDTO(report),
	})
}

// GetProfile handles GET /v1/profiles/{subjectID}. The optional version query
// parameter selects a historical version; the default is the published one.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	var err error
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil || version <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "version must be a positive integer")
			return
		}
	}

	p, err := s.getProfile(r, subjectID, version)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileToDTO(&p))
}

// BuildIndex handles POST /v1/profiles/{subjectID}/index.
func (s *Server) BuildIndex(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	version, err := s.profiles.CurrentVersion(r.Context(), subjectID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	report, err := s.index.BuildIndex(r.Context(), subjectID, version)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, indexResponse{
		Version:  version,
		Chunks:   report.Chunks,
		Embedded: report.Embedded,
		Reused:   report.Reused,
		Skipped:  report.Skipped,
	})
}

// SearchProfile handles POST /v1/profiles/{subjectID}/search.
func (s *Server) SearchProfile(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	version := req.Version
	if version == 0 {
		var err error
		version, err = s.profiles.CurrentVersion(r.Context(), subjectID)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
	}

	ranked, err := s.retrieval.Search(r.Context(), subjectID, version, req.Query, req.K, req.Category)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchResultItem, len(ranked))
	for i := range ranked {
		items[i] = rankedToDTO(&ranked[i])
	}
	writeJSON(w, http.StatusOK, searchResponse{Version: version, Items: items})
}

// OpenSession handles POST /v1/sessions.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "subject_id is required")
		return
	}

	sess, err := s.chat.Open(r.Context(), req.SubjectID, req.Visitor)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:      sess.ID(),
		SubjectID:      sess.SubjectID(),
		ProfileVersion: sess.ProfileVersion(),
		ExpiresAt:      sess.ExpiresAt(),
	})
}

// PostMessage handles POST /v1/sessions/{sessionID}/messages.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "text is required")
		return
	}

	answer, err := s.chat.HandleMessage(r.Context(), sessionID, req.Text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerToDTO(answer))
}

// CloseSession handles DELETE /v1/sessions/{sessionID}.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// jsonRecoverer converts panics into JSON 500 responses.
func (s *Server) jsonRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func (s *Server) wideEventMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}

		reqLogger := s.logger.With(zap.String("request_id", requestID))
		ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		reqLogger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", r.RemoteAddr),
			zap.Int64("content_length", r.ContentLength),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("response_bytes", ww.BytesWritten()),
		)
	})
}

func (s *Server) getProfile(r *http.Request, subjectID string, version int) (profile.Profile, error) {
	if version > 0 {
		return s.profiles.Get(r.Context(), subjectID, version)
	}
	return s.profiles.GetCurrent(r.Context(), subjectID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrBaseDocumentMissing,
		domain.ErrSessionNotFound,
		domain.ErrSessionExpired,
		domain.ErrSessionClosed,
		domain.ErrTooManyRequests,
		domain.ErrRateLimited,
		domain.ErrIndexVersionMismatch,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationUnavailable,
		domain.ErrProfileNotFound,
		domain.ErrNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
