package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain"
)

func testServer() *Server {
	return NewServer(nil, nil, nil, nil, nil, nil, nil, zap.NewNop())
}

func TestHandleDomainError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrBaseDocumentMissing, http.StatusUnprocessableEntity, "base_document_missing"},
		{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{domain.ErrSessionExpired, http.StatusGone, "session_expired"},
		{domain.ErrSessionClosed, http.StatusConflict, "session_closed"},
		{domain.ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{domain.ErrIndexVersionMismatch, http.StatusConflict, "index_version_mismatch"},
		{domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"},
		{domain.ErrGenerationUnavailable, http.StatusServiceUnavailable, "generation_unavailable"},
		{domain.ErrProfileNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	}

	s := testServer()
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handleDomainError(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil), fmt.Errorf("op failed: %w", tc.err))

			if rec.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal response: %v", err)
			}
			if resp.Code != tc.code {
				t.Errorf("expected code %q, got %q", tc.code, resp.Code)
			}
		})
	}
}

func TestHandleDomainError_UnknownIs500(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleDomainError(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil), fmt.Errorf("redis timeout at 10.0.0.3"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Message != "internal error" {
		t.Errorf("internals leaked to client: %q", resp.Message)
	}
}

func TestSafeDomainMessage_HidesInternals(t *testing.T) {
	msg := safeDomainMessage(fmt.Errorf("dial tcp 10.0.0.3:6379: %w", domain.ErrRateLimited))
	if msg != domain.ErrRateLimited.Error() {
		t.Errorf("expected sentinel message, got %q", msg)
	}

	msg = safeDomainMessage(fmt.Errorf("dial tcp 10.0.0.3:6379: refused"))
	if msg != "internal error" {
		t.Errorf("expected generic message, got %q", msg)
	}
}
