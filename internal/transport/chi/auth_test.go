package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthMiddleware_NoKeysPassThrough(t *testing.T) {
	h := BearerAuthMiddleware(nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 without configured keys, got %d", rec.Code)
	}
}

func TestBearerAuthMiddleware_ValidKey(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestBearerAuthMiddleware_MissingHeader(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuthMiddleware_WrongScheme(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuthMiddleware_InvalidKey(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuthMiddleware_ExemptPaths(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without credentials, got %d", path, rec.Code)
		}
	}
}

func TestBearerAuthMiddleware_EmptyKeyIgnored(t *testing.T) {
	// An empty string in the key list must not open the API.
	h := BearerAuthMiddleware([]string{""})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles/s1/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected pass-through when no usable keys remain, got %d", rec.Code)
	}
}
