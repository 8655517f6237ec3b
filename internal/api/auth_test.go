package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestV1_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	for _, auth := range []string{"", "Bearer wrong", "Basic " + testToken, testToken} {
		req := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		req.Header.Set(UserHeader, "alice")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want 401", auth, rec.Code)
		}
	}
}

func TestV1_RequiresActingUser(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	rec := env.do(t, http.MethodGet, "/v1/posts", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorType(t, rec); got != "invalid_request_error" {
		t.Errorf("error type = %q", got)
	}
}

func TestMetricsMountedOnlyWhenConfigured(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want 404", rec.Code)
	}

	env.deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	})
	h := NewHandler(env.deps)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "metrics" {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}
