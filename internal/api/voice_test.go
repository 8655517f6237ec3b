package api

import (
	"net/http"
	"testing"

	"github.com/kalambet/cocreate/internal/voice"
)

func TestVoiceProfile_AnalyzeThenGet(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())

	rec := env.do(t, http.MethodGet, "/v1/voice-profile", "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before analysis = %d, want 404", rec.Code)
	}

	env.do(t, http.MethodPost, "/v1/posts", "alice", map[string]any{"content": "Ship small. Learn fast."})

	rec = env.do(t, http.MethodPost, "/v1/voice-profile/analyze", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d body = %s", rec.Code, rec.Body.String())
	}
	p := decode[voice.VoiceProfile](t, rec)
	if p.Version != 1 || p.Tone.Primary != "direct" || p.AnalysisSources.AnalysisMethod != voice.MethodLLM {
		t.Errorf("profile = %+v", p)
	}

	// Nothing changed, so a non-forced analysis keeps the stored version.
	rec = env.do(t, http.MethodPost, "/v1/voice-profile/analyze", "alice", map[string]any{"force": false})
	if got := decode[voice.VoiceProfile](t, rec); got.Version != 1 {
		t.Errorf("version after unforced analyze = %d, want 1", got.Version)
	}
	rec = env.do(t, http.MethodPost, "/v1/voice-profile/analyze", "alice", map[string]any{"force": true})
	if got := decode[voice.VoiceProfile](t, rec); got.Version != 2 {
		t.Errorf("version after forced analyze = %d, want 2", got.Version)
	}

	rec = env.do(t, http.MethodGet, "/v1/voice-profile?view=simplified", "alice", nil)
	s := decode[voice.SimplifiedVoice](t, rec)
	if s.Tone != "direct" || s.Version != 2 {
		t.Errorf("simplified = %+v", s)
	}
}

func TestVoiceProfile_AccessChecked(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	env.do(t, http.MethodPost, "/v1/voice-profile/analyze", "bob", nil)

	rec := env.do(t, http.MethodGet, "/v1/voice-profile?target_user_id=bob", "alice", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := errorType(t, rec); got != "permission_error" {
		t.Errorf("error type = %q", got)
	}

	linkUsers(t, env.store, "alice", "bob")
	rec = env.do(t, http.MethodGet, "/v1/voice-profile?target_user_id=bob", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("linked status = %d", rec.Code)
	}
	if p := decode[voice.VoiceProfile](t, rec); p.UserID != "bob" {
		t.Errorf("UserID = %q", p.UserID)
	}
}

func TestVoiceProfile_PatchInsights(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())

	rec := env.do(t, http.MethodPatch, "/v1/voice-profile/insights", "alice", map[string]any{"best_hook": "question"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status without profile = %d, want 404", rec.Code)
	}

	env.do(t, http.MethodPost, "/v1/voice-profile/analyze", "alice", nil)
	env.do(t, http.MethodPatch, "/v1/voice-profile/insights", "alice", map[string]any{"best_hook": "question", "avg_likes": 40})
	rec = env.do(t, http.MethodPatch, "/v1/voice-profile/insights", "alice", map[string]any{"avg_likes": 55})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	p := decode[voice.VoiceProfile](t, rec)
	if p.PerformanceInsights["best_hook"] != "question" || p.PerformanceInsights["avg_likes"] != float64(55) {
		t.Errorf("insights = %v", p.PerformanceInsights)
	}

	rec = env.do(t, http.MethodPatch, "/v1/voice-profile/insights", "alice", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty insights status = %d, want 400", rec.Code)
	}
}
