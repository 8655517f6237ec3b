package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/kalambet/cocreate/internal/generation"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

func TestGenerate_Completed(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())

	rec := env.do(t, http.MethodPost, "/v1/posts/generate", "alice", map[string]any{
		"user_request": "Write about shipping our new onboarding flow",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	res := decode[generation.Result](t, rec)
	if !res.Success || res.NeedsMoreInfo {
		t.Fatalf("res = %+v", res)
	}
	if res.Content != "We shipped the new onboarding flow." {
		t.Errorf("Content = %q", res.Content)
	}
	if res.QualityVerdict != generation.VerdictPass {
		t.Errorf("QualityVerdict = %q", res.QualityVerdict)
	}

	id := rec.Header().Get("X-Generation-ID")
	if id == "" {
		t.Fatal("X-Generation-ID header missing")
	}
	g, err := env.store.GetGeneration(context.Background(), "alice", id)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if g.Outcome != generation.OutcomeCompleted || g.Content != res.Content || g.TargetUserID != "alice" || g.Action != "create" {
		t.Errorf("stored generation = %+v", g)
	}
	if g.QualityScore == nil || *g.QualityScore < 7.99 || *g.QualityScore > 8.01 {
		t.Errorf("QualityScore = %v", g.QualityScore)
	}
}

func TestGenerate_NeedsMoreInfo(t *testing.T) {
	c := newFakeCompleter()
	c.responses["fast"] = askQuestionsJSON
	env := newTestEnv(t, c)

	rec := env.do(t, http.MethodPost, "/v1/posts/generate", "alice", map[string]any{
		"user_request": "Write about a launch",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	res := decode[generation.Result](t, rec)
	if !res.Success || !res.NeedsMoreInfo || res.Questions == "" {
		t.Fatalf("res = %+v", res)
	}

	gens, err := env.store.ListGenerations(context.Background(), "alice", 10)
	if err != nil || len(gens) != 1 {
		t.Fatalf("ListGenerations = %v, %v", gens, err)
	}
	if gens[0].Outcome != generation.OutcomeNeedsMoreInfo {
		t.Errorf("Outcome = %q", gens[0].Outcome)
	}
}

func TestGenerate_StatusMapping(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testing.T, *fakeCompleter, *testEnv)
		body  map[string]any
		want  int
	}{
		{
			name: "empty request",
			body: map[string]any{"user_request": "  "},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown action",
			body: map[string]any{"user_request": "Write something", "action": "delete"},
			want: http.StatusBadRequest,
		},
		{
			name: "other user without relationship",
			body: map[string]any{"user_request": "Write something", "target_user_id": "bob"},
			want: http.StatusForbidden,
		},
		{
			name: "other user without relationship gathering sources",
			body: map[string]any{"user_request": "Write something", "target_user_id": "bob", "gather_sources": true},
			want: http.StatusForbidden,
		},
		{
			name:  "drafting fails",
			setup: func(_ *testing.T, c *fakeCompleter, _ *testEnv) { c.errs["draft"] = errors.New("upstream down") },
			body:  map[string]any{"user_request": "Write something"},
			want:  http.StatusBadGateway,
		},
		{
			name:  "ghostwriter with active link",
			setup: func(t *testing.T, _ *fakeCompleter, e *testEnv) { linkUsers(t, e.store, "alice", "bob") },
			body:  map[string]any{"user_request": "Write something", "target_user_id": "bob"},
			want:  http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeCompleter()
			env := newTestEnv(t, c)
			if tt.setup != nil {
				tt.setup(t, c, env)
			}
			rec := env.do(t, http.MethodPost, "/v1/posts/generate", "alice", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGenerate_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	rec := env.do(t, http.MethodPost, "/v1/posts/generate", "alice", "not an object")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerate_GatherSources(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	ctx := context.Background()
	for i, text := range []string{"First post about hiring.", "Second post about onboarding."} {
		if err := env.store.SavePost(ctx, storage.Post{ID: string(rune('a' + i)), UserID: "alice", Content: text}); err != nil {
			t.Fatalf("SavePost: %v", err)
		}
	}
	if err := env.store.SetContextGuide(ctx, "alice", "Head of product at a small startup."); err != nil {
		t.Fatalf("SetContextGuide: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/v1/posts/generate", "alice", map[string]any{
		"user_request":   "Write about onboarding",
		"gather_sources": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	res := decode[generation.Result](t, rec)
	var detail map[string]any
	for _, s := range res.Steps {
		if s.Stage == generation.StageVoiceProfile {
			detail = s.Detail
		}
	}
	if detail == nil {
		t.Fatal("voice_profile step missing")
	}
	if detail["past_posts"] != float64(2) {
		t.Errorf("past_posts = %v, want 2", detail["past_posts"])
	}
	if detail["analysis_method"] != string(voice.MethodLLM) {
		t.Errorf("analysis_method = %v", detail["analysis_method"])
	}

	p, err := env.deps.Profiles.Get(ctx, "alice")
	if err != nil || p == nil {
		t.Fatalf("profile not stored: %v", err)
	}
	if p.AnalysisSources.PastPostsCount != 2 {
		t.Errorf("PastPostsCount = %d", p.AnalysisSources.PastPostsCount)
	}
}

func TestGenerate_RequestSourcesWinOverGather(t *testing.T) {
	env := newTestEnv(t, newFakeCompleter())
	if err := env.store.SavePost(context.Background(), storage.Post{ID: "p1", UserID: "alice", Content: "Stored post."}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/v1/posts/generate", "alice", map[string]any{
		"user_request":   "Write about onboarding",
		"gather_sources": true,
		"sources":        map[string]any{"context_guide": "Supplied inline."},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	res := decode[generation.Result](t, rec)
	for _, s := range res.Steps {
		if s.Stage == generation.StageVoiceProfile && s.Detail["past_posts"] != float64(0) {
			t.Errorf("past_posts = %v, want 0", s.Detail["past_posts"])
		}
	}
}

func TestRefine(t *testing.T) {
	c := newFakeCompleter()
	c.responses["draft"] = "A tighter version."
	env := newTestEnv(t, c)

	rec := env.do(t, http.MethodPost, "/v1/posts/refine", "alice", map[string]any{
		"content":  "A loose and rambling version.",
		"feedback": "tighten it",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	out := decode[generation.RefineResult](t, rec)
	if out.Content != "A tighter version." || out.Confidence != generation.ConfidenceHigh {
		t.Errorf("refine = %+v", out)
	}
}

func TestRefine_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeCompleter)
		body  map[string]any
		want  int
	}{
		{"missing feedback", nil, map[string]any{"content": "x"}, http.StatusBadRequest},
		{"no relationship", nil, map[string]any{"content": "x", "feedback": "y", "target_user_id": "bob"}, http.StatusForbidden},
		{"model failure", func(c *fakeCompleter) { c.errs["draft"] = errors.New("boom") }, map[string]any{"content": "x", "feedback": "y"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeCompleter()
			if tt.setup != nil {
				tt.setup(c)
			}
			env := newTestEnv(t, c)
			rec := env.do(t, http.MethodPost, "/v1/posts/refine", "alice", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
