package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/cocreate/internal/generation"
	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/prompts"
	"github.com/kalambet/cocreate/internal/sources"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

const testToken = "test-token"

const (
	proceedJSON      = `{"detected_content_type":"professional_insight","can_write_authentically":true,"confidence":"high","recommendation":"proceed","questions_to_ask":[],"writing_guidance":""}`
	askQuestionsJSON = `{"detected_content_type":"announcement","can_write_authentically":false,"confidence":"low","recommendation":"ask_questions","questions_to_ask":[{"question":"What exactly are you launching?"}],"writing_guidance":""}`
	draftText        = "[POST_CONTENT]\nWe shipped the new onboarding flow.\n[/POST_CONTENT]\n[CONFIDENCE]high[/CONFIDENCE]\n[MISSING_INFO]\nnone\n[/MISSING_INFO]"
	passReviewJSON   = `{"scores":{"voice_match":8,"authenticity":8,"linkedin_optimization":8,"clarity_value":8},"verdict":"PASS","issues":[],"fabrication_flags":[],"refinements":{},"revised_content":null}`
	analysisJSON     = `{"writing_style":{"formality":0.3,"directness":0.8,"sentence_length_avg":11,"sentence_length_variance":"low","paragraph_style":"short"},"tone":{"primary":"direct","secondary":"","emotional_range":[]},"vocabulary":{"level":"professional","industry_terms":[],"signature_phrases":[],"words_to_avoid":[]},"formatting":{"uses_emojis":false,"uses_hashtags":false,"uses_line_breaks":true,"preferred_hooks":[],"cta_style":"none"},"content_preferences":{"expertise_areas":["product"],"storytelling_style":"","typical_post_length":600}}`
)

// fakeCompleter answers by model name.
type fakeCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		responses: map[string]string{
			"fast":     proceedJSON,
			"draft":    draftText,
			"review":   passReviewJSON,
			"analysis": analysisJSON,
		},
		errs: map[string]error{},
	}
}

func (f *fakeCompleter) Create(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[req.Model]; err != nil {
		return nil, err
	}
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: f.responses[req.Model]}}}, nil
}

type testEnv struct {
	store   *storage.Store
	deps    Deps
	handler http.Handler
}

func newTestEnv(t *testing.T, c llm.Completer) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	loader, err := prompts.NewLoader()
	if err != nil {
		t.Fatalf("loading prompts: %v", err)
	}
	builder := prompts.NewBuilder(loader)
	profiles := voice.NewStore(store)
	analyzer := voice.NewAnalyzer(profiles, c, builder, "analysis", time.Second)

	deps := Deps{
		Store: store,
		Pipeline: generation.NewPipeline(generation.Deps{
			LLM:          c,
			Prompts:      builder,
			Profiles:     profiles,
			Analyzer:     analyzer,
			Models:       generation.Models{Fast: "fast", Draft: "draft", Review: "review", Analysis: "analysis"},
			StageTimeout: time.Second,
		}),
		Profiles:       profiles,
		Analyzer:       analyzer,
		Sources:        sources.NewGatherer(store),
		Token:          testToken,
		RequestTimeout: 5 * time.Second,
	}
	return &testEnv{store: store, deps: deps, handler: NewHandler(deps)}
}

// do sends an authenticated request as user. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Type
}

func linkUsers(t *testing.T, store *storage.Store, ghostwriter, approver string) {
	t.Helper()
	err := store.CreateRelationship(context.Background(), storage.Relationship{
		ID:            ghostwriter + "-" + approver,
		GhostwriterID: ghostwriter,
		ApproverID:    approver,
		Status:        storage.RelationshipActive,
	})
	if err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}
}
