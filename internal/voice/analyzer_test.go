package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/prompts"
)

type mockCompleter struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (m *mockCompleter) Create(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.calls++
	if len(req.Messages) > 0 {
		m.prompts = append(m.prompts, req.Messages[0].Content)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: m.response}}}, nil
}

const analysisJSON = "```json\n" + `{
  "writing_style": {"formality": 0.3, "directness": 0.8, "sentence_length_avg": 11, "sentence_length_variance": "high", "paragraph_style": "short"},
  "tone": {"primary": "candid", "secondary": "warm", "emotional_range": ["curious"]},
  "vocabulary": {"level": "casual", "industry_terms": ["SaaS", "saas"], "signature_phrases": ["Here's the thing"], "words_to_avoid": ["synergy"]},
  "formatting": {"uses_emojis": false, "uses_hashtags": true, "uses_line_breaks": true, "preferred_hooks": ["story"], "cta_style": "direct"},
  "content_preferences": {"expertise_areas": ["pricing"], "storytelling_style": "first person", "typical_post_length": 650}
}` + "\n```"

func newTestAnalyzer(t *testing.T, c llm.Completer) (*Analyzer, *mockRepo, *mockClock) {
	t.Helper()
	loader, err := prompts.NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	repo := newMockRepo()
	clock := &mockClock{now: baseTime}
	store := NewStoreWithClock(repo, clock)
	return NewAnalyzer(store, c, prompts.NewBuilder(loader), "analysis", time.Second), repo, clock
}

func samplePosts(n int) []Post {
	posts := make([]Post, n)
	for i := range posts {
		posts[i] = Post{Content: "Shipping is a habit. Do it weekly."}
	}
	return posts
}

func TestAnalyzeAndUpdate_LLM(t *testing.T) {
	mock := &mockCompleter{response: analysisJSON}
	a, _, _ := newTestAnalyzer(t, mock)

	src := Sources{PastPosts: samplePosts(3), ContextGuide: "I run a pricing consultancy"}
	p, err := a.AnalyzeAndUpdate(context.Background(), "u1", src, false)
	if err != nil {
		t.Fatalf("AnalyzeAndUpdate: %v", err)
	}
	if p.Tone.Primary != "candid" || p.Formatting.CTAStyle != CTADirect {
		t.Errorf("analysis not applied: %+v", p)
	}
	if len(p.Vocabulary.IndustryTerms) != 1 {
		t.Errorf("IndustryTerms = %v, want deduplicated", p.Vocabulary.IndustryTerms)
	}
	if p.AnalysisSources.AnalysisMethod != MethodLLM {
		t.Errorf("method = %q", p.AnalysisSources.AnalysisMethod)
	}
	if p.AnalysisSources.PastPostsCount != 3 || p.AnalysisSources.ContextGuideWords != 5 {
		t.Errorf("sources = %+v", p.AnalysisSources)
	}
	if !strings.Contains(mock.prompts[0], "I run a pricing consultancy") {
		t.Error("context guide missing from analysis prompt")
	}
}

func TestAnalyzeAndUpdate_SecondCallIsCached(t *testing.T) {
	mock := &mockCompleter{response: analysisJSON}
	a, _, _ := newTestAnalyzer(t, mock)
	src := Sources{PastPosts: samplePosts(4)}
	ctx := context.Background()

	first, err := a.AnalyzeAndUpdate(ctx, "u1", src, false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AnalyzeAndUpdate(ctx, "u1", src, false)
	if err != nil {
		t.Fatal(err)
	}
	if mock.calls != 1 {
		t.Errorf("model calls = %d, want 1", mock.calls)
	}
	if second.Version != first.Version {
		t.Errorf("version changed: %d -> %d", first.Version, second.Version)
	}
}

func TestAnalyzeAndUpdate_ForceBypassesCache(t *testing.T) {
	mock := &mockCompleter{response: analysisJSON}
	a, _, _ := newTestAnalyzer(t, mock)
	src := Sources{PastPosts: samplePosts(4)}
	ctx := context.Background()

	if _, err := a.AnalyzeAndUpdate(ctx, "u1", src, false); err != nil {
		t.Fatal(err)
	}
	p, err := a.AnalyzeAndUpdate(ctx, "u1", src, true)
	if err != nil {
		t.Fatal(err)
	}
	if mock.calls != 2 || p.Version != 2 {
		t.Errorf("calls = %d, version = %d; want 2, 2", mock.calls, p.Version)
	}
}

func TestAnalyzeAndUpdate_NoSourcesPersistsDefault(t *testing.T) {
	mock := &mockCompleter{response: analysisJSON}
	a, repo, _ := newTestAnalyzer(t, mock)

	p, err := a.AnalyzeAndUpdate(context.Background(), "u1", Sources{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if mock.calls != 0 {
		t.Errorf("model called %d times for empty sources", mock.calls)
	}
	if p.AnalysisSources.AnalysisMethod != MethodDefault || p.ContentPreferences.TypicalPostLength != 800 {
		t.Errorf("profile = %+v", p)
	}
	if repo.upserts != 1 {
		t.Errorf("upserts = %d, want 1", repo.upserts)
	}
}

func TestAnalyzeAndUpdate_ModelErrorFallsBack(t *testing.T) {
	mock := &mockCompleter{err: &llm.APIError{Status: 529, Type: "overloaded_error"}}
	a, _, _ := newTestAnalyzer(t, mock)

	p, err := a.AnalyzeAndUpdate(context.Background(), "u1", Sources{PastPosts: samplePosts(2)}, false)
	if err != nil {
		t.Fatalf("AnalyzeAndUpdate: %v", err)
	}
	if p.AnalysisSources.AnalysisMethod != MethodPatternFallback {
		t.Errorf("method = %q, want pattern_fallback", p.AnalysisSources.AnalysisMethod)
	}
}

func TestAnalyzeAndUpdate_MalformedJSONFallsBack(t *testing.T) {
	mock := &mockCompleter{response: "I'd describe this voice as friendly."}
	a, _, _ := newTestAnalyzer(t, mock)

	p, err := a.AnalyzeAndUpdate(context.Background(), "u1", Sources{PastPosts: samplePosts(2)}, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.AnalysisSources.AnalysisMethod != MethodPatternFallback {
		t.Errorf("method = %q, want pattern_fallback", p.AnalysisSources.AnalysisMethod)
	}
}

func TestAnalyzeAndUpdate_NilClientFallsBack(t *testing.T) {
	a, _, _ := newTestAnalyzer(t, nil)

	p, err := a.AnalyzeAndUpdate(context.Background(), "u1", Sources{ContextGuide: "I write about hiring"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.AnalysisSources.AnalysisMethod != MethodPatternFallback {
		t.Errorf("method = %q", p.AnalysisSources.AnalysisMethod)
	}
}

func TestAnalyzeAndUpdate_SaveFailureReturnsProfile(t *testing.T) {
	mock := &mockCompleter{response: analysisJSON}
	a, repo, _ := newTestAnalyzer(t, mock)
	repo.failSave = errors.New("disk full")

	p, err := a.AnalyzeAndUpdate(context.Background(), "u1", Sources{PastPosts: samplePosts(1)}, false)
	if err == nil {
		t.Fatal("expected storage error")
	}
	if p == nil || p.Tone.Primary != "candid" {
		t.Errorf("profile = %+v, want computed profile", p)
	}
}

func TestAnalyzeAndUpdate_PromptLimits(t *testing.T) {
	mock := &mockCompleter{response: analysisJSON}
	a, _, _ := newTestAnalyzer(t, mock)

	posts := make([]Post, 20)
	for i := range posts {
		posts[i] = Post{Content: "post-marker"}
	}
	docs := make([]TrainingDoc, 7)
	for i := range docs {
		docs[i] = TrainingDoc{FileName: "doc.txt", ExtractedText: strings.Repeat("x", 3000)}
	}
	if _, err := a.AnalyzeAndUpdate(context.Background(), "u1", Sources{PastPosts: posts, TrainingDocs: docs}, false); err != nil {
		t.Fatal(err)
	}
	prompt := mock.prompts[0]
	if got := strings.Count(prompt, "post-marker"); got != maxPostSamples {
		t.Errorf("post samples = %d, want %d", got, maxPostSamples)
	}
	if got := strings.Count(prompt, "### doc.txt"); got != maxDocSamples {
		t.Errorf("doc samples = %d, want %d", got, maxDocSamples)
	}
	if strings.Contains(prompt, strings.Repeat("x", maxDocExcerptRunes+1)) {
		t.Error("document excerpt not truncated")
	}
}
