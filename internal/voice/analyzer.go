package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/llmjson"
	"github.com/kalambet/cocreate/internal/prompts"
)

const (
	maxPostSamples     = 15
	maxDocSamples      = 5
	maxDocExcerptRunes = 2000
	analysisMaxTokens  = 2000
)

// Analyzer derives voice profiles from sources with one model call,
// falling back to text statistics when the model fails.
type Analyzer struct {
	store   *Store
	client  llm.Completer
	prompts *prompts.Builder
	model   string
	timeout time.Duration
}

// NewAnalyzer creates an Analyzer. client may be nil, in which case every
// analysis uses the heuristic fallback.
func NewAnalyzer(store *Store, client llm.Completer, builder *prompts.Builder, model string, timeout time.Duration) *Analyzer {
	return &Analyzer{store: store, client: client, prompts: builder, model: model, timeout: timeout}
}

// AnalyzeAndUpdate returns an up-to-date profile for userID. Unless force is
// set, a stored profile that is not stale relative to src is returned as is.
// Analysis failures never surface: they degrade to heuristics. The only error
// is a storage failure, in which case the freshly computed profile is still
// returned alongside it.
func (a *Analyzer) AnalyzeAndUpdate(ctx context.Context, userID string, src Sources, force bool) (*VoiceProfile, error) {
	current, err := a.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts := src.Counts()
	if !force && current != nil && !a.store.ShouldUpdateProfile(current, counts) {
		slog.Debug("voice profile up to date", "user_id", userID, "version", current.Version)
		return current, nil
	}

	next := DefaultProfile()
	if current != nil {
		next.CreatedAt = current.CreatedAt
		next.PerformanceInsights = current.PerformanceInsights
	}

	if src.Empty() {
		return a.save(ctx, userID, next)
	}

	analysis, method := a.analyze(ctx, src)
	analysis.apply(&next)
	next.AnalysisSources = AnalysisSources{
		PastPostsCount:     counts.PastPosts,
		TrainingDocsCount:  counts.TrainingDocs,
		ContextGuideWords:  counts.ContextGuideWords,
		LastPostAnalyzedAt: src.latestPost(),
		AnalysisMethod:     method,
	}
	return a.save(ctx, userID, next)
}

func (a *Analyzer) save(ctx context.Context, userID string, p VoiceProfile) (*VoiceProfile, error) {
	stored, err := a.store.Upsert(ctx, userID, p)
	if err != nil {
		p.UserID = userID
		return &p, err
	}
	return stored, nil
}

func (a *Analyzer) analyze(ctx context.Context, src Sources) (Analysis, AnalysisMethod) {
	analysis, err := a.analyzeLLM(ctx, src)
	if err != nil {
		slog.Warn("voice analysis via model failed, using pattern fallback", "error", err)
		return analyzeHeuristic(src), MethodPatternFallback
	}
	return analysis, MethodLLM
}

func (a *Analyzer) analyzeLLM(ctx context.Context, src Sources) (Analysis, error) {
	if a.client == nil || a.prompts == nil {
		return Analysis{}, llm.ErrUnavailable
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	prompt := a.prompts.BuildStagePrompt(prompts.StageVoiceAnalysis, analysisPromptData(src))
	raw, err := llm.Complete(ctx, a.client, a.model, "", prompt, analysisMaxTokens)
	if err != nil {
		return Analysis{}, fmt.Errorf("calling analysis model: %w", err)
	}
	var out Analysis
	if err := llmjson.Decode(raw, &out); err != nil {
		return Analysis{}, err
	}
	out.normalize()
	return out, nil
}

type docExcerpt struct {
	Name    string `json:"name"`
	Excerpt string `json:"excerpt"`
}

func analysisPromptData(src Sources) map[string]any {
	posts := make([]string, 0, min(len(src.PastPosts), maxPostSamples))
	for _, p := range src.PastPosts {
		if len(posts) == maxPostSamples {
			break
		}
		if p.Content != "" {
			posts = append(posts, p.Content)
		}
	}
	docs := make([]docExcerpt, 0, min(len(src.TrainingDocs), maxDocSamples))
	for _, d := range src.TrainingDocs {
		if len(docs) == maxDocSamples {
			break
		}
		docs = append(docs, docExcerpt{Name: d.FileName, Excerpt: truncateRunes(d.ExtractedText, maxDocExcerptRunes)})
	}
	return map[string]any{
		"pastPosts":    posts,
		"trainingDocs": docs,
		"contextGuide": src.ContextGuide,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
