package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/llmjson"
	"github.com/kalambet/cocreate/internal/prompts"
)

const (
	sufficiencyMaxTokens  = 800
	guideExcerptRunes     = 1500
	questionsIntroduction = "To write this post authentically, I need a bit more from you:"
)

type Recommendation string

const (
	RecommendProceed      Recommendation = "proceed"
	RecommendAskQuestions Recommendation = "ask_questions"
)

type Question struct {
	Question string `json:"question"`
	Reason   string `json:"reason,omitempty"`
}

// SufficiencyResult is the classifier's view of a request.
type SufficiencyResult struct {
	DetectedContentType   string         `json:"detected_content_type"`
	CanWriteAuthentically bool           `json:"can_write_authentically"`
	Confidence            Confidence     `json:"confidence"`
	Recommendation        Recommendation `json:"recommendation"`
	QuestionsToAsk        []Question     `json:"questions_to_ask"`
	WritingGuidance       string         `json:"writing_guidance"`

	// Fallback is set when the result is the static default rather than a
	// model judgement.
	Fallback bool `json:"-"`
}

func (r *SufficiencyResult) Validate() error {
	r.Recommendation = Recommendation(foldEnum(string(r.Recommendation)))
	r.Confidence = Confidence(foldEnum(string(r.Confidence)))
	if r.DetectedContentType != "" {
		r.DetectedContentType = foldEnum(r.DetectedContentType)
	}
	switch r.Recommendation {
	case RecommendProceed, RecommendAskQuestions:
	default:
		return fmt.Errorf("unknown recommendation %q", r.Recommendation)
	}
	if !r.Confidence.valid() {
		return fmt.Errorf("unknown confidence %q", r.Confidence)
	}
	return nil
}

// SufficiencyContext is what the checker knows beyond the request itself.
type SufficiencyContext struct {
	ContextGuide      string
	PastPostsCount    int
	AdditionalContext string
}

// FallbackSufficiency is returned whenever the check cannot run. It lets
// the pipeline proceed at low confidence.
func FallbackSufficiency() SufficiencyResult {
	return SufficiencyResult{
		DetectedContentType:   ContentGeneral,
		CanWriteAuthentically: true,
		Confidence:            ConfidenceLow,
		Recommendation:        RecommendProceed,
		Fallback:              true,
	}
}

// SufficiencyChecker classifies a request and judges whether it carries
// enough concrete detail to write without inventing any. It runs on every
// request, so it should be given a fast model.
type SufficiencyChecker struct {
	client   llm.Completer
	prompts  *prompts.Builder
	model    string
	timeout  time.Duration
	cautious []string
}

// NewSufficiencyChecker creates a checker. cautiousTypes lists content types
// that ask questions unless the model is highly confident.
func NewSufficiencyChecker(client llm.Completer, builder *prompts.Builder, model string, timeout time.Duration, cautiousTypes []string) *SufficiencyChecker {
	return &SufficiencyChecker{
		client:   client,
		prompts:  builder,
		model:    model,
		timeout:  timeout,
		cautious: cautiousTypes,
	}
}

// Check never fails: any model, parse or validation error yields
// FallbackSufficiency.
func (c *SufficiencyChecker) Check(ctx context.Context, userRequest string, sc SufficiencyContext) SufficiencyResult {
	if c.client == nil || c.prompts == nil {
		slog.Warn("sufficiency check skipped", "error", llm.ErrUnavailable)
		return FallbackSufficiency()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	guide := strings.TrimSpace(sc.ContextGuide)
	prompt := c.prompts.BuildStagePrompt(prompts.StageSufficiencyCheck, map[string]any{
		"userRequest":         userRequest,
		"hasContextGuide":     guide != "",
		"contextGuideWords":   len(strings.Fields(guide)),
		"contextGuideExcerpt": excerpt(guide, guideExcerptRunes),
		"pastPostsCount":      sc.PastPostsCount,
		"additionalContext":   sc.AdditionalContext,
	})

	raw, err := llm.Complete(ctx, c.client, c.model, "", prompt, sufficiencyMaxTokens)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("sufficiency check timed out", "timeout", c.timeout)
		} else {
			slog.Warn("sufficiency check failed", "error", err)
		}
		return FallbackSufficiency()
	}

	var result SufficiencyResult
	if err := llmjson.Decode(raw, &result); err != nil {
		slog.Warn("failed to parse sufficiency check", "error", err, "response", raw)
		return FallbackSufficiency()
	}
	if result.DetectedContentType == "" {
		result.DetectedContentType = ContentGeneral
	}
	return result
}

// ShouldAskQuestions decides whether the pipeline should stop and ask the
// user for more detail.
func (c *SufficiencyChecker) ShouldAskQuestions(r SufficiencyResult) bool {
	if r.Recommendation == RecommendAskQuestions {
		return true
	}
	if r.Confidence == ConfidenceLow && len(r.QuestionsToAsk) > 0 {
		return true
	}
	return slices.Contains(c.cautious, r.DetectedContentType) && r.Confidence != ConfidenceHigh
}

// FormatQuestionsForUser renders the questions as a numbered list, or ""
// when there are none.
func FormatQuestionsForUser(r SufficiencyResult) string {
	if len(r.QuestionsToAsk) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(questionsIntroduction)
	sb.WriteString("\n")
	for i, q := range r.QuestionsToAsk {
		sb.WriteString("\n")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(q.Question)
	}
	return sb.String()
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
