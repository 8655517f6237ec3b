package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/prompts"
	"github.com/kalambet/cocreate/internal/voice"
)

const (
	draftMaxTokens  = 2000
	refineMaxTokens = 2000
	maxPostExamples = 5
)

// DraftRequest carries everything the drafting stage needs.
type DraftRequest struct {
	UserRequest     string
	Voice           *voice.VoiceProfile
	ContextGuide    string
	PostExamples    []string
	CurrentDraft    string
	Action          Action
	TargetLength    int
	WritingGuidance string
}

type DraftResult struct {
	Content     string     `json:"content"`
	Confidence  Confidence `json:"confidence"`
	MissingInfo []string   `json:"missing_info"`
}

type RefineResult struct {
	Content    string     `json:"content"`
	Confidence Confidence `json:"confidence"`
}

// DraftGenerator produces post text. Unlike the other stages it has no
// fallback: without a model there is nothing to return.
type DraftGenerator struct {
	client  llm.Completer
	prompts *prompts.Builder
	model   string
	timeout time.Duration
}

func NewDraftGenerator(client llm.Completer, builder *prompts.Builder, model string, timeout time.Duration) *DraftGenerator {
	return &DraftGenerator{client: client, prompts: builder, model: model, timeout: timeout}
}

// Generate drafts (or, for ActionRefine, reworks) a post.
func (g *DraftGenerator) Generate(ctx context.Context, req DraftRequest) (DraftResult, error) {
	if g.client == nil || g.prompts == nil {
		return DraftResult{}, fmt.Errorf("drafting post: %w", llm.ErrUnavailable)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	examples := req.PostExamples
	if len(examples) > maxPostExamples {
		examples = examples[:maxPostExamples]
	}
	targetLength := req.TargetLength
	if targetLength <= 0 {
		targetLength = voice.DefaultProfile().ContentPreferences.TypicalPostLength
	}
	action := req.Action
	if action == "" {
		action = ActionCreate
	}

	system := g.prompts.BuildSystemPrompt(profileOrDefault(req.Voice))
	prompt := g.prompts.BuildStagePrompt(prompts.StageContentDraft, map[string]any{
		"userRequest":     req.UserRequest,
		"action":          string(action),
		"isRefine":        action == ActionRefine,
		"currentDraft":    req.CurrentDraft,
		"contextGuide":    req.ContextGuide,
		"postExamples":    examples,
		"targetLength":    targetLength,
		"writingGuidance": req.WritingGuidance,
		"voice":           voice.Simplify(req.Voice),
	})

	raw, err := llm.Complete(ctx, g.client, g.model, system, prompt, draftMaxTokens)
	if err != nil {
		return DraftResult{}, fmt.Errorf("drafting post: %w", err)
	}
	result := ParseDraftResponse(raw)
	if strings.TrimSpace(result.Content) == "" {
		return DraftResult{}, errors.New("drafting post: model returned no post content")
	}
	return result, nil
}

// Refine applies chat-style feedback to existing content without running
// the rest of the pipeline.
func (g *DraftGenerator) Refine(ctx context.Context, content, feedback string, profile *voice.VoiceProfile) (RefineResult, error) {
	if g.client == nil || g.prompts == nil {
		return RefineResult{}, fmt.Errorf("refining post: %w", llm.ErrUnavailable)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	system := g.prompts.BuildSystemPrompt(profileOrDefault(profile))
	prompt := g.prompts.BuildStagePrompt(prompts.StageRefineContent, map[string]any{
		"currentDraft": content,
		"feedback":     feedback,
	})
	raw, err := llm.Complete(ctx, g.client, g.model, system, prompt, refineMaxTokens)
	if err != nil {
		return RefineResult{}, fmt.Errorf("refining post: %w", err)
	}
	// Models occasionally answer in the drafting format anyway.
	text := ParseDraftResponse(raw).Content
	if text == "" {
		return RefineResult{}, errors.New("refining post: model returned no content")
	}
	slog.Debug("refined post", "chars", len(text))
	return RefineResult{Content: text, Confidence: ConfidenceHigh}, nil
}

func profileOrDefault(p *voice.VoiceProfile) voice.VoiceProfile {
	if p == nil {
		return voice.DefaultProfile()
	}
	return *p
}

// Draft response grammar. Every block is optional and may appear in any
// order; tags are case-insensitive.
//
//	[POST_CONTENT] text [/POST_CONTENT]
//	[CONFIDENCE] high|medium|low ... [/CONFIDENCE]
//	[MISSING_INFO] one item per line, "-" or "*" bullets allowed, or "none" [/MISSING_INFO]
//
// Inline [NEEDS: detail] placeholders inside the content are also collected
// as missing information. Without a POST_CONTENT block the whole response,
// minus any other blocks, is the content.
var (
	contentBlockRe    = regexp.MustCompile(`(?is)\[POST_CONTENT\](.*?)(?:\[/POST_CONTENT\]|$)`)
	confidenceBlockRe = regexp.MustCompile(`(?is)\[CONFIDENCE\](.*?)(?:\[/CONFIDENCE\]|$)`)
	missingBlockRe    = regexp.MustCompile(`(?is)\[MISSING_INFO\](.*?)(?:\[/MISSING_INFO\]|$)`)
	needsRe           = regexp.MustCompile(`(?i)\[NEEDS:\s*([^\]]+)\]`)
	confidenceWordRe  = regexp.MustCompile(`(?i)\b(high|medium|low)\b`)
	bulletPrefix      = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
)

// ParseDraftResponse extracts the structured parts of a drafting response.
func ParseDraftResponse(text string) DraftResult {
	result := DraftResult{Confidence: ConfidenceMedium}

	content := text
	if m := contentBlockRe.FindStringSubmatch(text); m != nil {
		content = m[1]
	}
	content = confidenceBlockRe.ReplaceAllString(content, "")
	content = missingBlockRe.ReplaceAllString(content, "")
	result.Content = strings.TrimSpace(content)

	if m := confidenceBlockRe.FindStringSubmatch(text); m != nil {
		if w := confidenceWordRe.FindString(m[1]); w != "" {
			result.Confidence = Confidence(strings.ToLower(w))
		}
	}

	seen := map[string]bool{}
	add := func(item string) {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || key == "none" || seen[key] {
			return
		}
		seen[key] = true
		result.MissingInfo = append(result.MissingInfo, item)
	}
	if m := missingBlockRe.FindStringSubmatch(text); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			add(strings.TrimRight(bulletPrefix.ReplaceAllString(line, ""), "."))
		}
	}
	for _, m := range needsRe.FindAllStringSubmatch(result.Content, -1) {
		add(m[1])
	}
	return result
}
