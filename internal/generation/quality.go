package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/llmjson"
	"github.com/kalambet/cocreate/internal/prompts"
	"github.com/kalambet/cocreate/internal/voice"
)

const (
	reviewMaxTokens = 2500
	passingScore    = 6.0
	fallbackScore   = 7
)

const (
	SeverityCritical = "critical"
	SeverityModerate = "moderate"
)

type Verdict string

const (
	VerdictPass           Verdict = "PASS"
	VerdictNeedsRevision  Verdict = "NEEDS_REVISION"
	VerdictNeedsUserInput Verdict = "NEEDS_USER_INPUT"
)

// Score is a 0-10 rating. It accepts fractional JSON numbers and clamps.
type Score int

func (s *Score) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var str string
		if serr := json.Unmarshal(b, &str); serr != nil {
			return fmt.Errorf("score: %w", err)
		}
		if _, serr := fmt.Sscanf(str, "%g", &f); serr != nil {
			return fmt.Errorf("score %q: %w", str, serr)
		}
	}
	*s = Score(math.Round(math.Max(0, math.Min(10, f))))
	return nil
}

type Scores struct {
	VoiceMatch           Score `json:"voice_match"`
	Authenticity         Score `json:"authenticity"`
	LinkedInOptimization Score `json:"linkedin_optimization"`
	ClarityValue         Score `json:"clarity_value"`
}

// Weights combine the four review axes into one score.
type Weights struct {
	VoiceMatch           float64
	Authenticity         float64
	LinkedInOptimization float64
	ClarityValue         float64
}

// ScoreWeights is used whenever the reviewer omits weighted_score.
var ScoreWeights = Weights{
	VoiceMatch:           0.3,
	Authenticity:         0.3,
	LinkedInOptimization: 0.2,
	ClarityValue:         0.2,
}

// Apply returns the weighted score rounded to two decimals.
func (w Weights) Apply(s Scores) float64 {
	sum := w.VoiceMatch*float64(s.VoiceMatch) +
		w.Authenticity*float64(s.Authenticity) +
		w.LinkedInOptimization*float64(s.LinkedInOptimization) +
		w.ClarityValue*float64(s.ClarityValue)
	return math.Round(sum*100) / 100
}

type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// FabricationFlag marks text the reviewer believes was invented. Reviewers
// sometimes emit bare strings instead of objects; both decode.
type FabricationFlag struct {
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

func (f *FabricationFlag) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FabricationFlag{Text: s}
		return nil
	}
	type plain FabricationFlag
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = FabricationFlag(p)
	return nil
}

type Refinements struct {
	Hook      string `json:"hook,omitempty"`
	Structure string `json:"structure,omitempty"`
	Ending    string `json:"ending,omitempty"`
}

type QualityResult struct {
	Scores           Scores            `json:"scores"`
	WeightedScore    float64           `json:"weighted_score"`
	Verdict          Verdict           `json:"verdict"`
	Issues           []Issue           `json:"issues"`
	FabricationFlags []FabricationFlag `json:"fabrication_flags"`
	Refinements      Refinements       `json:"refinements"`
	RevisedContent   *string           `json:"revised_content"`

	// Fallback is set when review could not run and this is the default.
	Fallback bool `json:"-"`
}

// reviewPayload is the wire form; WeightedScore is a pointer so an omitted
// score can be told apart from a zero.
type reviewPayload struct {
	Scores           Scores            `json:"scores"`
	WeightedScore    *float64          `json:"weighted_score"`
	Verdict          Verdict           `json:"verdict"`
	Issues           []Issue           `json:"issues"`
	FabricationFlags []FabricationFlag `json:"fabrication_flags"`
	Refinements      Refinements       `json:"refinements"`
	RevisedContent   *string           `json:"revised_content"`
}

func (p *reviewPayload) Validate() error {
	p.Verdict = Verdict(strings.ToUpper(foldEnum(string(p.Verdict))))
	for i := range p.Issues {
		p.Issues[i].Severity = strings.ToLower(strings.TrimSpace(p.Issues[i].Severity))
	}
	switch p.Verdict {
	case "", VerdictPass, VerdictNeedsRevision, VerdictNeedsUserInput:
		return nil
	}
	return fmt.Errorf("unknown verdict %q", p.Verdict)
}

func (p reviewPayload) result() QualityResult {
	r := QualityResult{
		Scores:           p.Scores,
		Verdict:          p.Verdict,
		Issues:           p.Issues,
		FabricationFlags: p.FabricationFlags,
		Refinements:      p.Refinements,
		RevisedContent:   p.RevisedContent,
	}
	if p.WeightedScore != nil {
		r.WeightedScore = *p.WeightedScore
	} else {
		r.WeightedScore = ScoreWeights.Apply(p.Scores)
	}
	if r.RevisedContent != nil && strings.TrimSpace(*r.RevisedContent) == "" {
		r.RevisedContent = nil
	}
	if r.Verdict == "" {
		switch {
		case len(r.FabricationFlags) > 0:
			r.Verdict = VerdictNeedsUserInput
		case PassesQualityGate(r):
			r.Verdict = VerdictPass
		default:
			r.Verdict = VerdictNeedsRevision
		}
	}
	return r
}

// FallbackQuality is returned whenever review cannot run.
func FallbackQuality() QualityResult {
	return QualityResult{
		Scores: Scores{
			VoiceMatch:           fallbackScore,
			Authenticity:         fallbackScore,
			LinkedInOptimization: fallbackScore,
			ClarityValue:         fallbackScore,
		},
		WeightedScore: fallbackScore,
		Verdict:       VerdictPass,
		Fallback:      true,
	}
}

// QualityGate has a second model score and critique a draft.
type QualityGate struct {
	client  llm.Completer
	prompts *prompts.Builder
	model   string
	timeout time.Duration
}

func NewQualityGate(client llm.Completer, builder *prompts.Builder, model string, timeout time.Duration) *QualityGate {
	return &QualityGate{client: client, prompts: builder, model: model, timeout: timeout}
}

// Review never fails: if the reviewer is unavailable or unintelligible the
// draft passes at FallbackQuality.
func (q *QualityGate) Review(ctx context.Context, draft, userRequest string, profile *voice.VoiceProfile) QualityResult {
	if q.client == nil || q.prompts == nil {
		slog.Warn("quality review skipped", "error", llm.ErrUnavailable)
		return FallbackQuality()
	}
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	prompt := q.prompts.BuildStagePrompt(prompts.StageQualityReview, map[string]any{
		"draftContent": draft,
		"userRequest":  userRequest,
		"voice":        voice.Simplify(profile),
	})
	raw, err := llm.Complete(ctx, q.client, q.model, "", prompt, reviewMaxTokens)
	if err != nil {
		slog.Warn("quality review failed", "error", err)
		return FallbackQuality()
	}

	var payload reviewPayload
	if err := llmjson.Decode(raw, &payload); err != nil {
		slog.Warn("failed to parse quality review", "error", err, "response", raw)
		return FallbackQuality()
	}
	return payload.result()
}

// PassesQualityGate is the hard publishing threshold.
func PassesQualityGate(r QualityResult) bool {
	if len(r.FabricationFlags) > 0 || r.WeightedScore < passingScore {
		return false
	}
	for _, issue := range r.Issues {
		if strings.EqualFold(issue.Severity, SeverityCritical) {
			return false
		}
	}
	return true
}

// BestContent picks the reviewer's revision only for NEEDS_REVISION.
func BestContent(original string, r QualityResult) string {
	if r.Verdict == VerdictNeedsRevision && r.RevisedContent != nil && strings.TrimSpace(*r.RevisedContent) != "" {
		return *r.RevisedContent
	}
	return original
}
