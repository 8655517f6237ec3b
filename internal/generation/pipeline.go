package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/prompts"
	"github.com/kalambet/cocreate/internal/voice"
)

const (
	defaultQuestion  = "What specific details, examples or outcomes should this post include?"
	fabricationAsk   = "The draft contains details that may not be accurate. Please confirm or supply the real specifics before publishing:"
	genericReviewAsk = "The reviewer could not confirm this draft without more input from you. Please review the issues below and add the missing details."
)

// Models names the model used by each stage.
type Models struct {
	Fast     string
	Draft    string
	Review   string
	Analysis string
}

// Deps wires a Pipeline. LLM may be nil: every stage then falls back and
// drafting fails.
type Deps struct {
	LLM                  llm.Completer
	Prompts              *prompts.Builder
	Profiles             *voice.Store
	Analyzer             *voice.Analyzer
	Models               Models
	StageTimeout         time.Duration
	SufficiencyTimeout   time.Duration
	CautiousContentTypes []string
	Observer             Observer
}

type Options struct {
	SkipSufficiencyCheck    bool `json:"skip_sufficiency_check"`
	SkipQualityReview       bool `json:"skip_quality_review"`
	ProceedWithoutQuestions bool `json:"proceed_without_questions"`
	ForceVoiceUpdate        bool `json:"force_voice_update"`
}

// GenerateParams is the input to Pipeline.Generate.
type GenerateParams struct {
	UserRequest  string        `json:"user_request"`
	UserID       string        `json:"user_id"`
	TargetUserID string        `json:"target_user_id,omitempty"`
	Sources      voice.Sources `json:"sources"`
	CurrentDraft string        `json:"current_draft,omitempty"`
	Action       Action        `json:"action,omitempty"`
	Options      Options       `json:"options"`
}

type Metadata struct {
	Action         Action `json:"action"`
	TargetUserID   string `json:"target_user_id"`
	ProfileVersion int    `json:"profile_version"`
	ContentType    string `json:"content_type,omitempty"`
}

// Result is the outcome of a pipeline run. Success with NeedsMoreInfo is a
// normal outcome that asks the user for input; Success false means the run
// failed and Failure says why.
type Result struct {
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
	Failure       Failure `json:"failure,omitempty"`
	NeedsMoreInfo bool    `json:"needs_more_info,omitempty"`

	Questions    string     `json:"questions,omitempty"`
	QuestionList []Question `json:"question_list,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
	DraftContent string     `json:"draft_content,omitempty"`

	Content          string            `json:"content,omitempty"`
	Confidence       Confidence        `json:"confidence,omitempty"`
	MissingInfo      []string          `json:"missing_info,omitempty"`
	QualityScore     *float64          `json:"quality_score,omitempty"`
	QualityVerdict   Verdict           `json:"quality_verdict,omitempty"`
	QualityIssues    []Issue           `json:"quality_issues,omitempty"`
	FabricationFlags []FabricationFlag `json:"fabrication_flags,omitempty"`

	VoiceProfile *voice.SimplifiedVoice `json:"voice_profile,omitempty"`
	Steps        []Step                 `json:"steps"`
	DurationMS   int64                  `json:"duration_ms"`
	Metadata     *Metadata              `json:"metadata,omitempty"`
}

// Pipeline sequences voice profile, sufficiency, drafting, authenticity and
// quality stages into one request.
type Pipeline struct {
	profiles *voice.Store
	analyzer *voice.Analyzer
	checker  *SufficiencyChecker
	drafter  *DraftGenerator
	gate     *QualityGate
	observer Observer
}

func NewPipeline(d Deps) *Pipeline {
	sufficiencyTimeout := d.SufficiencyTimeout
	if sufficiencyTimeout == 0 {
		sufficiencyTimeout = d.StageTimeout
	}
	return &Pipeline{
		profiles: d.Profiles,
		analyzer: d.Analyzer,
		checker:  NewSufficiencyChecker(d.LLM, d.Prompts, d.Models.Fast, sufficiencyTimeout, d.CautiousContentTypes),
		drafter:  NewDraftGenerator(d.LLM, d.Prompts, d.Models.Draft, d.StageTimeout),
		gate:     NewQualityGate(d.LLM, d.Prompts, d.Models.Review, d.StageTimeout),
		observer: d.Observer,
	}
}

// run accumulates the step trail of one Generate call.
type run struct {
	p     *Pipeline
	start time.Time
	res   *Result
}

func (r *run) step(stage, status string, began time.Time, detail map[string]any) {
	s := Step{
		Stage:      stage,
		Status:     status,
		Timestamp:  time.Now().UTC(),
		DurationMS: time.Since(began).Milliseconds(),
		Detail:     detail,
	}
	r.res.Steps = append(r.res.Steps, s)
	if r.p.observer != nil {
		r.p.observer.ObserveStep(s)
	}
}

func (r *run) finish(outcome string) *Result {
	d := time.Since(r.start)
	r.res.DurationMS = d.Milliseconds()
	if r.p.observer != nil {
		r.p.observer.ObserveRun(outcome, d)
	}
	return r.res
}

func (r *run) fail(kind Failure, msg string) *Result {
	r.res.Success = false
	r.res.Failure = kind
	r.res.Error = msg
	return r.finish(OutcomeFailed)
}

// Generate runs the full pipeline. It always returns a Result; failures are
// reported in it rather than as an error.
func (p *Pipeline) Generate(ctx context.Context, params GenerateParams) *Result {
	r := &run{p: p, start: time.Now(), res: &Result{Steps: []Step{}}}

	if strings.TrimSpace(params.UserRequest) == "" {
		return r.fail(FailureInvalidRequest, "user request is required")
	}
	if params.UserID == "" {
		return r.fail(FailureInvalidRequest, "user id is required")
	}
	target := params.TargetUserID
	if target == "" {
		target = params.UserID
	}
	action := params.Action
	switch action {
	case "":
		action = ActionCreate
	case ActionCreate, ActionRefine:
	default:
		return r.fail(FailureInvalidRequest, fmt.Sprintf("unknown action %q", action))
	}
	src := params.Sources
	opts := params.Options

	// Voice profile.
	began := time.Now()
	profile, status, err := p.resolveProfile(ctx, params.UserID, target, src, opts.ForceVoiceUpdate)
	if err != nil {
		r.step(StageVoiceProfile, StatusFailed, began, map[string]any{"target_user_id": target, "error": err.Error()})
		if errors.Is(err, voice.ErrAccessDenied) {
			return r.fail(FailureAccessDenied, "Access denied: no active ghostwriter relationship with the target user")
		}
		return r.fail(FailureInternal, err.Error())
	}
	counts := src.Counts()
	r.step(StageVoiceProfile, status, began, map[string]any{
		"target_user_id":      target,
		"version":             profile.Version,
		"analysis_method":     string(profile.AnalysisSources.AnalysisMethod),
		"past_posts":          counts.PastPosts,
		"training_docs":       counts.TrainingDocs,
		"context_guide_words": counts.ContextGuideWords,
	})
	simplified := voice.Simplify(profile)
	r.res.VoiceProfile = &simplified
	r.res.Metadata = &Metadata{Action: action, TargetUserID: target, ProfileVersion: profile.Version}

	// Sufficiency check.
	var sufficiency SufficiencyResult
	began = time.Now()
	if opts.SkipSufficiencyCheck {
		r.step(StageSufficiencyCheck, StatusSkipped, began, nil)
	} else {
		sufficiency = p.checker.Check(ctx, params.UserRequest, SufficiencyContext{
			ContextGuide:      src.ContextGuide,
			PastPostsCount:    counts.PastPosts,
			AdditionalContext: params.CurrentDraft,
		})
		r.res.Metadata.ContentType = sufficiency.DetectedContentType
		detail := map[string]any{
			"content_type":   sufficiency.DetectedContentType,
			"confidence":     string(sufficiency.Confidence),
			"recommendation": string(sufficiency.Recommendation),
		}
		if p.checker.ShouldAskQuestions(sufficiency) && !opts.ProceedWithoutQuestions {
			if len(sufficiency.QuestionsToAsk) == 0 {
				sufficiency.QuestionsToAsk = []Question{{Question: defaultQuestion}}
			}
			r.step(StageSufficiencyCheck, StatusNeedsMoreInfo, began, detail)
			r.res.Success = true
			r.res.NeedsMoreInfo = true
			r.res.Questions = FormatQuestionsForUser(sufficiency)
			r.res.QuestionList = sufficiency.QuestionsToAsk
			r.res.ContentType = sufficiency.DetectedContentType
			return r.finish(OutcomeNeedsMoreInfo)
		}
		status := StatusCompleted
		if sufficiency.Fallback {
			status = StatusFallback
		}
		r.step(StageSufficiencyCheck, status, began, detail)
	}

	// Drafting.
	began = time.Now()
	draft, err := p.drafter.Generate(ctx, DraftRequest{
		UserRequest:     params.UserRequest,
		Voice:           profile,
		ContextGuide:    src.ContextGuide,
		PostExamples:    postExamples(src.PastPosts),
		CurrentDraft:    params.CurrentDraft,
		Action:          action,
		TargetLength:    profile.ContentPreferences.TypicalPostLength,
		WritingGuidance: sufficiency.WritingGuidance,
	})
	if err != nil {
		slog.Error("content generation failed", "error", err, "user_id", params.UserID)
		r.step(StageContentGeneration, StatusFailed, began, map[string]any{"error": err.Error()})
		return r.fail(FailureDrafting, "Content generation failed: "+err.Error())
	}
	r.step(StageContentGeneration, StatusCompleted, began, map[string]any{
		"confidence":   string(draft.Confidence),
		"missing_info": len(draft.MissingInfo),
		"chars":        len([]rune(draft.Content)),
	})

	// Quick authenticity screen: advisory only.
	began = time.Now()
	auth := QuickAuthenticityCheck(draft.Content, params.UserRequest)
	authStatus := StatusCompleted
	var authDetail map[string]any
	if !auth.Passed {
		authStatus = StatusFlagged
		authDetail = map[string]any{"flags": auth.Flags}
	}
	r.step(StageQuickAuthCheck, authStatus, began, authDetail)

	content := draft.Content

	// Quality review.
	began = time.Now()
	if opts.SkipQualityReview {
		r.step(StageQualityReview, StatusSkipped, began, nil)
	} else {
		review := p.gate.Review(ctx, draft.Content, params.UserRequest, profile)
		score := review.WeightedScore
		r.res.QualityScore = &score
		r.res.QualityVerdict = review.Verdict
		r.res.QualityIssues = review.Issues
		r.res.FabricationFlags = review.FabricationFlags
		detail := map[string]any{
			"verdict":           string(review.Verdict),
			"weighted_score":    review.WeightedScore,
			"fabrication_flags": len(review.FabricationFlags),
			"passes_gate":       PassesQualityGate(review),
		}

		if review.Verdict == VerdictNeedsUserInput {
			r.step(StageQualityReview, StatusNeedsMoreInfo, began, detail)
			r.res.Success = true
			r.res.NeedsMoreInfo = true
			r.res.Questions = reviewQuestions(review)
			r.res.ContentType = r.res.Metadata.ContentType
			r.res.DraftContent = draft.Content
			r.res.MissingInfo = draft.MissingInfo
			return r.finish(OutcomeNeedsMoreInfo)
		}

		status := StatusCompleted
		if review.Fallback {
			status = StatusFallback
		}
		r.step(StageQualityReview, status, began, detail)
		content = BestContent(draft.Content, review)
	}

	r.res.Success = true
	r.res.Content = content
	r.res.Confidence = draft.Confidence
	r.res.MissingInfo = draft.MissingInfo
	return r.finish(OutcomeCompleted)
}

// resolveProfile loads, refreshes or creates the target's profile. It is the
// only stage whose failure aborts the run.
func (p *Pipeline) resolveProfile(ctx context.Context, userID, target string, src voice.Sources, force bool) (*voice.VoiceProfile, string, error) {
	profile, err := p.profiles.GetWithAccess(ctx, userID, target)
	if err != nil {
		return nil, "", err
	}

	if !src.Empty() || profile == nil {
		updated, err := p.analyzer.AnalyzeAndUpdate(ctx, target, src, force)
		if err != nil {
			slog.Warn("voice profile update failed", "error", err, "user_id", target)
		}
		if updated != nil {
			profile = updated
		}
	}
	if profile == nil {
		def := voice.DefaultProfile()
		def.UserID = target
		return &def, StatusFallback, nil
	}
	return profile, StatusCompleted, nil
}

func reviewQuestions(review QualityResult) string {
	var sb strings.Builder
	if len(review.FabricationFlags) > 0 {
		sb.WriteString(fabricationAsk)
		for _, f := range review.FabricationFlags {
			sb.WriteString("\n- ")
			sb.WriteString(f.Text)
			if f.Reason != "" {
				sb.WriteString(" (")
				sb.WriteString(f.Reason)
				sb.WriteString(")")
			}
		}
		return sb.String()
	}
	sb.WriteString(genericReviewAsk)
	for _, issue := range review.Issues {
		sb.WriteString("\n- ")
		sb.WriteString(issue.Description)
	}
	return sb.String()
}

func postExamples(posts []voice.Post) []string {
	out := make([]string, 0, min(len(posts), maxPostExamples))
	for _, p := range posts {
		if len(out) == maxPostExamples {
			break
		}
		if strings.TrimSpace(p.Content) != "" {
			out = append(out, p.Content)
		}
	}
	return out
}

// Refine applies feedback to existing content in targetUserID's voice,
// bypassing the rest of the pipeline.
func (p *Pipeline) Refine(ctx context.Context, userID, targetUserID, content, feedback string) (RefineResult, error) {
	if strings.TrimSpace(content) == "" || strings.TrimSpace(feedback) == "" {
		return RefineResult{}, errors.New("content and feedback are required")
	}
	if targetUserID == "" {
		targetUserID = userID
	}
	profile, err := p.profiles.GetWithAccess(ctx, userID, targetUserID)
	if err != nil {
		return RefineResult{}, err
	}
	return p.drafter.Refine(ctx, content, feedback, profile)
}
