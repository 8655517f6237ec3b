// Package generation turns a post request into publish-ready text: it checks
// whether there is enough to go on, drafts in the user's voice, screens the
// draft for fabricated specifics and has a second model review it.
package generation

import (
	"strings"
	"time"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// foldEnum brings a model-supplied enum value to snake_case so "Ask Questions",
// "ask-questions" and "ask_questions" compare equal.
func foldEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func (c Confidence) valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Content types the sufficiency check classifies requests into.
const (
	ContentPersonalStory       = "personal_story"
	ContentProfessionalInsight = "professional_insight"
	ContentHowTo               = "how_to"
	ContentAnnouncement        = "announcement"
	ContentOpinion             = "opinion"
	ContentIndustryNews        = "industry_news"
	ContentCelebration         = "celebration"
	ContentGeneral             = "general"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRefine Action = "refine"
)

// Stage names recorded in the step trail.
const (
	StageVoiceProfile      = "voice_profile"
	StageSufficiencyCheck  = "sufficiency_check"
	StageContentGeneration = "content_generation"
	StageQuickAuthCheck    = "quick_auth_check"
	StageQualityReview     = "quality_review"
)

// Step statuses.
const (
	StatusCompleted     = "completed"
	StatusSkipped       = "skipped"
	StatusFallback      = "fallback"
	StatusFailed        = "failed"
	StatusNeedsMoreInfo = "needs_more_info"
	StatusFlagged       = "flagged"
)

// Step is one entry of the audit trail returned with every result.
type Step struct {
	Stage      string         `json:"stage"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Observer receives pipeline telemetry as it happens.
type Observer interface {
	ObserveStep(step Step)
	ObserveRun(outcome string, d time.Duration)
}

// Run outcomes reported to the Observer.
const (
	OutcomeCompleted     = "completed"
	OutcomeNeedsMoreInfo = "needs_more_info"
	OutcomeFailed        = "failed"
)

// Failure classifies an unsuccessful Result.
type Failure string

const (
	FailureInvalidRequest Failure = "invalid_request"
	FailureAccessDenied   Failure = "access_denied"
	FailureDrafting       Failure = "drafting_failed"
	FailureInternal       Failure = "internal"
)
