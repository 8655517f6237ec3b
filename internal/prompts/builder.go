// Package prompts turns named text templates into the final prompt strings
// sent to the model for each generation stage.
package prompts

import "strings"

// Stage names a stage template in the manifest.
type Stage string

const (
	StageSufficiencyCheck Stage = "sufficiency-check"
	StageContentDraft     Stage = "content-draft"
	StageQualityReview    Stage = "quality-review"
	StageVoiceAnalysis    Stage = "voice-analysis"
	StageRefineContent    Stage = "refine-content"
)

// SystemSeparator joins the base-rule sections of the system prompt.
const SystemSeparator = "\n\n---\n\n"

// Builder renders stage and system prompts from a Loader.
type Builder struct {
	loader *Loader
}

// NewBuilder creates a Builder over the given loader.
func NewBuilder(loader *Loader) *Builder {
	return &Builder{loader: loader}
}

// BuildStagePrompt renders the stage template with data. data may be a map
// or any JSON-marshallable struct.
func (b *Builder) BuildStagePrompt(stage Stage, data any) string {
	return strings.TrimSpace(Render(b.loader.Stage(stage), ToContext(data)))
}

// BuildSystemPrompt renders every base-rule template with the voice profile
// available both at the root and under "voice", and joins the non-empty
// sections with SystemSeparator.
func (b *Builder) BuildSystemPrompt(voiceProfile any) string {
	ctx := ToContext(voiceProfile)
	ctx["voice"] = ToContext(voiceProfile)

	var sections []string
	for _, rule := range b.loader.Manifest().Base {
		text := strings.TrimSpace(Render(b.loader.Load(rule.File), ctx))
		if text != "" {
			sections = append(sections, text)
		}
	}
	return strings.Join(sections, SystemSeparator)
}
