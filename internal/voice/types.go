// Package voice models a user's writing voice, keeps one profile per user
// current, and derives it from past posts, documents and a context guide.
package voice

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// ErrAccessDenied is returned when a user asks for another user's profile
// without an active ghostwriter/approver link between them.
var ErrAccessDenied = errors.New("access denied to voice profile")

type SentenceVariance string

const (
	VarianceLow    SentenceVariance = "low"
	VarianceMedium SentenceVariance = "medium"
	VarianceHigh   SentenceVariance = "high"
)

type ParagraphStyle string

const (
	ParagraphShort  ParagraphStyle = "short"
	ParagraphMedium ParagraphStyle = "medium"
	ParagraphLong   ParagraphStyle = "long"
)

type VocabularyLevel string

const (
	VocabularyCasual       VocabularyLevel = "casual"
	VocabularyProfessional VocabularyLevel = "professional"
	VocabularyAcademic     VocabularyLevel = "academic"
)

type CTAStyle string

const (
	CTANone   CTAStyle = "none"
	CTASoft   CTAStyle = "soft"
	CTADirect CTAStyle = "direct"
)

// AnalysisMethod records how the analysis-derived fields were produced.
type AnalysisMethod string

const (
	MethodLLM             AnalysisMethod = "llm"
	MethodPatternFallback AnalysisMethod = "pattern_fallback"
	MethodDefault         AnalysisMethod = "default"
)

type WritingStyle struct {
	Formality              float64          `json:"formality"`
	Directness             float64          `json:"directness"`
	SentenceLengthAvg      int              `json:"sentence_length_avg"`
	SentenceLengthVariance SentenceVariance `json:"sentence_length_variance"`
	ParagraphStyle         ParagraphStyle   `json:"paragraph_style"`
}

type Tone struct {
	Primary        string   `json:"primary"`
	Secondary      string   `json:"secondary"`
	EmotionalRange []string `json:"emotional_range"`
}

type Vocabulary struct {
	Level            VocabularyLevel `json:"level"`
	IndustryTerms    []string        `json:"industry_terms"`
	SignaturePhrases []string        `json:"signature_phrases"`
	WordsToAvoid     []string        `json:"words_to_avoid"`
}

type Formatting struct {
	UsesEmojis     bool     `json:"uses_emojis"`
	UsesHashtags   bool     `json:"uses_hashtags"`
	UsesLineBreaks bool     `json:"uses_line_breaks"`
	PreferredHooks []string `json:"preferred_hooks"`
	CTAStyle       CTAStyle `json:"cta_style"`
}

type ContentPreferences struct {
	ExpertiseAreas    []string `json:"expertise_areas"`
	StorytellingStyle string   `json:"storytelling_style"`
	TypicalPostLength int      `json:"typical_post_length"`
}

// AnalysisSources records the source volume a profile was derived from.
// ShouldUpdateProfile compares new counts against these.
type AnalysisSources struct {
	PastPostsCount     int            `json:"past_posts_count"`
	TrainingDocsCount  int            `json:"training_docs_count"`
	ContextGuideWords  int            `json:"context_guide_words"`
	LastPostAnalyzedAt *time.Time     `json:"last_post_analyzed_at"`
	AnalysisMethod     AnalysisMethod `json:"analysis_method,omitempty"`
}

// Insights is the open key/value bag of post-performance observations.
type Insights map[string]any

// Merge returns a copy of i with every key of update written over it.
// Keys absent from update pass through unchanged.
func (i Insights) Merge(update Insights) Insights {
	out := make(Insights, len(i)+len(update))
	maps.Copy(out, i)
	maps.Copy(out, update)
	return out
}

// VoiceProfile is the single per-user voice record.
type VoiceProfile struct {
	UserID              string             `json:"user_id"`
	WritingStyle        WritingStyle       `json:"writing_style"`
	Tone                Tone               `json:"tone"`
	Vocabulary          Vocabulary         `json:"vocabulary"`
	Formatting          Formatting         `json:"formatting"`
	ContentPreferences  ContentPreferences `json:"content_preferences"`
	AnalysisSources     AnalysisSources    `json:"analysis_sources"`
	PerformanceInsights Insights           `json:"performance_insights"`
	Version             int                `json:"version"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Analysis is the subset of a profile produced by analysing sources. It is
// the JSON contract the analysis model must return.
type Analysis struct {
	WritingStyle       WritingStyle       `json:"writing_style"`
	Tone               Tone               `json:"tone"`
	Vocabulary         Vocabulary         `json:"vocabulary"`
	Formatting         Formatting         `json:"formatting"`
	ContentPreferences ContentPreferences `json:"content_preferences"`
}

// Validate rejects an analysis that is missing the fields every prompt
// depends on.
func (a *Analysis) Validate() error {
	if strings.TrimSpace(a.Tone.Primary) == "" {
		return errors.New("tone.primary is required")
	}
	if a.WritingStyle.Formality < 0 || a.WritingStyle.Formality > 1 {
		return fmt.Errorf("writing_style.formality %v out of range", a.WritingStyle.Formality)
	}
	if a.WritingStyle.Directness < 0 || a.WritingStyle.Directness > 1 {
		return fmt.Errorf("writing_style.directness %v out of range", a.WritingStyle.Directness)
	}
	return nil
}

// normalize fills unset enums from the default profile and deduplicates
// the set-valued fields.
func (a *Analysis) normalize() {
	def := DefaultProfile()
	ws := &a.WritingStyle
	if ws.SentenceLengthAvg <= 0 {
		ws.SentenceLengthAvg = def.WritingStyle.SentenceLengthAvg
	}
	switch ws.SentenceLengthVariance {
	case VarianceLow, VarianceMedium, VarianceHigh:
	default:
		ws.SentenceLengthVariance = def.WritingStyle.SentenceLengthVariance
	}
	switch ws.ParagraphStyle {
	case ParagraphShort, ParagraphMedium, ParagraphLong:
	default:
		ws.ParagraphStyle = def.WritingStyle.ParagraphStyle
	}
	switch a.Vocabulary.Level {
	case VocabularyCasual, VocabularyProfessional, VocabularyAcademic:
	default:
		a.Vocabulary.Level = def.Vocabulary.Level
	}
	switch a.Formatting.CTAStyle {
	case CTANone, CTASoft, CTADirect:
	default:
		a.Formatting.CTAStyle = def.Formatting.CTAStyle
	}
	if a.ContentPreferences.TypicalPostLength <= 0 {
		a.ContentPreferences.TypicalPostLength = def.ContentPreferences.TypicalPostLength
	}
	a.Vocabulary.IndustryTerms = dedupe(a.Vocabulary.IndustryTerms)
	a.Vocabulary.WordsToAvoid = dedupe(a.Vocabulary.WordsToAvoid)
	a.ContentPreferences.ExpertiseAreas = dedupe(a.ContentPreferences.ExpertiseAreas)
}

// apply copies the analysis-derived fields onto p, leaving identity,
// insights and bookkeeping untouched.
func (a Analysis) apply(p *VoiceProfile) {
	p.WritingStyle = a.WritingStyle
	p.Tone = a.Tone
	p.Vocabulary = a.Vocabulary
	p.Formatting = a.Formatting
	p.ContentPreferences = a.ContentPreferences
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return slices.Clip(out)
}

// DefaultProfile returns the neutral profile used before any sources exist.
func DefaultProfile() VoiceProfile {
	return VoiceProfile{
		WritingStyle: WritingStyle{
			Formality:              0.5,
			Directness:             0.5,
			SentenceLengthAvg:      15,
			SentenceLengthVariance: VarianceMedium,
			ParagraphStyle:         ParagraphShort,
		},
		Tone: Tone{
			Primary:        "professional",
			Secondary:      "approachable",
			EmotionalRange: []string{},
		},
		Vocabulary: Vocabulary{
			Level:            VocabularyProfessional,
			IndustryTerms:    []string{},
			SignaturePhrases: []string{},
			WordsToAvoid:     []string{},
		},
		Formatting: Formatting{
			UsesEmojis:     false,
			UsesHashtags:   false,
			UsesLineBreaks: true,
			PreferredHooks: []string{},
			CTAStyle:       CTASoft,
		},
		ContentPreferences: ContentPreferences{
			ExpertiseAreas:    []string{},
			StorytellingStyle: "",
			TypicalPostLength: 800,
		},
		AnalysisSources:     AnalysisSources{AnalysisMethod: MethodDefault},
		PerformanceInsights: Insights{},
	}
}

// Post is a past post used as a voice sample.
type Post struct {
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// TrainingDoc is a document whose text has already been extracted.
type TrainingDoc struct {
	FileName      string `json:"file_name"`
	ExtractedText string `json:"extracted_text"`
	WordCount     int    `json:"word_count"`
}

// Sources is the raw material a profile is derived from.
type Sources struct {
	PastPosts    []Post        `json:"past_posts,omitempty"`
	TrainingDocs []TrainingDoc `json:"training_docs,omitempty"`
	ContextGuide string        `json:"context_guide,omitempty"`

	// TotalPastPosts is the number of posts on file when PastPosts holds
	// only the most recent ones. Zero means PastPosts is complete.
	TotalPastPosts int `json:"total_past_posts,omitempty"`
}

// Counts summarises a source set for staleness decisions.
type Counts struct {
	PastPosts         int
	TrainingDocs      int
	ContextGuideWords int
}

func (s Sources) Counts() Counts {
	return Counts{
		PastPosts:         max(s.TotalPastPosts, len(s.PastPosts)),
		TrainingDocs:      len(s.TrainingDocs),
		ContextGuideWords: len(strings.Fields(s.ContextGuide)),
	}
}

// Empty reports whether there is nothing to analyse.
func (s Sources) Empty() bool {
	return len(s.PastPosts) == 0 && len(s.TrainingDocs) == 0 && strings.TrimSpace(s.ContextGuide) == ""
}

// latestPost returns the newest PublishedAt among the posts, or nil.
func (s Sources) latestPost() *time.Time {
	var latest *time.Time
	for _, p := range s.PastPosts {
		if p.PublishedAt != nil && (latest == nil || p.PublishedAt.After(*latest)) {
			t := *p.PublishedAt
			latest = &t
		}
	}
	return latest
}
