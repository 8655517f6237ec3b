package voice

// SimplifiedVoice is a flat projection of a profile small enough to embed in
// every stage prompt and API response.
type SimplifiedVoice struct {
	Tone             string   `json:"tone"`
	ToneSecondary    string   `json:"tone_secondary,omitempty"`
	Formality        float64  `json:"formality"`
	Directness       float64  `json:"directness"`
	SentenceLength   int      `json:"sentence_length"`
	VocabularyLevel  string   `json:"vocabulary_level"`
	SignaturePhrases []string `json:"signature_phrases"`
	WordsToAvoid     []string `json:"words_to_avoid"`
	UsesEmojis       bool     `json:"uses_emojis"`
	UsesHashtags     bool     `json:"uses_hashtags"`
	UsesLineBreaks   bool     `json:"uses_line_breaks"`
	PreferredHooks   []string `json:"preferred_hooks"`
	CTAStyle         string   `json:"cta_style"`
	ExpertiseAreas   []string `json:"expertise_areas"`
	TypicalLength    int      `json:"typical_length"`
	Version          int      `json:"version"`
}

// Simplify projects p. A nil profile projects the default profile.
func Simplify(p *VoiceProfile) SimplifiedVoice {
	if p == nil {
		def := DefaultProfile()
		p = &def
	}
	return SimplifiedVoice{
		Tone:             p.Tone.Primary,
		ToneSecondary:    p.Tone.Secondary,
		Formality:        p.WritingStyle.Formality,
		Directness:       p.WritingStyle.Directness,
		SentenceLength:   p.WritingStyle.SentenceLengthAvg,
		VocabularyLevel:  string(p.Vocabulary.Level),
		SignaturePhrases: nonNil(p.Vocabulary.SignaturePhrases),
		WordsToAvoid:     nonNil(p.Vocabulary.WordsToAvoid),
		UsesEmojis:       p.Formatting.UsesEmojis,
		UsesHashtags:     p.Formatting.UsesHashtags,
		UsesLineBreaks:   p.Formatting.UsesLineBreaks,
		PreferredHooks:   nonNil(p.Formatting.PreferredHooks),
		CTAStyle:         string(p.Formatting.CTAStyle),
		ExpertiseAreas:   nonNil(p.ContentPreferences.ExpertiseAreas),
		TypicalLength:    p.ContentPreferences.TypicalPostLength,
		Version:          p.Version,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
