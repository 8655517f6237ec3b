package voice

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emojiRe    = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{1F000}-\x{1F2FF}]`)
	hashtagRe  = regexp.MustCompile(`(?:^|\s)#[\p{L}\p{N}_]+`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
	blankRe    = regexp.MustCompile(`\n\s*\n`)
)

const (
	usageRateThreshold     = 0.3
	lineBreakRateThreshold = 0.5
	questionsPerPost       = 0.5
)

// analyzeHeuristic derives an Analysis from simple text statistics. It is
// the fallback when the analysis model is unavailable or returns garbage.
func analyzeHeuristic(src Sources) Analysis {
	def := DefaultProfile()
	a := Analysis{
		WritingStyle:       def.WritingStyle,
		Tone:               def.Tone,
		Vocabulary:         def.Vocabulary,
		Formatting:         def.Formatting,
		ContentPreferences: def.ContentPreferences,
	}

	samples := make([]string, 0, len(src.PastPosts))
	for _, p := range src.PastPosts {
		if strings.TrimSpace(p.Content) != "" {
			samples = append(samples, p.Content)
		}
	}
	fromPosts := len(samples) > 0
	if !fromPosts {
		for _, d := range src.TrainingDocs {
			if strings.TrimSpace(d.ExtractedText) != "" {
				samples = append(samples, d.ExtractedText)
			}
		}
	}
	if len(samples) == 0 {
		return a
	}
	n := float64(len(samples))

	var emojiPosts, hashtagPosts, breakPosts, questions, totalLen int
	var sentenceWords []int
	var paraWords []int
	for _, s := range samples {
		if emojiRe.MatchString(s) {
			emojiPosts++
		}
		if hashtagRe.MatchString(s) {
			hashtagPosts++
		}
		if blankRe.MatchString(s) {
			breakPosts++
		}
		questions += strings.Count(s, "?")
		totalLen += utf8.RuneCountInString(strings.TrimSpace(s))

		for _, sent := range sentenceRe.FindAllString(s, -1) {
			if w := len(strings.Fields(sent)); w > 0 {
				sentenceWords = append(sentenceWords, w)
			}
		}
		for _, para := range blankRe.Split(s, -1) {
			if w := len(strings.Fields(para)); w > 0 {
				paraWords = append(paraWords, w)
			}
		}
	}

	// Formatting and length only describe posts; document samples would
	// skew them.
	if fromPosts {
		a.Formatting.UsesEmojis = float64(emojiPosts)/n > usageRateThreshold
		a.Formatting.UsesHashtags = float64(hashtagPosts)/n > usageRateThreshold
		a.Formatting.UsesLineBreaks = float64(breakPosts)/n > lineBreakRateThreshold
		a.ContentPreferences.TypicalPostLength = int(math.Round(float64(totalLen) / n))

		if float64(questions)/n > questionsPerPost {
			a.Tone.Primary = "conversational"
			a.Formatting.PreferredHooks = append(a.Formatting.PreferredHooks, "question")
		}
	}

	if mean, cv := meanAndCV(sentenceWords); mean > 0 {
		a.WritingStyle.SentenceLengthAvg = int(math.Round(mean))
		switch {
		case cv < 0.3:
			a.WritingStyle.SentenceLengthVariance = VarianceLow
		case cv > 0.6:
			a.WritingStyle.SentenceLengthVariance = VarianceHigh
		default:
			a.WritingStyle.SentenceLengthVariance = VarianceMedium
		}
	}
	if mean, _ := meanAndCV(paraWords); mean > 0 {
		switch {
		case mean < 40:
			a.WritingStyle.ParagraphStyle = ParagraphShort
		case mean < 100:
			a.WritingStyle.ParagraphStyle = ParagraphMedium
		default:
			a.WritingStyle.ParagraphStyle = ParagraphLong
		}
	}
	return a
}

// meanAndCV returns the mean and coefficient of variation of xs.
func meanAndCV(xs []int) (mean, cv float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	if mean == 0 {
		return 0, 0
	}
	return mean, math.Sqrt(sq/float64(len(xs))) / mean
}
