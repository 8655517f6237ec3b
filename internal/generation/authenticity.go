package generation

import (
	"regexp"
	"strings"
)

// AuthenticityFlag is one suspicious phrase found by QuickAuthenticityCheck.
type AuthenticityFlag struct {
	Pattern string `json:"pattern"`
	Match   string `json:"match"`
}

type AuthenticityResult struct {
	Passed bool               `json:"passed"`
	Flags  []AuthenticityFlag `json:"flags,omitempty"`
}

// Phrases that typically introduce invented anecdotes or statistics.
var fabricationPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"recalled_anecdote", regexp.MustCompile(`(?i)\bI (?:still )?remember when\b`)},
	{"mentor_quote", regexp.MustCompile(`(?i)\bmy (?:mentor|boss|manager|coach) (?:once )?(?:told|said|taught)(?: me)?\b`)},
	{"recent_personal_event", regexp.MustCompile(`(?i)\b(?:last (?:week|month|year)|yesterday|this morning),? I\b`)},
	{"client_anecdote", regexp.MustCompile(`(?i)\ba (?:client|customer|colleague) (?:recently )?(?:told|asked|said to) me\b`)},
	{"recent_conversation", regexp.MustCompile(`(?i)\bI was (?:recently )?(?:talking|speaking) (?:to|with)\b`)},
	{"unsourced_study", regexp.MustCompile(`(?i)\b(?:studies|research) (?:show|shows|suggests|found)(?: that)?\b`)},
	{"cited_study", regexp.MustCompile(`(?i)\baccording to (?:a|one) (?:recent )?(?:study|survey|report)\b`)},
	{"percentage_claim", regexp.MustCompile(`\b\d{1,3}(?:\.\d+)?% of\b`)},
}

// QuickAuthenticityCheck screens content for phrases that usually signal
// fabricated specifics. A phrase the user already wrote in their request is
// not flagged. It makes no model call.
func QuickAuthenticityCheck(content, userRequest string) AuthenticityResult {
	request := strings.ToLower(userRequest)
	var flags []AuthenticityFlag
	for _, p := range fabricationPatterns {
		for _, m := range p.re.FindAllString(content, -1) {
			if strings.Contains(request, strings.ToLower(m)) {
				continue
			}
			flags = append(flags, AuthenticityFlag{Pattern: p.name, Match: m})
		}
	}
	return AuthenticityResult{Passed: len(flags) == 0, Flags: flags}
}
