// Package llmjson decodes JSON objects out of free-form model output.
//
// Models asked for "only JSON" still wrap it in Markdown fences, prefix it
// with prose, or emit trailing commas. Decode handles all of those in one
// place so every stage parses its response the same way.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformed is returned when no JSON object can be recovered.
var ErrMalformed = errors.New("malformed JSON in model response")

// Validator is implemented by targets that can reject a syntactically valid
// but semantically unusable payload.
type Validator interface {
	Validate() error
}

// StripCodeFence removes a surrounding ```json ... ``` (or bare ```) wrapper.
// Text without a fence is returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// extractObject narrows s to the outermost {...} span, dropping any prose
// before or after it.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// Decode strips fences, unmarshals the JSON object into v, attempts a repair
// pass if the first unmarshal fails, and finally runs v.Validate when v
// implements Validator.
func Decode(raw string, v any) error {
	s := extractObject(StripCodeFence(raw))
	if s == "" {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}

	if err := json.Unmarshal([]byte(s), v); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(s)
		if rerr != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := json.Unmarshal([]byte(repaired), v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("validating model response: %w", err)
		}
	}
	return nil
}
