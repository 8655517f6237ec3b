package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when no completion backend is configured.
var ErrUnavailable = errors.New("llm completion service not configured")

// Completer is a single-turn, non-streaming text completion capability.
// Implemented by *Client; tests substitute their own.
type Completer interface {
	Create(ctx context.Context, req Request) (*Response, error)
}

// Message is one turn of a Messages API conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the Messages API request body.
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// ContentBlock is one element of the response content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the Messages API response body.
type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Text concatenates all text blocks of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// APIError is a non-2xx response from the completion service.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm api error (HTTP %d): %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("llm api error (HTTP %d): %s", e.Status, e.Message)
}

// Retryable reports whether the request may succeed if repeated
// (rate limited or overloaded).
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status == 529 || e.Status == 503
}

// Complete sends a single user turn with an optional system prompt and
// returns the response text. A nil Completer yields ErrUnavailable.
func Complete(ctx context.Context, c Completer, model, system, user string, maxTokens int) (string, error) {
	if c == nil {
		return "", ErrUnavailable
	}
	resp, err := c.Create(ctx, Request{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty completion from model %s", model)
	}
	return text, nil
}
