package augment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
)

// defaultConfidence is assigned to options returned as bare strings. Later
// options get slightly less so that order is preserved after merging.
const (
	defaultConfidence = 0.9
	confidenceStep    = 0.05
)

// llmResponse is the JSON shape the model is asked to return. Each option is
// either a string or an object with text and confidence.
type llmResponse struct {
	Options *[]json.RawMessage `json:"options"`
}

type llmOption struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// LLM is an Augmenter backed by an [llm.Provider]. It is safe for concurrent
// use.
//
// Model selection and failover belong to the provider: wrap several backends
// in a resilience.LLMFallback to get both.
type LLM struct {
	provider     llm.Provider
	systemPrompt string
}

// LLMOption configures an LLM augmenter.
type LLMOption func(*LLM)

// WithSystemPrompt replaces the built-in system prompt.
func WithSystemPrompt(p string) LLMOption {
	return func(a *LLM) {
		a.systemPrompt = p
	}
}

// NewLLM returns an LLM augmenter. A nil provider yields an augmenter that
// always reports ErrUnavailable.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLM {
	a := &LLM{provider: provider, systemPrompt: systemPrompt}
	for _, o := range opts {
		o(a)
	}
	if provider != nil && !provider.Capabilities().SupportsJSONMode {
		slog.Warn("augmenter model may not follow JSON-only instructions; expect malformed responses")
	}
	return a
}

// RequestCompletion implements Augmenter.
func (a *LLM) RequestCompletion(ctx context.Context, prompt string, sampling Sampling) ([]Suggestion, error) {
	if a.provider == nil {
		return nil, ErrUnavailable
	}

	req := llm.CompletionRequest{
		SystemPrompt: a.systemPrompt,
		Temperature:  sampling.Temperature,
		TopP:         sampling.TopP,
		MaxTokens:    sampling.MaxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
	}

	resp, err := a.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("augment: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("augment: empty completion: %w", ErrMalformedResponse)
	}
	return parseResponse(resp.Content)
}

// parseResponse decodes the model output. Anything that is not a JSON object
// with an "options" array is ErrMalformedResponse.
func parseResponse(content string) ([]Suggestion, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Options == nil {
		return nil, fmt.Errorf("%w: missing options", ErrMalformedResponse)
	}

	out := make([]Suggestion, 0, len(*r.Options))
	for i, raw := range *r.Options {
		s, err := decodeOption(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: option %d: %v", ErrMalformedResponse, i, err)
		}
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Confidence < 0 {
			s.Confidence = max(defaultConfidence-confidenceStep*float64(i), confidenceStep)
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeOption accepts "text" or {"text": ..., "confidence": ...}. A negative
// Confidence in the result means none was supplied.
func decodeOption(raw json.RawMessage) (Suggestion, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return Suggestion{Text: text, Confidence: -1}, nil
	}
	var o llmOption
	if err := json.Unmarshal(raw, &o); err != nil {
		return Suggestion{}, err
	}
	if o.Confidence == nil {
		return Suggestion{Text: o.Text, Confidence: -1}, nil
	}
	return Suggestion{Text: o.Text, Confidence: min(max(*o.Confidence, 0), 1)}, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

var _ Augmenter = (*LLM)(nil)
