package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("not-a-backend", "m"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "reply with JSON",
		Messages:     []llm.Message{{Role: "user", Content: "vanakkam"}},
		Temperature:  0.2,
		TopP:         0.8,
		MaxTokens:    128,
	})

	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].ContentString() != "vanakkam" {
		t.Errorf("user content = %q", params.Messages[1].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", params.Temperature)
	}
	if params.TopP == nil || *params.TopP != 0.8 {
		t.Errorf("top_p = %v, want 0.8", params.TopP)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("max tokens = %v, want 128", params.MaxTokens)
	}
}

func TestBuildParams_ZeroSamplingOmitted(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "x"}},
	})
	if params.Temperature != nil || params.TopP != nil || params.MaxTokens != nil {
		t.Error("expected unset sampling parameters to stay nil")
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected no system message, got %d messages", len(params.Messages))
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model    string
		wantJSON bool
	}{
		{"gpt-4o-mini", true},
		{"claude-3-5-sonnet-latest", true},
		{"gemini-2.0-flash", true},
		{"llama3.1:8b", false},
		{"gpt-3.5-turbo", false},
	}
	for _, tt := range tests {
		if got := modelCapabilities(tt.model).SupportsJSONMode; got != tt.wantJSON {
			t.Errorf("%s: SupportsJSONMode = %v, want %v", tt.model, got, tt.wantJSON)
		}
	}
}
