package augment_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/ezhuthu/internal/suggest/augment"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm/mock"
)

func TestLLM_BuildsRequest(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		ModelCapabilities: llm.ModelCapabilities{SupportsJSONMode: true},
		CompleteResponse:  &llm.CompletionResponse{Content: `{"options": ["காலை வணக்கம்"]}`},
	}
	a := augment.NewLLM(provider)

	prompt := augment.BuildPrompt("good morning", "", augment.ModeStandard)
	got, err := a.RequestCompletion(context.Background(), prompt, augment.Sampling{Temperature: 0.3, TopP: 0.9, MaxTokens: 200})
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	if len(got) != 1 || got[0].Text != "காலை வணக்கம்" {
		t.Fatalf("suggestions = %+v", got)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 Complete call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.3 || req.TopP != 0.9 || req.MaxTokens != 200 {
		t.Errorf("sampling not forwarded: %+v", req)
	}
	if !strings.Contains(strings.ToLower(req.SystemPrompt), "by meaning") {
		t.Errorf("system prompt lacks the meaning-first rule:\n%s", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || !strings.Contains(req.Messages[0].Content, "good morning") {
		t.Errorf("user message = %+v", req.Messages)
	}
}

func TestLLM_ParsesResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		want     []string
		wantConf []float64
	}{
		{
			name:     "plain strings",
			content:  `{"options": ["நன்றி", "மிக்க நன்றி"]}`,
			want:     []string{"நன்றி", "மிக்க நன்றி"},
			wantConf: []float64{0.9, 0.85},
		},
		{
			name:     "fenced",
			content:  "```json\n{\"options\": [\"நன்றி\"]}\n```",
			want:     []string{"நன்றி"},
			wantConf: []float64{0.9},
		},
		{
			name:     "objects with confidence",
			content:  `{"options": [{"text": "வணக்கம்", "confidence": 0.7}, {"text": "  "}, {"text": "வாழ்த்து", "confidence": 4}]}`,
			want:     []string{"வணக்கம்", "வாழ்த்து"},
			wantConf: []float64{0.7, 1},
		},
		{
			name:    "empty list",
			content: `{"options": []}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := augment.NewLLM(&mock.Provider{
				ModelCapabilities: llm.ModelCapabilities{SupportsJSONMode: true},
				CompleteResponse:  &llm.CompletionResponse{Content: tt.content},
			})
			got, err := a.RequestCompletion(context.Background(), "p", augment.Sampling{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i].Text != tt.want[i] {
					t.Errorf("option %d = %q, want %q", i, got[i].Text, tt.want[i])
				}
				if got[i].Confidence != tt.wantConf[i] {
					t.Errorf("option %d confidence = %v, want %v", i, got[i].Confidence, tt.wantConf[i])
				}
			}
		})
	}
}

func TestLLM_Malformed(t *testing.T) {
	t.Parallel()

	for _, content := range []string{
		"Here you go: வணக்கம்",
		`{"suggestions": ["வணக்கம்"]}`,
		`{"options": "வணக்கம்"}`,
		`{"options": [42]}`,
		"",
	} {
		a := augment.NewLLM(&mock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: content},
		})
		_, err := a.RequestCompletion(context.Background(), "p", augment.Sampling{})
		if !errors.Is(err, augment.ErrMalformedResponse) {
			t.Errorf("content %q: err = %v, want ErrMalformedResponse", content, err)
		}
	}

	a := augment.NewLLM(&mock.Provider{})
	if _, err := a.RequestCompletion(context.Background(), "p", augment.Sampling{}); !errors.Is(err, augment.ErrMalformedResponse) {
		t.Errorf("nil response: err = %v, want ErrMalformedResponse", err)
	}
}

func TestLLM_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream 503")
	a := augment.NewLLM(&mock.Provider{CompleteErr: boom})
	_, err := a.RequestCompletion(context.Background(), "p", augment.Sampling{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
	if res := augment.Run(context.Background(), a, augment.Call{}); res.Failure != augment.FailureTransport {
		t.Errorf("Failure = %v, want transport", res.Failure)
	}
}

func TestLLM_NilProvider(t *testing.T) {
	t.Parallel()

	a := augment.NewLLM(nil)
	if _, err := a.RequestCompletion(context.Background(), "p", augment.Sampling{}); !errors.Is(err, augment.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLLM_WithSystemPrompt(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"options":[]}`}}
	a := augment.NewLLM(provider, augment.WithSystemPrompt("custom"))
	if _, err := a.RequestCompletion(context.Background(), "p", augment.Sampling{}); err != nil {
		t.Fatal(err)
	}
	if got := provider.Calls()[0].Req.SystemPrompt; got != "custom" {
		t.Errorf("SystemPrompt = %q, want custom", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := augment.BuildPrompt("breaking news", "இன்றைய செய்திகள்", augment.ModeNews)
	for _, want := range []string{"breaking news", "இன்றைய செய்திகள்", "formal written Tamil"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	p = augment.BuildPrompt("vanakkam", "  ", "")
	if strings.Contains(p, "Preceding text") {
		t.Errorf("blank context should be omitted:\n%s", p)
	}
	if !strings.Contains(p, "everyday written Tamil") {
		t.Errorf("empty mode should use standard register:\n%s", p)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    augment.Mode
		wantErr bool
	}{
		{"", augment.ModeStandard, false},
		{"standard", augment.ModeStandard, false},
		{" NEWS ", augment.ModeNews, false},
		{"poetry", "", true},
	}
	for _, tt := range tests {
		got, err := augment.ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
