package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
	secondary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}
	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("content = %q, want primary", resp.Content)
	}
	if len(secondary.Calls()) != 0 {
		t.Error("secondary should not be called")
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{CompleteErr: errTest}
	secondary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}
	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "secondary" {
		t.Errorf("content = %q, want secondary", resp.Content)
	}
}

func TestLLMFallback_HealthAndStates(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{CompleteErr: errTest}
	f := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	if !f.Healthy() {
		t.Fatal("fresh fallback should be healthy")
	}

	_, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if f.Healthy() {
		t.Error("fallback with every breaker open should be unhealthy")
	}
	if f.BreakerStates()["primary"] != StateOpen {
		t.Errorf("BreakerStates = %v", f.BreakerStates())
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8192, SupportsJSONMode: true}}
	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", &mock.Provider{})

	if got := f.Capabilities(); got.ContextWindow != 8192 || !got.SupportsJSONMode {
		t.Errorf("Capabilities() = %+v", got)
	}
}
