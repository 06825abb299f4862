package observe

import (
	"context"
	"errors"

	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
)

// InstrumentedLLM wraps an [llm.Provider] and records one
// ezhuthu.provider.requests sample per call, plus ezhuthu.provider.errors on
// failure.
type InstrumentedLLM struct {
	name    string
	next    llm.Provider
	metrics *Metrics
}

var _ llm.Provider = (*InstrumentedLLM)(nil)

// InstrumentLLM returns p wrapped with request metrics labelled name.
func InstrumentLLM(name string, p llm.Provider, m *Metrics) *InstrumentedLLM {
	return &InstrumentedLLM{name: name, next: p, metrics: m}
}

// Complete implements llm.Provider.
func (p *InstrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.next.Complete(ctx, req)
	if err != nil {
		kind := errorKind(err)
		p.metrics.RecordProviderRequest(ctx, p.name, "error")
		p.metrics.RecordProviderError(ctx, p.name, kind)
		return nil, err
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "ok")
	return resp, nil
}

// Capabilities implements llm.Provider.
func (p *InstrumentedLLM) Capabilities() llm.ModelCapabilities {
	return p.next.Capabilities()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream"
	}
}
