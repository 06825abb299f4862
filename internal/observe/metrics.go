// Package observe provides application-wide observability primitives for
// ezhuthu: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/ezhuthu"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// SuggestDuration tracks end-to-end resolution latency. Attributes:
	//   attribute.String("outcome", "cache_hit"|"local"|"augmented"|"empty")
	SuggestDuration metric.Float64Histogram

	// AugmentDuration tracks augmenter call latency. Attributes:
	//   attribute.String("outcome", <augment.FailureKind>)
	AugmentDuration metric.Float64Histogram

	// CacheLookups counts suggestion cache lookups. Attributes:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// AugmentOutcomes counts augmenter results by failure kind. Attributes:
	//   attribute.String("outcome", <augment.FailureKind>)
	AugmentOutcomes metric.Int64Counter

	// ValidationRejections counts candidates dropped by a gate. Attributes:
	//   attribute.String("gate", ...), attribute.String("source", ...)
	ValidationRejections metric.Int64Counter

	// EntitlementChecks counts entitlement lookups. Attributes:
	//   attribute.String("result", "allowed"|"denied"|"error")
	EntitlementChecks metric.Int64Counter

	// ProviderRequests counts LLM provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts LLM provider errors. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveStreams tracks open suggestion streams (WebSocket connections and
	// stream IDs seen over HTTP).
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...),
	//   attribute.String("status", "2xx")
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds. Local-only
// resolutions land in the first buckets; augmented ones in the upper half.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SuggestDuration, err = m.Float64Histogram("ezhuthu.suggest.duration",
		metric.WithDescription("Latency of a suggestion resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AugmentDuration, err = m.Float64Histogram("ezhuthu.augment.duration",
		metric.WithDescription("Latency of augmenter calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("ezhuthu.cache.lookups",
		metric.WithDescription("Suggestion cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.AugmentOutcomes, err = m.Int64Counter("ezhuthu.augment.outcomes",
		metric.WithDescription("Augmenter results by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ValidationRejections, err = m.Int64Counter("ezhuthu.validation.rejections",
		metric.WithDescription("Candidates rejected by a validation gate."),
	); err != nil {
		return nil, err
	}
	if met.EntitlementChecks, err = m.Int64Counter("ezhuthu.entitlement.checks",
		metric.WithDescription("Entitlement checks by result."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("ezhuthu.provider.requests",
		metric.WithDescription("LLM provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("ezhuthu.provider.errors",
		metric.WithDescription("LLM provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("ezhuthu.active_streams",
		metric.WithDescription("Number of open suggestion streams."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("ezhuthu.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCacheLookup counts one cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordAugment records the latency and outcome of one augmenter call.
func (m *Metrics) RecordAugment(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.AugmentOutcomes.Add(ctx, 1, attrs)
	if seconds > 0 {
		m.AugmentDuration.Record(ctx, seconds, attrs)
	}
}

// RecordRejection counts one candidate dropped by gate.
func (m *Metrics) RecordRejection(ctx context.Context, gate, source string) {
	m.ValidationRejections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gate", gate),
			attribute.String("source", source),
		),
	)
}

// RecordEntitlementCheck counts one entitlement lookup.
func (m *Metrics) RecordEntitlementCheck(ctx context.Context, result string) {
	m.EntitlementChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordProviderRequest counts one LLM provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one LLM provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
