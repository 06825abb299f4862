package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/ezhuthu"

// Tracer returns the ezhuthu tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace ID of the span in ctx, or "" without one. HTTP
// responses echo it as X-Correlation-ID so a user report can be matched to
// the server log.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type logAttrsKey struct{}

// WithLogAttrs returns a context whose [Logger] carries attrs in addition to
// any attributes already attached to ctx. The server uses it to tag every
// line logged for a request with its stream and account.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := logAttrs(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(append(merged, prev...), attrs...)
	return context.WithValue(ctx, logAttrsKey{}, merged)
}

func logAttrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(logAttrsKey{}).([]slog.Attr)
	return attrs
}

// Logger returns the default logger with the trace and span IDs of ctx and
// the attributes added by [WithLogAttrs].
func Logger(ctx context.Context) *slog.Logger {
	attrs := logAttrs(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if len(attrs) == 0 && !sc.HasTraceID() {
		return slog.Default()
	}
	args := make([]any, 0, len(attrs)+2)
	if sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	return slog.Default().With(args...)
}
