// Package augment is the boundary between the suggestion engine and an
// external text-completion service.
//
// An [Augmenter] turns a prompt into Tamil suggestions. It is slow, may be
// missing, and fails in several ways, so callers never invoke it directly:
// [Start] runs it once under a deadline and delivers exactly one tagged
// [Result] whose [FailureKind] distinguishes an unconfigured augmenter from a
// timeout, a malformed payload and a transport error. The orchestrator
// composes that single result instead of wrapping each call site in its own
// error handling.
package augment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/ezhuthu/internal/resilience"
)

// DefaultTimeout bounds an augmenter call when Call.Timeout is zero.
const DefaultTimeout = 2500 * time.Millisecond

var (
	// ErrUnavailable is returned by an Augmenter that cannot serve requests,
	// typically because no backend is configured.
	ErrUnavailable = errors.New("augment: unavailable")

	// ErrMalformedResponse is returned when the backend answered but the
	// payload does not follow the expected JSON shape.
	ErrMalformedResponse = errors.New("augment: malformed response")
)

// Sampling carries the generation parameters forwarded to the backend.
type Sampling struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Suggestion is one candidate produced by an Augmenter. It has not been
// validated.
type Suggestion struct {
	Text       string
	Confidence float64
}

// Augmenter produces Tamil suggestions for a rendered prompt.
//
// Implementations must honour ctx cancellation and be safe for concurrent use.
type Augmenter interface {
	RequestCompletion(ctx context.Context, prompt string, sampling Sampling) ([]Suggestion, error)
}

// FailureKind tags why a Result carries no suggestions.
type FailureKind int

const (
	// FailureNone means the call succeeded. Suggestions may still be empty.
	FailureNone FailureKind = iota
	// FailureUnavailable means no augmenter is configured, or its backends
	// are shut off by a circuit breaker.
	FailureUnavailable
	// FailureTimeout means the call outlived its deadline.
	FailureTimeout
	// FailureMalformed means the backend answered with a non-conforming payload.
	FailureMalformed
	// FailureTransport covers network and upstream API errors.
	FailureTransport
	// FailureCanceled means the caller abandoned the call, usually because a
	// newer request on the same stream replaced it.
	FailureCanceled
	// FailureNotEntitled means the account may not use augmentation. The
	// orchestrator sets it without calling the augmenter.
	FailureNotEntitled
	// FailureSuperseded means the call finished after a newer request on the same
	// stream started. The orchestrator sets it and discards the suggestions.
	FailureSuperseded
)

// String returns a snake_case label for k, suitable as a metric attribute.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "ok"
	case FailureUnavailable:
		return "unavailable"
	case FailureTimeout:
		return "timeout"
	case FailureMalformed:
		return "malformed"
	case FailureTransport:
		return "transport"
	case FailureCanceled:
		return "canceled"
	case FailureNotEntitled:
		return "not_entitled"
	case FailureSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Result is the single outcome of Start.
type Result struct {
	Suggestions []Suggestion
	Failure     FailureKind
	// Err is the underlying error for diagnostics. Nil on success.
	Err     error
	Elapsed time.Duration
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Failure == FailureNone }

// Call describes one augmenter invocation.
type Call struct {
	Prompt   string
	Sampling Sampling
	// Timeout bounds the call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Start runs a.RequestCompletion in a new goroutine under call.Timeout and
// returns a channel that receives exactly one Result and is then closed. The
// Result arrives no later than the deadline even when the augmenter ignores
// its context; a late answer is dropped and reported as FailureTimeout. The
// channels are buffered, so abandoning them does not leak goroutines beyond
// the augmenter call itself. A nil Augmenter yields FailureUnavailable without
// starting a goroutine.
func Start(ctx context.Context, a Augmenter, call Call) <-chan Result {
	ch := make(chan Result, 1)
	if a == nil {
		ch <- Result{Failure: FailureUnavailable, Err: ErrUnavailable}
		close(ch)
		return ch
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	go func() {
		defer close(ch)
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		type reply struct {
			suggestions []Suggestion
			err         error
		}
		inner := make(chan reply, 1)
		go func() {
			suggestions, err := a.RequestCompletion(callCtx, call.Prompt, call.Sampling)
			inner <- reply{suggestions, err}
		}()

		var res Result
		select {
		case rep := <-inner:
			res.Elapsed = time.Since(start)
			if rep.err != nil {
				res.Failure = classify(ctx, callCtx, rep.err)
				res.Err = rep.err
			} else {
				res.Suggestions = rep.suggestions
			}
		case <-callCtx.Done():
			res.Elapsed = time.Since(start)
			res.Err = callCtx.Err()
			res.Failure = classify(ctx, callCtx, res.Err)
		}
		ch <- res
	}()
	return ch
}

// Run is Start followed by a receive.
func Run(ctx context.Context, a Augmenter, call Call) Result {
	return <-Start(ctx, a, call)
}

// classify maps err to a FailureKind. parent is the caller's context and
// callCtx the derived context carrying the augmenter deadline.
func classify(parent, callCtx context.Context, err error) FailureKind {
	switch {
	case errors.Is(err, ErrUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		return FailureUnavailable
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	case parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded):
		return FailureCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	default:
		return FailureTransport
	}
}

// Func adapts an ordinary function to the Augmenter interface.
type Func func(ctx context.Context, prompt string, sampling Sampling) ([]Suggestion, error)

// RequestCompletion calls f.
func (f Func) RequestCompletion(ctx context.Context, prompt string, sampling Sampling) ([]Suggestion, error) {
	if f == nil {
		return nil, fmt.Errorf("augment: nil func: %w", ErrUnavailable)
	}
	return f(ctx, prompt, sampling)
}
