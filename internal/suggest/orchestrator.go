package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/ezhuthu/internal/entitlement"
	"github.com/MrWong99/ezhuthu/internal/observe"
	"github.com/MrWong99/ezhuthu/internal/suggest/augment"
	"github.com/MrWong99/ezhuthu/internal/suggest/cache"
	"github.com/MrWong99/ezhuthu/internal/suggest/phonetic"
	"github.com/MrWong99/ezhuthu/internal/suggest/validate"
	"github.com/MrWong99/ezhuthu/internal/suggest/variant"
)

// DefaultEntitlementTimeout bounds each entitlement call.
const DefaultEntitlementTimeout = 300 * time.Millisecond

// Orchestrator resolves requests into candidates. It is safe for concurrent
// use; construct it with [New].
type Orchestrator struct {
	codec     *phonetic.Codec
	variants  *variant.Generator
	validator *validate.Validator
	cache     *cache.TTL[[]Candidate]
	augmenter augment.Augmenter
	checker   entitlement.Checker
	metrics   *observe.Metrics

	sampling           augment.Sampling
	augmentTimeout     time.Duration
	entitlementTimeout time.Duration
	maxInputRunes      int
	localFill          bool
	now                func() time.Time

	group      singleflight.Group
	generation atomic.Uint64

	mu         sync.Mutex
	streams    map[string]*stream
	lastPruned time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache injects the result cache. Without it each Orchestrator gets its
// own cache with the default TTL.
func WithCache(c *cache.TTL[[]Candidate]) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithAugmenter sets the augmenter. Without one, resolutions are local-only.
func WithAugmenter(a augment.Augmenter) Option {
	return func(o *Orchestrator) { o.augmenter = a }
}

// WithEntitlement sets the entitlement checker consulted before each
// augmenter call. The default is [entitlement.Unlimited].
func WithEntitlement(c entitlement.Checker) Option {
	return func(o *Orchestrator) { o.checker = c }
}

// WithValidator replaces the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSampling sets the generation parameters sent to the augmenter.
func WithSampling(s augment.Sampling) Option {
	return func(o *Orchestrator) { o.sampling = s }
}

// WithAugmentTimeout bounds each augmenter call. Non-positive values are
// ignored.
func WithAugmentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.augmentTimeout = d
		}
	}
}

// WithEntitlementTimeout bounds each entitlement call. Non-positive values
// are ignored.
func WithEntitlementTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.entitlementTimeout = d
		}
	}
}

// WithMaxInputRunes sets the longest accepted Request.Text. Non-positive
// values are ignored.
func WithMaxInputRunes(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxInputRunes = n
		}
	}
}

// WithLocalFill lets local candidates fill the slots left over when the
// augmenter returned fewer than MaxCandidates valid candidates. Off by
// default: a usable augmented answer replaces the local one entirely.
func WithLocalFill(enabled bool) Option {
	return func(o *Orchestrator) { o.localFill = enabled }
}

// WithClock replaces time.Now for stream bookkeeping. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		codec:              phonetic.New(),
		augmentTimeout:     augment.DefaultTimeout,
		entitlementTimeout: DefaultEntitlementTimeout,
		maxInputRunes:      DefaultMaxInputRunes,
		now:                time.Now,
		streams:            make(map[string]*stream),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.variants = variant.New(o.codec)
	if o.validator == nil {
		o.validator = validate.New()
	}
	if o.cache == nil {
		o.cache = cache.New[[]Candidate]()
	}
	if o.checker == nil {
		o.checker = entitlement.Unlimited{}
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Codec returns the phonetic codec used for local candidates.
func (o *Orchestrator) Codec() *phonetic.Codec { return o.codec }

// Transliterate renders text with the phonetic codec alone. Nothing is cached
// and no collaborator is called.
func (o *Orchestrator) Transliterate(text string) string {
	return o.codec.Transliterate(collapse(text))
}

// CacheStats returns the result cache counters.
func (o *Orchestrator) CacheStats() cache.Stats { return o.cache.Stats() }

// Augmented reports whether an augmenter is configured.
func (o *Orchestrator) Augmented() bool { return o.augmenter != nil }

// Resolve returns at most MaxCandidates validated candidates for req. The
// only errors are input errors wrapping ErrInvalidInput.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) ([]Candidate, error) {
	res, err := o.ResolveDetailed(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

// ResolveDetailed is Resolve returning the full Resolution.
//
// Concurrent calls for the same normalised request share one computation. A
// caller whose ctx ends while waiting gets local candidates immediately; the
// shared computation continues for the others under its own deadline.
func (o *Orchestrator) ResolveDetailed(ctx context.Context, req Request) (*Resolution, error) {
	in, err := o.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "suggest.resolve")
	defer span.End()
	start := time.Now()

	o.gate(ctx, &in)
	if res, ok := o.lookup(ctx, in); ok {
		o.finish(ctx, span, res, start)
		return res, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := o.group.DoChan(in.key, func() (any, error) {
		return o.compute(shared, in, nil), nil
	})

	var res *Resolution
	select {
	case r := <-ch:
		res = r.Val.(*Resolution).clone()
		res.Shared = r.Shared
	case <-ctx.Done():
		res = o.localOnly(ctx, in, augment.FailureCanceled)
	}
	o.finish(ctx, span, res, start)
	return res, nil
}

// input is a validated, normalised request.
type input struct {
	text     string
	context  string
	mode     Mode
	key      string
	entitled bool
}

func (o *Orchestrator) prepare(req Request) (input, error) {
	text := collapse(req.Text)
	if text == "" {
		return input{}, ErrEmptyInput
	}
	if n := utf8.RuneCountInString(text); n > o.maxInputRunes {
		return input{}, fmt.Errorf("%w (%d runes, limit %d)", ErrInputTooLong, n, o.maxInputRunes)
	}
	mode, err := augment.ParseMode(string(req.Mode))
	if err != nil {
		return input{}, fmt.Errorf("%w %q", ErrUnknownMode, req.Mode)
	}

	in := input{
		text:    text,
		context: tail(collapse(req.Context), maxContextRunes),
		mode:    mode,
	}
	keyText := text
	if !o.codec.CaseSignificant(text) {
		keyText = strings.ToLower(text)
	}
	in.key = string(mode) + "\x1f" + in.context + "\x1f" + keyText
	return in, nil
}

// gate asks the checker once per resolution when an augmenter is configured
// and moves the key into the entitled or local partition. Entitled and
// unentitled callers never share cache entries or in-flight computations.
func (o *Orchestrator) gate(ctx context.Context, in *input) {
	tier := "local"
	if o.augmenter != nil && o.entitled(ctx) {
		in.entitled = true
		tier = "augmented"
	}
	in.key = tier + "\x1f" + in.key
}

func (o *Orchestrator) lookup(ctx context.Context, in input) (*Resolution, bool) {
	cands, ok := o.cache.Get(in.key)
	o.metrics.RecordCacheLookup(ctx, ok)
	if !ok {
		return nil, false
	}
	res := &Resolution{
		Candidates: cloneCandidates(cands),
		Path:       []State{StatePending, StateCacheHit},
	}
	if len(res.Candidates) == 0 {
		res.visit(StateReturnedEmpty)
	} else {
		res.visit(StateReturned)
	}
	return res, true
}

// compute runs steps two to six of a resolution. st is nil outside streams.
func (o *Orchestrator) compute(ctx context.Context, in input, st *streamCall) *Resolution {
	res := &Resolution{Path: []State{StatePending, StateComputing}}
	if st != nil {
		res.Generation = st.gen
	}

	local := o.localCandidates(ctx, in.text)
	augmented, failure := o.augmentedCandidates(ctx, in, st)
	res.Augment = failure
	if failure == augment.FailureNone {
		res.visit(StateAugmenterOK)
	} else {
		res.visit(StateAugmenterDegraded)
	}

	res.Candidates = o.merge(augmented, local)
	res.visit(StateMerged)

	if cacheable(failure) {
		o.cache.Put(in.key, cloneCandidates(res.Candidates))
		res.visit(StateCached)
	}
	if len(res.Candidates) == 0 {
		res.visit(StateReturnedEmpty)
	} else {
		res.visit(StateReturned)
	}

	if usedAugmented(res.Candidates) {
		o.recordUsage(ctx)
	}
	return res
}

// localOnly is the fallback for callers that stop waiting on a shared
// computation. Nothing is cached.
func (o *Orchestrator) localOnly(ctx context.Context, in input, failure augment.FailureKind) *Resolution {
	res := &Resolution{
		Path:    []State{StatePending, StateComputing, StateAugmenterDegraded},
		Augment: failure,
	}
	res.Candidates = o.merge(nil, o.localCandidates(ctx, in.text))
	res.visit(StateMerged)
	if len(res.Candidates) == 0 {
		res.visit(StateReturnedEmpty)
	} else {
		res.visit(StateReturned)
	}
	return res
}

// cacheable reports whether a result with failure may be cached. Results cut
// short by the caller say nothing about the input.
func cacheable(failure augment.FailureKind) bool {
	return failure != augment.FailureCanceled && failure != augment.FailureSuperseded
}

func (o *Orchestrator) localCandidates(ctx context.Context, text string) []Candidate {
	vs := o.variants.Generate(text)
	out := make([]Candidate, 0, len(vs))
	for _, v := range vs {
		if !o.admit(ctx, v.Text, SourceLocal) {
			continue
		}
		out = append(out, Candidate{Text: v.Text, Source: SourceLocal, Confidence: v.Confidence})
	}
	return out
}

// augmentedCandidates asks the augmenter for suggestions when one is
// configured and gate found the caller entitled to it.
func (o *Orchestrator) augmentedCandidates(ctx context.Context, in input, st *streamCall) ([]Candidate, augment.FailureKind) {
	if o.augmenter == nil {
		return nil, augment.FailureUnavailable
	}
	if !in.entitled {
		o.metrics.RecordAugment(ctx, augment.FailureNotEntitled.String(), 0)
		return nil, augment.FailureNotEntitled
	}

	ctx, span := observe.StartSpan(ctx, "suggest.augment")
	defer span.End()

	callCtx := ctx
	if st != nil {
		callCtx = st.ctx
	}
	r := <-augment.Start(callCtx, o.augmenter, augment.Call{
		Prompt:   augment.BuildPrompt(in.text, in.context, in.mode),
		Sampling: o.sampling,
		Timeout:  o.augmentTimeout,
	})

	failure := r.Failure
	if st != nil && !o.current(st) {
		failure = augment.FailureSuperseded
	}
	o.metrics.RecordAugment(ctx, failure.String(), r.Elapsed.Seconds())
	span.SetAttributes(
		attribute.String("augment.outcome", failure.String()),
		attribute.Int("augment.suggestions", len(r.Suggestions)),
	)

	log := observe.Logger(ctx)
	switch failure {
	case augment.FailureNone:
	case augment.FailureTimeout, augment.FailureTransport, augment.FailureMalformed:
		span.SetStatus(codes.Error, failure.String())
		log.Warn("augmenter degraded, using local candidates",
			"outcome", failure.String(),
			"elapsed", r.Elapsed,
			"err", r.Err,
		)
		return nil, failure
	default:
		log.Debug("augmenter skipped", "outcome", failure.String(), "generation", generationOf(st))
		return nil, failure
	}

	out := make([]Candidate, 0, len(r.Suggestions))
	for _, s := range r.Suggestions {
		text := collapse(s.Text)
		if !o.admit(ctx, text, SourceAugmented) {
			continue
		}
		out = append(out, Candidate{Text: text, Source: SourceAugmented, Confidence: s.Confidence})
	}
	return out, augment.FailureNone
}

// admit runs the validator and counts rejections.
func (o *Orchestrator) admit(ctx context.Context, text string, src Source) bool {
	v := o.validator.Check(text, src)
	if v.Passed {
		return true
	}
	o.metrics.RecordRejection(ctx, v.FailedGate.String(), src.String())
	observe.Logger(ctx).Debug("candidate rejected",
		"text", text,
		"source", src.String(),
		"gate", v.FailedGate.String(),
	)
	return false
}

// entitled asks the checker once, under the entitlement timeout. Errors and
// answers arriving after the timeout deny.
func (o *Orchestrator) entitled(ctx context.Context) bool {
	st, err := within(ctx, o.entitlementTimeout, o.checker.CheckEntitlement)
	switch {
	case err != nil:
		o.metrics.RecordEntitlementCheck(ctx, "error")
		level := slog.LevelWarn
		if errors.Is(err, entitlement.ErrNoAccount) {
			level = slog.LevelDebug
		}
		observe.Logger(ctx).Log(ctx, level, "entitlement check failed, skipping augmenter", "err", err)
		return false
	case !st.Allowed:
		o.metrics.RecordEntitlementCheck(ctx, "denied")
		return false
	default:
		o.metrics.RecordEntitlementCheck(ctx, "allowed")
		return true
	}
}

// recordUsage waits at most the entitlement timeout for the checker.
func (o *Orchestrator) recordUsage(ctx context.Context) {
	_, err := within(ctx, o.entitlementTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.checker.RecordUsageEvent(ctx, entitlement.UsageAugmentedSuggestion)
	})
	if err != nil {
		observe.Logger(ctx).Warn("failed to record usage event", "err", err)
	}
}

// within runs fn under timeout and returns as soon as fn does or the timeout
// passes, whichever comes first. A checker that ignores its context keeps
// running in the background and its late answer is dropped.
func within[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()
	select {
	case out := <-done:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// merge prefers augmented candidates, deduplicates by text, truncates to
// MaxCandidates and assigns ranks.
func (o *Orchestrator) merge(augmented, local []Candidate) []Candidate {
	pool := augmented
	if len(pool) == 0 {
		pool = local
	} else if o.localFill {
		pool = append(append([]Candidate(nil), augmented...), local...)
	}

	seen := make(map[string]struct{}, len(pool))
	out := make([]Candidate, 0, MaxCandidates)
	for _, c := range pool {
		if _, dup := seen[c.Text]; dup {
			continue
		}
		seen[c.Text] = struct{}{}
		c.Rank = len(out) + 1
		out = append(out, c)
		if len(out) == MaxCandidates {
			break
		}
	}
	return out
}

func usedAugmented(cands []Candidate) bool {
	for _, c := range cands {
		if c.Source == SourceAugmented {
			return true
		}
	}
	return false
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, res *Resolution, start time.Time) {
	outcome := "local"
	switch {
	case res.Path[1] == StateCacheHit:
		outcome = "cache_hit"
	case len(res.Candidates) == 0:
		outcome = "empty"
	case usedAugmented(res.Candidates):
		outcome = "augmented"
	}
	o.metrics.SuggestDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("outcome", outcome)))
	span.SetAttributes(
		attribute.String("suggest.outcome", outcome),
		attribute.String("suggest.state", res.State().String()),
		attribute.Int("suggest.candidates", len(res.Candidates)),
	)
}
