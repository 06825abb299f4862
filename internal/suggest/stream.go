package suggest

import (
	"context"
	"time"

	"github.com/MrWong99/ezhuthu/internal/observe"
)

// streamIdleTimeout is how long a stream without an in-flight call is kept
// before it is forgotten. Streams that end explicitly are removed at once.
const streamIdleTimeout = 10 * time.Minute

// stream tracks the newest generation issued for one input stream.
type stream struct {
	gen      uint64
	cancel   context.CancelFunc
	lastUsed time.Time
}

// streamCall is one in-flight resolution on a stream.
type streamCall struct {
	id  string
	gen uint64
	// ctx is cancelled when a newer request on the stream arrives.
	ctx context.Context
}

// ResolveStream resolves req as the newest request of the stream streamID,
// typically one editor session. Each call takes a process-wide increasing
// generation and cancels the augmenter call of the previous generation on the
// same stream. An augmenter answer that arrives after its generation was
// superseded is discarded: the superseded caller gets local candidates and
// nothing is cached.
//
// Stream requests are never merged with concurrent identical requests. An
// empty streamID behaves like ResolveDetailed.
func (o *Orchestrator) ResolveStream(ctx context.Context, streamID string, req Request) (*Resolution, error) {
	if streamID == "" {
		return o.ResolveDetailed(ctx, req)
	}
	in, err := o.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "suggest.resolve_stream")
	defer span.End()
	start := time.Now()

	st, release := o.begin(ctx, streamID)
	defer release()

	o.gate(ctx, &in)
	if res, ok := o.lookup(ctx, in); ok {
		res.Generation = st.gen
		o.finish(ctx, span, res, start)
		return res, nil
	}

	res := o.compute(ctx, in, st)
	o.finish(ctx, span, res, start)
	return res, nil
}

// EndStream forgets streamID and cancels its in-flight augmenter call, if any.
func (o *Orchestrator) EndStream(streamID string) {
	o.mu.Lock()
	s, ok := o.streams[streamID]
	if ok {
		delete(o.streams, streamID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	o.metrics.ActiveStreams.Add(context.Background(), -1)
}

// ActiveStreams returns the number of streams currently tracked.
func (o *Orchestrator) ActiveStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}

// begin registers a new generation on streamID, cancelling the previous one.
// release must be called when the resolution is done.
func (o *Orchestrator) begin(ctx context.Context, streamID string) (*streamCall, func()) {
	gen := o.generation.Add(1)
	callCtx, cancel := context.WithCancel(ctx)
	now := o.now()

	o.mu.Lock()
	s, ok := o.streams[streamID]
	if !ok {
		o.pruneLocked(now)
		s = &stream{}
		o.streams[streamID] = s
	}
	prev := s.cancel
	s.gen = gen
	s.cancel = cancel
	s.lastUsed = now
	o.mu.Unlock()

	if !ok {
		o.metrics.ActiveStreams.Add(ctx, 1)
	}
	if prev != nil {
		prev()
	}

	release := func() {
		cancel()
		o.mu.Lock()
		if s, ok := o.streams[streamID]; ok && s.gen == gen {
			s.cancel = nil
			s.lastUsed = o.now()
		}
		o.mu.Unlock()
	}
	return &streamCall{id: streamID, gen: gen, ctx: callCtx}, release
}

// current reports whether st is still the newest generation of its stream.
func (o *Orchestrator) current(st *streamCall) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.streams[st.id]
	return ok && s.gen == st.gen
}

// pruneLocked drops idle streams, at most once per minute. o.mu must be held.
func (o *Orchestrator) pruneLocked(now time.Time) {
	if now.Sub(o.lastPruned) < time.Minute {
		return
	}
	o.lastPruned = now
	var dropped int64
	for id, s := range o.streams {
		if s.cancel == nil && now.Sub(s.lastUsed) >= streamIdleTimeout {
			delete(o.streams, id)
			dropped++
		}
	}
	if dropped > 0 {
		o.metrics.ActiveStreams.Add(context.Background(), -dropped)
	}
}

func generationOf(st *streamCall) uint64 {
	if st == nil {
		return 0
	}
	return st.gen
}
