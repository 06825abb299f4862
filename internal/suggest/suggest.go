// Package suggest turns Romanized Tamil, English or mixed input into at most
// four validated Tamil-script candidates.
//
// The [Orchestrator] composes the building blocks in the sub-packages: the
// phonetic codec and variant generator produce local candidates, an optional
// augmenter produces model-generated ones, the validator gates both, and a
// TTL cache remembers the merged answer. Only malformed input is reported as
// an error; every other failure degrades the result set instead.
package suggest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/ezhuthu/internal/suggest/augment"
	"github.com/MrWong99/ezhuthu/internal/suggest/validate"
)

// MaxCandidates caps the number of candidates in a resolution.
const MaxCandidates = 4

// DefaultMaxInputRunes bounds Request.Text when no WithMaxInputRunes option
// is given.
const DefaultMaxInputRunes = 500

// maxContextRunes bounds how much preceding text is kept for the prompt and
// the cache key. The tail is kept.
const maxContextRunes = 500

var (
	// ErrInvalidInput is the parent of every input error.
	ErrInvalidInput = errors.New("suggest: invalid input")

	// ErrEmptyInput is returned for blank text.
	ErrEmptyInput = fmt.Errorf("%w: text is empty", ErrInvalidInput)

	// ErrInputTooLong is returned when text exceeds the configured rune limit.
	ErrInputTooLong = fmt.Errorf("%w: text is too long", ErrInvalidInput)

	// ErrUnknownMode is returned for a Mode other than standard or news.
	ErrUnknownMode = fmt.Errorf("%w: unknown mode", ErrInvalidInput)
)

// Source identifies who produced a candidate.
type Source = validate.Source

// Candidate sources.
const (
	SourceLocal     = validate.SourceLocal
	SourceAugmented = validate.SourceAugmented
)

// Mode selects the register of augmented suggestions.
type Mode = augment.Mode

// Modes.
const (
	ModeStandard = augment.ModeStandard
	ModeNews     = augment.ModeNews
)

// Candidate is one suggestion that passed validation.
type Candidate struct {
	Text       string
	Source     Source
	Confidence float64
	// Rank is the 1-based position in the returned list.
	Rank int
}

// Request is one resolution request.
type Request struct {
	// Text is the fragment to resolve. Required.
	Text string
	// Context is the text preceding the fragment. Optional; only the
	// augmenter sees it.
	Context string
	// Mode defaults to ModeStandard.
	Mode Mode
}

// State is a step of a resolution.
type State int

const (
	StatePending State = iota
	StateCacheHit
	StateComputing
	StateAugmenterOK
	StateAugmenterDegraded
	StateMerged
	StateCached
	StateReturned
	StateReturnedEmpty
)

// String returns a snake_case label for s.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCacheHit:
		return "cache_hit"
	case StateComputing:
		return "computing"
	case StateAugmenterOK:
		return "augmenter_ok"
	case StateAugmenterDegraded:
		return "augmenter_degraded"
	case StateMerged:
		return "merged"
	case StateCached:
		return "cached"
	case StateReturned:
		return "returned"
	case StateReturnedEmpty:
		return "returned_empty"
	default:
		return "unknown"
	}
}

// Resolution is the detailed outcome of a resolution.
type Resolution struct {
	Candidates []Candidate
	// Path lists the states visited, in order. The last one is terminal.
	Path []State
	// Augment is how the augmenter call went. FailureNone on cache hits.
	Augment augment.FailureKind
	// Generation is the stream generation, zero outside streams.
	Generation uint64
	// Shared is set when the result came from a concurrent identical request.
	Shared bool
}

// State returns the terminal state.
func (r *Resolution) State() State {
	if len(r.Path) == 0 {
		return StatePending
	}
	return r.Path[len(r.Path)-1]
}

// Texts returns the candidate texts in rank order.
func (r *Resolution) Texts() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Text
	}
	return out
}

func (r *Resolution) clone() *Resolution {
	c := *r
	c.Candidates = cloneCandidates(r.Candidates)
	c.Path = append([]State(nil), r.Path...)
	return &c
}

func (r *Resolution) visit(s State) { r.Path = append(r.Path, s) }

func cloneCandidates(in []Candidate) []Candidate {
	if in == nil {
		return nil
	}
	return append([]Candidate(nil), in...)
}

// collapse trims s and folds every whitespace run to a single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
