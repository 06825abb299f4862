// Package validate decides whether a candidate may be shown to a user.
//
// Two independent gates are applied. The purity gate accepts only Tamil
// script, whitespace and a handful of sentence punctuation marks. The artifact
// gate rejects text that is well-formed Tamil but was produced by sounding out
// English letter by letter ("குட் மார்னிங்" for "good morning") instead of
// translating it. Local candidates come from the deterministic codec and only
// face the purity gate; augmented candidates must clear both.
package validate

import (
	"strings"
	"unicode"
)

// Tamil Unicode block bounds.
const (
	tamilFirst = 0x0B80
	tamilLast  = 0x0BFF
)

// Source identifies who produced a candidate.
type Source int

const (
	// SourceLocal marks candidates from the phonetic codec or variant generator.
	SourceLocal Source = iota
	// SourceAugmented marks candidates from the external augmenter.
	SourceAugmented
)

// String returns a lowercase label for s.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceAugmented:
		return "augmented"
	default:
		return "unknown"
	}
}

// Gate names the check a candidate failed.
type Gate int

const (
	// GateNone means every applicable gate passed.
	GateNone Gate = iota
	// GatePurity is the script-purity gate.
	GatePurity
	// GateArtifact is the phonetic-artifact deny-list gate.
	GateArtifact
)

// String returns a lowercase label for g.
func (g Gate) String() string {
	switch g {
	case GateNone:
		return "none"
	case GatePurity:
		return "purity"
	case GateArtifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of Check.
type Verdict struct {
	Passed     bool
	FailedGate Gate
}

// IsPureScript reports whether every rune of text is a Tamil-block codepoint,
// Unicode whitespace, or one of ". , ? !". Empty and whitespace-only strings
// fail; punctuation alone passes.
func IsPureScript(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		switch {
		case r >= tamilFirst && r <= tamilLast:
		case unicode.IsSpace(r):
		case r == '.' || r == ',' || r == '?' || r == '!':
		default:
			return false
		}
	}
	return true
}

// Validator applies both gates. It is immutable after construction and safe
// for concurrent use.
type Validator struct {
	deny *DenyList
}

// Option configures a Validator.
type Option func(*Validator)

// WithDenyList replaces the built-in deny list.
func WithDenyList(d *DenyList) Option {
	return func(v *Validator) {
		v.deny = d
	}
}

// New returns a Validator using the built-in deny list unless overridden.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, o := range opts {
		o(v)
	}
	if v.deny == nil {
		v.deny = NewDenyList()
	}
	return v
}

// IsKnownArtifact reports whether text matches the deny list.
func (v *Validator) IsKnownArtifact(text string) bool {
	_, ok := v.deny.Match(text)
	return ok
}

// Check runs the gates that apply to source, purity first.
func (v *Validator) Check(text string, source Source) Verdict {
	if !IsPureScript(text) {
		return Verdict{FailedGate: GatePurity}
	}
	if source == SourceAugmented && v.IsKnownArtifact(text) {
		return Verdict{FailedGate: GateArtifact}
	}
	return Verdict{Passed: true}
}

// normalize trims text and collapses interior whitespace runs to one space.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
