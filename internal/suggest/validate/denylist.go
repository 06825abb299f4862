package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// MatchKind selects how a Pattern is compared against candidate text.
type MatchKind int

const (
	// MatchExact requires the whole normalised candidate to equal the pattern.
	MatchExact MatchKind = iota
	// MatchContains matches when the pattern occurs anywhere in the candidate.
	MatchContains
	// MatchNear matches when the Levenshtein distance (in runes) between the
	// whole candidate and the pattern is at most MaxDistance.
	MatchNear
)

// Pattern is one deny-list entry.
type Pattern struct {
	Text        string
	Kind        MatchKind
	MaxDistance int
}

// Exact returns a MatchExact pattern.
func Exact(text string) Pattern { return Pattern{Text: text, Kind: MatchExact} }

// Contains returns a MatchContains pattern.
func Contains(text string) Pattern { return Pattern{Text: text, Kind: MatchContains} }

// Near returns a MatchNear pattern allowing up to maxDistance rune edits.
func Near(text string, maxDistance int) Pattern {
	return Pattern{Text: text, Kind: MatchNear, MaxDistance: maxDistance}
}

// builtinArtifacts are renderings observed when English greetings and
// headlines were sounded out letter by letter.
var builtinArtifacts = []Pattern{
	Near("குட் மார்னிங்", 1),
	Near("குட் நைட்", 1),
	Near("குட் ஈவினிங்", 1),
	Near("குட் ஆஃப்டர்நூன்", 2),
	Near("தேங்க் யூ", 1),
	Near("ஹவ் ஆர் யூ", 1),
	Near("ஐ லவ் யூ", 1),
	Near("ஹேப்பி பர்த்டே", 2),
	Exact("தேங்க்ஸ்"),
	Exact("வெல்கம்"),
	Exact("ப்ளீஸ்"),
	Exact("சாரி"),
	Exact("ஓகே"),
	Contains("பிரேக்கிங் நியூஸ்"),
	Contains("ப்ரேக்கிங் நியூஸ்"),
	Contains("மார்னிங்"),
	Contains("ஈவினிங்"),
	Contains("தேங்க் யூ"),
	Contains("லேட்டஸ்ட் அப்டேட்"),
	Contains("ஹெட்லைன்ஸ்"),
}

// DenyList is a fixed, ordered list of artifact patterns.
type DenyList struct {
	patterns []Pattern
}

// NewDenyList returns the built-in patterns followed by extra. Patterns are
// normalised once here; blank ones are dropped.
func NewDenyList(extra ...Pattern) *DenyList {
	all := make([]Pattern, 0, len(builtinArtifacts)+len(extra))
	for _, p := range append(append([]Pattern(nil), builtinArtifacts...), extra...) {
		p.Text = normalize(p.Text)
		if p.Text == "" {
			continue
		}
		all = append(all, p)
	}
	return &DenyList{patterns: all}
}

// Len returns the number of patterns.
func (d *DenyList) Len() int { return len(d.patterns) }

// Match returns the first pattern that text matches.
func (d *DenyList) Match(text string) (Pattern, bool) {
	text = normalize(text)
	if text == "" {
		return Pattern{}, false
	}
	for _, p := range d.patterns {
		if p.matches(text) {
			return p, true
		}
	}
	return Pattern{}, false
}

func (p Pattern) matches(text string) bool {
	switch p.Kind {
	case MatchExact:
		return text == p.Text
	case MatchContains:
		return strings.Contains(text, p.Text)
	case MatchNear:
		// Length difference is a lower bound on the distance.
		diff := utf8.RuneCountInString(text) - utf8.RuneCountInString(p.Text)
		if diff > p.MaxDistance || -diff > p.MaxDistance {
			return false
		}
		return matchr.Levenshtein(text, p.Text) <= p.MaxDistance
	default:
		return false
	}
}
