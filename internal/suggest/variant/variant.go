// Package variant produces morphological variants of a single Romanized word.
//
// Tamil nouns and verbs typed in Latin letters are frequently missing their
// final vowel or case ending ("vanakk" for "vanakkam", "pann" for "pannu").
// The Generator appends the common endings, transliterates each form and
// returns the distinct results ordered by a fixed confidence.
package variant

import (
	"strings"
	"unicode/utf8"
)

// Confidence values attached to each variant. They are ordering heuristics,
// not calibrated probabilities.
const (
	ConfidenceRaw      = 1.0
	ConfidenceSuffixU  = 0.85
	ConfidenceSuffixAm = 0.80
	ConfidenceSuffixA  = 0.75
)

// MaxVariants caps the number of variants returned by Generate.
const MaxVariants = 4

// Transliterator converts Romanized text to Tamil script.
// *phonetic.Codec satisfies this interface.
type Transliterator interface {
	Transliterate(input string) string
}

// Variant is one transliterated form of the input word.
type Variant struct {
	// Text is the Tamil rendering.
	Text string
	// Source is the Romanized form that produced Text (the word plus suffix).
	Source string
	// Confidence is one of the Confidence* constants.
	Confidence float64
}

// Generator builds variants with a Transliterator. It holds no mutable
// state and is safe for concurrent use.
type Generator struct {
	codec Transliterator
}

// New returns a Generator backed by codec.
func New(codec Transliterator) *Generator {
	return &Generator{codec: codec}
}

// Generate returns at most MaxVariants variants of word, unique by Text and in
// descending confidence order. Forms whose rendering equals word itself (input
// that is already Tamil, digits, punctuation) are dropped, so the result may be
// empty.
func (g *Generator) Generate(word string) []Variant {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil
	}

	forms := []form{{word, ConfidenceRaw}}
	if endsInASCIILetter(word) {
		lower := strings.ToLower(word)
		if !strings.HasSuffix(lower, "u") {
			forms = append(forms, form{word + "u", ConfidenceSuffixU})
		}
		if !strings.HasSuffix(lower, "m") {
			// Covers "am" as well.
			forms = append(forms, form{word + "am", ConfidenceSuffixAm})
		}
		if utf8.RuneCountInString(word) > 2 && !strings.HasSuffix(lower, "a") {
			forms = append(forms, form{word + "a", ConfidenceSuffixA})
		}
	}

	seen := make(map[string]struct{}, len(forms))
	out := make([]Variant, 0, len(forms))
	for _, f := range forms {
		text := g.codec.Transliterate(f.source)
		if text == "" || text == word {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, Variant{Text: text, Source: f.source, Confidence: f.confidence})
		if len(out) == MaxVariants {
			break
		}
	}
	return out
}

type form struct {
	source     string
	confidence float64
}

func endsInASCIILetter(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r < utf8.RuneSelf && ('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z')
}
