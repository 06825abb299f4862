// Package phonetic converts Romanized Tamil into Tamil script.
//
// The Codec scans its input left to right and, at each position, takes the
// longest key in its table that matches: three graphemes, then two, then one.
// There is no backtracking and no input is rejected; runes that match no key
// are copied through unchanged. A consonant followed by a vowel is joined into
// one syllable by replacing the consonant's pulli with the vowel sign, so "ka"
// becomes க and "kaa" becomes கா.
//
// Case is preserved during lookup. Each window is first matched exactly and
// then with its letters folded to lowercase, which keeps the uppercase keys
// N (ண), L (ள), R (ற) and S (ஸ) distinct while "Vanakkam" still reads as
// "vanakkam". A capital that starts a word and is followed by a lowercase
// letter is ordinary capitalisation and is folded before lookup, so "Naan"
// reads as நான் and "Ravi" as ரவி. Write the whole word or just the letter in
// capitals ("NA", "N") to get a retroflex sound at the start of a word.
package phonetic

import (
	"sort"
	"strings"
	"unicode"
)

// Codec is a read-only longest-match transliterator. The zero value is not
// usable; construct with New. A Codec is safe for concurrent use.
type Codec struct {
	table *table
}

// New returns a Codec over the built-in token table.
func New() *Codec {
	return &Codec{table: defaultTable}
}

// Transliterate converts input to Tamil script. It is total: every input,
// including the empty string, produces an output.
func (c *Codec) Transliterate(input string) string {
	if input == "" {
		return ""
	}
	runes := foldTitleCase([]rune(input))
	out := make([]rune, 0, len(runes)*2)
	afterConsonant := false

	for i := 0; i < len(runes); {
		tok, n, ok := c.match(runes, i)
		if !ok {
			out = append(out, runes[i])
			afterConsonant = false
			i++
			continue
		}

		glyphs := tok.Glyphs
		if tok.Key == "n" && i > 0 && isASCIILetter(runes[i-1]) {
			glyphs = alveolarN
		}

		if tok.Kind == KindVowel && afterConsonant {
			// Drop the pulli and attach the dependent sign.
			out = out[:len(out)-1]
			out = append(out, []rune(tok.Sign)...)
		} else {
			out = append(out, []rune(glyphs)...)
		}

		afterConsonant = tok.Kind == KindConsonant
		i += n
	}
	return string(out)
}

// match finds the longest token starting at runes[i]. It returns the token,
// the number of runes consumed and whether anything matched.
func (c *Codec) match(runes []rune, i int) (Token, int, bool) {
	for n := maxKeyLen; n >= 1; n-- {
		if i+n > len(runes) {
			continue
		}
		window := string(runes[i : i+n])
		if tok, ok := c.table[n][window]; ok {
			return tok, n, true
		}
		if lower := strings.ToLower(window); lower != window {
			if tok, ok := c.table[n][lower]; ok {
				return tok, n, true
			}
		}
	}
	return Token{}, 0, false
}

// Lookup returns the token registered for key, matched exactly.
func (c *Codec) Lookup(key string) (Token, bool) {
	n := len([]rune(key))
	if n < 1 || n > maxKeyLen {
		return Token{}, false
	}
	tok, ok := c.table[n][key]
	return tok, ok
}

// Tokens returns a snapshot of the table, longest keys first and then sorted
// by key.
func (c *Codec) Tokens() []Token {
	var out []Token
	for n := maxKeyLen; n >= 1; n-- {
		start := len(out)
		for _, tok := range c.table[n] {
			out = append(out, tok)
		}
		tier := out[start:]
		sort.Slice(tier, func(a, b int) bool { return tier[a].Key < tier[b].Key })
	}
	return out
}

// CaseSignificant reports whether folding s to lowercase would change its
// transliteration. Callers that normalise text for lookup keys must not fold
// case when this returns true.
func (c *Codec) CaseSignificant(s string) bool {
	lower := strings.ToLower(s)
	if lower == s {
		return false
	}
	return c.Transliterate(s) != c.Transliterate(lower)
}

// foldTitleCase lowercases every word-initial capital that is followed by a
// lowercase letter. runes is modified in place.
func foldTitleCase(runes []rune) []rune {
	for i, r := range runes {
		if !unicode.IsUpper(r) || i+1 >= len(runes) || !unicode.IsLower(runes[i+1]) {
			continue
		}
		if i > 0 && isASCIILetter(runes[i-1]) {
			continue
		}
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func isASCIILetter(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsLetter(r)
}
