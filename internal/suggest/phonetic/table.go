package phonetic

// Kind classifies a table entry by how it combines with its neighbours.
type Kind int

const (
	// KindVowel is a vowel. After a consonant it renders as its dependent sign.
	KindVowel Kind = iota
	// KindConsonant is a consonant (or consonant cluster) in pulli-terminated form.
	KindConsonant
	// KindSyllable is a fixed syllable that never combines with a following vowel.
	KindSyllable
)

// String returns a lowercase label for k.
func (k Kind) String() string {
	switch k {
	case KindVowel:
		return "vowel"
	case KindConsonant:
		return "consonant"
	case KindSyllable:
		return "syllable"
	default:
		return "unknown"
	}
}

// Token is one immutable mapping from a Latin grapheme sequence to Tamil script.
type Token struct {
	// Key is the Latin grapheme sequence, one to three runes long.
	Key string
	// Glyphs is the standalone Tamil rendering: independent vowel form for
	// vowels, pulli-terminated form for consonants.
	Glyphs string
	// Sign is the dependent vowel sign used after a consonant. Empty for the
	// inherent "a" and for non-vowels.
	Sign string
	// Kind controls combination with adjacent tokens.
	Kind Kind
}

const pulli = '்'

// maxKeyLen is the longest key in the table; it bounds the match window.
const maxKeyLen = 3

func vowel(key, glyphs, sign string) Token {
	return Token{Key: key, Glyphs: glyphs, Sign: sign, Kind: KindVowel}
}

func consonant(key, glyphs string) Token {
	return Token{Key: key, Glyphs: glyphs, Kind: KindConsonant}
}

// builtinTokens is the whole mapping. Lowercase keys also serve capitalised
// input; the uppercase keys below map retroflex and grantha letters.
var builtinTokens = []Token{
	// Three-grapheme compounds.
	consonant("ksh", "க்ஷ்"),
	{Key: "sri", Glyphs: "ஸ்ரீ", Kind: KindSyllable},
	consonant("nth", "ந்த்"),
	consonant("ndh", "ந்த்"),
	consonant("ndr", "ன்ற்"),
	consonant("ngk", "ங்க்"),
	consonant("ngg", "ங்க்"),
	consonant("tch", "ச்ச்"),

	// Two-grapheme vowels.
	vowel("aa", "ஆ", "ா"),
	vowel("ee", "ஈ", "ீ"),
	vowel("ii", "ஈ", "ீ"),
	vowel("oo", "ஊ", "ூ"),
	vowel("uu", "ஊ", "ூ"),
	vowel("ai", "ஐ", "ை"),
	vowel("au", "ஔ", "ௌ"),
	vowel("ae", "ஏ", "ே"),
	vowel("oa", "ஓ", "ோ"),

	// Two-grapheme consonants.
	consonant("th", "த்"),
	consonant("dh", "த்"),
	consonant("ch", "ச்"),
	consonant("sh", "ஷ்"),
	consonant("zh", "ழ்"),
	consonant("ng", "ங்"),
	consonant("nj", "ஞ்"),
	consonant("nd", "ண்ட்"),
	consonant("kh", "க்"),
	consonant("gh", "க்"),
	consonant("ph", "ஃப்"),
	consonant("bh", "ப்"),
	consonant("jh", "ஜ்"),

	// Single-grapheme vowels.
	vowel("a", "அ", ""),
	vowel("i", "இ", "ி"),
	vowel("u", "உ", "ு"),
	vowel("e", "எ", "ெ"),
	vowel("o", "ஒ", "ொ"),

	// Single-grapheme consonants.
	consonant("k", "க்"),
	consonant("g", "க்"),
	consonant("c", "க்"),
	consonant("q", "க்"),
	consonant("s", "ச்"),
	consonant("S", "ஸ்"),
	consonant("j", "ஜ்"),
	consonant("t", "ட்"),
	consonant("d", "ட்"),
	consonant("n", "ந்"),
	consonant("N", "ண்"),
	consonant("p", "ப்"),
	consonant("b", "ப்"),
	consonant("m", "ம்"),
	consonant("y", "ய்"),
	consonant("r", "ர்"),
	consonant("R", "ற்"),
	consonant("l", "ல்"),
	consonant("L", "ள்"),
	consonant("v", "வ்"),
	consonant("w", "வ்"),
	consonant("h", "ஹ்"),
	consonant("f", "ஃப்"),
	consonant("x", "க்ஸ்"),
	consonant("z", "ஸ்"),
}

// alveolarN replaces the dental ந் for an "n" inside a word.
const alveolarN = "ன்"

// table holds one lookup map per key length; tiers[0] is unused.
type table [maxKeyLen + 1]map[string]Token

func buildTable(tokens []Token) *table {
	var t table
	for i := 1; i <= maxKeyLen; i++ {
		t[i] = make(map[string]Token)
	}
	for _, tok := range tokens {
		n := len([]rune(tok.Key))
		if n < 1 || n > maxKeyLen {
			continue
		}
		t[n][tok.Key] = tok
	}
	return &t
}

var defaultTable = buildTable(builtinTokens)
