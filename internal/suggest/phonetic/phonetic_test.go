package phonetic

import (
	"strings"
	"testing"
)

func TestTransliterate_Words(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		in   string
		want string
	}{
		{"vanakkam", "வனக்கம்"},
		{"Vanakkam", "வனக்கம்"},
		{"nandri", "நன்றி"},
		{"thamizh", "தமிழ்"},
		{"amma", "அம்ம"},
		{"kaa", "கா"},
		{"ka", "க"},
		{"k", "க்"},
		{"sri", "ஸ்ரீ"},
		{"intha", "இந்த"},
		{"anbu", "அன்பு"},
		{"paati", "பாடி"},
		{"vaNakkam", "வணக்கம்"},
		{"kaLLi", "கள்ளி"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := c.Transliterate(tt.in); got != tt.want {
				t.Errorf("Transliterate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTransliterate_TitleCaseIsFolded(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		in   string
		want string
	}{
		{"Naan varen", "நான் வரென்"},
		{"Ravi", "ரவி"},
		{"Lakshmi", c.Transliterate("lakshmi")},
		{"Sundar", c.Transliterate("sundar")},
		{"nalla Naal", c.Transliterate("nalla naal")},
		{"Ra", "ர"},
		// All caps, lone capitals and capitals inside a word keep the
		// uppercase keys.
		{"N", "ண்"},
		{"RA", "ற"},
		{"puLi", "புளி"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := c.Transliterate(tt.in); got != tt.want {
				t.Errorf("Transliterate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTransliterate_LongestMatchWins(t *testing.T) {
	t.Parallel()

	c := New()
	// "aa" must not be read as two short vowels.
	if got := c.Transliterate("aa"); got != "ஆ" {
		t.Errorf(`Transliterate("aa") = %q, want "ஆ"`, got)
	}
	// "tch" must not be read as "t" + "ch".
	if got := c.Transliterate("tch"); got != "ச்ச்" {
		t.Errorf(`Transliterate("tch") = %q, want "ச்ச்"`, got)
	}
	if got := c.Transliterate("ndr"); got != "ன்ற்" {
		t.Errorf(`Transliterate("ndr") = %q, want "ன்ற்"`, got)
	}
}

func TestTransliterate_PassThrough(t *testing.T) {
	t.Parallel()

	c := New()
	for _, in := range []string{"123", "?!.,", "🙂", "வணக்கம்", " \t\n"} {
		if got := c.Transliterate(in); got != in {
			t.Errorf("Transliterate(%q) = %q, want unchanged", in, got)
		}
	}
	if got := c.Transliterate("ka 42"); got != "க 42" {
		t.Errorf(`Transliterate("ka 42") = %q, want "க 42"`, got)
	}
}

func TestTransliterate_RoundTripEveryKey(t *testing.T) {
	t.Parallel()

	c := New()
	for _, tok := range c.Tokens() {
		if got := c.Transliterate(tok.Key); got != tok.Glyphs {
			t.Errorf("Transliterate(%q) = %q, want table value %q", tok.Key, got, tok.Glyphs)
		}
	}
}

func TestTransliterate_Idempotent(t *testing.T) {
	t.Parallel()

	c := New()
	inputs := []string{
		"vanakkam", "Sri Lanka", "naan oru tamizhan", "hello world 2024!",
		"KSHatriya", "x y z", "vaNakkam, eppadi irukeenga?",
	}
	for _, in := range inputs {
		once := c.Transliterate(in)
		if twice := c.Transliterate(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestTransliterate_NoLatinLettersRemain(t *testing.T) {
	t.Parallel()

	c := New()
	in := "The quick brown fox jumps over the lazy dog ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	out := c.Transliterate(in)
	if strings.ContainsAny(out, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		t.Errorf("Latin letters left in %q", out)
	}
}

func TestCaseSignificant(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		in   string
		want bool
	}{
		{"vanakkam", false},
		{"Vanakkam", false},
		{"vaNakkam", true},
		{"kaLLi", true},
		{"SRI", false},
		{"Raja", false},
		{"RAja", true},
		{"kaRi", true},
	}
	for _, tt := range tests {
		if got := c.CaseSignificant(tt.in); got != tt.want {
			t.Errorf("CaseSignificant(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	c := New()
	tok, ok := c.Lookup("zh")
	if !ok || tok.Glyphs != "ழ்" || tok.Kind != KindConsonant {
		t.Errorf(`Lookup("zh") = %+v, %v`, tok, ok)
	}
	if _, ok := c.Lookup("ZH"); ok {
		t.Error(`Lookup("ZH") should be exact-case`)
	}
	if _, ok := c.Lookup("abcd"); ok {
		t.Error("Lookup of over-long key should fail")
	}
}

func TestTokens_OrderedByTier(t *testing.T) {
	t.Parallel()

	toks := New().Tokens()
	if len(toks) != len(builtinTokens) {
		t.Fatalf("Tokens() returned %d entries, want %d", len(toks), len(builtinTokens))
	}
	prev := maxKeyLen
	for _, tok := range toks {
		n := len([]rune(tok.Key))
		if n > prev {
			t.Fatalf("token %q out of tier order", tok.Key)
		}
		prev = n
	}
}
