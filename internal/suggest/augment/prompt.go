package augment

import (
	"fmt"
	"strings"
)

// Mode selects the register of the requested suggestions.
type Mode string

const (
	// ModeStandard is everyday written Tamil.
	ModeStandard Mode = "standard"
	// ModeNews is formal Tamil as used in news copy and headlines.
	ModeNews Mode = "news"
)

// ParseMode maps a request value to a Mode. The empty string selects
// ModeStandard.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeNews:
		return ModeNews, nil
	default:
		return "", fmt.Errorf("augment: unknown mode %q", s)
	}
}

// systemPrompt is sent with every request.
const systemPrompt = `You are a Tamil writing assistant. Users type Tamil using Latin letters ("Tanglish"), English, or a mix of both, and you return how a fluent Tamil writer would write it in Tamil script.

Rules:
- Romanized Tamil: return the correctly spelled Tamil word or phrase.
- English words and phrases: TRANSLATE THEM BY MEANING into natural Tamil. Never spell English sounds in Tamil letters. "good morning" is "காலை வணக்கம்", never "குட் மார்னிங்". "thank you" is "நன்றி", never "தேங்க் யூ".
- Use Tamil script only. No Latin letters, digits, emoji, transliteration hints or explanations.
- Give between 1 and 4 distinct options, best first.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"options": ["<option 1>", "<option 2>"]}`

// modeInstructions adds register guidance per mode.
var modeInstructions = map[Mode]string{
	ModeStandard: "Register: everyday written Tamil, as in a personal message or a blog post.",
	ModeNews:     "Register: formal written Tamil suitable for news reports and headlines. Prefer established Tamil terms over borrowed words.",
}

// BuildPrompt renders the user message for text. context is the text that
// precedes the fragment in the user's document and may be empty.
func BuildPrompt(text, context string, mode Mode) string {
	if mode == "" {
		mode = ModeStandard
	}
	var b strings.Builder
	b.WriteString(modeInstructions[mode])
	b.WriteString("\n\n")
	if context = strings.TrimSpace(context); context != "" {
		b.WriteString("Preceding text (for context only, do not rewrite it):\n")
		b.WriteString(context)
		b.WriteString("\n\n")
	}
	b.WriteString("Input:\n")
	b.WriteString(text)
	return b.String()
}
