package choice

import (
	"strings"
	"unicode/utf8"
)

// Sentence length bounds for the heuristic, exclusive on both ends. Very
// short fragments carry no actionable content; very long ones are
// narration, not a choice.
const (
	minSentenceRunes = 15
	maxSentenceRunes = 200
)

// actionPhrases mark a sentence as an offered action when present as a
// case-insensitive substring.
var actionPhrases = []string{
	"you can",
	"you could",
	"you may",
	"you might",
	"would you",
	"do you",
	"will you",
	"choose",
	"option",
	"decide",
}

// extractSentences collects up to [SlotCount] action-like sentences in
// order of appearance. A sentence qualifies when its trimmed length lies
// strictly between the bounds and it either contains an action phrase,
// contains a question mark, or starts with "you".
func extractSentences(text string) []string {
	var texts []string
	for _, s := range splitSentences(text) {
		s = strings.TrimSpace(s)
		if n := utf8.RuneCountInString(s); n <= minSentenceRunes || n >= maxSentenceRunes {
			continue
		}
		if !actionLike(s) {
			continue
		}
		texts = append(texts, s)
		if len(texts) == SlotCount {
			break
		}
	}
	return texts
}

// splitSentences splits text after each sentence terminator, keeping the
// terminator with its sentence so the question-mark test still works.
func splitSentences(text string) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// actionLike reports whether a trimmed sentence reads as an offered action.
func actionLike(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "you") {
		return true
	}
	if strings.Contains(s, "?") {
		return true
	}
	for _, p := range actionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
