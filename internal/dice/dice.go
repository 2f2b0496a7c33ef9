// Package dice recovers dice-roll artifacts from generated scene text.
//
// The backend resolves rolls server-side and reports them inline as fully
// formatted lines such as "Rolled 2d6+3: [4, 5] +3 = 12". [Extract] scans
// for those reports first; only when a scene contains none does it fall
// back to bare notation tokens like "3d8" or "2d10+5", so a roll that is
// merely mentioned still surfaces in the roll history. The two tiers never
// mix within a single scene.
//
// Extraction is pure text recovery: fields are taken verbatim from the
// source and totals are never recomputed or validated.
package dice

import (
	"regexp"
	"strings"
)

// Roll is one dice-roll artifact recovered from scene text.
type Roll struct {
	// Notation is the dice expression, e.g. "2d10+5".
	Notation string

	// Values holds the individual die results in reported order.
	// Empty when only bare notation was found.
	Values []string

	// Modifier is the signed modifier text ("+3", "-2"); empty when the
	// report carries none. Kept as text, never parsed into arithmetic.
	Modifier string

	// Total is the reported sum as text; empty when only bare notation
	// was found.
	Total string
}

// reportPattern matches a fully formatted roll report:
//
//	Rolled 2d6+3: [4, 5] +3 = 12
//
// Groups: notation, bracket interior, optional modifier, total.
var reportPattern = regexp.MustCompile(`(?i)rolled\s+(\d*d\d+(?:[+-]\d+)?)\s*:\s*\[([^\]]*)\]\s*([+-]\s*\d+)?\s*=\s*(-?\d+)`)

// notationPattern matches bare dice notation anywhere in the text. There is
// deliberately no word-boundary anchor: the generator does not guarantee
// spacing around notation, so "2d6" inside a larger token still counts.
var notationPattern = regexp.MustCompile(`(?i)\d+d\d+(?:[+-]\d+)?`)

// Extract parses scene text into its dice rolls.
//
// Formatted reports win: when at least one is present, only reports are
// returned. Bare notation is consulted only for scenes with no report at
// all, so the same roll is never counted twice. Order of first appearance
// is preserved and duplicates are kept. Text without any dice mention
// yields nil.
func Extract(text string) []Roll {
	if matches := reportPattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		rolls := make([]Roll, 0, len(matches))
		for _, m := range matches {
			rolls = append(rolls, Roll{
				Notation: m[1],
				Values:   splitValues(m[2]),
				Modifier: strings.TrimSpace(m[3]),
				Total:    m[4],
			})
		}
		return rolls
	}

	tokens := notationPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return nil
	}
	rolls := make([]Roll, 0, len(tokens))
	for _, tok := range tokens {
		rolls = append(rolls, Roll{Notation: tok})
	}
	return rolls
}

// splitValues turns the bracket interior of a roll report ("4, 5") into the
// trimmed individual die results. An empty interior yields nil.
func splitValues(inner string) []string {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// String renders the roll for display in the same shape the backend
// reports, or just the notation when that is all that is known.
func (r Roll) String() string {
	if r.Total == "" {
		return r.Notation
	}
	var b strings.Builder
	b.WriteString("Rolled ")
	b.WriteString(r.Notation)
	b.WriteString(": [")
	b.WriteString(strings.Join(r.Values, ", "))
	b.WriteString("]")
	if r.Modifier != "" {
		b.WriteString(" ")
		b.WriteString(r.Modifier)
	}
	b.WriteString(" = ")
	b.WriteString(r.Total)
	return b.String()
}
