// Package storylog encodes the rendered story pane as a flat text log and
// decodes it back, for save/load round-tripping through the backend.
//
// Each line carries a category recovered on decode from its prefix: player
// input is echoed with "> ", system notices are bracketed or start with
// "Error" or the dice marker, and everything else is game narration. A
// line's Text always holds the full rendered form including the prefix, so
// encode(decode(s)) reproduces s exactly for well-formed logs.
package storylog

import "strings"

// Category classifies one rendered log line.
type Category int

const (
	// CategoryGame is generated narration.
	CategoryGame Category = iota

	// CategoryPlayer is an echoed player action.
	CategoryPlayer

	// CategorySystem is a client-issued notice: connection changes,
	// errors, dice reports.
	CategorySystem
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryGame:
		return "game"
	case CategoryPlayer:
		return "player"
	case CategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// Line prefixes. DiceMarker doubles as the decode cue for roll history
// lines.
const (
	PlayerPrefix = "> "
	DiceMarker   = "🎲"
	errorPrefix  = "Error"
)

// Welcome is the placeholder the story pane shows when the log is empty.
// It is presentation only and never encoded into a save.
const Welcome = "Welcome, adventurer. Connect to the game master and your story will unfold here."

// Line is one rendered story line. Text holds the full rendered form,
// prefix included.
type Line struct {
	Category Category
	Text     string
}

// Player renders an echoed player action.
func Player(action string) Line {
	return Line{Category: CategoryPlayer, Text: PlayerPrefix + action}
}

// Game renders a block of generated narration.
func Game(text string) Line {
	return Line{Category: CategoryGame, Text: text}
}

// System renders a bracketed client notice.
func System(msg string) Line {
	return Line{Category: CategorySystem, Text: "[" + msg + "]"}
}

// Error renders a failure notice.
func Error(msg string) Line {
	return Line{Category: CategorySystem, Text: errorPrefix + ": " + msg}
}

// Dice renders a roll-history entry.
func Dice(report string) Line {
	return Line{Category: CategorySystem, Text: DiceMarker + " " + report}
}

// Encode flattens the log into newline-joined text, dropping blank lines.
func Encode(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

// Decode splits a saved log back into categorised lines. Blank lines are
// skipped. An empty or whitespace-only log yields nil; the view layer
// renders [Welcome] in that case.
func Decode(s string) []Line {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var lines []Line
	for _, raw := range strings.Split(s, "\n") {
		text := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, Line{Category: classify(text), Text: text})
	}
	return lines
}

// classify infers a line's category from its rendered prefix.
func classify(text string) Category {
	switch {
	case strings.HasPrefix(text, PlayerPrefix):
		return CategoryPlayer
	case strings.HasPrefix(text, "["),
		strings.HasPrefix(text, DiceMarker),
		strings.HasPrefix(text, errorPrefix):
		return CategorySystem
	default:
		return CategoryGame
	}
}
