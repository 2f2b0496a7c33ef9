// Package choice derives the fixed set of selectable player actions from
// generated scene text.
//
// Two extraction strategies exist and are never merged within one scene:
//
//   - [StrategyTagged] reads explicit "Choice N: ..." markers. The backend's
//     system prompt guarantees these, so tagged is the default.
//   - [StrategyHeuristic] scores sentences for action-like phrasing, for
//     generators that do not emit markers.
//
// Whatever the strategy, [Extract] always returns exactly [SlotCount]
// options; slots the text could not fill receive that strategy's fixed
// fallback for the slot position.
package choice

import "unicode/utf8"

// SlotCount is the number of selectable action slots, always filled.
const SlotCount = 4

// Label truncation bounds: text longer than maxLabelRunes is displayed as
// its first truncLabelRunes runes plus an ellipsis. Submission always uses
// the full text.
const (
	maxLabelRunes   = 40
	truncLabelRunes = 37
)

// Strategy selects how options are extracted from scene text.
type Strategy string

const (
	// StrategyTagged extracts explicit "Choice N: ..." markers.
	StrategyTagged Strategy = "tagged"

	// StrategyHeuristic extracts action-like sentences.
	StrategyHeuristic Strategy = "heuristic"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyTagged || s == StrategyHeuristic
}

// Option is one selectable action slot.
type Option struct {
	// Text is the full action text submitted when the option is chosen.
	Text string

	// Enabled reports whether the slot accepts selection. Heuristic
	// fallback slots are disabled; everything else is enabled.
	Enabled bool

	// Fallback marks a slot the text could not fill.
	Fallback bool
}

// Fallback slots per strategy, in slot order. Tagged fallbacks stay
// selectable; the trailing two are resting labels that submit nothing.
var (
	taggedFallbacks    = [SlotCount]string{"Explore further", "Search area", "Rest", "Continue"}
	heuristicFallbacks = [SlotCount]string{"Explore further", "Investigate the area", "Take action", "Continue the adventure"}
)

// Extract derives exactly [SlotCount] options from scene text using the
// given strategy. An unknown strategy behaves as [StrategyTagged]. Empty
// input yields all fallbacks.
func Extract(text string, strategy Strategy) []Option {
	if strategy == StrategyHeuristic {
		return fill(extractSentences(text), heuristicFallbacks, false)
	}
	return fill(extractTagged(text), taggedFallbacks, true)
}

// fill pads extracted action texts out to [SlotCount] options. Slot i that
// has no extracted text receives fallbacks[i]; enableFallbacks decides
// whether such slots remain selectable.
func fill(extracted []string, fallbacks [SlotCount]string, enableFallbacks bool) []Option {
	opts := make([]Option, SlotCount)
	for i := range opts {
		if i < len(extracted) {
			opts[i] = Option{Text: extracted[i], Enabled: true}
			continue
		}
		opts[i] = Option{Text: fallbacks[i], Enabled: enableFallbacks, Fallback: true}
	}
	return opts
}

// Label returns the display form of the option text: the full text when it
// fits, otherwise the leading runes with an ellipsis. Use [Option.Text]
// when submitting the action, never Label.
func (o Option) Label() string {
	if utf8.RuneCountInString(o.Text) <= maxLabelRunes {
		return o.Text
	}
	runes := []rune(o.Text)
	return string(runes[:truncLabelRunes]) + "..."
}

// Actionable reports whether selecting the option should submit a player
// action. Extracted options submit when enabled; fallback resting labels
// ("Rest", "Continue") are selectable no-ops.
func (o Option) Actionable() bool {
	if !o.Enabled {
		return false
	}
	if o.Fallback && (o.Text == "Rest" || o.Text == "Continue") {
		return false
	}
	return true
}
