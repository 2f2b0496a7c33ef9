// Package story maintains the bounded narrative context carried between
// turns.
//
// The window holds a single growing string of recent narration. Appends
// never fail: once the stored text outgrows the store cap, only the most
// recent suffix is kept, because recency is what keeps continuation
// prompts coherent. Reads return a smaller trailing slice sized for prompt
// composition and never mutate stored state.
package story

import (
	"sync"
	"unicode/utf8"
)

// Default character caps. The store cap bounds what the window retains;
// the read cap bounds what a continuation prompt quotes.
const (
	DefaultStoreMax = 2000
	DefaultReadMax  = 500
)

// Window is a mutex-guarded bounded story context. The zero value is not
// usable; construct with [NewWindow].
type Window struct {
	mu       sync.Mutex
	text     string
	storeMax int
}

// NewWindow creates a window that retains at most storeMax characters.
// Non-positive storeMax falls back to [DefaultStoreMax].
func NewWindow(storeMax int) *Window {
	if storeMax <= 0 {
		storeMax = DefaultStoreMax
	}
	return &Window{storeMax: storeMax}
}

// Append records newly generated narration.
//
// A continuation extends the stored text with a single separating space; a
// fresh scene replaces it wholesale. Either way the result is truncated to
// the trailing storeMax characters.
func (w *Window) Append(text string, continuation bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case !continuation:
		w.text = text
	case text == "":
		// Nothing to extend with.
	case w.text == "":
		w.text = text
	default:
		w.text += " " + text
	}
	w.text = tail(w.text, w.storeMax)
}

// Read returns the trailing max characters of the current context without
// mutating it. Non-positive max yields "".
func (w *Window) Read(max int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return tail(w.text, max)
}

// Len reports the stored context length in characters.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return utf8.RuneCountInString(w.text)
}

// Reset clears the stored context for a new adventure.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.text = ""
}

// tail returns the trailing max characters of s.
func tail(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-max:])
}
