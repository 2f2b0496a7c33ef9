// Package prompt composes the text sent to the scene generator.
//
// Composition is pure: the same action and context always produce the same
// prompt, and nothing here touches the stored story context. Callers read
// the context window first and pass the trailing slice in.
package prompt

import "strings"

// Template fragments for a continuation prompt, concatenated in order. The
// context clause is included only when there is context to quote.
const (
	actionPrefix  = "Continue the current story. The player chooses to: "
	contextPrefix = "Continue from where the story left off. Recent context: "
	closing       = "Describe what happens next as a result of this choice, maintaining continuity with the ongoing narrative."
)

// FreshStart seeds the opening scene of a new adventure.
const FreshStart = "Start a brand new fantasy adventure. Introduce the opening scene, " +
	"set the mood, and present the player with their first meaningful decision."

// Continuation builds the prompt for a player action. context should be
// the trailing slice of the story window (see story.Window.Read); pass ""
// when no story has accumulated yet.
func Continuation(action, context string) string {
	var b strings.Builder
	b.Grow(len(actionPrefix) + len(action) + len(contextPrefix) + len(context) + len(closing) + 4)

	b.WriteString(actionPrefix)
	b.WriteString(action)
	b.WriteString(". ")
	if context != "" {
		b.WriteString(contextPrefix)
		b.WriteString(context)
		b.WriteString(". ")
	}
	b.WriteString(closing)
	return b.String()
}
