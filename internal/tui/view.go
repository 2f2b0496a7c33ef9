package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/PawanKonwar/ai-game-master/internal/storylog"
	"github.com/PawanKonwar/ai-game-master/internal/turn"
	"github.com/PawanKonwar/ai-game-master/pkg/gmapi"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	playerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // grey

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	diceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")) // gold

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // green
			Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	choiceKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")) // darker grey

	boldStyle = lipgloss.NewStyle().Bold(true)

	stateUpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	stateDownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	panelStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			PaddingRight(2)

	statusBarStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			PaddingRight(2).
			Foreground(lipgloss.Color("245")) // grey
)

// boldPattern matches the backend's **emphasis** markup.
var boldPattern = regexp.MustCompile(`\*\*([^*]+)\*\*`)

const helpText = `Commands:
  /save <name>   store this session on the backend
  /load <name>   restore a stored session, close-enough names resolve
  /saves         list stored sessions
  /new           start a fresh adventure
  /dice          toggle dice resolution
  /quit          leave the game

Play:
  type an action and press enter, or press 1-4 to pick a choice.`

// View renders the full frame: story viewport, choice row, input, status.
func (m Model) View() string {
	if !m.ready {
		return "\n  Starting up..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		panelStyle.Render(m.viewport.View()),
		m.choicesView(),
		panelStyle.Render(m.textarea.View()),
		m.statusView(),
	)
}

// renderLog rebuilds the viewport content from the engine's story log,
// re-wrapped for the current width.
func (m *Model) renderLog() {
	width := m.viewport.Width
	if width <= 0 {
		width = 76
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("AI GAME MASTER") + "\n\n")

	lines := m.eng.Lines()
	if len(lines) == 0 {
		b.WriteString(welcomeStyle.Render(wordwrap.String(storylog.Welcome, width)) + "\n\n")
	}
	for _, l := range lines {
		b.WriteString(renderLine(l, width))
		b.WriteString("\n\n")
	}

	if m.transient != "" {
		b.WriteString(m.transient + "\n")
	}
	if m.busy {
		b.WriteString(loadingStyle.Render(m.spinner.View()+thinkingNotice) + "\n")
	}

	m.viewport.SetContent(b.String())
}

// renderLine styles one log line by category. Narration renders its
// **bold** markup; wrapping happens after styling, reflow is ANSI-aware.
func renderLine(l storylog.Line, width int) string {
	switch {
	case l.Category == storylog.CategoryPlayer:
		return playerStyle.Render(wordwrap.String(l.Text, width))
	case l.Category == storylog.CategorySystem && strings.HasPrefix(l.Text, storylog.DiceMarker):
		return diceStyle.Render(wordwrap.String(l.Text, width))
	case l.Category == storylog.CategorySystem && strings.HasPrefix(l.Text, "Error:"):
		return errorStyle.Render(wordwrap.String(l.Text, width))
	case l.Category == storylog.CategorySystem:
		return systemStyle.Render(wordwrap.String(l.Text, width))
	default:
		return wordwrap.String(renderMarkup(l.Text), width)
	}
}

// renderMarkup replaces **text** spans with bold terminal styling.
func renderMarkup(text string) string {
	return boldPattern.ReplaceAllStringFunc(text, func(match string) string {
		return boldStyle.Render(strings.Trim(match, "*"))
	})
}

// choicesView renders the numbered choice buttons, or a hint when the
// scene offered none.
func (m Model) choicesView() string {
	if m.busy {
		return panelStyle.Render(hintStyle.Render("..."))
	}

	opts := m.eng.Choices()
	if len(opts) == 0 {
		return panelStyle.Render(hintStyle.Render("type an action and press enter"))
	}

	parts := make([]string, 0, len(opts))
	for i, o := range opts {
		key := fmt.Sprintf("[%d]", i+1)
		label := o.Label()
		switch {
		case !o.Enabled:
			parts = append(parts, disabledStyle.Render(key+" "+label))
		case !o.Actionable():
			parts = append(parts, systemStyle.Render(key+" "+label))
		default:
			parts = append(parts, choiceKeyStyle.Render(key)+" "+label)
		}
	}

	row := strings.Join(parts, "   ")
	if m.width > 4 {
		row = wordwrap.String(row, m.width-4)
	}
	return panelStyle.Render(row)
}

// statusView renders the bottom bar: connection state, session counters,
// dice flag, and the latest notice or error.
func (m Model) statusView() string {
	state := m.eng.State()
	dot := stateDownStyle.Render("●")
	if state != turn.Disconnected {
		dot = stateUpStyle.Render("●")
	}

	scenes, actions := m.eng.Counters()
	dice := "off"
	if m.eng.IncludeDiceRolls() {
		dice = "on"
	}
	left := fmt.Sprintf("%s %s · scenes %d · actions %d · dice %s",
		dot, stateLabel(state), scenes, actions, dice)

	right := m.status
	if right != "" && m.statusErr {
		right = errorStyle.Render(right)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// stateLabel is the status-bar wording for a machine state.
func stateLabel(s turn.State) string {
	switch s {
	case turn.ConnectedIdle:
		return "connected"
	case turn.AwaitingResponse:
		return "waiting"
	default:
		return "offline"
	}
}

// renderSavesList formats the /saves listing as a transient block.
func renderSavesList(saves []gmapi.SaveInfo) string {
	if len(saves) == 0 {
		return systemStyle.Render("[No saved games yet]")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Saved games") + "\n")
	for _, s := range saves {
		b.WriteString("  " + s.SessionName)
		if s.Timestamp != "" {
			b.WriteString(hintStyle.Render("  " + s.Timestamp))
		}
		b.WriteString("\n")
	}
	return b.String()
}
