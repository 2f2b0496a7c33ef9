// Package tui renders the play session in the terminal: a scrollback
// viewport over the story log, a textarea for actions, numbered choice
// buttons, and a status bar. It is a Bubble Tea program; all engine calls
// run in [tea.Cmd] goroutines and come back as typed messages, so the
// update loop never blocks on the network.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/PawanKonwar/ai-game-master/internal/config"
	"github.com/PawanKonwar/ai-game-master/internal/engine"
	"github.com/PawanKonwar/ai-game-master/internal/turn"
	"github.com/PawanKonwar/ai-game-master/pkg/gmapi"
)

const (
	inputPlaceholder = "What do you do?"
	inputHeight      = 3
	maxInputRunes    = 500

	thinkingNotice = "The game master is thinking..."
)

// ---- messages ----

// probeTickMsg fires when the next health probe is due.
type probeTickMsg time.Time

// healthMsg carries one probe outcome.
type healthMsg engine.Probe

// sceneMsg carries the outcome of a generation turn, opening and player
// action alike. A nil result with a nil error means the opening was
// already generated and no turn ran.
type sceneMsg struct {
	res *engine.TurnResult
	err error
}

// savesMsg carries the saved-games listing.
type savesMsg struct {
	saves []gmapi.SaveInfo
	err   error
}

// saveDoneMsg reports a finished save.
type saveDoneMsg struct {
	name string
	err  error
}

// loadDoneMsg reports a finished load; name is the resolved session name.
type loadDoneMsg struct {
	name string
	err  error
}

// ---- model ----

// Model is the Bubble Tea model for one play session.
type Model struct {
	ctx context.Context
	eng *engine.Engine

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	probeEvery time.Duration
	width      int
	height     int
	ready      bool
	busy       bool

	// transient is a one-shot block (help text, saves listing) shown under
	// the log until the next scene replaces it.
	transient string

	status    string
	statusErr bool
}

// New builds the model around a ready engine. The program starts probing
// the backend on Init; nothing touches the network before that.
func New(ctx context.Context, eng *engine.Engine, cfg *config.Config) Model {
	ta := textarea.New()
	ta.Placeholder = inputPlaceholder
	ta.Prompt = promptStyle.Render("> ")
	ta.CharLimit = maxInputRunes
	ta.SetWidth(60)
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false

	vp := viewport.New(60, 20)
	vp.MouseWheelEnabled = true

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = loadingStyle

	return Model{
		ctx:        ctx,
		eng:        eng,
		viewport:   vp,
		textarea:   ta,
		spinner:    sp,
		probeEvery: cfg.Server.ProbeInterval(),
	}
}

// Init starts the cursor blink and the first health probe.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.probeCmd())
}

// Update is the event loop.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - inputHeight - 5
		m.textarea.SetWidth(msg.Width - 6)
		m.ready = true
		m.renderLog()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submitInput()
		case tea.KeyRunes:
			if cmd, handled := m.choiceKey(msg); handled {
				return m, cmd
			}
		}
		// Everything else is typing or scrolling.

	case probeTickMsg:
		return m, m.probeCmd()

	case healthMsg:
		probe := engine.Probe(msg)
		cmds := []tea.Cmd{m.scheduleProbe()}
		if probe.Changed {
			m.renderLog()
			m.viewport.GotoBottom()
		}
		if probe.Connected && probe.Changed {
			// A fresh connection may owe the player an opening scene.
			m.busy = true
			m.renderLog()
			cmds = append(cmds, m.openingCmd(), m.spinner.Tick)
		}
		if cmd := m.syncFocus(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case sceneMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.setStatus(statusMessage(msg.err), true)
		case msg.res == nil:
			// Opening already generated; nothing happened.
		case msg.res.Stale:
			// Superseded mid-flight; the engine discarded it.
		default:
			m.transient = ""
			m.setStatus("", false)
		}
		m.renderLog()
		m.viewport.GotoBottom()
		cmd := m.syncFocus()
		return m, cmd

	case savesMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(statusMessage(msg.err), true)
		} else {
			m.transient = renderSavesList(msg.saves)
			m.setStatus("", false)
		}
		m.renderLog()
		m.viewport.GotoBottom()
		cmd := m.syncFocus()
		return m, cmd

	case saveDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(statusMessage(msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("game saved as %q", msg.name), false)
		}
		m.renderLog()
		m.viewport.GotoBottom()
		cmd := m.syncFocus()
		return m, cmd

	case loadDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(statusMessage(msg.err), true)
		} else {
			m.transient = ""
			m.setStatus(fmt.Sprintf("loaded %q", msg.name), false)
		}
		m.renderLog()
		m.viewport.GotoBottom()
		cmd := m.syncFocus()
		return m, cmd

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.renderLog()
		return m, cmd
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

// ---- input handling ----

// submitInput handles Enter: slash commands run immediately, anything else
// becomes a player action.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}
	if !m.eng.Gate() {
		m.setStatus("not connected to the game master", true)
		return m, nil
	}
	cmd := m.beginTurn(input)
	return m, cmd
}

// choiceKey maps the digit keys onto the current choice buttons. Digits
// type normally while the textarea has content.
func (m *Model) choiceKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.busy || !m.eng.Gate() || m.textarea.Value() != "" || len(msg.Runes) != 1 {
		return nil, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '4' {
		return nil, false
	}

	opts := m.eng.Choices()
	idx := int(r - '1')
	if idx >= len(opts) {
		return nil, false
	}

	opt := opts[idx]
	switch {
	case opt.Actionable():
		return m.beginTurn(opt.Text), true
	case opt.Enabled:
		m.setStatus(fmt.Sprintf("%s: nothing to submit", opt.Label()), false)
		return nil, true
	default:
		return nil, true
	}
}

// beginTurn locks the UI and submits the action in a command goroutine.
func (m *Model) beginTurn(action string) tea.Cmd {
	m.busy = true
	m.transient = ""
	m.setStatus("", false)
	m.textarea.Reset()
	m.textarea.Blur()
	m.renderLog()
	m.viewport.GotoBottom()

	submit := func() tea.Msg {
		res, err := m.eng.Submit(m.ctx, action)
		return sceneMsg{res: res, err: err}
	}
	return tea.Batch(submit, m.spinner.Tick)
}

// handleCommand dispatches one slash command.
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	name, arg := parseCommand(input)
	m.textarea.Reset()

	switch name {
	case "/quit", "/q":
		return m, tea.Quit

	case "/help":
		m.transient = helpText
		m.setStatus("", false)
		m.renderLog()
		m.viewport.GotoBottom()

	case "/dice":
		if m.eng.ToggleDiceRolls() {
			m.setStatus("dice rolls on", false)
		} else {
			m.setStatus("dice rolls off", false)
		}

	case "/new":
		m.eng.NewAdventure()
		m.transient = ""
		m.setStatus("a new adventure begins", false)
		m.renderLog()
		m.viewport.GotoBottom()
		if m.eng.Gate() {
			m.busy = true
			return m, tea.Batch(m.openingCmd(), m.spinner.Tick)
		}

	case "/save":
		if arg == "" {
			m.setStatus("usage: /save <name>", true)
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.saveCmd(arg), m.spinner.Tick)

	case "/load":
		if arg == "" {
			m.setStatus("usage: /load <name>", true)
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.loadCmd(arg), m.spinner.Tick)

	case "/saves":
		m.busy = true
		return m, tea.Batch(m.savesCmd(), m.spinner.Tick)

	default:
		m.setStatus(fmt.Sprintf("unknown command %s (try /help)", name), true)
	}
	return m, nil
}

// parseCommand splits "/load dragon hunt" into "/load" and "dragon hunt".
func parseCommand(input string) (name, arg string) {
	name, arg, _ = strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// ---- commands ----

func (m Model) probeCmd() tea.Cmd {
	return func() tea.Msg {
		return healthMsg(m.eng.HealthCheck(m.ctx))
	}
}

func (m Model) scheduleProbe() tea.Cmd {
	return tea.Tick(m.probeEvery, func(t time.Time) tea.Msg {
		return probeTickMsg(t)
	})
}

func (m Model) openingCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.eng.Opening(m.ctx)
		return sceneMsg{res: res, err: err}
	}
}

func (m Model) saveCmd(name string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.eng.Save(m.ctx, name)
		return saveDoneMsg{name: name, err: err}
	}
}

func (m Model) loadCmd(name string) tea.Cmd {
	return func() tea.Msg {
		resolved, err := m.eng.Load(m.ctx, name)
		return loadDoneMsg{name: resolved, err: err}
	}
}

func (m Model) savesCmd() tea.Cmd {
	return func() tea.Msg {
		saves, err := m.eng.Saves(m.ctx)
		return savesMsg{saves: saves, err: err}
	}
}

// ---- helpers ----

// syncFocus keeps the textarea focus in step with the control gate.
func (m *Model) syncFocus() tea.Cmd {
	if m.busy || !m.eng.Gate() {
		m.textarea.Blur()
		return nil
	}
	if !m.textarea.Focused() {
		return m.textarea.Focus()
	}
	return nil
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

// statusMessage renders an engine error for the status bar.
func statusMessage(err error) string {
	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason
	}
	var ambErr *engine.AmbiguousSaveError
	if errors.As(err, &ambErr) {
		return fmt.Sprintf("no save named %q, did you mean %q?", ambErr.Name, ambErr.Nearest)
	}
	switch {
	case errors.Is(err, engine.ErrSaveNotFound):
		return "no saved game with that name"
	case errors.Is(err, turn.ErrBusy):
		return "hold on, the game master is still thinking"
	case errors.Is(err, turn.ErrDisconnected):
		return "not connected to the game master"
	}
	return err.Error()
}
