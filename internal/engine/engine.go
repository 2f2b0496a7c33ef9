// Package engine drives play sessions against the game master service.
//
// The Engine owns all session state: the turn state machine, the story
// context window, the rendered story log, and the latest parsed scene
// artifacts (dice rolls and choice options). The terminal UI stays a thin
// rendering layer; every user intent maps to one exported method here, and
// the UI redraws from the snapshot accessors after each call.
//
// For testing, inject a fake backend via [WithBackend]. When no backend is
// injected, [New] builds a [gmapi.Client] from the config, instrumented
// with the observe HTTP transport.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/PawanKonwar/ai-game-master/internal/choice"
	"github.com/PawanKonwar/ai-game-master/internal/config"
	"github.com/PawanKonwar/ai-game-master/internal/dice"
	"github.com/PawanKonwar/ai-game-master/internal/observe"
	"github.com/PawanKonwar/ai-game-master/internal/prompt"
	"github.com/PawanKonwar/ai-game-master/internal/story"
	"github.com/PawanKonwar/ai-game-master/internal/storylog"
	"github.com/PawanKonwar/ai-game-master/internal/turn"
	"github.com/PawanKonwar/ai-game-master/pkg/gmapi"
)

// ─── Constants ───────────────────────────────────────────────────────────────

// maxActionRunes bounds a single player action. Longer input is rejected
// locally, before any network call.
const maxActionRunes = 500

// Saved-game list caching. The list changes only when this client saves,
// so a short TTL keeps /load name resolution from hammering /saves.
const (
	savesCacheKey   = "saves"
	savesCacheTTL   = 30 * time.Second
	savesCacheSweep = time.Minute
)

// Jaro-Winkler thresholds for save-name resolution. At or above
// resolveThreshold the best candidate is taken; between the two the match
// is reported as ambiguous, naming the nearest candidate; below
// suggestThreshold the name is treated as unknown.
const (
	resolveThreshold = 0.85
	suggestThreshold = 0.70
)

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrSaveNotFound reports a load by a name no saved game resembles.
var ErrSaveNotFound = errors.New("engine: no saved game with that name")

// ValidationError rejects user input locally, before any network call.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "engine: " + e.Reason
}

// AmbiguousSaveError reports a save-name resolution that found a plausible
// but not convincing candidate. Nearest carries the best-scoring session
// name so the caller can suggest it.
type AmbiguousSaveError struct {
	Name    string
	Nearest string
	Score   float64
}

// Error implements the error interface.
func (e *AmbiguousSaveError) Error() string {
	return fmt.Sprintf("engine: no save named %q, closest match is %q", e.Name, e.Nearest)
}

// ─── Backend ─────────────────────────────────────────────────────────────────

// Backend is the slice of the game master API the engine drives. It is
// satisfied by [gmapi.Client].
type Backend interface {
	Health(ctx context.Context) error
	GenerateScene(ctx context.Context, prompt string, includeDiceRolls bool) (*gmapi.Scene, error)
	Save(ctx context.Context, sessionName, storyLog string) (gmapi.SaveID, error)
	Load(ctx context.Context, id gmapi.SaveID) (*gmapi.SavedGame, error)
	Saves(ctx context.Context) ([]gmapi.SaveInfo, error)
}

// ─── Engine ──────────────────────────────────────────────────────────────────

// Engine is the turn controller for one play session. All methods are safe
// for concurrent use; in practice the UI event loop is the only caller and
// generation requests run in its command goroutines.
type Engine struct {
	backend Backend
	metrics *observe.Metrics

	machine    *turn.Machine
	savesCache *cache.Cache
	sessionID  string

	mu          sync.Mutex
	window      *story.Window
	lines       []storylog.Line
	choices     []choice.Option
	rolls       []dice.Roll
	strategy    choice.Strategy
	includeDice bool
	readMax     int
	storeMax    int
	epoch       uint64 // bumped by NewAdventure and Load; in-flight turns from an older epoch are discarded
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*Engine)

// WithBackend injects a backend instead of building a gmapi client from the
// config.
func WithBackend(b Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine for the configured backend. The engine starts
// disconnected; drive [Engine.HealthCheck] periodically to connect.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	e := &Engine{
		metrics:     observe.DefaultMetrics(),
		machine:     turn.NewMachine(),
		savesCache:  cache.New(savesCacheTTL, savesCacheSweep),
		sessionID:   uuid.New().String(),
		window:      story.NewWindow(cfg.Game.ContextStoreRunes),
		strategy:    cfg.Game.ChoiceStrategy,
		includeDice: cfg.Game.IncludeDiceRolls,
		readMax:     cfg.Game.ContextReadRunes,
		storeMax:    cfg.Game.ContextStoreRunes,
	}
	for _, o := range opts {
		o(e)
	}

	if e.backend == nil {
		hc := &http.Client{
			Timeout:   cfg.Server.Timeout(),
			Transport: observe.NewTransport(nil, e.metrics),
		}
		client, err := gmapi.New(cfg.Server.URL, gmapi.WithHTTPClient(hc))
		if err != nil {
			return nil, fmt.Errorf("engine: create game master client: %w", err)
		}
		e.backend = client
	}

	slog.Debug("engine ready", "session", e.sessionID)
	return e, nil
}

// SessionID returns the identifier stamped on this session's log records.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// ─── Turns ───────────────────────────────────────────────────────────────────

// TurnResult carries everything a settled turn produced. A stale result
// means the turn was superseded mid-flight (connection flap, new adventure,
// loaded game); its scene was discarded and only Seq and Stale are set.
type TurnResult struct {
	Seq     uint64
	Scene   string
	Rolls   []dice.Roll
	Choices []choice.Option
	Stale   bool
}

// Submit plays one full turn for a player action: validate, lock the gate,
// echo the action to the log, build a continuation prompt from the story
// window, request a scene, parse it, and append the results.
//
// Empty, whitespace-only, or oversized input returns a [*ValidationError]
// before any network call. A locked gate returns [turn.ErrDisconnected] or
// [turn.ErrBusy]. Backend failures are appended to the log as an error line
// and returned; the gate reopens regardless.
func (e *Engine) Submit(ctx context.Context, action string) (*TurnResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, &ValidationError{Reason: "an action is required"}
	}
	if n := utf8.RuneCountInString(action); n > maxActionRunes {
		return nil, &ValidationError{Reason: fmt.Sprintf("action is %d characters, the limit is %d", n, maxActionRunes)}
	}

	seq, err := e.machine.BeginTurn(true)
	if err != nil {
		return nil, err
	}

	e.appendLines(storylog.Player(action))
	text := prompt.Continuation(action, e.contextText())
	return e.runTurn(ctx, seq, "action", text, true)
}

// Opening generates the opening scene of a new adventure, at most once per
// adventure. Callers invoke it after every successful probe; when the
// opening was already generated it returns (nil, nil) without a turn.
func (e *Engine) Opening(ctx context.Context) (*TurnResult, error) {
	if !e.machine.ConsumeOpening() {
		return nil, nil
	}
	seq, err := e.machine.BeginTurn(false)
	if err != nil {
		// Re-arm so the next successful probe retries the opening.
		e.machine.ResetOpening()
		return nil, err
	}
	return e.runTurn(ctx, seq, "opening", prompt.FreshStart, false)
}

// runTurn performs the network half of a turn: request the scene, settle
// the sequence, then either discard a stale result or parse and apply it.
func (e *Engine) runTurn(ctx context.Context, seq uint64, kind, promptText string, continuation bool) (*TurnResult, error) {
	epoch := e.currentEpoch()

	ctx, span := observe.StartSpan(ctx, "engine.turn", trace.WithAttributes(
		observe.Attr("turn.kind", kind),
	))
	defer span.End()
	log := observe.Logger(ctx).With("session", e.sessionID, "seq", seq, "kind", kind)

	start := time.Now()
	scene, err := e.backend.GenerateScene(ctx, promptText, e.IncludeDiceRolls())
	elapsed := time.Since(start)
	e.metrics.TurnDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("kind", kind)))

	// Settle always runs, success and failure alike, so a failed request
	// can never leave the client locked.
	settled := e.machine.Settle(seq)
	if !settled || epoch != e.currentEpoch() {
		log.Info("discarding stale turn")
		e.metrics.RecordTurn(ctx, kind, "stale")
		return &TurnResult{Seq: seq, Stale: true}, nil
	}

	if err != nil {
		span.RecordError(err)
		e.metrics.RecordTurn(ctx, kind, "error")
		e.metrics.RecordBackendError(ctx, "/generate-scene", errorKind(err))
		e.appendLines(storylog.Error(userMessage(err)))
		log.Warn("scene generation failed", "err", err)
		return nil, err
	}

	rolls, options := parseScene(scene.Text, e.strategySnapshot())

	lines := make([]storylog.Line, 0, 1+len(rolls))
	lines = append(lines, storylog.Game(scene.Text))
	for _, r := range rolls {
		lines = append(lines, storylog.Dice(r.String()))
	}
	e.applyScene(scene.Text, continuation, lines, rolls, options)

	e.metrics.RecordTurn(ctx, kind, "ok")
	e.recordSceneCounters(ctx, rolls, options)
	log.Info("scene settled", "rolls", len(rolls), "duration", elapsed)

	return &TurnResult{Seq: seq, Scene: scene.Text, Rolls: rolls, Choices: options}, nil
}

// parseScene extracts dice rolls and choice options from scene text. The
// two scans are independent, so they run concurrently.
func parseScene(text string, strategy choice.Strategy) ([]dice.Roll, []choice.Option) {
	var (
		rolls   []dice.Roll
		options []choice.Option
	)
	var eg errgroup.Group
	eg.Go(func() error {
		rolls = dice.Extract(text)
		return nil
	})
	eg.Go(func() error {
		options = choice.Extract(text, strategy)
		return nil
	})
	_ = eg.Wait() // extraction is total, no error paths
	return rolls, options
}

// applyScene commits a settled scene: extend the story window, append the
// rendered lines, and replace the scene artifacts.
func (e *Engine) applyScene(scene string, continuation bool, lines []storylog.Line, rolls []dice.Roll, options []choice.Option) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.window.Append(scene, continuation)
	e.lines = append(e.lines, lines...)
	e.rolls = rolls
	e.choices = options
}

// recordSceneCounters bumps the dice and choice counters for one scene.
func (e *Engine) recordSceneCounters(ctx context.Context, rolls []dice.Roll, options []choice.Option) {
	if n := len(rolls); n > 0 {
		e.metrics.DiceRolls.Add(ctx, int64(n))
	}

	var extracted, fallback int64
	for _, o := range options {
		if o.Fallback {
			fallback++
		} else {
			extracted++
		}
	}
	if extracted > 0 {
		e.metrics.Choices.Add(ctx, extracted, metric.WithAttributes(observe.Attr("source", "extracted")))
	}
	if fallback > 0 {
		e.metrics.Choices.Add(ctx, fallback, metric.WithAttributes(observe.Attr("source", "fallback")))
	}
}

// errorKind classifies a backend failure for the error counter.
func errorKind(err error) string {
	var statusErr *gmapi.StatusError
	if errors.As(err, &statusErr) {
		return "status"
	}
	var genErr *gmapi.GenerationError
	if errors.As(err, &genErr) {
		return "generation"
	}
	return "transport"
}

// userMessage renders a backend failure as the single line shown in the
// story pane. Backend detail is surfaced verbatim when present.
func userMessage(err error) string {
	var statusErr *gmapi.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Detail != "" {
			return statusErr.Detail
		}
		return fmt.Sprintf("the game master returned status %d", statusErr.Status)
	}
	var genErr *gmapi.GenerationError
	if errors.As(err, &genErr) {
		if genErr.Detail != "" {
			return genErr.Detail
		}
		return "the game master could not generate a scene"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the game master took too long to respond"
	}
	return "cannot reach the game master"
}

// ─── Health ──────────────────────────────────────────────────────────────────

// Probe is the outcome of one health check.
type Probe struct {
	// Connected reports whether the backend is reachable now.
	Connected bool

	// Changed reports whether this probe flipped the connection state.
	// Startup polling never flips to disconnected: failures before the
	// first success stay quiet.
	Changed bool
}

// HealthCheck probes the backend once and feeds the result to the state
// machine. Connection changes append a system line to the log and move the
// connected gauge.
func (e *Engine) HealthCheck(ctx context.Context) Probe {
	err := e.backend.Health(ctx)
	up := err == nil
	e.metrics.RecordProbe(ctx, up)

	if up {
		changed := e.machine.ProbeSucceeded()
		if changed {
			e.metrics.Connected.Add(ctx, 1)
			e.appendLines(storylog.System("Connected to the Game Master"))
			observe.Logger(ctx).Info("game master reachable", "session", e.sessionID)
		}
		return Probe{Connected: true, Changed: changed}
	}

	changed := e.machine.ProbeFailed()
	if changed {
		e.metrics.Connected.Add(ctx, -1)
		e.appendLines(storylog.System("Connection to the Game Master lost"))
		observe.Logger(ctx).Warn("game master unreachable", "session", e.sessionID, "err", err)
	}
	return Probe{Connected: false, Changed: changed}
}

// ─── Saved games ─────────────────────────────────────────────────────────────

// Save stores the current story log under the given name and returns the
// backend's id for it. The saved-games list cache is dropped so the new
// entry is visible immediately.
func (e *Engine) Save(ctx context.Context, name string) (gmapi.SaveID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Reason: "a save name is required"}
	}

	ctx, span := observe.StartSpan(ctx, "engine.save")
	defer span.End()

	e.mu.Lock()
	encoded := storylog.Encode(e.lines)
	e.mu.Unlock()

	id, err := e.backend.Save(ctx, name, encoded)
	if err != nil {
		span.RecordError(err)
		e.metrics.RecordSaveOp(ctx, "save", "error")
		e.metrics.RecordBackendError(ctx, "/save", errorKind(err))
		return "", err
	}

	e.savesCache.Delete(savesCacheKey)
	e.metrics.RecordSaveOp(ctx, "save", "ok")
	e.appendLines(storylog.System(fmt.Sprintf("Game saved as %q", name)))
	observe.Logger(ctx).Info("game saved", "session", e.sessionID, "name", name, "id", id)
	return id, nil
}

// Saves lists the saved games, newest first, serving repeat calls from a
// short-lived cache.
func (e *Engine) Saves(ctx context.Context) ([]gmapi.SaveInfo, error) {
	if v, ok := e.savesCache.Get(savesCacheKey); ok {
		slog.Debug("saves list served from cache")
		return v.([]gmapi.SaveInfo), nil
	}

	saves, err := e.backend.Saves(ctx)
	if err != nil {
		e.metrics.RecordSaveOp(ctx, "list", "error")
		e.metrics.RecordBackendError(ctx, "/saves", errorKind(err))
		return nil, err
	}

	e.savesCache.Set(savesCacheKey, saves, cache.DefaultExpiration)
	e.metrics.RecordSaveOp(ctx, "list", "ok")
	return saves, nil
}

// Load fetches the saved game whose name best matches the given one and
// replaces the session with it: the log is decoded, the story window is
// rebuilt from its narration lines, and the opening trigger is latched so
// the next submission continues the loaded story.
//
// Resolution tries an exact (case-insensitive) session name first, then
// the best Jaro-Winkler candidate. A near miss returns a
// [*AmbiguousSaveError] naming the closest candidate; anything further off
// returns [ErrSaveNotFound]. Returns the resolved session name.
func (e *Engine) Load(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Reason: "a save name is required"}
	}

	ctx, span := observe.StartSpan(ctx, "engine.load")
	defer span.End()

	saves, err := e.Saves(ctx)
	if err != nil {
		return "", err
	}
	info, err := resolveSave(name, saves)
	if err != nil {
		e.metrics.RecordSaveOp(ctx, "load", "error")
		return "", err
	}

	game, err := e.backend.Load(ctx, info.ID)
	if err != nil {
		span.RecordError(err)
		e.metrics.RecordSaveOp(ctx, "load", "error")
		e.metrics.RecordBackendError(ctx, "/load/", errorKind(err))
		return "", err
	}

	e.applyLoadedGame(game)
	e.metrics.RecordSaveOp(ctx, "load", "ok")
	e.appendLines(storylog.System(fmt.Sprintf("Loaded game %q", game.SessionName)))
	observe.Logger(ctx).Info("game loaded",
		"session", e.sessionID, "name", game.SessionName, "id", game.ID)
	return game.SessionName, nil
}

// resolveSave matches a requested name against the listed session names.
// The list arrives newest first, so on equal footing the newest save wins.
func resolveSave(name string, saves []gmapi.SaveInfo) (gmapi.SaveInfo, error) {
	want := strings.ToLower(strings.TrimSpace(name))

	var (
		best      gmapi.SaveInfo
		bestScore float64
	)
	for _, s := range saves {
		have := strings.ToLower(strings.TrimSpace(s.SessionName))
		if have == want {
			return s, nil
		}
		if score := matchr.JaroWinkler(want, have, false); score > bestScore {
			best, bestScore = s, score
		}
	}

	switch {
	case bestScore >= resolveThreshold:
		return best, nil
	case bestScore >= suggestThreshold:
		return gmapi.SaveInfo{}, &AmbiguousSaveError{Name: name, Nearest: best.SessionName, Score: bestScore}
	default:
		return gmapi.SaveInfo{}, ErrSaveNotFound
	}
}

// applyLoadedGame replaces the session state with a fetched save. Narration
// lines rebuild the story window in order; the window's store cap trims the
// result to its usual tail.
func (e *Engine) applyLoadedGame(game *gmapi.SavedGame) {
	lines := storylog.Decode(game.StoryLog)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.epoch++
	e.lines = lines
	e.choices = nil
	e.rolls = nil
	e.window.Reset()
	for _, l := range lines {
		if l.Category == storylog.CategoryGame {
			e.window.Append(l.Text, true)
		}
	}
	e.machine.MarkOpeningDone()
}

// ─── Session state ───────────────────────────────────────────────────────────

// NewAdventure clears the story log, the context window, and the parsed
// scene artifacts, and re-arms the one-shot opening trigger. Lifetime
// counters are deliberately untouched. An in-flight turn, if any, is
// discarded when it settles.
func (e *Engine) NewAdventure() {
	e.mu.Lock()
	e.epoch++
	e.lines = nil
	e.choices = nil
	e.rolls = nil
	e.window.Reset()
	e.mu.Unlock()

	e.machine.ResetOpening()
	slog.Info("new adventure started", "session", e.sessionID)
}

// ApplyGameConfig applies reload-safe game settings between turns. A
// changed store cap rebuilds the window around the retained text.
func (e *Engine) ApplyGameConfig(game config.GameConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.strategy = game.ChoiceStrategy
	e.includeDice = game.IncludeDiceRolls
	e.readMax = game.ContextReadRunes

	if game.ContextStoreRunes != e.storeMax {
		text := e.window.Read(e.window.Len())
		e.window = story.NewWindow(game.ContextStoreRunes)
		e.window.Append(text, true)
		e.storeMax = game.ContextStoreRunes
	}

	slog.Info("game settings applied",
		"session", e.sessionID,
		"strategy", game.ChoiceStrategy,
		"include_dice_rolls", game.IncludeDiceRolls)
}

// ToggleDiceRolls flips whether generation requests ask for dice rolls and
// returns the new value.
func (e *Engine) ToggleDiceRolls() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.includeDice = !e.includeDice
	return e.includeDice
}

// IncludeDiceRolls reports whether generation requests ask for dice rolls.
func (e *Engine) IncludeDiceRolls() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.includeDice
}

// Lines returns a copy of the rendered story log. An empty log means the
// view should show the welcome placeholder.
func (e *Engine) Lines() []storylog.Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]storylog.Line(nil), e.lines...)
}

// Choices returns a copy of the latest scene's choice options. Nil means no
// scene has been parsed yet.
func (e *Engine) Choices() []choice.Option {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]choice.Option(nil), e.choices...)
}

// Rolls returns a copy of the latest scene's dice rolls.
func (e *Engine) Rolls() []dice.Roll {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]dice.Roll(nil), e.rolls...)
}

// State returns the current turn state.
func (e *Engine) State() turn.State {
	return e.machine.State()
}

// Gate reports whether submissions are accepted right now.
func (e *Engine) Gate() bool {
	return e.machine.Gate()
}

// Counters returns the lifetime scene and action counts.
func (e *Engine) Counters() (scenes, actions uint64) {
	return e.machine.Counters()
}

// ─── Internal helpers ────────────────────────────────────────────────────────

// appendLines adds rendered lines to the story log.
func (e *Engine) appendLines(lines ...storylog.Line) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, lines...)
}

// contextText reads the prompt-sized tail of the story window.
func (e *Engine) contextText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Read(e.readMax)
}

// strategySnapshot returns the current choice strategy.
func (e *Engine) strategySnapshot() choice.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// currentEpoch returns the session epoch, bumped by resets and loads.
func (e *Engine) currentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}
