// Command aigm is a terminal client for an AI game master server. It renders
// the unfolding story, forwards player actions, and manages saved games.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/PawanKonwar/ai-game-master/internal/config"
	"github.com/PawanKonwar/ai-game-master/internal/engine"
	"github.com/PawanKonwar/ai-game-master/internal/observe"
	"github.com/PawanKonwar/ai-game-master/internal/tui"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (default $AIGM_CONFIG, then config.yml)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("aigm", version)
		return 0
	}

	// ── Environment ───────────────────────────────────────────────────────────
	// A .env file feeds the ${VAR} references the config loader expands.
	// Variables already set in the environment win over file values.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "aigm: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	path := config.ResolvePath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aigm: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The TUI owns the terminal, so logs go to a file or nowhere. The level
	// sits in a LevelVar so a config reload can adjust it live.
	level := new(slog.LevelVar)
	level.Set(cfg.Logging.Level.Slog())

	logSink, closeLog, err := openLogSink(cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aigm: open log file: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logSink, &slog.HandlerOptions{Level: level})))

	slog.Info("aigm starting",
		"version", version,
		"config", path,
		"server_url", cfg.Server.URL,
		"log_level", cfg.Logging.Level,
		"dice_rolls", cfg.Game.IncludeDiceRolls,
		"choice_strategy", cfg.Game.ChoiceStrategy,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "aigm",
		ServiceVersion: version,
	})
	if err != nil {
		return fail("failed to initialise telemetry", err)
	}

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown, err = observe.ServeMetrics(cfg.Metrics.ListenAddr)
		if err != nil {
			return fail("failed to start metrics listener", err)
		}
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	eng, err := engine.New(cfg)
	if err != nil {
		return fail("failed to initialise engine", err)
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// Hot reload is best effort: running without a config file just means
	// there is nothing to watch.
	watcher, err := config.NewWatcher(path, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Slog())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.GameChanged {
			eng.ApplyGameConfig(d.NewGame)
			slog.Info("game settings reloaded",
				"dice_rolls", d.NewGame.IncludeDiceRolls,
				"choice_strategy", d.NewGame.ChoiceStrategy,
			)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "path", path, "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Terminal session ──────────────────────────────────────────────────────
	prog := tea.NewProgram(tui.New(ctx, eng, cfg),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	if _, err := prog.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
			slog.Info("session interrupted")
		} else {
			return fail("terminal session error", err)
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics listener shutdown error", "err", err)
		}
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	scenes, actions := eng.Counters()
	slog.Info("goodbye", "scenes", scenes, "actions", actions)
	return 0
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// fail logs a startup error and echoes it to stderr: before the TUI takes
// over (and after it exits) stderr is still the player's terminal.
func fail(msg string, err error) int {
	slog.Error(msg, "err", err)
	fmt.Fprintf(os.Stderr, "aigm: %s: %v\n", msg, err)
	return 1
}

// openLogSink opens the log file for appending. An empty path discards log
// output entirely; stderr is never an option while the TUI is drawing.
func openLogSink(path string) (io.Writer, func() error, error) {
	if path == "" {
		return io.Discard, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
