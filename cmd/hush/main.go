// Command hush is the entry point for the hush speech denoiser: batch file
// processing with a progress UI and an HTTP/websocket server for real-time
// streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/MrWong99/hush/internal/cli"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/model"
	"github.com/MrWong99/hush/pkg/provider/ns"
	"github.com/MrWong99/hush/pkg/provider/ns/gate"
	"github.com/MrWong99/hush/pkg/provider/ns/passthrough"
	"github.com/MrWong99/hush/pkg/provider/ns/rnnoise"
)

var version = "0.1.0-dev"

// CLI defines the command-line interface
type CLI struct {
	Config   string `short:"c" type:"path" help:"Path to the YAML config file (optional)." placeholder:"path"`
	LogLevel string `help:"Log level: debug, info, warn or error. Overrides the config file." placeholder:"level"`

	Process ProcessCmd `cmd:"" help:"Denoise raw 16-bit PCM files."`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP and websocket denoising API."`
	Models  ModelsCmd  `cmd:"" help:"List model presets and engines."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// runtime is bound into every command's Run method.
type runtime struct {
	ctx        context.Context
	cfg        *config.Config
	configPath string
	registry   *config.Registry
	level      *slog.LevelVar

	// levelOverride is set when --log-level pins the level; config reloads
	// then leave it alone.
	levelOverride bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var c CLI
	kctx := kong.Parse(&c,
		kong.Name("hush"),
		kong.Description("Real-time speech denoiser with voice activity detection."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(c.Config)
	if err != nil {
		cli.PrintError(os.Stderr, err.Error())
		return 1
	}
	if c.LogLevel != "" {
		cfg.LogLevel = config.LogLevel(c.LogLevel)
		if !cfg.LogLevel.IsValid() {
			cli.PrintError(os.Stderr, fmt.Sprintf("invalid --log-level %q", c.LogLevel))
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(levelFor(cfg.LogLevel))
	slog.SetDefault(newLogger(level))

	// ── Engine registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := &runtime{
		ctx:        ctx,
		cfg:        cfg,
		configPath: c.Config,
		registry:   reg,
		level:      level,

		levelOverride: c.LogLevel != "",
	}
	if err := kctx.Run(rt); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("interrupted")
			return 130
		}
		cli.PrintError(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found", path)
	}
	return cfg, err
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// registerBuiltinEngines wires all built-in engine factories into reg.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterEngine(config.EngineGate, func(config.PipelineConfig) (ns.Engine, error) {
		return gate.New(), nil
	})
	reg.RegisterEngine(config.EngineRNNoise, func(config.PipelineConfig) (ns.Engine, error) {
		return rnnoise.New()
	})
	reg.RegisterEngine(config.EnginePassthrough, func(p config.PipelineConfig) (ns.Engine, error) {
		var opts []passthrough.Option
		if score, ok := optFloat(p.Options, "score"); ok {
			opts = append(opts, passthrough.WithScore(float32(score)))
		}
		return passthrough.New(opts...), nil
	})
}

// resolveModel passes decimal references through unchanged for the
// passthrough engine's score override and resolves everything else with
// model.Resolve.
func resolveModel(ref string) (string, error) {
	if _, err := strconv.ParseFloat(ref, 32); err == nil {
		return ref, nil
	}
	return model.Resolve(ref)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func levelFor(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optFloat extracts a numeric value from an engine Options map[string]any.
// YAML decodes whole numbers as int, so both int and float64 are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
