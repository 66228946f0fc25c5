package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/internal/server"
	"github.com/MrWong99/hush/pkg/denoise"
)

// ServeCmd runs the HTTP and websocket API.
type ServeCmd struct {
	Pipeline PipelineFlags `embed:""`

	Listen      string   `short:"l" help:"TCP listen address. Overrides server.listen_addr." placeholder:"addr"`
	MaxSessions int      `help:"Concurrent session limit, 0 for unlimited. Overrides server.max_sessions." default:"-1"`
	AllowOrigin []string `help:"Additional websocket origin patterns (host globs) allowed to connect." placeholder:"pattern"`
}

// Run serves until the runtime context is cancelled.
func (c *ServeCmd) Run(rt *runtime) error {
	// ── Effective configuration ───────────────────────────────────────────────
	cfg := *rt.cfg
	c.applyServer(&cfg.Server)
	if err := config.Validate(&cfg); err != nil {
		return err
	}
	p, err := c.Pipeline.pipeline(cfg.Pipeline)
	if err != nil {
		return err
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(rt.ctx, observe.ProviderConfig{
		ServiceName:    "hush",
		ServiceVersion: version,
		Engines:        rt.registry.Engines(),
		DefaultEngine:  p.Engine,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Hot reload ────────────────────────────────────────────────────────────
	var pipeline atomic.Pointer[config.PipelineConfig]
	pipeline.Store(&p)

	if rt.configPath != "" {
		w, err := config.NewWatcher(rt.configPath, c.reload(rt, &pipeline))
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	// ── Sessions and server ───────────────────────────────────────────────────
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Registry:    rt.registry,
		Metrics:     observe.DefaultMetrics(),
		MaxSessions: cfg.Server.MaxSessions,
		Resolver:    resolveModel,
	})
	srv := server.New(sm,
		func() config.PipelineConfig { return *pipeline.Load() },
		server.WithOriginPatterns(c.AllowOrigin...),
	)

	printStartupSummary(&cfg, p)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(rt.ctx, cfg.Server); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// applyServer writes the server flags into s.
func (c *ServeCmd) applyServer(s *config.ServerConfig) {
	if c.Listen != "" {
		s.ListenAddr = c.Listen
	}
	if c.MaxSessions >= 0 {
		s.MaxSessions = c.MaxSessions
	}
}

// reload returns the watcher callback. Log level and pipeline changes apply
// immediately, the pipeline only to sessions opened afterwards. Server
// settings need a restart.
func (c *ServeCmd) reload(rt *runtime, pipeline *atomic.Pointer[config.PipelineConfig]) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.Empty() {
			return
		}
		if d.LogLevelChanged && !rt.levelOverride {
			rt.level.Set(levelFor(d.NewLogLevel))
		}
		if d.PipelineChanged() {
			p, err := c.Pipeline.pipeline(new.Pipeline)
			if err != nil {
				slog.Error("reloaded pipeline rejected", "err", err)
			} else {
				pipeline.Store(&p)
			}
		}
		if d.ServerChanged {
			slog.Warn("server settings changed; restart to apply them")
		}
		slog.Info("configuration reloaded",
			"log_level_changed", d.LogLevelChanged,
			"pipeline_fields", d.PipelineFields,
			"server_changed", d.ServerChanged,
		)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, p config.PipelineConfig) {
	d := p.Denoise()
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          hush — startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Engine", p.Engine)
	printRow("Model", p.Model)
	printRow("Format", fmt.Sprintf("%d Hz, %d ch", d.SampleRate, d.Channels))
	if d.ResampleQuality == denoise.LinearQuality {
		printRow("Resampling", "linear")
	} else {
		printRow("Resampling", fmt.Sprintf("quality %d", int(d.ResampleQuality)))
	}
	printRow("VAD threshold", fmt.Sprintf("%.2f", d.VADThreshold))
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.MaxSessions > 0 {
		printRow("Max sessions", fmt.Sprint(cfg.Server.MaxSessions))
	} else {
		printRow("Max sessions", "(unlimited)")
	}
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	} else {
		printRow("TLS", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if value == "" {
		value = "(default)"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", name, value)
}
