package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pthm-cable/snow/collide"
	"github.com/pthm-cable/snow/config"
	"github.com/pthm-cable/snow/scene"
	"github.com/pthm-cable/snow/sim"
	"github.com/pthm-cable/snow/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	loadPath := flag.String("load", "", "Resume from a .snow state file instead of generating the scene")
	maxTicks := flag.Int("max-ticks", -1, "Stop after N ticks (-1 = use config, 0 = unlimited)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, frames and states")
	frameInterval := flag.Int("frame-interval", -1, "Ticks between particle CSV frames (-1 = use config)")
	saveEvery := flag.Int("save-every", -1, "Ticks between state files (-1 = use config)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	workers := flag.Int("workers", -1, "Worker goroutines (-1 = use config, 0 = GOMAXPROCS)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("bad log level", "level", *logLevel, "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *maxTicks >= 0 {
		cfg.Run.MaxTicks = *maxTicks
	}
	if *frameInterval >= 0 {
		cfg.Telemetry.FrameInterval = *frameInterval
	}
	if *saveEvery >= 0 {
		cfg.Telemetry.SaveInterval = *saveEvery
	}
	if *workers >= 0 {
		cfg.Run.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *loadPath, *outputDir, logger); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, loadPath, outputDir string, logger *slog.Logger) error {
	colliders, err := collide.FromConfig(cfg.Colliders)
	if err != nil {
		return err
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	s, err := sim.New(sim.ParamsFromConfig(cfg),
		sim.WithLogger(logger),
		sim.WithCollider(colliders),
		sim.WithPerf(perf),
		sim.WithWorkers(cfg.Run.Workers),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	if loadPath != "" {
		if err := s.LoadState(loadPath); err != nil {
			return err
		}
	} else {
		particles, err := scene.FromConfig(cfg)
		if err != nil {
			return err
		}
		s.AddParticles(particles)
	}

	out, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		return err
	}

	tm := cfg.Telemetry
	writeFrames := tm.WriteFrames && tm.FrameInterval > 0
	if writeFrames {
		if err := out.WriteFrame(s.Tick(), s.Particles()); err != nil {
			return err
		}
	}

	slog.Info("starting simulation",
		"particles", len(s.Particles()),
		"tick", s.Tick(),
		"max_ticks", cfg.Run.MaxTicks,
		"implicit_ratio", cfg.Integration.ImplicitRatio,
		"colliders", colliders.Len(),
		"output_dir", out.Dir(),
	)

	start := s.Tick()
	for cfg.Run.MaxTicks == 0 || s.Tick()-start < cfg.Run.MaxTicks {
		if err := ctx.Err(); err != nil {
			slog.Info("interrupted", "tick", s.Tick())
			break
		}
		if err := s.Step(); err != nil {
			return err
		}
		tick := s.Tick()

		if tick%tm.LogInterval == 0 {
			stats := s.Stats()
			perfStats := perf.Stats()
			slog.Info("stats", "stats", stats)
			perfStats.LogStats(logger)
			if err := out.WriteTickStats(stats); err != nil {
				slog.Error("failed to write tick stats", "error", err)
			}
			if err := out.WritePerf(perfStats, tick); err != nil {
				slog.Error("failed to write perf", "error", err)
			}
		}
		if writeFrames && tick%tm.FrameInterval == 0 {
			if err := out.WriteFrame(tick, s.Particles()); err != nil {
				slog.Error("failed to write frame", "tick", tick, "error", err)
			}
		}
		if out != nil && tm.SaveInterval > 0 && tick%tm.SaveInterval == 0 {
			if err := s.SaveState(out.StatePath(tick)); err != nil {
				slog.Error("failed to save state", "tick", tick, "error", err)
			}
		}
	}

	slog.Info("simulation finished", "tick", s.Tick(), "sim_time", s.Time())
	return nil
}
