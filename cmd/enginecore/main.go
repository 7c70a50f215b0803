package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l1jgo/enginecore/internal/config"
	"github.com/l1jgo/enginecore/internal/engine"
	"github.com/l1jgo/enginecore/internal/persist"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config/engine.toml", "config file (ENGINECORE_CONFIG overrides)")
	prof := flag.String("profile", "", "write a cpu or mem profile to the working directory")
	flag.Parse()

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *prof)
	}

	// 1. Load config
	path := *cfgPath
	if p := os.Getenv("ENGINECORE_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	log.Info("starting", zap.String("name", cfg.Engine.Name), zap.String("config", path))

	// 3. Optional snapshot database
	var opts engine.Options
	var repo *persist.SnapshotRepo
	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		db, err := persist.NewDB(ctx, cfg.Database, log.Named("db"))
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool, log.Named("db")); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		repo = persist.NewSnapshotRepo(db, cfg.Database.SnapshotHistory)
		opts.Store = repo
	}

	// 4. Engine
	eng, err := engine.New(cfg, opts, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer eng.Close()
	eng.AddRenderer(&statsRenderer{log: log.Named("render"), every: uint64(time.Second / cfg.Scheduler.TickRate)})

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if cfg.Engine.Manifest != "" {
		hs, err := eng.LoadManifest(startCtx, cfg.Engine.Manifest)
		if err != nil {
			// Failed assets stay in Error; the scene can still run.
			log.Warn("manifest incomplete", zap.Int("requested", len(hs)), zap.Error(err))
		}
	}
	if repo != nil {
		hs, err := eng.RestoreScene(startCtx, repo)
		switch {
		case errors.Is(err, persist.ErrNoSnapshot):
			log.Info("no stored scene", zap.String("key", cfg.Database.Scene))
		case err != nil && len(hs) == 0:
			return fmt.Errorf("restore scene: %w", err)
		case err != nil:
			log.Warn("scene restored with errors", zap.Int("nodes", len(hs)), zap.Error(err))
		default:
			log.Info("scene restored", zap.Int("nodes", len(hs)))
		}
	}

	// 5. Game loop until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return eng.Run(ctx)
}

// statsRenderer stands in for a real renderer in headless runs and logs
// what it would draw about once per second.
type statsRenderer struct {
	log   *zap.Logger
	every uint64
}

func (r *statsRenderer) Submit(s *scene.Snapshot) {
	if r.every == 0 || s.Tick%r.every != 0 {
		return
	}
	r.log.Debug("frame",
		zap.Uint64("tick", s.Tick),
		zap.Int("batches", len(s.Batches)),
		zap.Int("instances", s.Instances()),
		zap.Int("sprites", len(s.Sprites)),
		zap.Int("lights", len(s.Lights)),
	)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
