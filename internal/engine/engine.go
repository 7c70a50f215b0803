// Package engine wires the runtime core together: resources, scene graph,
// physics bridge, behavior runtimes and the per-tick system runner.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/asset"
	"github.com/l1jgo/enginecore/internal/config"
	"github.com/l1jgo/enginecore/internal/core/event"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/physics"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/l1jgo/enginecore/internal/scripting"
	"github.com/l1jgo/enginecore/internal/system"
	"go.uber.org/zap"
)

type (
	InputRouter = system.InputRouter
	InputEvent  = system.InputEvent
)

// SceneLoader reads a stored scene record.
type SceneLoader interface {
	Load(ctx context.Context, key string) (scene.SceneRecord, error)
}

// Options carries collaborators that are not built from config.
type Options struct {
	// Assets overrides os.DirFS(resources.root).
	Assets fs.FS
	// Store receives periodic scene snapshots; nil disables them.
	Store system.SceneStore
	// MaxInputPerTick bounds routed input events per tick; 0 is unbounded.
	MaxInputPerTick int
}

// Engine owns every runtime subsystem. Tick and Run must be called from a
// single goroutine, which becomes the simulation goroutine.
type Engine struct {
	Bus       *event.Bus
	Resources *resource.Manager
	Graph     *scene.Graph
	Physics   *physics.Bridge
	Scripts   *scripting.Engine

	cfg       *config.Config
	log       *zap.Logger
	runner    *coresys.Runner
	input     *system.InputSystem
	output    *system.OutputSystem
	snapshots *system.SnapshotSystem
	ticks     uint64
}

// New builds an engine from cfg.
func New(cfg *config.Config, opts Options, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	bus := event.NewBus()

	reg := resource.NewRegistry()
	asset.Register(reg, asset.Options{MaxTextureSize: cfg.Resources.MaxTextureSize})
	src := opts.Assets
	if src == nil {
		src = os.DirFS(cfg.Resources.Root)
	}
	res := resource.NewManager(src, reg, resource.Options{
		Workers:         cfg.Resources.Workers,
		QueueSize:       cfg.Resources.QueueSize,
		EvictGraceTicks: cfg.Resources.EvictGraceTicks,
		Bus:             bus,
	}, log.Named("resource"))

	graph := scene.NewGraph(res, bus, log.Named("scene"))

	scripts := scripting.NewEngine(log.Named("script"))
	if cfg.Scripts.Dir != "" {
		if err := scripts.LoadDir(cfg.Scripts.Dir); err != nil {
			scripts.Close()
			_ = res.Close()
			return nil, fmt.Errorf("load script libraries: %w", err)
		}
	}
	graph.AddRemovalListener(scripts)

	bridge := physics.New(graph, physics.Options{
		FixedStep:   float32(cfg.Physics.FixedStep.Seconds()),
		MaxSubsteps: cfg.Physics.MaxSubsteps,
		AutoBind:    cfg.Physics.AutoBind,
		Bus:         bus,
	}, log.Named("physics"))
	settings := physics.Settings{
		Gravity:    mgl32.Vec3(cfg.Physics.Gravity),
		Damping:    cfg.Physics.Damping,
		Iterations: cfg.Physics.Iterations,
		Ground:     cfg.Physics.Ground,
		GroundY:    cfg.Physics.GroundY,
	}
	if cfg.Physics.Enable3D {
		bridge.AddWorld(scene.Dim3D, physics.NewWorld3D(settings))
	}
	if cfg.Physics.Enable2D {
		bridge.AddWorld(scene.Dim2D, physics.NewWorld2D(settings))
	}

	e := &Engine{
		Bus:       bus,
		Resources: res,
		Graph:     graph,
		Physics:   bridge,
		Scripts:   scripts,
		cfg:       cfg,
		log:       log,
		runner:    coresys.NewRunner(),
		input:     system.NewInputSystem(opts.MaxInputPerTick, log.Named("input")),
		output:    system.NewOutputSystem(graph),
	}

	scanEvery := 0
	if cfg.Resources.HotReload {
		scanEvery = ticksFor(cfg.Resources.WatchInterval, cfg.Scheduler.TickRate)
	}
	e.runner.Register(system.NewResourceSystem(res, scanEvery))
	e.runner.Register(system.NewEventSystem(bus))
	e.runner.Register(e.input)
	e.runner.Register(system.NewAnimationSystem(graph, res, log.Named("anim")))
	e.runner.Register(system.NewScriptSystem(graph, res, scripts, log.Named("script")))
	e.runner.Register(system.NewPhysicsSystem(bridge))
	e.runner.Register(system.NewTransformSystem(graph))
	e.runner.Register(e.output)
	if opts.Store != nil {
		e.snapshots = system.NewSnapshotSystem(graph, res, opts.Store, cfg.Database.Scene, log.Named("persist"), cfg.Database.SnapshotEvery)
		e.runner.Register(e.snapshots)
	}
	e.runner.Register(system.NewCleanupSystem(graph, res))

	event.Subscribe(bus, func(ev event.ResourceFailed) {
		log.Warn("resource failed", zap.String("path", ev.Path), zap.Error(ev.Err))
	})
	event.Subscribe(bus, func(ev event.ResourceLoaded) {
		if ev.Reload {
			log.Info("resource reloaded", zap.String("path", ev.Path), zap.Uint64("version", ev.Version))
		}
	})
	return e, nil
}

// ticksFor converts an interval to a tick count, at least 1.
func ticksFor(interval, tickRate time.Duration) int {
	if tickRate <= 0 || interval <= tickRate {
		return 1
	}
	return int(interval / tickRate)
}

func (e *Engine) AddRenderer(r scene.Renderer)   { e.output.AddRenderer(r) }
func (e *Engine) AddAudioSink(a scene.AudioSink) { e.output.AddAudioSink(a) }
func (e *Engine) AddInputRouter(r InputRouter)   { e.input.AddRouter(r) }

// PostInput queues an input event for the next tick. Safe from any
// goroutine.
func (e *Engine) PostInput(ev InputEvent) { e.input.Post(ev) }

// Ticks returns the number of completed ticks.
func (e *Engine) Ticks() uint64 { return e.ticks }

// Systems returns the registered systems in execution order.
func (e *Engine) Systems() []coresys.System { return e.runner.Systems() }

// Tick runs one full frame of dt.
func (e *Engine) Tick(dt time.Duration) {
	e.runner.Tick(dt)
	e.ticks++
}

// Run ticks at scheduler.tick_rate until ctx is done. A final snapshot is
// saved on the way out when a store is configured.
func (e *Engine) Run(ctx context.Context) error {
	rate := e.cfg.Scheduler.TickRate
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	e.log.Info("engine running", zap.Duration("tick_rate", rate))
	for {
		select {
		case <-ticker.C:
			e.Tick(rate)
		case <-ctx.Done():
			e.log.Info("engine stopping", zap.Uint64("ticks", e.ticks))
			if e.snapshots != nil {
				_ = e.snapshots.Save()
			}
			return nil
		}
	}
}

// LoadManifest preloads the assets listed in the yaml manifest at path and
// publishes them, so the first tick already sees them. Failed entries are
// reported together; the rest stay loaded.
func (e *Engine) LoadManifest(ctx context.Context, path string) ([]resource.Handle, error) {
	mf, err := resource.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	hs, err := e.Resources.Preload(ctx, mf)
	e.runner.TickPhase(coresys.PhasePromote, 0)
	e.log.Info("manifest loaded", zap.String("path", path), zap.Int("assets", len(hs)))
	return hs, err
}

// RestoreScene adds the scene stored under the configured key to the graph.
func (e *Engine) RestoreScene(ctx context.Context, src SceneLoader) ([]scene.Handle, error) {
	rec, err := src.Load(ctx, e.cfg.Database.Scene)
	if err != nil {
		return nil, fmt.Errorf("restore scene: %w", err)
	}
	return scene.Restore(e.Graph, rec, e.Resources)
}

// Close stops resource workers and the script VM.
func (e *Engine) Close() error {
	e.Scripts.Close()
	return e.Resources.Close()
}
