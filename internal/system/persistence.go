package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/scene"
	"go.uber.org/zap"
)

// SceneStore persists captured scenes under a key.
type SceneStore interface {
	Save(ctx context.Context, key string, rec scene.SceneRecord) error
}

// SnapshotSystem periodically captures the scene and saves it.
// Phase 6 (Persist).
type SnapshotSystem struct {
	graph     *scene.Graph
	paths     scene.PathResolver
	store     SceneStore
	key       string
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks
}

func NewSnapshotSystem(graph *scene.Graph, paths scene.PathResolver, store SceneStore, key string, log *zap.Logger, intervalTicks int) *SnapshotSystem {
	return &SnapshotSystem{
		graph:    graph,
		paths:    paths,
		store:    store,
		key:      key,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *SnapshotSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	_ = s.Save()
}

// Save captures and stores the scene immediately. Called on graceful
// shutdown as well as by Update.
func (s *SnapshotSystem) Save() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := scene.Capture(s.graph, s.paths)
	if err := s.store.Save(ctx, s.key, rec); err != nil {
		s.log.Error("scene snapshot failed", zap.String("key", s.key), zap.Error(err))
		return err
	}
	s.log.Debug("scene snapshot saved", zap.String("key", s.key), zap.Int("nodes", len(rec.Nodes)))
	return nil
}
