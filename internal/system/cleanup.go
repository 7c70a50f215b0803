package system

import (
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/scene"
)

// Reclaimer evicts unreferenced resources.
type Reclaimer interface {
	Reclaim() int
}

// CleanupSystem flushes deferred node removals, then lets the resource
// manager evict what those nodes released. Phase 7 (Cleanup).
type CleanupSystem struct {
	graph *scene.Graph
	res   Reclaimer
}

func NewCleanupSystem(graph *scene.Graph, res Reclaimer) *CleanupSystem {
	return &CleanupSystem{graph: graph, res: res}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.graph.FlushRemovals()
	if s.res != nil {
		s.res.Reclaim()
	}
}
