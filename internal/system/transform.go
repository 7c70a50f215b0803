package system

import (
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/scene"
)

// TransformSystem recomputes global transforms of dirty subtrees.
// Phase 4 (Transform).
type TransformSystem struct {
	graph *scene.Graph
}

func NewTransformSystem(graph *scene.Graph) *TransformSystem {
	return &TransformSystem{graph: graph}
}

func (s *TransformSystem) Phase() coresys.Phase { return coresys.PhaseTransform }

func (s *TransformSystem) Update(_ time.Duration) {
	s.graph.PropagateTransforms()
}
