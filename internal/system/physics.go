package system

import (
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/physics"
)

// PhysicsSystem runs the bridge's reconcile / push / step / pull cycle.
// Phase 3 (Physics).
type PhysicsSystem struct {
	bridge *physics.Bridge
}

func NewPhysicsSystem(bridge *physics.Bridge) *PhysicsSystem {
	return &PhysicsSystem{bridge: bridge}
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhasePhysics }

func (s *PhysicsSystem) Update(dt time.Duration) {
	s.bridge.Step(float32(dt.Seconds()))
}
