package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhasePromote   Phase = iota // 0: publish finished resource loads
	PhaseEvents                 // 1: deliver last tick's events
	PhaseBehavior               // 2: animation + behavior scripts
	PhasePhysics                // 3: reconcile, push, step, pull
	PhaseTransform              // 4: propagate global transforms
	PhaseOutput                 // 5: renderer/audio snapshots
	PhasePersist                // 6: periodic scene snapshots
	PhaseCleanup                // 7: deferred node + resource reclamation
)

var phaseNames = [...]string{"promote", "events", "behavior", "physics", "transform", "output", "persist", "cleanup"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// System is the interface every engine system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
