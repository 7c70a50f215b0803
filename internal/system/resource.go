package system

import (
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/resource"
)

// ResourceSystem publishes finished loads at tick start and, with hot
// reload enabled, starts a file scan every scanEvery ticks. Phase 0 (Promote).
type ResourceSystem struct {
	res       *resource.Manager
	scanEvery int
	tickCount int
}

// NewResourceSystem creates the system. scanEvery <= 0 disables hot reload.
func NewResourceSystem(res *resource.Manager, scanEvery int) *ResourceSystem {
	return &ResourceSystem{res: res, scanEvery: scanEvery}
}

func (s *ResourceSystem) Phase() coresys.Phase { return coresys.PhasePromote }

func (s *ResourceSystem) Update(_ time.Duration) {
	s.res.Promote()
	if s.scanEvery <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.scanEvery {
		return
	}
	s.tickCount = 0
	s.res.ScanAsync()
}
