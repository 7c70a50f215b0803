package system

import (
	"time"

	"github.com/l1jgo/enginecore/internal/core/event"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
)

// EventSystem makes last tick's events readable and delivers them to
// subscribers. Phase 1 (Events).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
