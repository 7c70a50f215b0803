package system

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"go.uber.org/zap"
)

type InputKind uint8

const (
	InputKeyDown InputKind = iota
	InputKeyUp
	InputPointerMove
	InputPointerDown
	InputPointerUp
	InputScroll
)

// InputEvent is a platform-neutral input event posted by the host.
type InputEvent struct {
	Kind   InputKind
	Key    string
	Button int
	Pos    mgl32.Vec2
	Delta  mgl32.Vec2
	At     time.Time
}

// InputRouter receives input events. Route reports whether the event was
// consumed; consumed events are not offered to later routers.
type InputRouter interface {
	Route(ev InputEvent) bool
}

// InputSystem drains the input queue filled by the host goroutine and
// offers each event to the routers in registration order. At most
// maxPerTick events are routed per tick; the rest wait. Phase 1 (Events).
type InputSystem struct {
	mu      sync.Mutex
	queue   []InputEvent
	routers []InputRouter

	maxPerTick int
	dropped    int
	log        *zap.Logger
}

func NewInputSystem(maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{maxPerTick: maxPerTick, log: log}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

// AddRouter registers r. Routers are called on the simulation goroutine.
func (s *InputSystem) AddRouter(r InputRouter) { s.routers = append(s.routers, r) }

// Post queues ev for the next tick. Safe from any goroutine.
func (s *InputSystem) Post(ev InputEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
}

// Pending returns the number of queued events.
func (s *InputSystem) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *InputSystem) Update(_ time.Duration) {
	s.mu.Lock()
	n := len(s.queue)
	if s.maxPerTick > 0 && n > s.maxPerTick {
		n = s.maxPerTick
	}
	batch := make([]InputEvent, n)
	copy(batch, s.queue)
	s.queue = append(s.queue[:0], s.queue[n:]...)
	s.mu.Unlock()

	for _, ev := range batch {
		consumed := false
		for _, r := range s.routers {
			if r.Route(ev) {
				consumed = true
				break
			}
		}
		if !consumed {
			s.dropped++
		}
	}
	if len(batch) > 0 && s.dropped > 0 {
		s.log.Debug("unrouted input", zap.Int("total", s.dropped))
	}
}
