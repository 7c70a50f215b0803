package system

import (
	"cmp"
	"slices"
	"time"
)

// Runner drives one engine tick: promote finished loads, deliver events,
// run behavior, step physics, propagate transforms, hand snapshots to the
// output consumers, persist, then reclaim. Systems sharing a phase run in
// registration order.
type Runner struct {
	systems []System
	// span[p] is the [start, end) range of phase p in systems once sorted.
	span   map[Phase][2]int
	sorted bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		span:    make(map[Phase][2]int, int(PhaseCleanup)+1),
	}
}

// Register adds s. Registering between ticks re-sorts before the next one.
func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once, phase by phase.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

// TickPhase runs only the systems of one phase. The engine uses it at
// startup to publish blocking preloads before the first full tick.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	sp, ok := r.span[phase]
	if !ok {
		return
	}
	for _, s := range r.systems[sp[0]:sp[1]] {
		s.Update(dt)
	}
}

// Systems returns the registered systems in execution order.
func (r *Runner) Systems() []System {
	r.ensureSorted()
	return r.systems
}

func (r *Runner) ensureSorted() {
	if r.sorted {
		return
	}
	slices.SortStableFunc(r.systems, func(a, b System) int {
		return cmp.Compare(a.Phase(), b.Phase())
	})
	clear(r.span)
	for i, s := range r.systems {
		p := s.Phase()
		sp, ok := r.span[p]
		if !ok {
			sp[0] = i
		}
		sp[1] = i + 1
		r.span[p] = sp
	}
	r.sorted = true
}
