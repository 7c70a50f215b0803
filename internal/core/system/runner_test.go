package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	name  string
	phase Phase
	log   *[]string
}

func (r *recorder) Phase() Phase { return r.phase }
func (r *recorder) Update(time.Duration) {
	*r.log = append(*r.log, r.name)
}

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(&recorder{"cleanup", PhaseCleanup, &log})
	r.Register(&recorder{"physics", PhasePhysics, &log})
	r.Register(&recorder{"anim", PhaseBehavior, &log})
	r.Register(&recorder{"script", PhaseBehavior, &log})
	r.Register(&recorder{"promote", PhasePromote, &log})
	r.Register(&recorder{"transform", PhaseTransform, &log})

	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"promote", "anim", "script", "physics", "transform", "cleanup"}, log)
}

func TestTickPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(&recorder{"a", PhasePromote, &log})
	r.Register(&recorder{"b", PhaseCleanup, &log})
	r.Register(&recorder{"c", PhaseBehavior, &log})
	r.Register(&recorder{"b2", PhaseCleanup, &log})
	r.TickPhase(PhaseCleanup, 0)
	assert.Equal(t, []string{"b", "b2"}, log)

	r.TickPhase(PhaseOutput, 0)
	assert.Len(t, log, 2, "empty phase runs nothing")

	// Late registration joins its phase on the next call.
	r.Register(&recorder{"out", PhaseOutput, &log})
	r.TickPhase(PhaseOutput, 0)
	assert.Equal(t, []string{"b", "b2", "out"}, log)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "physics", PhasePhysics.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
