package system

import (
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/scene"
)

// OutputSystem hands one snapshot per tick to the renderers and the
// emitter list to the audio sinks. Phase 5 (Output).
type OutputSystem struct {
	graph     *scene.Graph
	renderers []scene.Renderer
	sinks     []scene.AudioSink
	tick      uint64
}

func NewOutputSystem(graph *scene.Graph) *OutputSystem {
	return &OutputSystem{graph: graph}
}

func (s *OutputSystem) AddRenderer(r scene.Renderer) { s.renderers = append(s.renderers, r) }
func (s *OutputSystem) AddAudioSink(a scene.AudioSink) { s.sinks = append(s.sinks, a) }

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.tick++
	if len(s.renderers) == 0 && len(s.sinks) == 0 {
		return
	}
	snap := s.graph.Snapshot(s.tick)
	for _, r := range s.renderers {
		r.Submit(snap)
	}
	for _, a := range s.sinks {
		a.UpdateEmitters(snap.Emitters)
	}
}
