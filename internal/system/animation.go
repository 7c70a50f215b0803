package system

import (
	"slices"
	"time"

	"github.com/l1jgo/enginecore/internal/anim"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scene"
	"go.uber.org/zap"
)

// Payloads is the read side of the resource manager used by behavior
// systems. Payloads are fetched every tick so reloads apply immediately.
type Payloads interface {
	Payload(h resource.Handle) (resource.Payload, uint64, bool)
}

// AnimationSystem advances playing clips and writes the sampled pose onto
// the animated subtree. Phase 2 (Behavior), before scripts.
type AnimationSystem struct {
	graph *scene.Graph
	res   Payloads
	log   *zap.Logger
}

func NewAnimationSystem(graph *scene.Graph, res Payloads, log *zap.Logger) *AnimationSystem {
	return &AnimationSystem{graph: graph, res: res, log: log}
}

func (s *AnimationSystem) Phase() coresys.Phase { return coresys.PhaseBehavior }

func (s *AnimationSystem) Update(dt time.Duration) {
	step := float32(dt.Seconds())
	playing := slices.Collect(s.graph.Visit(func(_ scene.Handle, n *scene.Node) bool {
		return n.Enabled && n.Animation != nil && n.Animation.Playing
	}))
	for _, h := range playing {
		n, ok := s.graph.Get(h)
		if !ok {
			continue
		}
		p, _, ok := s.res.Payload(n.Animation.Clip)
		if !ok {
			continue // not loaded yet, or failed
		}
		clip, ok := p.(*anim.Clip)
		if !ok {
			s.log.Debug("animation resource is not a clip", zap.String("node", n.Name))
			continue
		}
		t := anim.Advance(n.Animation, clip, step)
		anim.Apply(s.graph, h, clip, t)
	}
}
