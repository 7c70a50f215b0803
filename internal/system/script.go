package system

import (
	"slices"
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/l1jgo/enginecore/internal/scripting"
	"go.uber.org/zap"
)

// ScriptSystem runs the update function of every enabled node with a
// loaded script and applies the returned commands. A failing script is
// logged and its node skipped for the tick. Phase 2 (Behavior).
type ScriptSystem struct {
	graph   *scene.Graph
	res     Payloads
	engine  *scripting.Engine
	log     *zap.Logger
	elapsed float64
}

func NewScriptSystem(graph *scene.Graph, res Payloads, engine *scripting.Engine, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{graph: graph, res: res, engine: engine, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseBehavior }

func (s *ScriptSystem) Update(dt time.Duration) {
	s.elapsed += dt.Seconds()
	scripted := slices.Collect(s.graph.Visit(func(_ scene.Handle, n *scene.Node) bool {
		return n.Enabled && !n.Script.IsNil()
	}))
	for _, h := range scripted {
		n, ok := s.graph.Get(h)
		if !ok || n.PendingRemoval() {
			continue
		}
		p, version, ok := s.res.Payload(n.Script)
		if !ok {
			continue
		}
		sc, ok := p.(*scripting.Script)
		if !ok {
			continue
		}
		cmds, err := s.engine.Run(h, n.Script, version, sc, scripting.Context{
			Name:     n.Name,
			Position: n.Local.Position,
			Dt:       float32(dt.Seconds()),
			Time:     s.elapsed,
		})
		if err != nil {
			s.log.Warn("script failed", zap.String("node", n.Name), zap.String("script", sc.Name), zap.Error(err))
			continue
		}
		if err := scripting.Apply(s.graph, h, cmds); err != nil {
			s.log.Warn("script command failed", zap.String("node", n.Name), zap.Error(err))
		}
	}
	s.forgetDetached()
}

// forgetDetached drops environments of nodes whose script was detached.
func (s *ScriptSystem) forgetDetached() {
	for h := range s.engine.Bound() {
		if n, ok := s.graph.Get(h); !ok || n.Script.IsNil() {
			s.engine.Forget(h)
		}
	}
}
