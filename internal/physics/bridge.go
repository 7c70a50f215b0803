package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/scene"
	"go.uber.org/zap"
)

const scaleEpsilon = 1e-4

type binding struct {
	node     scene.Handle
	dim      scene.Dim
	body     BodyID
	collider scene.Collider // collider the body was built from
	scale    mgl32.Vec3     // last scale applied to the body
	warned   bool           // non-uniform scale already reported

	overridden bool // pushed this frame; not pulled
	override   Pose
}

type bodyKey struct {
	dim  scene.Dim
	body BodyID
}

// Options configures a Bridge.
type Options struct {
	FixedStep   float32
	MaxSubsteps int
	// AutoBind binds every collider node found during reconciliation.
	AutoBind bool
	Bus      *event.Bus
}

// Bridge binds scene nodes to physics bodies and keeps both sides in sync.
// It is not safe for concurrent use.
type Bridge struct {
	graph  *scene.Graph
	worlds map[scene.Dim]World
	byNode map[scene.Handle]*binding
	byBody map[bodyKey]scene.Handle

	removed []scene.Handle

	fixed    float32
	maxSub   int
	acc      float32
	autoBind bool
	bus      *event.Bus
	log      *zap.Logger
}

// New creates a bridge over graph and registers it for node removals.
func New(graph *scene.Graph, opts Options, log *zap.Logger) *Bridge {
	if opts.FixedStep <= 0 {
		opts.FixedStep = 1.0 / 60
	}
	if opts.MaxSubsteps <= 0 {
		opts.MaxSubsteps = 1
	}
	b := &Bridge{
		graph:    graph,
		worlds:   make(map[scene.Dim]World, 2),
		byNode:   make(map[scene.Handle]*binding),
		byBody:   make(map[bodyKey]scene.Handle),
		fixed:    opts.FixedStep,
		maxSub:   opts.MaxSubsteps,
		autoBind: opts.AutoBind,
		bus:      opts.Bus,
		log:      log,
	}
	graph.AddRemovalListener(b)
	return b
}

// AddWorld installs the world simulating colliders of dimension dim.
func (b *Bridge) AddWorld(dim scene.Dim, w World) {
	b.worlds[dim] = w
}

func (b *Bridge) World(dim scene.Dim) (World, bool) {
	w, ok := b.worlds[dim]
	return w, ok
}

// NodeRemoved queues the binding of a removed node for the next
// reconciliation.
func (b *Bridge) NodeRemoved(h scene.Handle, _ *scene.Node) {
	if _, ok := b.byNode[h]; ok {
		b.removed = append(b.removed, h)
	}
}

// Bind creates a body for node h from its collider behavior and local
// transform.
func (b *Bridge) Bind(h scene.Handle) (BodyID, error) {
	n, ok := b.graph.Get(h)
	if !ok {
		return 0, fmt.Errorf("bind: %w", ErrStaleHandle)
	}
	if _, dup := b.byNode[h]; dup {
		return 0, fmt.Errorf("bind %q: %w", n.Name, ErrDuplicateBinding)
	}
	c, ok := n.Behavior.(scene.Collider)
	if !ok {
		return 0, fmt.Errorf("bind %q: %w", n.Name, ErrNotCollider)
	}
	w, ok := b.worlds[c.Dim]
	if !ok {
		return 0, fmt.Errorf("bind %q (%s): %w", n.Name, c.Dim, ErrNoWorld)
	}
	desc, err := descFromCollider(c, n.Local)
	if err != nil {
		return 0, fmt.Errorf("bind %q: %w", n.Name, err)
	}
	scale := desc.Scale
	if c.Shape.UniformOnly() && !n.Local.UniformScale(scaleEpsilon) {
		desc.Scale = uniformFrom(scale)
		b.warn(h, n.Name, "non-uniform scale on uniform-only shape; using x scale")
	}
	id, err := w.AddBody(desc)
	if err != nil {
		return 0, fmt.Errorf("bind %q: %w", n.Name, err)
	}
	bd := &binding{node: h, dim: c.Dim, body: id, collider: c, scale: desc.Scale, warned: desc.Scale != scale}
	b.byNode[h] = bd
	b.byBody[bodyKey{c.Dim, id}] = h
	// The body starts at the node pose; nothing to push yet.
	b.graph.TakeTouched(h)
	return id, nil
}

// Unbind removes the binding of h and its body.
func (b *Bridge) Unbind(h scene.Handle) bool {
	bd, ok := b.byNode[h]
	if !ok {
		return false
	}
	if w, ok := b.worlds[bd.dim]; ok {
		w.RemoveBody(bd.body)
	}
	delete(b.byNode, h)
	delete(b.byBody, bodyKey{bd.dim, bd.body})
	return true
}

// BodyOf returns the body bound to node h.
func (b *Bridge) BodyOf(h scene.Handle) (BodyID, scene.Dim, bool) {
	bd, ok := b.byNode[h]
	if !ok {
		return 0, 0, false
	}
	return bd.body, bd.dim, true
}

// NodeOf returns the node bound to a body.
func (b *Bridge) NodeOf(dim scene.Dim, id BodyID) (scene.Handle, bool) {
	h, ok := b.byBody[bodyKey{dim, id}]
	return h, ok
}

// Bindings returns the number of live bindings.
func (b *Bridge) Bindings() int { return len(b.byNode) }

// Reconcile drops bindings of removed or changed nodes and, with AutoBind,
// binds new collider nodes. Step calls it once per call and before every
// further substep.
func (b *Bridge) Reconcile() {
	for _, h := range b.removed {
		b.Unbind(h)
	}
	b.removed = b.removed[:0]

	for h, bd := range b.byNode {
		n, ok := b.graph.Get(h)
		if !ok {
			b.Unbind(h)
			continue
		}
		if c, ok := n.Behavior.(scene.Collider); !ok || c != bd.collider {
			b.Unbind(h)
		}
	}

	if !b.autoBind {
		return
	}
	for h := range b.graph.Visit(scene.OfKind(scene.KindCollider)) {
		if _, ok := b.byNode[h]; ok {
			continue
		}
		if _, err := b.Bind(h); err != nil {
			b.log.Debug("auto-bind skipped", zap.Uint64("node", uint64(h)), zap.Error(err))
		}
	}
}

// Step advances the simulation by dt using fixed substeps. Bindings are
// reconciled on every call, even when dt is too short for a substep.
// Leftover time is carried to the next call; time beyond MaxSubsteps is
// dropped. It returns the number of substeps run.
func (b *Bridge) Step(dt float32) int {
	b.Reconcile()
	b.acc += dt
	n := 0
	for b.acc >= b.fixed && n < b.maxSub {
		if n > 0 {
			b.Reconcile()
		}
		b.push()
		for _, w := range b.worlds {
			w.Step(b.fixed)
		}
		b.reapply()
		b.pull()
		b.acc -= b.fixed
		n++
	}
	if b.acc >= b.fixed {
		b.log.Debug("physics fell behind; dropping time", zap.Float32("dropped", b.acc))
		b.acc = 0
	}
	for _, bd := range b.byNode {
		bd.overridden = false
	}
	return n
}

// push copies externally edited node transforms onto their bodies. A pushed
// body holds that pose for the rest of the frame.
func (b *Bridge) push() {
	for h, bd := range b.byNode {
		if !b.graph.Alive(h) {
			continue
		}
		w := b.worlds[bd.dim]
		local, touched := b.graph.TakeTouched(h)
		if touched {
			bd.override = Pose{Position: local.Position, Rotation: local.Rotation}
			bd.overridden = true
			w.SetBodyPose(bd.body, bd.override)
		}
		b.syncScale(h, bd, w, local)
	}
}

func (b *Bridge) syncScale(h scene.Handle, bd *binding, w World, local scene.Transform) {
	if local.Scale.ApproxEqualThreshold(bd.scale, scaleEpsilon) {
		return
	}
	if bd.collider.Shape.UniformOnly() && !local.UniformScale(scaleEpsilon) {
		if !bd.warned {
			bd.warned = true
			n, _ := b.graph.Get(h)
			b.warn(h, n.Name, "non-uniform scale on uniform-only shape; keeping last scale")
		}
		return
	}
	bd.warned = false
	bd.scale = local.Scale
	w.SetBodyScale(bd.body, local.Scale)
}

func (b *Bridge) reapply() {
	for _, bd := range b.byNode {
		if bd.overridden {
			b.worlds[bd.dim].SetBodyPose(bd.body, bd.override)
		}
	}
}

// pull writes simulated poses back to nodes that were not pushed.
func (b *Bridge) pull() {
	for h, bd := range b.byNode {
		if bd.overridden || bd.collider.Body == scene.BodyStatic {
			continue
		}
		p, ok := b.worlds[bd.dim].BodyPose(bd.body)
		if !ok {
			continue
		}
		n, ok := b.graph.Get(h)
		if !ok {
			continue
		}
		t := n.Local
		t.Position, t.Rotation = p.Position, p.Rotation
		b.graph.SetLocalFromPhysics(h, t)
	}
}

func (b *Bridge) warn(h scene.Handle, name, reason string) {
	b.log.Warn("physics reconciliation", zap.String("node", name), zap.String("reason", reason))
	event.Emit(b.bus, event.ReconciliationWarning{Node: uint64(h), Reason: reason})
}

func uniformFrom(s mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{s[0], s[0], s[0]}
}
