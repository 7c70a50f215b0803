package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const step = float32(1.0 / 60)

func newTestBridge(t *testing.T, autoBind bool) (*scene.Graph, *Bridge, *World3D, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	g := scene.NewGraph(nil, bus, zap.NewNop())
	b := New(g, Options{FixedStep: step, MaxSubsteps: 4, AutoBind: autoBind, Bus: bus}, zap.NewNop())
	w := NewWorld3D(Settings{Gravity: mgl32.Vec3{0, -9.8, 0}, Iterations: 4})
	b.AddWorld(scene.Dim3D, w)
	return g, b, w, bus
}

func ball(name string, y float32) scene.Node {
	return scene.NewNode(name).
		With(scene.Collider{Shape: scene.ShapeSphere, Extents: mgl32.Vec3{0.5}, Mass: 1}).
		At(scene.At(0, y, 0))
}

func addNode(t *testing.T, g *scene.Graph, n scene.Node) scene.Handle {
	t.Helper()
	h, err := g.AddNode(n, 0)
	require.NoError(t, err)
	return h
}

func TestGravityPullsUnpushedBodies(t *testing.T) {
	g, b, _, _ := newTestBridge(t, false)
	h := addNode(t, g, ball("ball", 10))
	_, err := b.Bind(h)
	require.NoError(t, err)

	assert.Equal(t, 1, b.Step(step))
	n, _ := g.Get(h)
	assert.Less(t, n.Local.Position.Y(), float32(10))
	assert.True(t, n.Dirty(), "pulled pose marks the node dirty")
}

func TestPushedPoseOverridesGravityForTheStep(t *testing.T) {
	g, b, w, _ := newTestBridge(t, false)
	h := addNode(t, g, ball("ball", 10))
	id, err := b.Bind(h)
	require.NoError(t, err)
	b.Step(step) // falling now
	v, _ := w.Velocity(id)
	require.Less(t, v.Y(), float32(0))

	require.NoError(t, g.SetLocal(h, scene.At(0, 5, 0)))
	b.Step(step)

	n, _ := g.Get(h)
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, n.Local.Position, "node keeps the pushed pose")
	p, _ := w.BodyPose(id)
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, p.Position, "body held at the pushed pose")
	v, _ = w.Velocity(id)
	assert.Equal(t, mgl32.Vec3{}, v, "velocity zeroed by the push")

	// Without a new push the simulation takes over again.
	b.Step(step)
	n, _ = g.Get(h)
	assert.Less(t, n.Local.Position.Y(), float32(5))
}

func TestRemovedNodeLosesBindingNextReconcile(t *testing.T) {
	g, b, w, _ := newTestBridge(t, false)
	parent := addNode(t, g, scene.NewNode("parent"))
	child, err := g.AddNode(ball("child", 1), parent)
	require.NoError(t, err)
	id, err := b.Bind(child)
	require.NoError(t, err)
	require.Equal(t, 1, w.Len())

	require.NoError(t, g.RemoveNode(parent))
	b.Reconcile()

	assert.Zero(t, b.Bindings())
	assert.Zero(t, w.Len())
	_, ok := b.NodeOf(scene.Dim3D, id)
	assert.False(t, ok)
	_, _, ok = b.BodyOf(child)
	assert.False(t, ok)
}

func TestShortStepStillDropsRemovedBinding(t *testing.T) {
	g, b, w, _ := newTestBridge(t, false)
	h := addNode(t, g, ball("ball", 2))
	_, err := b.Bind(h)
	require.NoError(t, err)

	require.NoError(t, g.RemoveNode(h))
	assert.Zero(t, b.Step(step/2), "too short for a substep")

	assert.Zero(t, w.Len())
	assert.Zero(t, b.Bindings())
	_, _, ok := b.BodyOf(h)
	assert.False(t, ok)
}

func TestBindErrors(t *testing.T) {
	g, b, _, _ := newTestBridge(t, false)
	h := addNode(t, g, ball("ball", 0))
	_, err := b.Bind(h)
	require.NoError(t, err)

	_, err = b.Bind(h)
	assert.ErrorIs(t, err, ErrDuplicateBinding)
	assert.Equal(t, 1, b.Bindings())

	plain := addNode(t, g, scene.NewNode("plain"))
	_, err = b.Bind(plain)
	assert.ErrorIs(t, err, ErrNotCollider)

	flat := addNode(t, g, scene.NewNode("flat").With(scene.Collider{Dim: scene.Dim2D, Shape: scene.ShapeBox, Extents: mgl32.Vec3{1, 1, 0}}))
	_, err = b.Bind(flat)
	assert.ErrorIs(t, err, ErrNoWorld)

	bad := addNode(t, g, scene.NewNode("bad").With(scene.Collider{Shape: scene.ShapeSphere}))
	_, err = b.Bind(bad)
	assert.ErrorIs(t, err, ErrBadShape)

	require.NoError(t, g.RemoveNode(plain))
	_, err = b.Bind(plain)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestAutoBindAndBehaviorChange(t *testing.T) {
	g, b, w, _ := newTestBridge(t, true)
	h := addNode(t, g, ball("ball", 3))
	addNode(t, g, scene.NewNode("deco"))

	b.Reconcile()
	assert.Equal(t, 1, b.Bindings())
	first, _, _ := b.BodyOf(h)

	box := scene.Collider{Shape: scene.ShapeBox, Extents: mgl32.Vec3{1, 1, 1}, Mass: 2}
	assert.ErrorIs(t, g.SetBehavior(h, box), ErrDuplicateBinding, "one collider per node")
	require.NoError(t, g.SetBehavior(h, scene.Empty{}))
	require.NoError(t, g.SetBehavior(h, box))
	b.Reconcile()
	second, _, ok := b.BodyOf(h)
	require.True(t, ok)
	assert.NotEqual(t, first, second, "body rebuilt for the new collider")
	assert.Equal(t, 1, w.Len())

	require.NoError(t, g.SetBehavior(h, scene.Empty{}))
	b.Reconcile()
	assert.Zero(t, b.Bindings())
	assert.Zero(t, w.Len())
}

func TestNonUniformScaleOnSphereWarnsAndKeepsScale(t *testing.T) {
	g, b, _, bus := newTestBridge(t, false)
	h := addNode(t, g, ball("ball", 0))
	_, err := b.Bind(h)
	require.NoError(t, err)

	stretched := scene.At(0, 0, 0)
	stretched.Scale = mgl32.Vec3{1, 2, 1}
	require.NoError(t, g.SetLocal(h, stretched))
	b.Step(step)
	b.Step(step)

	assert.Equal(t, 1, event.Pending[event.ReconciliationWarning](bus), "reported once")
	bd := b.byNode[h]
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, bd.scale)

	uniform := scene.At(0, 0, 0)
	uniform.Scale = mgl32.Vec3{2, 2, 2}
	require.NoError(t, g.SetLocal(h, uniform))
	b.Step(step)
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, bd.scale)
}

func TestStepAccumulatesAndCapsSubsteps(t *testing.T) {
	_, b, _, _ := newTestBridge(t, false)
	assert.Zero(t, b.Step(step/2))
	assert.Equal(t, 1, b.Step(step/2+1e-6))
	assert.Equal(t, 4, b.Step(step*10), "capped at MaxSubsteps")
	assert.Zero(t, b.Step(0), "backlog dropped")
}
