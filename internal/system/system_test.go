package system

import (
	"context"
	"errors"
	"slices"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/anim"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/handle"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/physics"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/l1jgo/enginecore/internal/scripting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tick = time.Second / 60

type payloadTable map[resource.Handle]resource.Payload

func (p payloadTable) Payload(h resource.Handle) (resource.Payload, uint64, bool) {
	v, ok := p[h]
	return v, 1, ok
}

func res(i uint32) resource.Handle { return handle.New[*resource.Resource](i, 1) }

func addNode(t *testing.T, g *scene.Graph, n scene.Node, parent scene.Handle) scene.Handle {
	t.Helper()
	h, err := g.AddNode(n, parent)
	require.NoError(t, err)
	return h
}

func TestAnimationSystemDrivesPlayingNodes(t *testing.T) {
	clip, err := anim.Parse([]byte(`
name: rise
tracks:
  - target: ""
    translation:
      - {t: 0, v: [0, 0, 0]}
      - {t: 1, v: [0, 10, 0]}
`))
	require.NoError(t, err)
	g := scene.NewGraph(nil, nil, nil)
	playing := scene.NewNode("playing")
	playing.Animation = &scene.Animation{Clip: res(1), Playing: true}
	h := addNode(t, g, playing, 0)
	paused := scene.NewNode("paused")
	paused.Animation = &scene.Animation{Clip: res(1)}
	p := addNode(t, g, paused, 0)
	missing := scene.NewNode("missing")
	missing.Animation = &scene.Animation{Clip: res(2), Playing: true}
	m := addNode(t, g, missing, 0)

	s := NewAnimationSystem(g, payloadTable{res(1): clip}, zap.NewNop())
	s.Update(500 * time.Millisecond)

	n, _ := g.Get(h)
	assert.InDelta(t, 5, n.Local.Position.Y(), 1e-4)
	assert.InDelta(t, 0.5, n.Animation.Time, 1e-6)
	n, _ = g.Get(p)
	assert.Zero(t, n.Local.Position.Y())
	n, _ = g.Get(m)
	assert.Zero(t, n.Animation.Time, "clip not loaded; nothing advanced")

	s.Update(time.Second)
	n, _ = g.Get(h)
	assert.InDelta(t, 10, n.Local.Position.Y(), 1e-4, "clamped at the last key")
	assert.False(t, n.Animation.Playing)
}

func TestScriptSystemAppliesAndSkipsFailures(t *testing.T) {
	mover, err := scripting.Compile("mover.lua", []byte(`
function update(ctx)
  return {{type = "translate", x = 1, y = 0, z = 0}}
end`))
	require.NoError(t, err)
	broken, err := scripting.Compile("broken.lua", []byte(`
function update(ctx)
  error("boom")
end`))
	require.NoError(t, err)
	doomed, err := scripting.Compile("doomed.lua", []byte(`
function update(ctx)
  return {{type = "destroy"}}
end`))
	require.NoError(t, err)

	g := scene.NewGraph(nil, nil, nil)
	mk := func(name string, script resource.Handle) scene.Handle {
		n := scene.NewNode(name)
		n.Script = script
		return addNode(t, g, n, 0)
	}
	a := mk("a", res(1))
	b := mk("b", res(2))
	c := mk("c", res(3))
	off := scene.NewNode("off")
	off.Script, off.Enabled = res(1), false
	d := addNode(t, g, off, 0)

	engine := scripting.NewEngine(zap.NewNop())
	t.Cleanup(engine.Close)
	s := NewScriptSystem(g, payloadTable{res(1): mover, res(2): broken, res(3): doomed}, engine, zap.NewNop())
	s.Update(tick)
	s.Update(tick)

	n, _ := g.Get(a)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, n.Local.Position)
	assert.True(t, g.Alive(b), "failing script leaves its node alone")
	n, _ = g.Get(c)
	assert.True(t, n.PendingRemoval())
	n, _ = g.Get(d)
	assert.Zero(t, n.Local.Position.X(), "disabled nodes do not run")

	NewCleanupSystem(g, nil).Update(tick)
	assert.False(t, g.Alive(c))
}

func TestScriptSystemForgetsDetachedScripts(t *testing.T) {
	idle, err := scripting.Compile("idle.lua", []byte(`function update(ctx) end`))
	require.NoError(t, err)

	g := scene.NewGraph(nil, nil, nil)
	mk := func(name string) scene.Handle {
		n := scene.NewNode(name)
		n.Script = res(1)
		return addNode(t, g, n, 0)
	}
	a, b := mk("a"), mk("b")

	engine := scripting.NewEngine(zap.NewNop())
	t.Cleanup(engine.Close)
	s := NewScriptSystem(g, payloadTable{res(1): idle}, engine, zap.NewNop())
	s.Update(tick)
	require.Equal(t, 2, engine.Instances())

	require.NoError(t, g.SetScript(a, 0))
	s.Update(tick)
	assert.Equal(t, 1, engine.Instances())

	require.NoError(t, g.RemoveNode(b))
	s.Update(tick)
	assert.Zero(t, engine.Instances())
}

type captureRenderer struct{ snaps []*scene.Snapshot }

func (r *captureRenderer) Submit(s *scene.Snapshot) { r.snaps = append(r.snaps, s) }

type captureSink struct{ emitters []scene.EmitterState }

func (a *captureSink) UpdateEmitters(e []scene.EmitterState) { a.emitters = e }

func TestOutputSystemFeedsConsumers(t *testing.T) {
	g := scene.NewGraph(nil, nil, nil)
	addNode(t, g, scene.NewNode("mesh").With(scene.Mesh{Mesh: res(1)}).At(scene.At(1, 0, 0)), 0)
	addNode(t, g, scene.NewNode("sound").With(scene.SoundEmitter{Buffer: res(2), Gain: 1}).At(scene.At(0, 3, 0)), 0)
	g.PropagateTransforms()

	out := NewOutputSystem(g)
	r, a := &captureRenderer{}, &captureSink{}
	out.AddRenderer(r)
	out.AddAudioSink(a)
	out.Update(tick)
	out.Update(tick)

	require.Len(t, r.snaps, 2)
	assert.Equal(t, uint64(2), r.snaps[1].Tick)
	assert.Equal(t, 1, r.snaps[1].Instances())
	require.Len(t, a.emitters, 1)
	assert.Equal(t, mgl32.Vec3{0, 3, 0}, a.emitters[0].Position)
}

type memStore struct {
	saved map[string]scene.SceneRecord
	err   error
}

func (m *memStore) Save(_ context.Context, key string, rec scene.SceneRecord) error {
	if m.err != nil {
		return m.err
	}
	m.saved[key] = rec
	return nil
}

func TestSnapshotSystemSavesOnInterval(t *testing.T) {
	g := scene.NewGraph(nil, nil, nil)
	addNode(t, g, scene.NewNode("root"), 0)
	store := &memStore{saved: map[string]scene.SceneRecord{}}
	s := NewSnapshotSystem(g, nil, store, "main", zap.NewNop(), 3)

	s.Update(tick)
	s.Update(tick)
	assert.Empty(t, store.saved)
	s.Update(tick)
	require.Contains(t, store.saved, "main")
	assert.Len(t, store.saved["main"].Nodes, 1)

	store.err = errors.New("db down")
	assert.Error(t, s.Save())
}

type countingReclaimer struct{ calls int }

func (c *countingReclaimer) Reclaim() int { c.calls++; return 0 }

func TestCleanupFlushesThenReclaims(t *testing.T) {
	g := scene.NewGraph(nil, nil, nil)
	h := addNode(t, g, scene.NewNode("gone"), 0)
	g.QueueRemove(h)
	rc := &countingReclaimer{}
	NewCleanupSystem(g, rc).Update(tick)
	assert.False(t, g.Alive(h))
	assert.Equal(t, 1, rc.calls)
}

func TestResourceSystemPromotesAndEventsDispatch(t *testing.T) {
	bus := event.NewBus()
	reg := resource.NewRegistry()
	reg.Register(".anim.yaml", resource.DecodeFunc(anim.Decode))
	fsys := fstest.MapFS{"clips/idle.anim.yaml": {Data: []byte("name: idle\ntracks: []\nduration: 1\n")}}
	m := resource.NewManager(fsys, reg, resource.Options{Workers: 1, Bus: bus}, zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })

	var loaded []string
	event.Subscribe(bus, func(e event.ResourceLoaded) { loaded = append(loaded, e.Path) })

	h, err := m.Request("clips/idle.anim.yaml")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = m.Wait(ctx, h)
	require.NoError(t, err)

	r := coresys.NewRunner()
	r.Register(NewEventSystem(bus))
	r.Register(NewResourceSystem(m, 0))
	// Promote runs before the event phase, so its events land in the same tick.
	r.Tick(tick)
	p, _, ok := m.Payload(h)
	require.True(t, ok)
	assert.IsType(t, &anim.Clip{}, p)
	assert.Equal(t, []string{"clips/idle.anim.yaml"}, loaded)

	r.Tick(tick)
	assert.Len(t, loaded, 1, "delivered once")
}

func TestRunnerOrdersEngineSystems(t *testing.T) {
	g := scene.NewGraph(nil, nil, nil)
	bus := event.NewBus()
	bridge := physics.New(g, physics.Options{}, zap.NewNop())
	engine := scripting.NewEngine(zap.NewNop())
	t.Cleanup(engine.Close)

	r := coresys.NewRunner()
	r.Register(NewCleanupSystem(g, nil))
	r.Register(NewOutputSystem(g))
	r.Register(NewTransformSystem(g))
	r.Register(NewPhysicsSystem(bridge))
	r.Register(NewScriptSystem(g, payloadTable{}, engine, zap.NewNop()))
	r.Register(NewAnimationSystem(g, payloadTable{}, zap.NewNop()))
	r.Register(NewEventSystem(bus))
	r.Register(NewSnapshotSystem(g, nil, &memStore{saved: map[string]scene.SceneRecord{}}, "k", zap.NewNop(), 0))

	var phases []coresys.Phase
	var names []string
	for _, s := range r.Systems() {
		phases = append(phases, s.Phase())
		switch s.(type) {
		case *ScriptSystem:
			names = append(names, "script")
		case *AnimationSystem:
			names = append(names, "animation")
		}
	}
	assert.True(t, slices.IsSorted(phases))
	assert.Equal(t, []string{"script", "animation"}, names, "registration order kept within a phase")
}
