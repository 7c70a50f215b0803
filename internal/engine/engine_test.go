package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/config"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const spinLua = `
function update(ctx)
  if ctx.time > 0.05 then
    return {{type = "destroy"}}
  end
  return {{type = "translate", x = 1, y = 0, z = 0}}
end
`

const bobClip = `
name: bob
loop: true
tracks:
  - target: ""
    translation:
      - {t: 0, v: [0, 0, 0]}
      - {t: 1, v: [0, 1, 0]}
`

type memStore struct {
	recs  map[string]scene.SceneRecord
	saves int
}

func (m *memStore) Save(_ context.Context, key string, rec scene.SceneRecord) error {
	m.saves++
	m.recs[key] = rec
	return nil
}

func (m *memStore) Load(_ context.Context, key string) (scene.SceneRecord, error) {
	rec, ok := m.recs[key]
	if !ok {
		return scene.SceneRecord{}, errors.New("no snapshot")
	}
	return rec, nil
}

type countRenderer struct{ snaps int }

func (r *countRenderer) Submit(*scene.Snapshot) { r.snaps++ }

type captureRouter struct{ keys []string }

func (r *captureRouter) Route(ev InputEvent) bool {
	r.keys = append(r.keys, ev.Key)
	return true
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Resources.Workers = 2
	cfg.Resources.HotReload = false
	cfg.Resources.EvictGraceTicks = 1
	cfg.Scripts.Dir = ""
	cfg.Scheduler.TickRate = time.Second / 60
	cfg.Physics.FixedStep = time.Second / 60
	cfg.Database.SnapshotEvery = 10
	return cfg
}

func newTestEngine(t *testing.T, assets fs.FS, store *memStore) *Engine {
	t.Helper()
	opts := Options{Assets: assets}
	if store != nil {
		opts.Store = store
	}
	e, err := New(testConfig(), opts, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func testAssets() fstest.MapFS {
	return fstest.MapFS{
		"scripts/spin.lua":    {Data: []byte(spinLua)},
		"clips/bob.anim.yaml": {Data: []byte(bobClip)},
	}
}

func TestLoadManifestPublishesBeforeFirstTick(t *testing.T) {
	e := newTestEngine(t, testAssets(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs, err := e.LoadManifest(ctx, writeManifest(t, `
preload:
  - path: scripts/spin.lua
    pin: true
  - path: clips/bob.anim.yaml
  - path: textures/missing.png
`))
	require.Error(t, err)
	var le *resource.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, resource.KindIO, le.Kind)
	require.Len(t, hs, 3)

	_, _, ok := e.Resources.Payload(hs[0])
	assert.True(t, ok, "published by the promote pass")
	assert.Equal(t, resource.StateError, e.Resources.Poll(hs[2]).State)
}

func TestTickRunsEveryStage(t *testing.T) {
	e := newTestEngine(t, testAssets(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs, err := e.LoadManifest(ctx, writeManifest(t, "preload:\n  - path: scripts/spin.lua\n  - path: clips/bob.anim.yaml\n"))
	require.NoError(t, err)

	r := &countRenderer{}
	e.AddRenderer(r)
	router := &captureRouter{}
	e.AddInputRouter(router)

	scripted := scene.NewNode("spinner")
	scripted.Script = hs[0]
	sh, err := e.Graph.AddNode(scripted, 0)
	require.NoError(t, err)

	animated := scene.NewNode("bob")
	animated.Animation = &scene.Animation{Clip: hs[1], Playing: true}
	ah, err := e.Graph.AddNode(animated, 0)
	require.NoError(t, err)

	ball, err := e.Graph.AddNode(scene.NewNode("ball").
		With(scene.Collider{Shape: scene.ShapeSphere, Extents: mgl32.Vec3{0.5}, Mass: 1}).
		At(scene.At(0, 10, 0)), 0)
	require.NoError(t, err)

	e.PostInput(InputEvent{Key: "space"})
	tick := time.Second / 60
	for i := 0; i < 2; i++ {
		e.Tick(tick)
	}

	n, _ := e.Graph.Get(sh)
	assert.Equal(t, float32(2), n.Local.Position.X())
	n, _ = e.Graph.Get(ah)
	assert.Greater(t, n.Local.Position.Y(), float32(0))
	pos, _ := e.Graph.GlobalPosition(ball)
	assert.Less(t, pos.Y(), float32(10), "auto-bound body falls and the global transform follows")
	_, _, bound := e.Physics.BodyOf(ball)
	assert.True(t, bound)
	assert.Equal(t, 2, r.snaps)
	assert.Equal(t, []string{"space"}, router.keys)
	assert.Equal(t, uint64(2), e.Ticks())

	// Once ctx.time passes 0.05s the script destroys its node; cleanup flushes it.
	for i := 0; i < 3; i++ {
		e.Tick(tick)
	}
	assert.False(t, e.Graph.Alive(sh))
}

func TestRunStopsOnCancelAndSaves(t *testing.T) {
	store := &memStore{recs: map[string]scene.SceneRecord{}}
	e := newTestEngine(t, fstest.MapFS{}, store)
	_, err := e.Graph.AddNode(scene.NewNode("root"), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Positive(t, e.Ticks())
	assert.Positive(t, store.saves, "final snapshot on shutdown")
	require.Contains(t, store.recs, "main")

	other := newTestEngine(t, fstest.MapFS{}, nil)
	hs, err := other.RestoreScene(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	n, _ := other.Graph.Get(hs[0])
	assert.Equal(t, "root", n.Name)
}

func TestTicksFor(t *testing.T) {
	assert.Equal(t, 60, ticksFor(time.Second, time.Second/60))
	assert.Equal(t, 1, ticksFor(time.Millisecond, time.Second/60))
	assert.Equal(t, 1, ticksFor(time.Second, 0))
}
