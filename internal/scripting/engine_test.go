package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const moverSrc = `
local calls = 0
function update(ctx)
  calls = calls + 1
  return {
    {type = "translate", x = ctx.dt * 2, y = 0, z = 0},
    {type = "rotate", axis = "z", angle = 0},
    {type = "set_visible", value = calls < 2},
  }
end
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(zap.NewNop())
	t.Cleanup(e.Close)
	return e
}

func mustCompile(t *testing.T, src string) *Script {
	t.Helper()
	s, err := Compile("test", []byte(src))
	require.NoError(t, err)
	return s
}

var scriptRes = handle.New[*resource.Resource](1, 1)

func TestRunAppliesCommands(t *testing.T) {
	e := newTestEngine(t)
	g := scene.NewGraph(nil, nil, nil)
	h, err := g.AddNode(scene.NewNode("mover"), 0)
	require.NoError(t, err)
	s := mustCompile(t, moverSrc)

	for i := 0; i < 2; i++ {
		cmds, err := e.Run(h, scriptRes, 1, s, Context{Name: "mover", Dt: 0.5})
		require.NoError(t, err)
		require.Len(t, cmds, 3)
		require.NoError(t, Apply(g, h, cmds))
	}

	n, _ := g.Get(h)
	assert.True(t, n.Local.Position.ApproxEqual(mgl32.Vec3{2, 0, 0}))
	assert.False(t, n.Visible, "second call hid the node")
	assert.Equal(t, 1, e.Instances())
}

func TestEnvironmentsAreIsolated(t *testing.T) {
	e := newTestEngine(t)
	s := mustCompile(t, `
counter = (counter or 0) + 1
function update(ctx) return {{type = "set_position", x = counter, y = 0, z = 0}} end
`)
	a := scene.Handle(handle.New[*scene.Node](1, 1))
	b := scene.Handle(handle.New[*scene.Node](2, 1))

	ca, err := e.Run(a, scriptRes, 1, s, Context{})
	require.NoError(t, err)
	cb, err := e.Run(b, scriptRes, 1, s, Context{})
	require.NoError(t, err)
	assert.Equal(t, float32(1), ca[0].Vec.X())
	assert.Equal(t, float32(1), cb[0].Vec.X(), "globals written by one node are invisible to another")
}

func TestVersionChangeRebuildsEnvironment(t *testing.T) {
	e := newTestEngine(t)
	h := scene.Handle(handle.New[*scene.Node](1, 1))
	v1 := mustCompile(t, `function update(ctx) return {{type = "set_scale", x = 1, y = 1, z = 1}} end`)
	v2 := mustCompile(t, `function update(ctx) return {{type = "set_scale", x = 2, y = 2, z = 2}} end`)

	cmds, err := e.Run(h, scriptRes, 1, v1, Context{})
	require.NoError(t, err)
	assert.Equal(t, float32(1), cmds[0].Vec.X())

	// Same version: the cached environment is used even if a new payload is passed.
	cmds, err = e.Run(h, scriptRes, 1, v2, Context{})
	require.NoError(t, err)
	assert.Equal(t, float32(1), cmds[0].Vec.X())

	cmds, err = e.Run(h, scriptRes, 2, v2, Context{})
	require.NoError(t, err)
	assert.Equal(t, float32(2), cmds[0].Vec.X())

	e.NodeRemoved(h, nil)
	assert.Zero(t, e.Instances())
}

func TestScriptErrors(t *testing.T) {
	e := newTestEngine(t)
	h := scene.Handle(handle.New[*scene.Node](1, 1))

	_, err := Compile("broken", []byte("function update("))
	assert.Error(t, err)
	_, err = Decode([]byte("local = 1"))
	assert.Error(t, err)

	_, err = e.Run(h, scriptRes, 1, mustCompile(t, "x = 1"), Context{})
	assert.ErrorIs(t, err, ErrNoUpdate)

	_, err = e.Run(h, scriptRes, 2, mustCompile(t, `function update(ctx) error("boom") end`), Context{})
	assert.ErrorContains(t, err, "boom")

	cmds, err := e.Run(h, scriptRes, 3, mustCompile(t, `function update(ctx) return {{type = "explode"}, {type = "destroy"}} end`), Context{})
	assert.ErrorContains(t, err, "explode")
	require.Len(t, cmds, 1)
	assert.Equal(t, OpDestroy, cmds[0].Op)
}

func TestDestroyIsDeferred(t *testing.T) {
	g := scene.NewGraph(nil, nil, nil)
	h, err := g.AddNode(scene.NewNode("doomed"), 0)
	require.NoError(t, err)

	require.NoError(t, Apply(g, h, []Command{{Op: OpDestroy}}))
	assert.True(t, g.Alive(h))
	g.FlushRemovals()
	assert.False(t, g.Alive(h))
}

func TestLoadDirSharesGlobals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.lua"), []byte("function speed() return 3 end"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	e := newTestEngine(t)
	require.NoError(t, e.LoadDir(dir))
	require.NoError(t, e.LoadDir(filepath.Join(dir, "missing")))

	h := scene.Handle(handle.New[*scene.Node](1, 1))
	s := mustCompile(t, `function update(ctx) return {{type = "translate", x = speed(), y = 0, z = 0}} end`)
	cmds, err := e.Run(h, scriptRes, 1, s, Context{})
	require.NoError(t, err)
	assert.Equal(t, float32(3), cmds[0].Vec.X())
}
