// Package scripting runs per-node Lua behavior scripts.
//
// A script defines update(ctx) and returns a list of command tables. The
// engine turns those into graph edits; scripts never touch the graph
// directly.
package scripting

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scene"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

var ErrNoUpdate = errors.New("scripting: script defines no update function")

// Engine wraps a single gopher-lua VM. Single-goroutine access only
// (simulation loop).
type Engine struct {
	vm   *lua.LState
	log  *zap.Logger
	envs map[scene.Handle]*nodeEnv
}

// nodeEnv is the private global table of one node's script instance.
type nodeEnv struct {
	script  resource.Handle
	version uint64
	env     *lua.LTable
	update  lua.LValue
}

// NewEngine creates the VM. Shared library scripts are loaded with LoadDir.
func NewEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{vm: vm, log: log, envs: make(map[scene.Handle]*nodeEnv)}
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	return e
}

// luaLog forwards log(msg) from scripts to zap.
func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("script", zap.String("msg", L.CheckString(1)))
	return 0
}

// LoadDir runs every .lua file in dir in the global environment, so node
// scripts can call the functions they define. A missing dir is skipped.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua library", zap.String("file", path))
	}
	return nil
}

// Context is what update(ctx) sees.
type Context struct {
	Name     string
	Position mgl32.Vec3
	Dt       float32
	Time     float64
}

// Run calls update(ctx) for node h. The node's environment is built on
// first use and rebuilt when the script handle or its version changes.
func (e *Engine) Run(h scene.Handle, script resource.Handle, version uint64, s *Script, ctx Context) ([]Command, error) {
	ne, err := e.env(h, script, version, s)
	if err != nil {
		return nil, err
	}

	t := e.vm.NewTable()
	t.RawSetString("name", lua.LString(ctx.Name))
	t.RawSetString("x", lua.LNumber(ctx.Position.X()))
	t.RawSetString("y", lua.LNumber(ctx.Position.Y()))
	t.RawSetString("z", lua.LNumber(ctx.Position.Z()))
	t.RawSetString("dt", lua.LNumber(ctx.Dt))
	t.RawSetString("time", lua.LNumber(ctx.Time))

	if err := e.vm.CallByParam(lua.P{
		Fn:      ne.update,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return nil, fmt.Errorf("%s: update: %w", s.Name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil, nil // no commands this tick
	}
	var cmds []Command
	var bad error
	rt.ForEach(func(_, v lua.LValue) {
		row, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		c, err := parseCommand(row)
		if err != nil {
			bad = errors.Join(bad, err)
			return
		}
		cmds = append(cmds, c)
	})
	return cmds, bad
}

func (e *Engine) env(h scene.Handle, script resource.Handle, version uint64, s *Script) (*nodeEnv, error) {
	if ne, ok := e.envs[h]; ok && ne.script == script && ne.version == version {
		return ne, nil
	}
	if s == nil || s.Proto == nil {
		return nil, fmt.Errorf("script %d: no compiled payload", uint64(script))
	}

	env := e.vm.NewTable()
	mt := e.vm.NewTable()
	mt.RawSetString("__index", e.vm.G.Global)
	e.vm.SetMetatable(env, mt)

	fn := e.vm.NewFunctionFromProto(s.Proto)
	fn.Env = env
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		delete(e.envs, h)
		return nil, fmt.Errorf("%s: load: %w", s.Name, err)
	}
	update := env.RawGetString("update")
	if update.Type() != lua.LTFunction {
		delete(e.envs, h)
		return nil, fmt.Errorf("%s: %w", s.Name, ErrNoUpdate)
	}
	ne := &nodeEnv{script: script, version: version, env: env, update: update}
	if _, reload := e.envs[h]; reload {
		e.log.Debug("script environment rebuilt", zap.String("script", s.Name), zap.Uint64("version", version))
	}
	e.envs[h] = ne
	return ne, nil
}

// NodeRemoved drops the environment of a removed node.
func (e *Engine) NodeRemoved(h scene.Handle, _ *scene.Node) {
	delete(e.envs, h)
}

// Forget drops the environment of h, e.g. after its script was detached.
func (e *Engine) Forget(h scene.Handle) { delete(e.envs, h) }

// Bound yields the nodes that currently own an environment. Forget may be
// called while ranging.
func (e *Engine) Bound() iter.Seq[scene.Handle] {
	return maps.Keys(e.envs)
}

// Instances returns the number of live script environments.
func (e *Engine) Instances() int { return len(e.envs) }

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// --- Lua helpers ---

func lNum(t *lua.LTable, key string) float32 {
	return float32(lua.LVAsNumber(t.RawGetString(key)))
}

func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}
