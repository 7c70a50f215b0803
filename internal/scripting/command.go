package scripting

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/scene"
	lua "github.com/yuin/gopher-lua"
)

// Op is a command a script can return from update.
type Op uint8

const (
	OpTranslate Op = iota + 1
	OpSetPosition
	OpRotate
	OpSetScale
	OpSetVisible
	OpDestroy
)

var opNames = map[string]Op{
	"translate":    OpTranslate,
	"set_position": OpSetPosition,
	"rotate":       OpRotate,
	"set_scale":    OpSetScale,
	"set_visible":  OpSetVisible,
	"destroy":      OpDestroy,
}

// Command is one parsed script command.
type Command struct {
	Op    Op
	Vec   mgl32.Vec3 // translate, set_position, set_scale; rotation axis
	Angle float32    // radians
	Value bool       // set_visible
}

func parseCommand(row *lua.LTable) (Command, error) {
	name := lStr(row, "type")
	op, ok := opNames[name]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", name)
	}
	c := Command{Op: op}
	switch op {
	case OpTranslate, OpSetPosition, OpSetScale:
		c.Vec = mgl32.Vec3{lNum(row, "x"), lNum(row, "y"), lNum(row, "z")}
	case OpRotate:
		axis, err := parseAxis(row.RawGetString("axis"))
		if err != nil {
			return Command{}, err
		}
		c.Vec = axis
		c.Angle = lNum(row, "angle")
	case OpSetVisible:
		c.Value = lua.LVAsBool(row.RawGetString("value"))
	case OpDestroy:
	}
	return c, nil
}

// parseAxis accepts "x", "y", "z" or a {x=,y=,z=} table.
func parseAxis(v lua.LValue) (mgl32.Vec3, error) {
	switch a := v.(type) {
	case lua.LString:
		switch a {
		case "x":
			return mgl32.Vec3{1, 0, 0}, nil
		case "y":
			return mgl32.Vec3{0, 1, 0}, nil
		case "z":
			return mgl32.Vec3{0, 0, 1}, nil
		}
	case *lua.LTable:
		axis := mgl32.Vec3{lNum(a, "x"), lNum(a, "y"), lNum(a, "z")}
		if axis.Len() > 0 {
			return axis.Normalize(), nil
		}
	}
	return mgl32.Vec3{}, fmt.Errorf("rotate: bad axis %v", v)
}

// Apply executes cmds against node h. Transform edits go through SetLocal,
// destroy is deferred to the cleanup phase. It stops at the first command
// that fails.
func Apply(g *scene.Graph, h scene.Handle, cmds []Command) error {
	for _, c := range cmds {
		n, ok := g.Get(h)
		if !ok {
			return fmt.Errorf("apply script commands: %w", scene.ErrStaleHandle)
		}
		t := n.Local
		switch c.Op {
		case OpTranslate:
			t.Position = t.Position.Add(c.Vec)
		case OpSetPosition:
			t.Position = c.Vec
		case OpRotate:
			t.Rotation = mgl32.QuatRotate(c.Angle, c.Vec).Mul(t.Rotation).Normalize()
		case OpSetScale:
			t.Scale = c.Vec
		case OpSetVisible:
			if err := g.SetVisible(h, c.Value); err != nil {
				return err
			}
			continue
		case OpDestroy:
			g.QueueRemove(h)
			continue
		}
		if err := g.SetLocal(h, t); err != nil {
			return err
		}
	}
	return nil
}
