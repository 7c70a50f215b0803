// Package physics keeps simulated bodies and scene nodes in sync.
//
// Worlds own bodies; the Bridge owns the bindings between bodies and nodes
// and runs the push / step / pull cycle on the simulation goroutine.
package physics

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"github.com/l1jgo/enginecore/internal/scene"
)

var (
	ErrStaleHandle      = handle.ErrStale
	ErrDuplicateBinding = scene.ErrDuplicateBinding
	ErrNotCollider      = errors.New("physics: node has no collider behavior")
	ErrNoWorld          = errors.New("physics: no world for collider dimension")
	ErrBadShape         = errors.New("physics: invalid body shape")
)

// BodyID identifies a body inside one world.
type BodyID uint64

// Pose is a body position and orientation.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// BodyDesc describes a body to create.
type BodyDesc struct {
	Shape       scene.ShapeKind
	Extents     mgl32.Vec3 // sphere: [0] is the radius; box: half sizes
	Kind        scene.BodyKind
	Mass        float32
	Friction    float32
	Restitution float32
	Pose        Pose
	Scale       mgl32.Vec3
}

// World is a physics simulation. Implementations are used from a single
// goroutine.
type World interface {
	AddBody(desc BodyDesc) (BodyID, error)
	RemoveBody(id BodyID) bool
	// SetBodyPose teleports the body and zeroes its velocity.
	SetBodyPose(id BodyID, p Pose) bool
	BodyPose(id BodyID) (Pose, bool)
	SetBodyScale(id BodyID, s mgl32.Vec3) bool
	Step(dt float32)
	Len() int
}

// Settings configures a world.
type Settings struct {
	Gravity    mgl32.Vec3
	Damping    float32 // fraction of linear velocity lost per second
	Iterations int
	Ground     bool
	GroundY    float32
}

func descFromCollider(c scene.Collider, t scene.Transform) (BodyDesc, error) {
	d := BodyDesc{
		Shape:       c.Shape,
		Extents:     c.Extents,
		Kind:        c.Body,
		Mass:        c.Mass,
		Friction:    c.Friction,
		Restitution: c.Restitution,
		Pose:        Pose{Position: t.Position, Rotation: t.Rotation},
		Scale:       t.Scale,
	}
	return d, d.validate()
}

func (d *BodyDesc) validate() error {
	switch d.Shape {
	case scene.ShapeSphere:
		if d.Extents[0] <= 0 {
			return ErrBadShape
		}
	case scene.ShapeBox:
		if d.Extents[0] <= 0 || d.Extents[1] <= 0 || d.Extents[2] < 0 {
			return ErrBadShape
		}
	default:
		return ErrBadShape
	}
	if d.Kind == scene.BodyDynamic && d.Mass <= 0 {
		d.Mass = 1
	}
	if d.Scale == (mgl32.Vec3{}) {
		d.Scale = mgl32.Vec3{1, 1, 1}
	}
	if d.Pose.Rotation == (mgl32.Quat{}) {
		d.Pose.Rotation = mgl32.QuatIdent()
	}
	return nil
}
