package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jakecoffman/cp"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"github.com/l1jgo/enginecore/internal/scene"
)

type body2D struct {
	desc  BodyDesc
	body  *cp.Body
	shape *cp.Shape
	z     float32 // depth carried through untouched
	scale mgl32.Vec3
}

// World2D simulates on the XY plane with Chipmunk2D. Rotation is about Z;
// spheres become circles and boxes use their X and Y half sizes.
type World2D struct {
	space  *cp.Space
	bodies *handle.Table[*body2D]
}

func NewWorld2D(s Settings) *World2D {
	space := cp.NewSpace()
	space.SetGravity(cp.Vector{X: float64(s.Gravity[0]), Y: float64(s.Gravity[1])})
	space.SetDamping(float64(clamp01(1 - s.Damping)))
	if s.Iterations > 0 {
		space.Iterations = uint(s.Iterations)
	}
	if s.Ground {
		const span = 1e5
		y := float64(s.GroundY)
		ground := cp.NewSegment(space.StaticBody, cp.Vector{X: -span, Y: y}, cp.Vector{X: span, Y: y}, 0)
		ground.SetFriction(1)
		space.AddShape(ground)
	}
	return &World2D{space: space, bodies: handle.NewTable[*body2D](64)}
}

func (w *World2D) AddBody(desc BodyDesc) (BodyID, error) {
	if err := desc.validate(); err != nil {
		return 0, err
	}
	var body *cp.Body
	switch desc.Kind {
	case scene.BodyStatic:
		body = cp.NewStaticBody()
	case scene.BodyKinematic:
		body = cp.NewKinematicBody()
	default:
		body = cp.NewBody(float64(desc.Mass), 1)
	}
	b := &body2D{desc: desc, body: body, z: desc.Pose.Position[2], scale: desc.Scale}
	b.updateMoment()
	w.space.AddBody(body)
	body.SetTransform(vec2(desc.Pose.Position), zAngle(desc.Pose.Rotation))
	b.shape = w.space.AddShape(w.newShape(b))
	return BodyID(w.bodies.Allocate(b)), nil
}

// size returns the scaled circle radius or box width and height.
func (b *body2D) size() (r, wd, ht float64) {
	r = float64(b.desc.Extents[0] * absf(b.scale[0]))
	wd = 2 * r
	ht = 2 * float64(b.desc.Extents[1]*absf(b.scale[1]))
	return r, wd, ht
}

// updateMoment sets the moment of inertia of a dynamic body from its shape.
func (b *body2D) updateMoment() {
	if b.desc.Kind != scene.BodyDynamic {
		return
	}
	r, wd, ht := b.size()
	m := float64(b.desc.Mass)
	if b.desc.Shape == scene.ShapeSphere {
		b.body.SetMoment(cp.MomentForCircle(m, 0, r, cp.Vector{}))
	} else {
		b.body.SetMoment(cp.MomentForBox(m, wd, ht))
	}
}

// newShape builds the collision shape for b at its current scale.
func (w *World2D) newShape(b *body2D) *cp.Shape {
	r, wd, ht := b.size()
	var s *cp.Shape
	if b.desc.Shape == scene.ShapeSphere {
		s = cp.NewCircle(b.body, r, cp.Vector{})
	} else {
		s = cp.NewBox(b.body, wd, ht, 0)
	}
	s.SetFriction(float64(b.desc.Friction))
	s.SetElasticity(float64(b.desc.Restitution))
	return s
}

func (w *World2D) get(id BodyID) (*body2D, bool) {
	return w.bodies.Get(handle.Handle[*body2D](id))
}

func (w *World2D) RemoveBody(id BodyID) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	w.space.RemoveShape(b.shape)
	w.space.RemoveBody(b.body)
	return w.bodies.Free(handle.Handle[*body2D](id))
}

func (w *World2D) SetBodyPose(id BodyID, p Pose) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	b.z = p.Position[2]
	b.body.SetTransform(vec2(p.Position), zAngle(p.Rotation))
	b.body.SetVelocity(0, 0)
	b.body.SetAngularVelocity(0)
	if b.desc.Kind == scene.BodyStatic {
		w.rebuildShape(b) // static shapes are not reindexed on their own
	}
	return true
}

func (w *World2D) BodyPose(id BodyID) (Pose, bool) {
	b, ok := w.get(id)
	if !ok {
		return Pose{}, false
	}
	p := b.body.Position()
	return Pose{
		Position: mgl32.Vec3{float32(p.X), float32(p.Y), b.z},
		Rotation: mgl32.QuatRotate(float32(b.body.Angle()), mgl32.Vec3{0, 0, 1}),
	}, true
}

func (w *World2D) SetBodyScale(id BodyID, s mgl32.Vec3) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	b.scale = s
	b.updateMoment()
	w.rebuildShape(b)
	return true
}

func (w *World2D) rebuildShape(b *body2D) {
	w.space.RemoveShape(b.shape)
	b.shape = w.space.AddShape(w.newShape(b))
}

// SetVelocity sets the linear velocity of a body; Z is ignored.
func (w *World2D) SetVelocity(id BodyID, v mgl32.Vec3) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	b.body.SetVelocity(float64(v[0]), float64(v[1]))
	return true
}

func (w *World2D) Len() int { return w.bodies.Len() }

func (w *World2D) Step(dt float32) {
	if dt > 0 {
		w.space.Step(float64(dt))
	}
}

func vec2(v mgl32.Vec3) cp.Vector { return cp.Vector{X: float64(v[0]), Y: float64(v[1])} }

// zAngle extracts the rotation about Z from q.
func zAngle(q mgl32.Quat) float64 {
	q = q.Normalize()
	x, y, z := float64(q.V[0]), float64(q.V[1]), float64(q.V[2])
	w := float64(q.W)
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}
