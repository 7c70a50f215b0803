package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"github.com/l1jgo/enginecore/internal/scene"
)

type rigidBody struct {
	desc    BodyDesc
	pos     mgl32.Vec3
	rot     mgl32.Quat
	vel     mgl32.Vec3
	angVel  mgl32.Vec3
	scale   mgl32.Vec3
	invMass float32
}

// radius is the scaled sphere radius.
func (b *rigidBody) radius() float32 {
	return b.desc.Extents[0] * absf(b.scale[0])
}

// halfHeight is the vertical half extent of the body's world AABB.
func (b *rigidBody) halfHeight() float32 {
	if b.desc.Shape == scene.ShapeSphere {
		return b.radius()
	}
	m := b.rot.Normalize().Mat4()
	var h float32
	for i := 0; i < 3; i++ {
		h += absf(m.At(1, i)) * b.desc.Extents[i] * absf(b.scale[i])
	}
	return h
}

// World3D is a small rigid-body integrator: gravity, damping, a ground
// plane and sphere-sphere contacts. Boxes only collide with the ground.
type World3D struct {
	settings Settings
	bodies   *handle.Table[*rigidBody]
}

func NewWorld3D(s Settings) *World3D {
	if s.Iterations <= 0 {
		s.Iterations = 1
	}
	return &World3D{settings: s, bodies: handle.NewTable[*rigidBody](64)}
}

func (w *World3D) AddBody(desc BodyDesc) (BodyID, error) {
	if err := desc.validate(); err != nil {
		return 0, err
	}
	b := &rigidBody{desc: desc, pos: desc.Pose.Position, rot: desc.Pose.Rotation, scale: desc.Scale}
	if desc.Kind == scene.BodyDynamic {
		b.invMass = 1 / desc.Mass
	}
	return BodyID(w.bodies.Allocate(b)), nil
}

func (w *World3D) RemoveBody(id BodyID) bool {
	return w.bodies.Free(handle.Handle[*rigidBody](id))
}

func (w *World3D) get(id BodyID) (*rigidBody, bool) {
	return w.bodies.Get(handle.Handle[*rigidBody](id))
}

func (w *World3D) SetBodyPose(id BodyID, p Pose) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	b.pos, b.rot = p.Position, p.Rotation
	b.vel, b.angVel = mgl32.Vec3{}, mgl32.Vec3{}
	return true
}

func (w *World3D) BodyPose(id BodyID) (Pose, bool) {
	b, ok := w.get(id)
	if !ok {
		return Pose{}, false
	}
	return Pose{Position: b.pos, Rotation: b.rot}, true
}

func (w *World3D) SetBodyScale(id BodyID, s mgl32.Vec3) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	b.scale = s
	return true
}

// SetVelocity sets the linear velocity of a body.
func (w *World3D) SetVelocity(id BodyID, v mgl32.Vec3) bool {
	b, ok := w.get(id)
	if !ok {
		return false
	}
	b.vel = v
	return true
}

func (w *World3D) Velocity(id BodyID) (mgl32.Vec3, bool) {
	b, ok := w.get(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return b.vel, true
}

func (w *World3D) Len() int { return w.bodies.Len() }

func (w *World3D) Step(dt float32) {
	if dt <= 0 {
		return
	}
	keep := 1 - w.settings.Damping*dt
	if keep < 0 {
		keep = 0
	}
	var spheres []*rigidBody
	w.bodies.Each(func(_ handle.Handle[*rigidBody], bp **rigidBody) {
		b := *bp
		switch b.desc.Kind {
		case scene.BodyDynamic:
			b.vel = b.vel.Add(w.settings.Gravity.Mul(dt)).Mul(keep)
			fallthrough
		case scene.BodyKinematic:
			b.pos = b.pos.Add(b.vel.Mul(dt))
			b.rot = integrateRotation(b.rot, b.angVel, dt)
		case scene.BodyStatic:
		}
		if b.desc.Shape == scene.ShapeSphere {
			spheres = append(spheres, b)
		}
	})
	for i := 0; i < w.settings.Iterations; i++ {
		w.collideSpheres(spheres)
		if w.settings.Ground {
			w.collideGround()
		}
	}
}

func integrateRotation(q mgl32.Quat, w mgl32.Vec3, dt float32) mgl32.Quat {
	if w == (mgl32.Vec3{}) {
		return q
	}
	spin := mgl32.Quat{W: 0, V: w}.Mul(q).Scale(0.5 * dt)
	return q.Add(spin).Normalize()
}

func (w *World3D) collideGround() {
	y := w.settings.GroundY
	w.bodies.Each(func(_ handle.Handle[*rigidBody], bp **rigidBody) {
		b := *bp
		if b.invMass == 0 {
			return
		}
		h := b.halfHeight()
		if b.pos[1]-h >= y {
			return
		}
		b.pos[1] = y + h
		if b.vel[1] < 0 {
			b.vel[1] = -b.vel[1] * b.desc.Restitution
		}
		f := 1 - clamp01(b.desc.Friction)
		b.vel[0] *= f
		b.vel[2] *= f
	})
}

func (w *World3D) collideSpheres(spheres []*rigidBody) {
	for i := 0; i < len(spheres); i++ {
		for j := i + 1; j < len(spheres); j++ {
			a, b := spheres[i], spheres[j]
			inv := a.invMass + b.invMass
			if inv == 0 {
				continue
			}
			d := b.pos.Sub(a.pos)
			dist := d.Len()
			overlap := a.radius() + b.radius() - dist
			if overlap <= 0 {
				continue
			}
			n := mgl32.Vec3{0, 1, 0}
			if dist > 1e-6 {
				n = d.Mul(1 / dist)
			}
			a.pos = a.pos.Sub(n.Mul(overlap * a.invMass / inv))
			b.pos = b.pos.Add(n.Mul(overlap * b.invMass / inv))

			rv := b.vel.Sub(a.vel).Dot(n)
			if rv >= 0 {
				continue
			}
			e := minf(a.desc.Restitution, b.desc.Restitution)
			imp := -(1 + e) * rv / inv
			a.vel = a.vel.Sub(n.Mul(imp * a.invMass))
			b.vel = b.vel.Add(n.Mul(imp * b.invMass))
		}
	}
}

func absf(f float32) float32 { return float32(math.Abs(float64(f))) }

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clamp01(f float32) float32 {
	return mgl32.Clamp(f, 0, 1)
}
