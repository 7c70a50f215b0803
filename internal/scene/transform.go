package scene

import "github.com/go-gl/mathgl/mgl32"

// Transform is a local TRS transform relative to the parent node.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// Identity returns the transform that leaves its children unchanged.
func Identity() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// At returns an identity transform translated to (x, y, z).
func At(x, y, z float32) Transform {
	t := Identity()
	t.Position = mgl32.Vec3{x, y, z}
	return t
}

// Matrix returns T * R * S.
func (t Transform) Matrix() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	m = m.Mul4(t.Rotation.Normalize().Mat4())
	return m.Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// UniformScale reports whether all scale components are equal within eps.
func (t Transform) UniformScale(eps float32) bool {
	s := t.Scale
	return mgl32.FloatEqualThreshold(s.X(), s.Y(), eps) && mgl32.FloatEqualThreshold(s.X(), s.Z(), eps)
}

// normalized fills unset rotation and scale with identity values.
// A zero scale is treated as unset.
func (t Transform) normalized() Transform {
	if t.Rotation == (mgl32.Quat{}) {
		t.Rotation = mgl32.QuatIdent()
	}
	if t.Scale == (mgl32.Vec3{}) {
		t.Scale = mgl32.Vec3{1, 1, 1}
	}
	return t
}

// ApproxEqual compares two transforms component-wise.
func (t Transform) ApproxEqual(o Transform) bool {
	return t.Position.ApproxEqual(o.Position) &&
		t.Scale.ApproxEqual(o.Scale) &&
		t.Rotation.ApproxEqual(o.Rotation)
}
