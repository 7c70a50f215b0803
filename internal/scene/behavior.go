package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/resource"
)

// Kind enumerates node behaviors.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindMesh
	KindSprite
	KindCamera
	KindLight
	KindCollider
	KindSoundEmitter
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindMesh:
		return "mesh"
	case KindSprite:
		return "sprite"
	case KindCamera:
		return "camera"
	case KindLight:
		return "light"
	case KindCollider:
		return "collider"
	case KindSoundEmitter:
		return "sound_emitter"
	default:
		return "unknown"
	}
}

// Behavior is the per-node payload. The set of implementations is closed;
// code that needs behavior-specific logic switches over the concrete types.
type Behavior interface {
	Kind() Kind
	behavior()
}

type Empty struct{}

// RenderPath selects the renderer pass a mesh is drawn in.
type RenderPath uint8

const (
	RenderDeferred RenderPath = iota
	RenderForward
)

type Mesh struct {
	Mesh        resource.Handle `json:"-"`
	Material    resource.Handle `json:"-"`
	CastShadows bool            `json:"cast_shadows"`
	RenderPath  RenderPath      `json:"render_path"`
	DecalLayer  uint8           `json:"decal_layer"`
}

type Sprite struct {
	Texture resource.Handle `json:"-"`
	Size    mgl32.Vec2      `json:"size"`
	Color   mgl32.Vec4      `json:"color"`
}

type Camera struct {
	FovY   float32 `json:"fov_y"` // radians
	Near   float32 `json:"near"`
	Far    float32 `json:"far"`
	Active bool    `json:"active"`
}

type LightKind uint8

const (
	LightDirectional LightKind = iota
	LightPoint
	LightSpot
)

type Light struct {
	Kind        LightKind  `json:"kind"`
	Color       mgl32.Vec3 `json:"color"`
	Intensity   float32    `json:"intensity"`
	Range       float32    `json:"range"`
	CastShadows bool       `json:"cast_shadows"`
}

// Dim selects the physics world a collider lives in.
type Dim uint8

const (
	Dim3D Dim = iota
	Dim2D
)

func (d Dim) String() string {
	if d == Dim2D {
		return "2d"
	}
	return "3d"
}

type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota // circle in 2D; uniform scale only
	ShapeBox
)

// UniformOnly reports whether the shape cannot represent non-uniform scale.
func (s ShapeKind) UniformOnly() bool { return s == ShapeSphere }

type BodyKind uint8

const (
	BodyDynamic BodyKind = iota
	BodyKinematic
	BodyStatic
)

// Collider marks a node as the proxy of a physics body.
// For spheres Extents[0] is the radius; for boxes Extents holds half sizes.
type Collider struct {
	Dim         Dim        `json:"dim"`
	Shape       ShapeKind  `json:"shape"`
	Extents     mgl32.Vec3 `json:"extents"`
	Body        BodyKind   `json:"body"`
	Mass        float32    `json:"mass"`
	Friction    float32    `json:"friction"`
	Restitution float32    `json:"restitution"`
}

type SoundEmitter struct {
	Buffer  resource.Handle `json:"-"`
	Gain    float32         `json:"gain"`
	Radius  float32         `json:"radius"`
	Looping bool            `json:"looping"`
}

func (Empty) Kind() Kind        { return KindEmpty }
func (Mesh) Kind() Kind         { return KindMesh }
func (Sprite) Kind() Kind       { return KindSprite }
func (Camera) Kind() Kind       { return KindCamera }
func (Light) Kind() Kind        { return KindLight }
func (Collider) Kind() Kind     { return KindCollider }
func (SoundEmitter) Kind() Kind { return KindSoundEmitter }

func (Empty) behavior()        {}
func (Mesh) behavior()         {}
func (Sprite) behavior()       {}
func (Camera) behavior()       {}
func (Light) behavior()        {}
func (Collider) behavior()     {}
func (SoundEmitter) behavior() {}

// behaviorResources returns the resource handles b references.
func behaviorResources(b Behavior) []resource.Handle {
	switch b := b.(type) {
	case Mesh:
		return nonNil(b.Mesh, b.Material)
	case Sprite:
		return nonNil(b.Texture)
	case SoundEmitter:
		return nonNil(b.Buffer)
	case Empty, Camera, Light, Collider:
		return nil
	default:
		return nil
	}
}

func nonNil(hs ...resource.Handle) []resource.Handle {
	out := hs[:0]
	for _, h := range hs {
		if !h.IsNil() {
			out = append(out, h)
		}
	}
	return out
}
