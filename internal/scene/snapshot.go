package scene

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/resource"
)

// Renderer consumes one snapshot per tick.
type Renderer interface {
	Submit(s *Snapshot)
}

// AudioSink receives emitter placements once per tick.
type AudioSink interface {
	UpdateEmitters(emitters []EmitterState)
}

// BatchKey groups mesh instances that can be drawn together. Instances on
// different decal layers never share a batch.
type BatchKey struct {
	Mesh       resource.Handle
	Material   resource.Handle
	Path       RenderPath
	DecalLayer uint8
}

func (k BatchKey) less(o BatchKey) bool {
	if k.Path != o.Path {
		return k.Path < o.Path
	}
	if k.Mesh != o.Mesh {
		return k.Mesh < o.Mesh
	}
	if k.Material != o.Material {
		return k.Material < o.Material
	}
	return k.DecalLayer < o.DecalLayer
}

type Instance struct {
	Node        Handle
	World       mgl32.Mat4
	CastShadows bool
}

type Batch struct {
	Key       BatchKey
	Instances []Instance
}

type SpriteInstance struct {
	Node    Handle
	World   mgl32.Mat4
	Texture resource.Handle
	Size    mgl32.Vec2
	Color   mgl32.Vec4
}

type CameraState struct {
	Node   Handle
	World  mgl32.Mat4
	Camera Camera
}

type LightState struct {
	Node     Handle
	Position mgl32.Vec3
	// Direction is the node's -Z axis in world space.
	Direction mgl32.Vec3
	Light     Light
}

type EmitterState struct {
	Node     Handle
	Position mgl32.Vec3
	Emitter  SoundEmitter
}

// Snapshot is a read-only view of the renderable scene taken after
// propagation. It shares no memory with the graph.
type Snapshot struct {
	Tick     uint64
	Batches  []Batch
	Sprites  []SpriteInstance
	Cameras  []CameraState
	Lights   []LightState
	Emitters []EmitterState
}

// Instances returns the total mesh instance count over all batches.
func (s *Snapshot) Instances() int {
	n := 0
	for _, b := range s.Batches {
		n += len(b.Instances)
	}
	return n
}

// Snapshot collects visible nodes. An invisible node hides its whole
// subtree. Batches are sorted by key; instances keep traversal order.
func (g *Graph) Snapshot(tick uint64) *Snapshot {
	s := &Snapshot{Tick: tick}
	batches := make(map[BatchKey]int)

	stack := make([]Handle, 0, 32)
	for i := len(g.roots) - 1; i >= 0; i-- {
		stack = append(stack, g.roots[i])
	}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := g.nodes.Get(h)
		if !ok || !n.Visible {
			continue
		}
		switch b := n.Behavior.(type) {
		case Mesh:
			if b.Mesh.IsNil() {
				break
			}
			key := BatchKey{Mesh: b.Mesh, Material: b.Material, Path: b.RenderPath, DecalLayer: b.DecalLayer}
			i, ok := batches[key]
			if !ok {
				i = len(s.Batches)
				batches[key] = i
				s.Batches = append(s.Batches, Batch{Key: key})
			}
			s.Batches[i].Instances = append(s.Batches[i].Instances, Instance{
				Node: h, World: n.global, CastShadows: b.CastShadows,
			})
		case Sprite:
			s.Sprites = append(s.Sprites, SpriteInstance{
				Node: h, World: n.global, Texture: b.Texture, Size: b.Size, Color: b.Color,
			})
		case Camera:
			s.Cameras = append(s.Cameras, CameraState{Node: h, World: n.global, Camera: b})
		case Light:
			dir := n.global.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3()
			if dir.Len() > 0 {
				dir = dir.Normalize()
			}
			s.Lights = append(s.Lights, LightState{
				Node: h, Position: n.GlobalPosition(), Direction: dir, Light: b,
			})
		case SoundEmitter:
			s.Emitters = append(s.Emitters, EmitterState{Node: h, Position: n.GlobalPosition(), Emitter: b})
		case Empty, Collider:
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	sort.SliceStable(s.Batches, func(i, j int) bool {
		return s.Batches[i].Key.less(s.Batches[j].Key)
	})
	return s
}
