package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/l1jgo/enginecore/internal/resource"
)

// RecordVersion is bumped when SceneRecord changes incompatibly.
const RecordVersion = 1

// PathResolver maps resource handles back to their canonical paths.
type PathResolver interface {
	Path(h resource.Handle) (string, bool)
}

// Requester turns paths into resource handles for Restore.
type Requester interface {
	Request(path string) (resource.Handle, error)
	Release(h resource.Handle) bool
}

// SceneRecord is the serializable form of a graph. Nodes are listed
// parents-first and refer to each other by ID; resources are referenced by
// canonical path.
type SceneRecord struct {
	Version int          `json:"version"`
	Nodes   []NodeRecord `json:"nodes"`
}

type NodeRecord struct {
	ID        uuid.UUID        `json:"id"`
	Parent    uuid.UUID        `json:"parent"`
	Name      string           `json:"name"`
	Position  [3]float32       `json:"position"`
	Rotation  [4]float32       `json:"rotation"` // w, x, y, z
	Scale     [3]float32       `json:"scale"`
	Visible   bool             `json:"visible"`
	Enabled   bool             `json:"enabled"`
	Script    string           `json:"script,omitempty"`
	Animation *AnimationRecord `json:"animation,omitempty"`
	Behavior  BehaviorRecord   `json:"behavior"`
}

type AnimationRecord struct {
	Clip    string  `json:"clip"`
	Time    float32 `json:"time"`
	Speed   float32 `json:"speed"`
	Playing bool    `json:"playing"`
}

// BehaviorRecord holds exactly one non-nil field matching Kind, or none for
// empty nodes.
type BehaviorRecord struct {
	Kind     string        `json:"kind"`
	Mesh     *MeshRecord   `json:"mesh,omitempty"`
	Sprite   *SpriteRecord `json:"sprite,omitempty"`
	Camera   *Camera       `json:"camera,omitempty"`
	Light    *Light        `json:"light,omitempty"`
	Collider *Collider     `json:"collider,omitempty"`
	Sound    *SoundRecord  `json:"sound,omitempty"`
}

type MeshRecord struct {
	Mesh     string `json:"mesh"`
	Material string `json:"material,omitempty"`
	Props    Mesh   `json:"props"`
}

type SpriteRecord struct {
	Texture string `json:"texture"`
	Props   Sprite `json:"props"`
}

type SoundRecord struct {
	Buffer string       `json:"buffer"`
	Props  SoundEmitter `json:"props"`
}

// Capture records every live node in traversal order.
func Capture(g *Graph, paths PathResolver) SceneRecord {
	rec := SceneRecord{Version: RecordVersion, Nodes: make([]NodeRecord, 0, g.Len())}
	pathOf := func(h resource.Handle) string {
		if h.IsNil() || paths == nil {
			return ""
		}
		p, _ := paths.Path(h)
		return p
	}
	for h := range g.Visit(nil) {
		n, _ := g.Get(h)
		nr := NodeRecord{
			ID:       n.ID,
			Name:     n.Name,
			Position: n.Local.Position,
			Rotation: [4]float32{n.Local.Rotation.W, n.Local.Rotation.V[0], n.Local.Rotation.V[1], n.Local.Rotation.V[2]},
			Scale:    n.Local.Scale,
			Visible:  n.Visible,
			Enabled:  n.Enabled,
			Script:   pathOf(n.Script),
			Behavior: BehaviorRecord{Kind: n.Behavior.Kind().String()},
		}
		if p, ok := g.Get(n.parent); ok {
			nr.Parent = p.ID
		}
		if a := n.Animation; a != nil {
			nr.Animation = &AnimationRecord{Clip: pathOf(a.Clip), Time: a.Time, Speed: a.Speed, Playing: a.Playing}
		}
		// Handles never leave the process; Props carry them zeroed.
		switch b := n.Behavior.(type) {
		case Mesh:
			nr.Behavior.Mesh = &MeshRecord{Mesh: pathOf(b.Mesh), Material: pathOf(b.Material), Props: b}
			nr.Behavior.Mesh.Props.Mesh, nr.Behavior.Mesh.Props.Material = 0, 0
		case Sprite:
			nr.Behavior.Sprite = &SpriteRecord{Texture: pathOf(b.Texture), Props: b}
			nr.Behavior.Sprite.Props.Texture = 0
		case Camera:
			nr.Behavior.Camera = &b
		case Light:
			nr.Behavior.Light = &b
		case Collider:
			nr.Behavior.Collider = &b
		case SoundEmitter:
			nr.Behavior.Sound = &SoundRecord{Buffer: pathOf(b.Buffer), Props: b}
			nr.Behavior.Sound.Props.Buffer = 0
		case Empty:
		}
		rec.Nodes = append(rec.Nodes, nr)
	}
	return rec
}

// Restore adds the recorded nodes to g and returns their handles in record
// order. Resource paths are requested through req; a path that fails to
// resolve leaves the reference empty and is reported in the joined error,
// but the node is still created. A node whose parent is unknown is skipped.
func Restore(g *Graph, rec SceneRecord, req Requester) ([]Handle, error) {
	if rec.Version != RecordVersion {
		return nil, fmt.Errorf("restore scene: unsupported record version %d", rec.Version)
	}
	var errs []error
	var requested []resource.Handle
	request := func(path string) resource.Handle {
		if path == "" || req == nil {
			return 0
		}
		h, err := req.Request(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore scene: %w", err))
			return 0
		}
		requested = append(requested, h)
		return h
	}

	handles := make([]Handle, 0, len(rec.Nodes))
	for _, nr := range rec.Nodes {
		parent := Handle(0)
		if nr.Parent != uuid.Nil {
			p, ok := g.FindByID(nr.Parent)
			if !ok {
				errs = append(errs, fmt.Errorf("restore node %q: parent %s: %w", nr.Name, nr.Parent, ErrStaleHandle))
				continue
			}
			parent = p
		}
		n := Node{
			ID:   nr.ID,
			Name: nr.Name,
			Local: Transform{
				Position: nr.Position,
				Rotation: mgl32.Quat{W: nr.Rotation[0], V: mgl32.Vec3{nr.Rotation[1], nr.Rotation[2], nr.Rotation[3]}},
				Scale:    nr.Scale,
			},
			Visible:  nr.Visible,
			Enabled:  nr.Enabled,
			Script:   request(nr.Script),
			Behavior: restoreBehavior(nr.Behavior, request),
		}
		if a := nr.Animation; a != nil {
			n.Animation = &Animation{Clip: request(a.Clip), Time: a.Time, Speed: a.Speed, Playing: a.Playing}
		}
		h, err := g.AddNode(n, parent)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore node %q: %w", nr.Name, err))
			continue
		}
		handles = append(handles, h)
	}
	// The graph took its own references; drop the ones Request added.
	for _, h := range requested {
		req.Release(h)
	}
	return handles, errors.Join(errs...)
}

func restoreBehavior(br BehaviorRecord, request func(string) resource.Handle) Behavior {
	switch {
	case br.Mesh != nil:
		m := br.Mesh.Props
		m.Mesh = request(br.Mesh.Mesh)
		m.Material = request(br.Mesh.Material)
		return m
	case br.Sprite != nil:
		s := br.Sprite.Props
		s.Texture = request(br.Sprite.Texture)
		return s
	case br.Camera != nil:
		return *br.Camera
	case br.Light != nil:
		return *br.Light
	case br.Collider != nil:
		return *br.Collider
	case br.Sound != nil:
		e := br.Sound.Props
		e.Buffer = request(br.Sound.Buffer)
		return e
	default:
		return Empty{}
	}
}
