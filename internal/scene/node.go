package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"github.com/l1jgo/enginecore/internal/resource"
)

// Handle references a node in a Graph.
type Handle = handle.Handle[*Node]

// Animation is the playback state of a clip attached to a node.
type Animation struct {
	Clip    resource.Handle
	Time    float32 // seconds into the clip
	Speed   float32
	Playing bool
}

// Node is one object of the scene. Exported fields are set by the caller
// before insertion; afterwards they change through Graph methods so the
// graph can keep resource references, dirty flags and physics sync right.
type Node struct {
	ID       uuid.UUID
	Name     string
	Local    Transform
	Behavior Behavior
	Visible  bool
	Enabled  bool

	Script    resource.Handle // behavior script, 0 = none
	Animation *Animation

	parent   Handle
	children []Handle
	global   mgl32.Mat4
	held     []resource.Handle
	dirty    bool // local changed, global stale
	touched  bool // local changed by non-physics code since the last push
	queued   bool // waiting in the removal queue
}

// NewNode returns a visible, enabled node with an identity transform.
func NewNode(name string) Node {
	return Node{
		Name:     name,
		Local:    Identity(),
		Behavior: Empty{},
		Visible:  true,
		Enabled:  true,
	}
}

// With returns a copy of n with behavior b.
func (n Node) With(b Behavior) Node {
	n.Behavior = b
	return n
}

// At returns a copy of n with local transform t.
func (n Node) At(t Transform) Node {
	n.Local = t
	return n
}

func (n *Node) Parent() Handle { return n.parent }

// Global returns the world matrix computed by the last propagation.
func (n *Node) Global() mgl32.Mat4 { return n.global }

// GlobalPosition returns the translation part of the world matrix.
func (n *Node) GlobalPosition() mgl32.Vec3 { return n.global.Col(3).Vec3() }

func (n *Node) Dirty() bool { return n.dirty }

// PendingRemoval reports whether the node waits in the removal queue.
func (n *Node) PendingRemoval() bool { return n.queued }

// references lists every resource handle the node refers to.
func (n *Node) references() []resource.Handle {
	refs := behaviorResources(n.Behavior)
	if !n.Script.IsNil() {
		refs = append(refs, n.Script)
	}
	if n.Animation != nil && !n.Animation.Clip.IsNil() {
		refs = append(refs, n.Animation.Clip)
	}
	return refs
}
