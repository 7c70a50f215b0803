// Package scene implements the scene graph: an arena of nodes addressed by
// generational handles, with parent/child links kept consistent in both
// directions and global transforms propagated top-down each tick.
package scene

import (
	"fmt"
	"iter"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"github.com/l1jgo/enginecore/internal/resource"
	"go.uber.org/zap"
)

// ResourceHolder is the refcounting side of the resource manager.
type ResourceHolder interface {
	Acquire(h resource.Handle) bool
	Release(h resource.Handle) bool
}

// RemovalListener is told about every node removed from the graph, before
// its handle is invalidated.
type RemovalListener interface {
	NodeRemoved(h Handle, n *Node)
}

// Graph owns all nodes. It is not safe for concurrent use; only the
// simulation goroutine touches it.
type Graph struct {
	nodes       *handle.Table[*Node]
	roots       []Handle
	byID        map[uuid.UUID]Handle
	holder      ResourceHolder
	listeners   []RemovalListener
	removeQueue []Handle
	bus         *event.Bus
	log         *zap.Logger
}

// NewGraph creates an empty graph. holder, bus and log may be nil.
func NewGraph(holder ResourceHolder, bus *event.Bus, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{
		nodes:  handle.NewTable[*Node](1024),
		roots:  make([]Handle, 0, 64),
		byID:   make(map[uuid.UUID]Handle, 1024),
		holder: holder,
		bus:    bus,
		log:    log,
	}
}

// AddRemovalListener registers l for node removals.
func (g *Graph) AddRemovalListener(l RemovalListener) {
	g.listeners = append(g.listeners, l)
}

func (g *Graph) Len() int { return g.nodes.Len() }

func (g *Graph) Alive(h Handle) bool { return g.nodes.Alive(h) }

// Get returns the node for h. The pointer stays valid until the node is
// removed; callers must not write the link fields through it.
func (g *Graph) Get(h Handle) (*Node, bool) {
	return g.nodes.Get(h)
}

// AddNode inserts n under parent, or as a root when parent is nil. The node
// is appended after its existing siblings.
func (g *Graph) AddNode(n Node, parent Handle) (Handle, error) {
	var p *Node
	if !parent.IsNil() {
		var ok bool
		if p, ok = g.nodes.Get(parent); !ok {
			return 0, fmt.Errorf("add node %q: parent: %w", n.Name, ErrStaleHandle)
		}
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	} else if _, dup := g.byID[n.ID]; dup {
		return 0, fmt.Errorf("add node %q: %w: %s", n.Name, ErrDuplicateID, n.ID)
	}
	if n.Behavior == nil {
		n.Behavior = Empty{}
	}

	node := &n
	node.Local = node.Local.normalized()
	node.parent = parent
	node.children = nil
	node.global = mgl32.Ident4()
	node.dirty = true
	node.touched = true
	node.queued = false
	node.held = g.acquire(node.references())

	h := g.nodes.Allocate(node)
	g.byID[node.ID] = h
	if p != nil {
		p.children = append(p.children, h)
	} else {
		g.roots = append(g.roots, h)
	}
	return h, nil
}

func (g *Graph) acquire(refs []resource.Handle) []resource.Handle {
	if g.holder == nil || len(refs) == 0 {
		return nil
	}
	held := make([]resource.Handle, 0, len(refs))
	for _, r := range refs {
		if g.holder.Acquire(r) {
			held = append(held, r)
		} else {
			g.log.Warn("node references stale resource", zap.Uint64("resource", uint64(r)))
		}
	}
	return held
}

func (g *Graph) release(held []resource.Handle) {
	if g.holder == nil {
		return
	}
	for _, r := range held {
		g.holder.Release(r)
	}
}

// RemoveNode removes h and all its descendants. Descendants go first
// (post-order). Each removed node releases its resources and is reported
// to the removal listeners before any handle is invalidated.
func (g *Graph) RemoveNode(h Handle) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("remove node: %w", ErrStaleHandle)
	}
	g.unlink(h, n)

	order := g.postOrder(h)
	for _, d := range order {
		dn, _ := g.nodes.Get(d)
		g.release(dn.held)
		dn.held = nil
		for _, l := range g.listeners {
			l.NodeRemoved(d, dn)
		}
		event.Emit(g.bus, event.NodeRemoved{Node: uint64(d), Name: dn.Name})
	}
	for _, d := range order {
		dn, _ := g.nodes.Get(d)
		delete(g.byID, dn.ID)
		dn.children = nil
		dn.parent = 0
		g.nodes.Free(d)
	}
	return nil
}

// postOrder lists the subtree of h, children before parents.
func (g *Graph) postOrder(h Handle) []Handle {
	pre := make([]Handle, 0, 8)
	stack := []Handle{h}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pre = append(pre, cur)
		n, _ := g.nodes.Get(cur)
		stack = append(stack, n.children...)
	}
	// Reversed pre-order (children pushed in order) visits every child
	// before its parent.
	for i, j := 0, len(pre)-1; i < j; i, j = i+1, j-1 {
		pre[i], pre[j] = pre[j], pre[i]
	}
	return pre
}

// unlink detaches h from its parent's child list (or the root list).
func (g *Graph) unlink(h Handle, n *Node) {
	if n.parent.IsNil() {
		g.roots = removeHandle(g.roots, h)
		return
	}
	if p, ok := g.nodes.Get(n.parent); ok {
		p.children = removeHandle(p.children, h)
	}
	n.parent = 0
}

func removeHandle(hs []Handle, h Handle) []Handle {
	for i, x := range hs {
		if x == h {
			copy(hs[i:], hs[i+1:])
			hs[len(hs)-1] = 0
			return hs[:len(hs)-1]
		}
	}
	return hs
}

// QueueRemove defers removal of h to the next FlushRemovals. Behavior code
// uses it while the graph is being iterated.
func (g *Graph) QueueRemove(h Handle) bool {
	n, ok := g.nodes.Get(h)
	if !ok || n.queued {
		return false
	}
	n.queued = true
	g.removeQueue = append(g.removeQueue, h)
	return true
}

// FlushRemovals removes every queued node still alive and returns the
// number of queued roots removed.
func (g *Graph) FlushRemovals() int {
	removed := 0
	for _, h := range g.removeQueue {
		if !g.nodes.Alive(h) {
			continue // went with an ancestor
		}
		if err := g.RemoveNode(h); err == nil {
			removed++
		}
	}
	g.removeQueue = g.removeQueue[:0]
	return removed
}

// SetParent moves h under newParent, or to the root list when newParent is
// nil. The local transform is kept. Parenting a node under itself or one of
// its descendants fails with a *CycleError and leaves the graph unchanged.
func (g *Graph) SetParent(h, newParent Handle) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set parent: %w", ErrStaleHandle)
	}
	var np *Node
	if !newParent.IsNil() {
		if np, ok = g.nodes.Get(newParent); !ok {
			return fmt.Errorf("set parent: new parent: %w", ErrStaleHandle)
		}
		for a := newParent; !a.IsNil(); {
			if a == h {
				return &CycleError{Node: h, Parent: newParent}
			}
			an, _ := g.nodes.Get(a)
			a = an.parent
		}
	}
	if n.parent == newParent {
		return nil
	}

	g.unlink(h, n)
	n.parent = newParent
	if np != nil {
		np.children = append(np.children, h)
	} else {
		g.roots = append(g.roots, h)
	}
	n.dirty = true
	return nil
}

// Parent returns the parent of h; the nil handle for roots.
func (g *Graph) Parent(h Handle) (Handle, bool) {
	n, ok := g.nodes.Get(h)
	if !ok {
		return 0, false
	}
	return n.parent, true
}

// Children returns a copy of h's child list in insertion order.
func (g *Graph) Children(h Handle) []Handle {
	n, ok := g.nodes.Get(h)
	if !ok {
		return nil
	}
	return append([]Handle(nil), n.children...)
}

// Roots returns a copy of the root list in insertion order.
func (g *Graph) Roots() []Handle {
	return append([]Handle(nil), g.roots...)
}

// SetLocal replaces the local transform. The change is picked up by the
// next physics push and propagation.
func (g *Graph) SetLocal(h Handle, t Transform) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set local: %w", ErrStaleHandle)
	}
	n.Local = t.normalized()
	n.dirty = true
	n.touched = true
	return nil
}

// SetLocalFromPhysics writes a pose pulled from physics. It marks the
// node dirty but not touched, so it is not pushed back.
func (g *Graph) SetLocalFromPhysics(h Handle, t Transform) bool {
	n, ok := g.nodes.Get(h)
	if !ok {
		return false
	}
	n.Local = t.normalized()
	n.dirty = true
	return true
}

// TakeTouched returns the local transform of h and whether non-physics code
// changed it since the previous call, clearing the flag.
func (g *Graph) TakeTouched(h Handle) (Transform, bool) {
	n, ok := g.nodes.Get(h)
	if !ok {
		return Transform{}, false
	}
	t := n.touched
	n.touched = false
	return n.Local, t
}

// SetBehavior swaps the node behavior and moves resource references over.
// A node holds at most one collider proxy: replacing a collider with another
// fails with ErrDuplicateBinding. Clear it first to change the shape.
func (g *Graph) SetBehavior(h Handle, b Behavior) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set behavior: %w", ErrStaleHandle)
	}
	if b == nil {
		b = Empty{}
	}
	if _, had := n.Behavior.(Collider); had {
		if _, adding := b.(Collider); adding {
			return fmt.Errorf("set behavior %q: %w", n.Name, ErrDuplicateBinding)
		}
	}
	n.Behavior = b
	g.reacquire(n)
	return nil
}

// SetScript attaches a behavior script resource; the nil handle detaches.
func (g *Graph) SetScript(h Handle, script resource.Handle) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set script: %w", ErrStaleHandle)
	}
	n.Script = script
	g.reacquire(n)
	return nil
}

// SetAnimation attaches clip playback state; nil detaches.
func (g *Graph) SetAnimation(h Handle, a *Animation) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set animation: %w", ErrStaleHandle)
	}
	n.Animation = a
	g.reacquire(n)
	return nil
}

// reacquire takes the new references before dropping the old ones so a
// resource shared by both never hits zero in between.
func (g *Graph) reacquire(n *Node) {
	old := n.held
	n.held = g.acquire(n.references())
	g.release(old)
}

func (g *Graph) SetVisible(h Handle, v bool) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set visible: %w", ErrStaleHandle)
	}
	n.Visible = v
	return nil
}

func (g *Graph) SetEnabled(h Handle, v bool) error {
	n, ok := g.nodes.Get(h)
	if !ok {
		return fmt.Errorf("set enabled: %w", ErrStaleHandle)
	}
	n.Enabled = v
	return nil
}

// PropagateTransforms recomputes global transforms top-down. A node is
// recomputed when it or an ancestor is dirty, so repeated calls without
// edits change nothing. It returns the number of nodes recomputed.
func (g *Graph) PropagateTransforms() int {
	type frame struct {
		h       Handle
		parent  mgl32.Mat4
		changed bool
	}
	ident := mgl32.Ident4()
	stack := make([]frame, 0, 64)
	for i := len(g.roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{h: g.roots[i], parent: ident})
	}
	recomputed := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := g.nodes.Get(f.h)
		if !ok {
			continue
		}
		changed := f.changed || n.dirty
		if changed {
			n.global = f.parent.Mul4(n.Local.Matrix())
			n.dirty = false
			recomputed++
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{h: n.children[i], parent: n.global, changed: changed})
		}
	}
	return recomputed
}

// Visit returns a lazy depth-first, pre-order sequence of the nodes for
// which pred reports true (all nodes when pred is nil). Traversal descends
// through non-matching nodes. The sequence can be ranged over repeatedly;
// each range starts from the roots again.
func (g *Graph) Visit(pred func(Handle, *Node) bool) iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		stack := make([]Handle, 0, 32)
		for i := len(g.roots) - 1; i >= 0; i-- {
			stack = append(stack, g.roots[i])
		}
		for len(stack) > 0 {
			h := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n, ok := g.nodes.Get(h)
			if !ok {
				continue // removed by the consumer mid-iteration
			}
			if pred == nil || pred(h, n) {
				if !yield(h) {
					return
				}
			}
			for i := len(n.children) - 1; i >= 0; i-- {
				stack = append(stack, n.children[i])
			}
		}
	}
}

// OfKind is a Visit predicate matching one behavior kind.
func OfKind(k Kind) func(Handle, *Node) bool {
	return func(_ Handle, n *Node) bool { return n.Behavior.Kind() == k }
}

// FindByName returns the first node named name in traversal order.
func (g *Graph) FindByName(name string) (Handle, bool) {
	for h := range g.Visit(func(_ Handle, n *Node) bool { return n.Name == name }) {
		return h, true
	}
	return 0, false
}

// FindByID resolves a stable node ID.
func (g *Graph) FindByID(id uuid.UUID) (Handle, bool) {
	h, ok := g.byID[id]
	return h, ok
}

// FindPath resolves a slash-separated name path relative to h, e.g.
// "arm/hand". The empty path is h itself.
func (g *Graph) FindPath(h Handle, path string) (Handle, bool) {
	cur := h
	for path != "" {
		name := path
		rest := ""
		for i := 0; i < len(path); i++ {
			if path[i] == '/' {
				name, rest = path[:i], path[i+1:]
				break
			}
		}
		n, ok := g.nodes.Get(cur)
		if !ok {
			return 0, false
		}
		found := false
		for _, c := range n.children {
			if cn, ok := g.nodes.Get(c); ok && cn.Name == name {
				cur, found = c, true
				break
			}
		}
		if !found {
			return 0, false
		}
		path = rest
	}
	return cur, g.nodes.Alive(cur)
}

// GlobalMatrix returns the world matrix of h as of the last propagation.
func (g *Graph) GlobalMatrix(h Handle) (mgl32.Mat4, bool) {
	n, ok := g.nodes.Get(h)
	if !ok {
		return mgl32.Mat4{}, false
	}
	return n.global, true
}

// GlobalPosition returns the world position of h as of the last propagation.
func (g *Graph) GlobalPosition(h Handle) (mgl32.Vec3, bool) {
	n, ok := g.nodes.Get(h)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return n.GlobalPosition(), true
}
