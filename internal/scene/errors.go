package scene

import (
	"errors"
	"fmt"

	"github.com/l1jgo/enginecore/internal/core/handle"
)

var (
	ErrStaleHandle = handle.ErrStale
	ErrCycle       = errors.New("scene: reparent would create a cycle")
	ErrDuplicateID = errors.New("scene: duplicate node id")

	// ErrDuplicateBinding rejects a second collider proxy on one node.
	ErrDuplicateBinding = errors.New("duplicate physics binding")
)

// CycleError is returned by SetParent when Parent lies in Node's subtree.
type CycleError struct {
	Node   Handle
	Parent Handle
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("scene: cannot parent node %d under %d: cycle", e.Node.Index(), e.Parent.Index())
}

func (e *CycleError) Unwrap() error { return ErrCycle }
