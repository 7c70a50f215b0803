package event

// Node and resource handles are carried as their raw uint64 encoding so this
// package stays a leaf.

type ResourceLoaded struct {
	Handle  uint64
	Path    string
	Version uint64
	Reload  bool
}

type ResourceFailed struct {
	Handle uint64
	Path   string
	Err    error
}

type ResourceEvicted struct {
	Path string
}

type NodeRemoved struct {
	Node uint64
	Name string
}

// ReconciliationWarning reports a non-fatal mismatch the physics bridge
// clamped or ignored.
type ReconciliationWarning struct {
	Node   uint64
	Reason string
}
