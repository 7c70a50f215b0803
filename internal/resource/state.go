package resource

import (
	"errors"
	"fmt"

	"github.com/l1jgo/enginecore/internal/core/handle"
)

// ErrStaleHandle is returned for handles whose entry was evicted.
var ErrStaleHandle = handle.ErrStale

// State is the load state tag of a resource.
type State uint8

const (
	StateUnknown State = iota // stale or nil handle
	StatePending              // registered, waiting for a worker
	StateLoading              // a worker is reading/decoding
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Ready or Error.
func (s State) Terminal() bool { return s == StateReady || s == StateError }

// Payload is the decoded asset. Its concrete type depends on the decoder.
type Payload any

// LoadState is a point-in-time view of a resource.
// While a hot reload is in flight State is Loading and Payload still holds
// the previous result.
type LoadState struct {
	State   State
	Payload Payload
	Err     *LoadError
	Version uint64 // bumped on every successful payload swap
}

// ErrorKind separates I/O failures from decode failures.
type ErrorKind uint8

const (
	KindIO          ErrorKind = iota + 1 // missing or unreadable file
	KindFormat                           // decoder rejected the bytes
	KindUnsupported                      // no decoder for the extension
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// ErrUnsupportedFormat is wrapped by decoders that recognize the file type
// but cannot handle its encoding. Such failures are reported as
// KindUnsupported instead of KindFormat.
var ErrUnsupportedFormat = errors.New("unsupported format")

// LoadError is the cause stored in a resource's Error state.
type LoadError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
