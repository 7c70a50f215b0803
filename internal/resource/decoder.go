package resource

import (
	"strings"
	"sync"
)

// Decoder turns raw asset bytes into a payload. Implementations must be safe
// for concurrent use; the manager calls them from several workers.
type Decoder interface {
	Decode(raw []byte) (Payload, error)
}

// DecodeFunc adapts a function to Decoder.
type DecodeFunc func(raw []byte) (Payload, error)

func (f DecodeFunc) Decode(raw []byte) (Payload, error) { return f(raw) }

// Registry maps file extensions to decoders. Lookup tries the longest
// multi-dot extension first, so ".anim.yaml" wins over ".yaml".
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Decoder)}
}

func (r *Registry) Register(ext string, d Decoder) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.mu.Lock()
	r.byExt[ext] = d
	r.mu.Unlock()
}

func (r *Registry) Lookup(path string) (Decoder, bool) {
	ext := Ext(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ext != "" {
		if d, ok := r.byExt[ext]; ok {
			return d, true
		}
		i := strings.IndexByte(ext[1:], '.')
		if i < 0 {
			break
		}
		ext = ext[i+1:]
	}
	return nil, false
}

// Len returns the number of registered extensions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExt)
}
