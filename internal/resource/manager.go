// Package resource implements the asynchronous, deduplicating asset cache.
//
// Requests are keyed by canonical path. The first request registers a
// Pending entry and queues a load job; later requests for the same path share
// that entry and its in-flight load. Decoding runs on a worker pool. Workers
// write the terminal state under the entry's mutex and post a completion
// notice that the simulation thread drains with Promote.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/handle"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// Handle references a tracked resource. Holders share it; the refcount
// decides when the entry may be evicted.
type Handle = handle.Handle[*Resource]

// Resource is one tracked asset.
type Resource struct {
	path string
	mem  []byte // in-memory source; nil reads path from the manager's fs

	mu           sync.Mutex
	state        State
	payload      Payload
	err          *LoadError
	version      uint64
	attempt      uint64
	done         chan struct{} // closed when the current attempt is terminal
	reloadQueued bool
	modTime      time.Time
	sum          [blake2b.Size256]byte
	published    Payload // payload visible to the scene, swapped by Promote
	pubVersion   uint64

	// guarded by Manager.mu
	refs      int
	pinned    bool
	idleTicks int
}

type job struct {
	h       Handle
	res     *Resource
	attempt uint64
	reload  bool
}

type notice struct {
	h       Handle
	res     *Resource
	attempt uint64
	reload  bool
}

// Options configures a Manager.
type Options struct {
	Workers         int
	QueueSize       int
	EvictGraceTicks int
	Bus             *event.Bus // optional; receives load/evict events from Promote and Reclaim
}

// Manager owns all resource entries.
type Manager struct {
	mu     sync.Mutex
	table  *handle.Table[*Resource]
	byPath map[string]Handle

	src      fs.FS
	decoders *Registry
	jobs     chan job
	grace    int
	bus      *event.Bus
	log      *zap.Logger

	noticeMu sync.Mutex
	notices  []notice

	scanning atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewManager starts opts.Workers load workers reading from src.
func NewManager(src fs.FS, decoders *Registry, opts Options, log *zap.Logger) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	m := &Manager{
		table:    handle.NewTable[*Resource](256),
		byPath:   make(map[string]Handle, 256),
		src:      src,
		decoders: decoders,
		jobs:     make(chan job, opts.QueueSize),
		grace:    opts.EvictGraceTicks,
		bus:      opts.Bus,
		log:      log,
		ctx:      gctx,
		cancel:   cancel,
		group:    g,
	}
	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error { return m.worker(gctx) })
	}
	return m
}

// Close stops the workers. In-flight decodes finish first.
func (m *Manager) Close() error {
	m.cancel()
	return m.group.Wait()
}

// Request returns the handle for path, registering and queueing a load the
// first time the canonical path is seen. Every call adds one reference.
func (m *Manager) Request(path string) (Handle, error) {
	key, err := Canonicalize(path)
	if err != nil {
		return 0, fmt.Errorf("request %q: %w", path, err)
	}

	m.mu.Lock()
	if h, ok := m.byPath[key]; ok {
		res, _ := m.table.Get(h)
		res.refs++
		res.idleTicks = 0
		m.mu.Unlock()
		return h, nil
	}
	res := &Resource{
		path:  key,
		state: StatePending,
		done:  make(chan struct{}),
		refs:  1,
	}
	res.attempt = 1
	h := m.table.Allocate(res)
	m.byPath[key] = h
	m.mu.Unlock()

	m.enqueue(job{h: h, res: res, attempt: 1})
	return h, nil
}

// RequestBytes registers an in-memory source under name and queues its
// decode, picking the decoder by name's extension. It shares the entry of
// an already tracked name the same way Request does; data is then ignored.
// The manager keeps data and never stats it for hot reload.
func (m *Manager) RequestBytes(name string, data []byte) (Handle, error) {
	key, err := Canonicalize(name)
	if err != nil {
		return 0, fmt.Errorf("request bytes %q: %w", name, err)
	}
	if data == nil {
		data = []byte{}
	}

	m.mu.Lock()
	if h, ok := m.byPath[key]; ok {
		res, _ := m.table.Get(h)
		res.refs++
		res.idleTicks = 0
		m.mu.Unlock()
		return h, nil
	}
	res := &Resource{
		path:    key,
		mem:     data,
		state:   StatePending,
		done:    make(chan struct{}),
		refs:    1,
		attempt: 1,
	}
	h := m.table.Allocate(res)
	m.byPath[key] = h
	m.mu.Unlock()

	m.enqueue(job{h: h, res: res, attempt: 1})
	return h, nil
}

// Lookup returns the handle tracked for path without adding a reference.
func (m *Manager) Lookup(path string) (Handle, bool) {
	key, err := Canonicalize(path)
	if err != nil {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byPath[key]
	return h, ok
}

// Acquire adds a reference to an existing handle.
func (m *Manager) Acquire(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.table.Get(h)
	if !ok {
		return false
	}
	res.refs++
	res.idleTicks = 0
	return true
}

// Release drops one reference. At zero the entry becomes evictable; the
// actual eviction happens in Reclaim. An in-flight load is not cancelled.
func (m *Manager) Release(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.table.Get(h)
	if !ok {
		return false
	}
	if res.refs > 0 {
		res.refs--
	}
	return true
}

// Pin keeps the entry resident regardless of its refcount.
func (m *Manager) Pin(h Handle) bool   { return m.setPinned(h, true) }
func (m *Manager) Unpin(h Handle) bool { return m.setPinned(h, false) }

func (m *Manager) setPinned(h Handle, v bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.table.Get(h)
	if !ok {
		return false
	}
	res.pinned = v
	return true
}

func (m *Manager) get(h Handle) (*Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Get(h)
}

// Path returns the canonical path of h, the stable reference used when
// serializing.
func (m *Manager) Path(h Handle) (string, bool) {
	res, ok := m.get(h)
	if !ok {
		return "", false
	}
	return res.path, true
}

// Refs returns the current reference count of h.
func (m *Manager) Refs(h Handle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.table.Get(h)
	if !ok {
		return 0
	}
	return res.refs
}

// Len returns the number of tracked entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Len()
}

// Poll returns the current state without blocking.
func (m *Manager) Poll(h Handle) LoadState {
	res, ok := m.get(h)
	if !ok {
		return LoadState{State: StateUnknown}
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	return LoadState{State: res.state, Payload: res.payload, Err: res.err, Version: res.version}
}

// Wait blocks the calling goroutine until h reaches a terminal state or ctx
// is done. It is meant for startup loads, not the per-tick path.
func (m *Manager) Wait(ctx context.Context, h Handle) (Payload, error) {
	res, ok := m.get(h)
	if !ok {
		return nil, ErrStaleHandle
	}
	for {
		res.mu.Lock()
		switch res.state {
		case StateReady:
			p := res.payload
			res.mu.Unlock()
			return p, nil
		case StateError:
			err := res.err
			res.mu.Unlock()
			return nil, err
		}
		done := res.done
		res.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Payload returns the payload published to the scene by the last Promote,
// and its version. Dependents call it every tick instead of caching, which
// is how hot-reloaded data reaches them.
func (m *Manager) Payload(h Handle) (Payload, uint64, bool) {
	res, ok := m.get(h)
	if !ok {
		return nil, 0, false
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	if res.pubVersion == 0 {
		return nil, 0, false
	}
	return res.published, res.pubVersion, true
}

// Version returns the version of the payload Payload(h) currently returns;
// 0 when nothing is published.
func (m *Manager) Version(h Handle) uint64 {
	_, v, _ := m.Payload(h)
	return v
}

// NotifyChanged starts a hot reload of path. Handles stay valid; on success
// the payload is swapped in place. A change reported while a load is in
// flight is queued behind it.
func (m *Manager) NotifyChanged(path string) bool {
	h, ok := m.Lookup(path)
	if !ok {
		return false
	}
	res, ok := m.get(h)
	if !ok {
		return false
	}
	res.mu.Lock()
	if !res.state.Terminal() {
		res.reloadQueued = true
		res.mu.Unlock()
		return true
	}
	j := m.beginAttempt(h, res)
	res.mu.Unlock()
	m.enqueue(j)
	return true
}

// beginAttempt moves res back to Loading for a reload. res.mu must be held.
func (m *Manager) beginAttempt(h Handle, res *Resource) job {
	res.attempt++
	res.state = StateLoading
	res.done = make(chan struct{})
	return job{h: h, res: res, attempt: res.attempt, reload: true}
}

func (m *Manager) enqueue(j job) {
	select {
	case m.jobs <- j:
	default:
		// Queue full: hand off so Request never blocks the simulation thread.
		go func() {
			select {
			case m.jobs <- j:
			case <-m.ctx.Done():
			}
		}()
	}
}

func (m *Manager) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-m.jobs:
			m.load(j)
		}
	}
}

// load runs one attempt to completion. There is no cancellation.
func (m *Manager) load(j job) {
	res := j.res
	res.mu.Lock()
	if res.attempt != j.attempt {
		res.mu.Unlock()
		return
	}
	res.state = StateLoading
	path, mem := res.path, res.mem
	prevSum := res.sum
	hadPayload := res.payload != nil
	res.mu.Unlock()

	raw, modTime, lerr := m.read(path, mem)
	var payload Payload
	var sum [blake2b.Size256]byte
	unchanged := false
	if lerr == nil {
		sum = blake2b.Sum256(raw)
		if j.reload && hadPayload && sum == prevSum {
			unchanged = true
		} else {
			payload, lerr = m.decode(path, raw)
		}
	}

	res.mu.Lock()
	switch {
	case lerr != nil:
		res.state = StateError
		res.err = lerr
		res.payload = nil
	case unchanged:
		res.state = StateReady
		res.modTime = modTime
	default:
		res.state = StateReady
		res.err = nil
		res.payload = payload
		res.version++
		res.modTime = modTime
		res.sum = sum
	}
	close(res.done)
	requeue := res.reloadQueued
	res.reloadQueued = false
	var next job
	if requeue {
		next = m.beginAttempt(j.h, res)
	}
	res.mu.Unlock()

	if lerr != nil {
		m.log.Warn("resource load failed", zap.String("path", path), zap.Stringer("kind", lerr.Kind), zap.Error(lerr.Err))
	} else {
		m.log.Debug("resource loaded", zap.String("path", path), zap.Bool("reload", j.reload), zap.Bool("unchanged", unchanged))
	}

	m.noticeMu.Lock()
	m.notices = append(m.notices, notice{h: j.h, res: res, attempt: j.attempt, reload: j.reload})
	m.noticeMu.Unlock()

	if requeue {
		m.enqueue(next)
	}
}

func (m *Manager) read(path string, mem []byte) ([]byte, time.Time, *LoadError) {
	if mem != nil {
		return mem, time.Time{}, nil
	}
	raw, err := fs.ReadFile(m.src, path)
	if err != nil {
		return nil, time.Time{}, &LoadError{Path: path, Kind: KindIO, Err: err}
	}
	var modTime time.Time
	if fi, err := fs.Stat(m.src, path); err == nil {
		modTime = fi.ModTime()
	}
	return raw, modTime, nil
}

func (m *Manager) decode(path string, raw []byte) (p Payload, lerr *LoadError) {
	d, ok := m.decoders.Lookup(path)
	if !ok {
		return nil, &LoadError{Path: path, Kind: KindUnsupported, Err: fmt.Errorf("no decoder for %q", Ext(path))}
	}
	defer func() {
		if r := recover(); r != nil {
			p = nil
			lerr = &LoadError{Path: path, Kind: KindFormat, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()
	p, err := d.Decode(raw)
	if err != nil {
		kind := KindFormat
		if errors.Is(err, ErrUnsupportedFormat) {
			kind = KindUnsupported
		}
		return nil, &LoadError{Path: path, Kind: kind, Err: err}
	}
	if p == nil {
		return nil, &LoadError{Path: path, Kind: KindFormat, Err: errors.New("decoder returned no payload")}
	}
	return p, nil
}

// Promote drains completion notices on the simulation thread, publishes the
// new payloads to the scene and emits load events. It returns the number of
// notices handled.
func (m *Manager) Promote() int {
	m.noticeMu.Lock()
	ns := m.notices
	m.notices = nil
	m.noticeMu.Unlock()

	for _, n := range ns {
		res := n.res
		res.mu.Lock()
		state, err, version := res.state, res.err, res.version
		if state == StateReady && res.pubVersion != version {
			res.published = res.payload
			res.pubVersion = version
		}
		if state == StateError {
			res.published = nil
			res.pubVersion = 0
		}
		path := res.path
		res.mu.Unlock()

		switch state {
		case StateReady:
			event.Emit(m.bus, event.ResourceLoaded{Handle: uint64(n.h), Path: path, Version: version, Reload: n.reload})
		case StateError:
			event.Emit(m.bus, event.ResourceFailed{Handle: uint64(n.h), Path: path, Err: err})
		}
	}
	return len(ns)
}

// Reclaim evicts entries that have been unreferenced, unpinned and terminal
// for more than the grace period. It returns the number evicted.
func (m *Manager) Reclaim() int {
	m.mu.Lock()
	var evicted []string
	var dead []Handle
	m.table.Each(func(h Handle, rp **Resource) {
		res := *rp
		if res.refs > 0 || res.pinned {
			res.idleTicks = 0
			return
		}
		res.mu.Lock()
		terminal := res.state.Terminal()
		res.mu.Unlock()
		if !terminal {
			return
		}
		res.idleTicks++
		if res.idleTicks > m.grace {
			dead = append(dead, h)
		}
	})
	for _, h := range dead {
		res, _ := m.table.Get(h)
		delete(m.byPath, res.path)
		m.table.Free(h)
		evicted = append(evicted, res.path)
	}
	m.mu.Unlock()

	for _, p := range evicted {
		m.log.Debug("resource evicted", zap.String("path", p))
		event.Emit(m.bus, event.ResourceEvicted{Path: p})
	}
	return len(evicted)
}

// CheckModified stats every terminal entry and reloads those whose file
// changed since the last load. It returns the paths it reloaded.
func (m *Manager) CheckModified() []string {
	type watched struct {
		path    string
		modTime time.Time
	}
	m.mu.Lock()
	list := make([]watched, 0, m.table.Len())
	m.table.Each(func(_ Handle, rp **Resource) {
		res := *rp
		res.mu.Lock()
		if res.state.Terminal() && res.mem == nil {
			list = append(list, watched{res.path, res.modTime})
		}
		res.mu.Unlock()
	})
	m.mu.Unlock()

	var changed []string
	for _, w := range list {
		fi, err := fs.Stat(m.src, w.path)
		if err != nil {
			continue
		}
		if fi.ModTime().After(w.modTime) {
			if m.NotifyChanged(w.path) {
				changed = append(changed, w.path)
			}
		}
	}
	return changed
}

// ScanAsync runs CheckModified on its own goroutine unless a scan is already
// running, keeping file stats off the simulation thread.
func (m *Manager) ScanAsync() bool {
	if !m.scanning.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer m.scanning.Store(false)
		if changed := m.CheckModified(); len(changed) > 0 {
			m.log.Info("hot reload", zap.Strings("paths", changed))
		}
	}()
	return true
}
