package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1. SwapBuffers() is called at tick start by the EventSystem.
// Emit and dispatch happen on the simulation goroutine only; Subscribe may be
// called from any goroutine, including from inside a handler.
type Bus struct {
	mu       sync.Mutex // guards handlers
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	if b == nil {
		return
	}
	t := reflect.TypeFor[T]()
	b.back[t] = append(b.back[t], event)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeFor[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back→front and clears the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers all front-buffer events to their subscribed handlers.
// Events emitted by a handler go to the back buffer and are delivered next
// tick. A handler subscribed during dispatch may miss the current events.
func (b *Bus) DispatchAll() {
	for t, events := range b.front {
		if len(events) == 0 {
			continue
		}
		b.mu.Lock()
		hs := b.handlers[t]
		b.mu.Unlock()
		for _, ev := range events {
			for _, h := range hs {
				h(ev)
			}
		}
	}
}

// Pending returns the number of events of type T waiting in the back buffer.
func Pending[T any](b *Bus) int {
	return len(b.back[reflect.TypeFor[T]()])
}
