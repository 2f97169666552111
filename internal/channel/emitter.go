package channel

import "sync"

// Handler receives an emitted event. Handlers run on the emitting goroutine
// and must not call back into Source mutators.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Emitter is a typed publish/subscribe surface keyed by EventKind.
type Emitter struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]subscription
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{subs: map[EventKind][]subscription{}}
}

// On subscribes handler to kind and returns a function that removes it.
func (e *Emitter) On(kind EventKind, handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs[kind] = append(e.subs[kind], subscription{id: id, handler: handler})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			list := e.subs[kind]
			for i, s := range list {
				if s.id == id {
					e.subs[kind] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers ev to every handler of its kind in subscription order.
func (e *Emitter) Emit(ev Event) {
	if ev == nil {
		return
	}
	e.mu.RLock()
	list := e.subs[ev.Kind()]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.handler
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
