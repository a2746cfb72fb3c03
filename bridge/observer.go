package bridge

import "sync/atomic"

// EventKind identifies a bridge event.
type EventKind uint8

const (
	EventBind EventKind = iota + 1
	EventUnbind
	EventTeardown
	EventDispatch
	EventFallback
	EventPanic
)

var eventNames = map[EventKind]string{
	EventBind:     "bind",
	EventUnbind:   "unbind",
	EventTeardown: "teardown",
	EventDispatch: "dispatch",
	EventFallback: "fallback",
	EventPanic:    "panic",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event describes a binding lifecycle change or a dispatch outcome.
type Event struct {
	Kind       EventKind
	Self       uint32
	Trampoline string
	// InFlight is the number of dispatches running on the binding, for
	// teardown racing with calls.
	InFlight int32
	Err      error
}

// Observer receives events synchronously on the goroutine that caused them.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Stats are cumulative counters of a bridge.
type Stats struct {
	Bindings   int
	Binds      uint64
	Unbinds    uint64
	Teardowns  uint64
	Dispatches uint64
	Fallbacks  uint64
	Panics     uint64
	Aborts     uint64
}

type counters struct {
	binds      atomic.Uint64
	unbinds    atomic.Uint64
	teardowns  atomic.Uint64
	dispatches atomic.Uint64
	fallbacks  atomic.Uint64
	panics     atomic.Uint64
	aborts     atomic.Uint64
}

func (b *Bridge) notify(e Event) {
	for _, o := range b.observers {
		o.Observe(e)
	}
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Bindings:   b.bindings.Len(),
		Binds:      b.stats.binds.Load(),
		Unbinds:    b.stats.unbinds.Load(),
		Teardowns:  b.stats.teardowns.Load(),
		Dispatches: b.stats.dispatches.Load(),
		Fallbacks:  b.stats.fallbacks.Load(),
		Panics:     b.stats.panics.Load(),
		Aborts:     b.stats.aborts.Load(),
	}
}
