package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/callbridge/registry"
	"github.com/wippyai/callbridge/trampoline"
)

// State is the state of a binding.
type State int32

const (
	StateUnbound State = iota
	StateBound
)

func (s State) String() string {
	if s == StateBound {
		return "bound"
	}
	return "unbound"
}

// Binding is the registration of one callback on one object slot. It is
// returned by Patch and ends with Close, Bridge.Teardown or Bridge.Close.
type Binding struct {
	bridge     *Bridge
	trampoline *trampoline.Trampoline
	callback   Callback
	key        registry.Key
	addr       uint32
	prev       uint32
	state      atomic.Int32
	inflight   atomic.Int32
}

// Self is the object address the binding serves.
func (b *Binding) Self() uint32 {
	return b.key.Self
}

// Trampoline is the trampoline patched into the slot.
func (b *Binding) Trampoline() *trampoline.Trampoline {
	return b.trampoline
}

// Addr is the guest address of the patched slot.
func (b *Binding) Addr() uint32 {
	return b.addr
}

// Previous is the slot value before Patch.
func (b *Binding) Previous() uint32 {
	return b.prev
}

func (b *Binding) State() State {
	return State(b.state.Load())
}

// InFlight is the number of dispatches currently running the callback.
func (b *Binding) InFlight() int32 {
	return b.inflight.Load()
}

// Close unbinds a live object. The registry entry is removed if it still
// refers to this binding, and the slot gets its previous value back if it
// still holds this trampoline. Closing twice is a no-op. A callback may close
// its own binding.
func (b *Binding) Close() error {
	if !b.detach() {
		return nil
	}
	br := b.bridge
	br.bindings.RemoveIf(b.key, func(v *Binding) bool { return v == b })
	br.stats.unbinds.Add(1)

	var err error
	if _, mem := br.attached(); mem != nil && !br.closed.Load() {
		var cur uint32
		if cur, err = mem.ReadU32(b.addr); err == nil && cur == b.trampoline.ID {
			err = mem.WriteU32(b.addr, b.prev)
		}
	}

	br.log.Debug("unbound",
		zap.String("trampoline", b.trampoline.Name()),
		zap.Uint32("self", b.key.Self),
		zap.Int32("inflight", b.inflight.Load()))
	br.notify(Event{
		Kind:       EventUnbind,
		Self:       b.key.Self,
		Trampoline: b.trampoline.Name(),
		InFlight:   b.inflight.Load(),
		Err:        err,
	})
	return err
}

// detach moves the binding to Unbound. Only the first caller wins.
func (b *Binding) detach() bool {
	return b.state.CompareAndSwap(int32(StateBound), int32(StateUnbound))
}

// enter registers a dispatch. It fails once the binding is unbound.
func (b *Binding) enter() bool {
	b.inflight.Add(1)
	if b.state.Load() != int32(StateBound) {
		b.inflight.Add(-1)
		return false
	}
	return true
}

func (b *Binding) exit() {
	b.inflight.Add(-1)
}
