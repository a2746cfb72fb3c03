package bridge

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/callbridge/errors"
	"github.com/wippyai/callbridge/registry"
	"github.com/wippyai/callbridge/trampoline"
)

// hostFunc is the dispatch entry for every trampoline lowering to d's wasm
// type. stack[0] is the trampoline id and stack[1] is self.
func (b *Bridge) hostFunc(d *trampoline.Dispatch) api.GoModuleFunc {
	results := len(d.Results)
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		id := api.DecodeU32(stack[0])
		t, ok := b.set.ByID(id)
		if !ok {
			b.fallback(ctx, "", 0, stack[:results], errors.New(errors.PhaseDispatch, errors.KindUnknownContext).
				Value(id).Detail("unknown trampoline id %d", id).Build())
			return
		}
		b.dispatch(ctx, t, stack, results)
	}
}

func (b *Bridge) dispatch(ctx context.Context, t *trampoline.Trampoline, stack []uint64, results int) {
	self := api.DecodeU32(stack[1])
	b.stats.dispatches.Add(1)

	binding, ok := b.bindings.Get(registry.Key{Self: self, Trampoline: t.ID})
	if !ok || !binding.enter() {
		b.fallback(ctx, t.Name(), self, stack[:results], errors.UnknownContext(self, t.Name()))
		return
	}
	res, err := b.invoke(ctx, binding, self, stack[1:])
	if err != nil {
		b.fallback(ctx, t.Name(), self, stack[:results], err)
		return
	}
	if results > 0 {
		stack[0] = res
	}
	if len(b.observers) > 0 {
		b.notify(Event{Kind: EventDispatch, Self: self, Trampoline: t.Name()})
	}
}

// invoke marshals params, runs the callback and encodes its result. A panic
// in the callback is returned as a CallbackPanic error; a guest exit raised by
// a nested native call keeps unwinding. invoke releases the dispatch slot
// taken by binding.enter on every path.
func (b *Bridge) invoke(ctx context.Context, binding *Binding, self uint32, params []uint64) (res uint64, err error) {
	defer binding.exit()

	_, mem := b.attached()
	if mem == nil {
		return 0, errors.NotAttached(errors.PhaseDispatch)
	}
	t := binding.trampoline
	sig := t.Sig

	args := make([]Value, len(sig.Params))
	for i, p := range sig.Params {
		v, err := decodeArg(mem, p, params[i])
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	call := &Call{
		Self:       self,
		Trampoline: t,
		Binding:    binding,
		args:       args,
		mem:        mem,
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if exit, ok := r.(*sys.ExitError); ok {
			panic(exit)
		}
		b.stats.panics.Add(1)
		b.log.Error("callback panicked",
			zap.String("trampoline", t.Name()),
			zap.Uint32("self", self),
			zap.Any("panic", r))
		err = errors.CallbackPanic(t.Name(), r)
		b.notify(Event{Kind: EventPanic, Self: self, Trampoline: t.Name(), Err: err})
	}()

	if err := binding.callback.Invoke(ctx, call); err != nil {
		return 0, err
	}
	if err := writeBack(mem, args); err != nil {
		return 0, err
	}
	if v, ok := call.Result(); ok && !sig.Result.Void() {
		res = v.bits(sig.Result.Kind)
	}
	return res, nil
}

// fallback applies the policy to a dispatch that could not complete. results
// is the slice of the stack receiving result values.
func (b *Bridge) fallback(ctx context.Context, name string, self uint32, results []uint64, cause error) {
	b.stats.fallbacks.Add(1)
	b.log.Warn("dispatch fallback",
		zap.String("trampoline", name),
		zap.Uint32("self", self),
		zap.Stringer("policy", b.policy),
		zap.Error(cause))
	b.notify(Event{Kind: EventFallback, Self: self, Trampoline: name, Err: cause})

	if b.policy == PolicyAbort {
		b.abort(ctx)
	}
	for i := range results {
		results[i] = 0
	}
}

// abort closes the native module and unwinds to the host caller, as
// proc_exit does.
func (b *Bridge) abort(ctx context.Context) {
	b.stats.aborts.Add(1)
	native, _ := b.attached()
	if native != nil {
		_ = native.CloseWithExitCode(ctx, AbortExitCode)
	}
	b.log.Error("native module aborted", zap.Uint32("exit_code", AbortExitCode))
	panic(sys.NewExitError(AbortExitCode))
}
