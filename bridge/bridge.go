package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/callbridge"
	"github.com/wippyai/callbridge/abi"
	"github.com/wippyai/callbridge/errors"
	"github.com/wippyai/callbridge/layout"
	"github.com/wippyai/callbridge/registry"
	"github.com/wippyai/callbridge/trampoline"
)

// Bridge owns the dispatch host module and the trampoline module of one
// trampoline set, and routes trampoline calls to bound callbacks.
// Thread-safe.
type Bridge struct {
	set       *trampoline.Set
	runtime   wazero.Runtime
	log       *zap.Logger
	bindings  *registry.Sharded[registry.Key, *Binding]
	host      api.Module
	tramps    api.Module
	native    api.Module
	mem       callbridge.Memory
	observers []Observer
	stats     counters
	mu        sync.RWMutex
	closed    atomic.Bool
	ownsRT    bool
	loaded    bool
	policy    Policy
}

// Table is a callback struct in guest memory.
type Table struct {
	Struct *layout.Struct
	Self   uint32
}

// New instantiates the dispatch and trampoline modules for set. The trampoline
// module is named set.Namespace(); native modules import its table from there.
// New seals set: slots must be added before the bridge is created.
func New(ctx context.Context, set *trampoline.Set, opts ...Option) (*Bridge, error) {
	if set == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil trampoline set")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bridge{
		set:       set,
		runtime:   o.runtime,
		log:       o.logger,
		policy:    o.policy,
		observers: o.observers,
		bindings:  registry.NewKeyMap[*Binding](o.shards),
	}
	if b.log == nil {
		b.log = Logger()
	}
	set.Seal()
	if b.runtime == nil {
		b.runtime = wazero.NewRuntime(ctx)
		b.ownsRT = true
	}

	if err := b.instantiate(ctx); err != nil {
		if b.ownsRT {
			_ = b.runtime.Close(ctx)
		}
		return nil, err
	}
	b.log.Debug("bridge ready",
		zap.String("namespace", set.Namespace()),
		zap.Int("trampolines", set.Len()),
		zap.Uint32("table_size", set.TableSize()),
		zap.Stringer("policy", b.policy))
	return b, nil
}

func (b *Bridge) instantiate(ctx context.Context) error {
	builder := b.runtime.NewHostModuleBuilder(b.set.DispatchModule())
	for _, d := range b.set.Dispatches() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(b.hostFunc(d), d.Params, d.Results).
			Export(d.Import)
	}
	host, err := builder.Instantiate(ctx)
	if err != nil {
		return errors.Instantiation(b.set.DispatchModule(), err)
	}
	b.host = host

	compiled, err := b.runtime.CompileModule(ctx, b.set.Module())
	if err != nil {
		_ = host.Close(ctx)
		return errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "compile trampoline module")
	}
	tramps, err := b.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(b.set.Namespace()))
	if err != nil {
		_ = host.Close(ctx)
		return errors.Instantiation(b.set.Namespace(), err)
	}
	b.tramps = tramps
	return nil
}

// Attach makes mod the native module whose memory slots live in.
func (b *Bridge) Attach(mod api.Module) error {
	if b.closed.Load() {
		return errors.Closed(errors.PhaseLoad)
	}
	if mod == nil || mod.Memory() == nil {
		return errors.InvalidInput(errors.PhaseLoad, "native module exports no memory")
	}
	b.mu.Lock()
	b.native = mod
	b.mem = WrapMemory(mod.Memory())
	b.mu.Unlock()
	return nil
}

// Load instantiates a native module under name and attaches it. The bridge
// closes it on Close.
func (b *Bridge) Load(ctx context.Context, wasm []byte, name string) (api.Module, error) {
	if b.closed.Load() {
		return nil, errors.Closed(errors.PhaseLoad)
	}
	compiled, err := b.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, fmt.Sprintf("compile module %q", name))
	}
	mod, err := b.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	if err := b.Attach(mod); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	b.mu.Lock()
	b.loaded = true
	b.mu.Unlock()
	return mod, nil
}

func (b *Bridge) attached() (api.Module, callbridge.Memory) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.native, b.mem
}

// Memory returns the attached native module's memory, nil before Attach.
func (b *Bridge) Memory() callbridge.Memory {
	_, mem := b.attached()
	return mem
}

// Table describes the struct structName at self. structName may be a typedef.
func (b *Bridge) Table(self uint32, structName string) (Table, error) {
	st, ok := b.set.Layouts().Lookup(structName)
	if !ok {
		return Table{}, errors.NotFound(errors.PhaseBind, "struct", structName)
	}
	return Table{Self: self, Struct: st}, nil
}

// Patch binds cb to the slot at path of table and writes the slot's
// trampoline id into guest memory. The binding is registered before the slot
// is written.
func (b *Bridge) Patch(table Table, path string, cb Callback) (*Binding, error) {
	if b.closed.Load() {
		return nil, errors.Closed(errors.PhaseBind)
	}
	if cb == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, "nil callback")
	}
	if table.Struct == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, "table has no struct layout")
	}
	if table.Self == 0 {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(table.Struct.Name, path).Detail("null self pointer").Build()
	}
	_, mem := b.attached()
	if mem == nil {
		return nil, errors.NotAttached(errors.PhaseBind)
	}
	if end := uint64(table.Self) + uint64(table.Struct.Size); end > uint64(mem.Size()) {
		return nil, errors.OutOfBounds(errors.PhaseBind, table.Self, table.Struct.Size, mem.Size())
	}

	t, ok := b.set.Lookup(table.Struct.Name, path)
	if !ok {
		return nil, errors.InvalidSlot(errors.PhaseBind, table.Struct.Name, path, "no trampoline generated for slot")
	}
	slot, err := table.Struct.Slot(path)
	if err != nil {
		return nil, bindError(table.Struct.Name, path, err)
	}
	sig, err := abi.Lower(slot.Func, b.set.Layouts())
	if err != nil {
		return nil, bindError(table.Struct.Name, path, err)
	}
	if len(sig.Params) > 0 && sig.Params[0].Kind == abi.KindStruct {
		sig.Params[0].Kind = abi.KindPointer
	}
	if !sig.Matches(t.Sig) {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidSlot).
			Path(table.Struct.Name, path).Native(slot.Func.Decl).
			Detail("declared %s does not lower to trampoline %s", sig.HostSignature(), t.Sig.HostSignature()).Build()
	}
	if sc, ok := cb.(signatureChecker); ok {
		if err := sc.check(t.Sig); err != nil {
			return nil, errors.New(errors.PhaseBind, errors.KindInvalidSlot).
				Path(table.Struct.Name, path).Host(t.Sig.HostSignature()).Cause(err).
				Detail("callback does not match slot").Build()
		}
	}

	addr := table.Self + slot.Offset
	prev, err := mem.ReadU32(addr)
	if err != nil {
		return nil, err
	}

	binding := &Binding{
		bridge:     b,
		key:        registry.Key{Self: table.Self, Trampoline: t.ID},
		trampoline: t,
		callback:   cb,
		addr:       addr,
		prev:       prev,
	}
	binding.state.Store(int32(StateBound))
	if !b.bindings.Insert(binding.key, binding) {
		return nil, errors.AlreadyBound(table.Self, t.Name())
	}
	if err := mem.WriteU32(addr, t.ID); err != nil {
		b.bindings.RemoveIf(binding.key, func(v *Binding) bool { return v == binding })
		binding.detach()
		return nil, err
	}

	b.stats.binds.Add(1)
	b.log.Debug("bound",
		zap.String("trampoline", t.Name()),
		zap.Uint32("self", table.Self),
		zap.Uint32("id", t.ID))
	b.notify(Event{Kind: EventBind, Self: table.Self, Trampoline: t.Name()})
	return binding, nil
}

func bindError(structName, path string, err error) error {
	if e, ok := err.(*errors.Error); ok {
		return errors.New(errors.PhaseBind, errors.KindInvalidSlot).
			Path(structName, path).Native(e.Native).Cause(e.Cause).Detail("%s", e.Detail).Build()
	}
	return errors.Wrap(errors.PhaseBind, errors.KindInvalidSlot, err, structName+"."+path)
}

// Lookup returns the live binding of a slot on self.
func (b *Bridge) Lookup(self uint32, structName, path string) (*Binding, bool) {
	t, ok := b.set.Lookup(structName, path)
	if !ok {
		return nil, false
	}
	return b.bindings.Get(registry.Key{Self: self, Trampoline: t.ID})
}

// Len returns the number of live bindings.
func (b *Bridge) Len() int {
	return b.bindings.Len()
}

// Teardown unbinds every slot of self after native code destroyed the object.
// Guest memory is not touched. It returns the number of bindings removed.
func (b *Bridge) Teardown(self uint32) int {
	removed := b.bindings.RemoveFunc(func(k registry.Key, _ *Binding) bool {
		return k.Self == self
	})
	for _, binding := range removed {
		if !binding.detach() {
			continue
		}
		b.stats.teardowns.Add(1)
		b.notify(Event{
			Kind:       EventTeardown,
			Self:       self,
			Trampoline: binding.trampoline.Name(),
			InFlight:   binding.inflight.Load(),
		})
	}
	if len(removed) > 0 {
		b.log.Debug("teardown", zap.Uint32("self", self), zap.Int("bindings", len(removed)))
	}
	return len(removed)
}

// Close unbinds everything without writing guest memory, then closes the
// modules the bridge created, and the runtime if the bridge created it.
func (b *Bridge) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, binding := range b.bindings.RemoveFunc(func(registry.Key, *Binding) bool { return true }) {
		if binding.detach() {
			b.stats.unbinds.Add(1)
		}
	}

	if b.ownsRT {
		return b.runtime.Close(ctx)
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	b.mu.RLock()
	native, loaded := b.native, b.loaded
	b.mu.RUnlock()
	if loaded && native != nil {
		keep(native.Close(ctx))
	}
	keep(b.tramps.Close(ctx))
	keep(b.host.Close(ctx))
	return first
}

// Runtime returns the wazero runtime the bridge runs on.
func (b *Bridge) Runtime() wazero.Runtime {
	return b.runtime
}

// Set returns the trampoline set.
func (b *Bridge) Set() *trampoline.Set {
	return b.set
}

// Policy returns the fallback policy.
func (b *Bridge) Policy() Policy {
	return b.policy
}
