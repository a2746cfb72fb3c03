package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/callbridge/errors"
	"github.com/wippyai/callbridge/internal/nativetest"
	"github.com/wippyai/callbridge/layout"
	"github.com/wippyai/callbridge/trampoline"
)

const (
	setCookie = "cef_set_cookie_callback_t"
	visitor   = "cef_cookie_visitor_t"
	progress  = "cef_download_progress_t"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

// guestFires are the call sites of the test guest. Each loads the slot at
// self+Offset and calls it with its own arguments.
var guestFires = []nativetest.Fire{
	{Name: "add_ref", Offset: 4, Params: []api.ValueType{i32}},
	{Name: "release", Offset: 8, Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
	{Name: "has_one_ref", Offset: 12, Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
	{Name: "has_at_least_one_ref", Offset: 16, Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
	{Name: "on_complete", Offset: 20, Params: []api.ValueType{i32, i32}},
	{Name: "visit", Offset: 20, Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: []api.ValueType{i32}},
	{Name: "on_progress", Offset: 20, Params: []api.ValueType{i32, i32, i64, f64, i32}},
	{Name: "get_flags", Offset: 24, Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
}

type slotRef struct {
	structName string
	path       string
}

type fixture struct {
	ctx    context.Context
	b      *Bridge
	set    *trampoline.Set
	native api.Module
}

func cookieLayouts(t *testing.T) *layout.Set {
	t.Helper()
	ls := layout.NewSet()
	if err := ls.ParseHeaderString(nativetest.CookieHeader); err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return ls
}

func cookieSet(t *testing.T, slots ...slotRef) *trampoline.Set {
	t.Helper()
	set := trampoline.NewSet("cef", cookieLayouts(t))
	for _, s := range slots {
		if _, err := set.Add(s.structName, s.path); err != nil {
			t.Fatalf("Add(%s, %s): %v", s.structName, s.path, err)
		}
	}
	return set
}

func newFixture(t *testing.T, slots []slotRef, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	set := cookieSet(t, slots...)

	b, err := New(ctx, set, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(ctx) })

	lib := nativetest.Library{
		Namespace: set.Namespace(),
		TableSize: set.TableSize(),
		Fires:     guestFires,
	}
	native, err := b.Load(ctx, lib.Build(), "libcef")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &fixture{ctx: ctx, b: b, set: set, native: native}
}

func (f *fixture) table(t *testing.T, self uint32, structName string) Table {
	t.Helper()
	table, err := f.b.Table(self, structName)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	return table
}

func (f *fixture) patch(t *testing.T, self uint32, structName, path string, cb Callback) *Binding {
	t.Helper()
	binding, err := f.b.Patch(f.table(t, self, structName), path, cb)
	if err != nil {
		t.Fatalf("Patch(0x%x, %s): %v", self, path, err)
	}
	return binding
}

func (f *fixture) fire(t *testing.T, name string, args ...uint64) []uint64 {
	t.Helper()
	res, err := f.native.ExportedFunction(name).Call(f.ctx, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func (f *fixture) slot(t *testing.T, addr uint32) uint32 {
	t.Helper()
	v, ok := f.native.Memory().ReadUint32Le(addr)
	if !ok {
		t.Fatalf("read slot at 0x%x", addr)
	}
	return v
}

type recorder struct {
	mu    sync.Mutex
	calls map[uint32][]int32
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[uint32][]int32)}
}

func (r *recorder) onComplete() Callback {
	return FuncOf(func(self uint32, success int32) {
		r.mu.Lock()
		r.calls[self] = append(r.calls[self], success)
		r.mu.Unlock()
	})
}

func (r *recorder) get(self uint32) []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.calls[self]...)
}

func TestPatch_RoutesBySelf(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	rec := newRecorder()
	const objA, objB = 0x100, 0x200

	f.patch(t, objA, setCookie, "on_complete", rec.onComplete())
	f.fire(t, "on_complete", objA, 1)
	if got := rec.get(objA); len(got) != 1 || got[0] != 1 {
		t.Fatalf("A calls = %v, want [1]", got)
	}

	f.patch(t, objB, setCookie, "on_complete", rec.onComplete())
	f.fire(t, "on_complete", objB, 0)
	if got := rec.get(objB); len(got) != 1 || got[0] != 0 {
		t.Errorf("B calls = %v, want [0]", got)
	}
	if got := rec.get(objA); len(got) != 1 {
		t.Errorf("A calls = %v after dispatch on B", got)
	}

	if n := f.b.Teardown(objA); n != 1 {
		t.Fatalf("Teardown(A) = %d, want 1", n)
	}
	f.fire(t, "on_complete", objA, 1)
	if got := rec.get(objA); len(got) != 1 {
		t.Errorf("A reached after teardown: %v", got)
	}
	if s := f.b.Stats(); s.Fallbacks != 1 || s.Teardowns != 1 {
		t.Errorf("stats = %+v", s)
	}

	f.fire(t, "on_complete", objB, 1)
	if got := rec.get(objB); len(got) != 2 || got[1] != 1 {
		t.Errorf("B calls = %v, want [0 1]", got)
	}
}

func TestPatch_WritesAndRestoresSlot(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	const self = 0x100
	tramp, _ := f.set.Lookup(setCookie, "on_complete")

	binding := f.patch(t, self, setCookie, "on_complete", newRecorder().onComplete())
	if got := f.slot(t, self+20); got != tramp.ID {
		t.Fatalf("slot = %d, want trampoline %d", got, tramp.ID)
	}
	if binding.Addr() != self+20 || binding.Previous() != 0 || binding.State() != StateBound {
		t.Errorf("binding = addr 0x%x prev %d state %s", binding.Addr(), binding.Previous(), binding.State())
	}

	if err := binding.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := f.slot(t, self+20); got != 0 {
		t.Errorf("slot after Close = %d, want 0", got)
	}
	if binding.State() != StateUnbound {
		t.Error("binding still bound")
	}
	if err := binding.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if s := f.b.Stats(); s.Unbinds != 1 {
		t.Errorf("Unbinds = %d, want 1", s.Unbinds)
	}
}

func TestClose_KeepsForeignSlotValue(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	const self = 0x100

	binding := f.patch(t, self, setCookie, "on_complete", newRecorder().onComplete())
	f.native.Memory().WriteUint32Le(self+20, 7)
	if err := binding.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := f.slot(t, self+20); got != 7 {
		t.Errorf("slot = %d, want native value 7 kept", got)
	}
}

func TestTeardown_DoesNotWriteMemory(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}, {setCookie, "base.release"}})
	const self = 0x100
	rec := newRecorder()

	f.patch(t, self, setCookie, "on_complete", rec.onComplete())
	f.patch(t, self, setCookie, "base.release", CallbackFunc(func(context.Context, *Call) error { return nil }))
	before, _ := f.native.Memory().Read(self, 24)
	snapshot := append([]byte(nil), before...)

	if n := f.b.Teardown(self); n != 2 {
		t.Fatalf("Teardown = %d, want 2", n)
	}
	after, _ := f.native.Memory().Read(self, 24)
	if string(after) != string(snapshot) {
		t.Errorf("teardown wrote guest memory: %x -> %x", snapshot, after)
	}
	if f.b.Len() != 0 {
		t.Errorf("Len = %d after teardown", f.b.Len())
	}
	if n := f.b.Teardown(self); n != 0 {
		t.Errorf("second Teardown = %d", n)
	}
}

func TestPatch_Errors(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	cb := newRecorder().onComplete()

	kind := func(err error) errors.Kind {
		var e *errors.Error
		if stderrors.As(err, &e) {
			return e.Kind
		}
		return ""
	}

	tests := []struct {
		name string
		self uint32
		path string
		cb   Callback
		want errors.Kind
	}{
		{name: "null self", self: 0, path: "on_complete", cb: cb, want: errors.KindInvalidInput},
		{name: "outside memory", self: 65536 - 8, path: "on_complete", cb: cb, want: errors.KindOutOfBounds},
		{name: "no trampoline", self: 0x100, path: "base.release", cb: cb, want: errors.KindInvalidSlot},
		{name: "not a slot", self: 0x100, path: "base.size", cb: cb, want: errors.KindInvalidSlot},
		{name: "nil callback", self: 0x100, path: "on_complete", cb: nil, want: errors.KindInvalidInput},
		{
			name: "callback shape",
			self: 0x100,
			path: "on_complete",
			cb:   FuncOf(func(self uint32, s string) {}),
			want: errors.KindInvalidSlot,
		},
		{
			name: "callback result",
			self: 0x100,
			path: "on_complete",
			cb:   FuncOf(func(self uint32, success int32) int32 { return 0 }),
			want: errors.KindInvalidSlot,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.b.Patch(f.table(t, tt.self, setCookie), tt.path, tt.cb)
			if err == nil {
				t.Fatal("Patch succeeded")
			}
			if got := kind(err); got != tt.want {
				t.Errorf("kind = %q, want %q (%v)", got, tt.want, err)
			}
		})
	}
	if f.b.Len() != 0 {
		t.Errorf("failed patches left %d bindings", f.b.Len())
	}
}

func TestPatch_AlreadyBound(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	first := f.patch(t, 0x100, setCookie, "on_complete", newRecorder().onComplete())

	_, err := f.b.Patch(f.table(t, 0x100, setCookie), "on_complete", newRecorder().onComplete())
	if !stderrors.Is(err, errors.ErrAlreadyBound) {
		t.Fatalf("err = %v, want AlreadyBound", err)
	}
	if got, ok := f.b.Lookup(0x100, setCookie, "on_complete"); !ok || got != first {
		t.Error("existing binding replaced")
	}
}

func TestTable_UnknownStruct(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.b.Table(0x100, "cef_nothing_t")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestPatch_NotAttached(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, cookieSet(t, slotRef{setCookie, "on_complete"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close(ctx)

	table, err := b.Table(0x100, setCookie)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	_, err = b.Patch(table, "on_complete", newRecorder().onComplete())
	if !stderrors.Is(err, errors.ErrNotAttached) {
		t.Errorf("err = %v, want NotAttached", err)
	}
}

func TestBridge_Close(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	binding := f.patch(t, 0x100, setCookie, "on_complete", newRecorder().onComplete())

	if err := f.b.Close(f.ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.b.Len() != 0 || binding.State() != StateUnbound {
		t.Error("bindings survived Close")
	}
	if _, err := f.b.Patch(f.table(t, 0x200, setCookie), "on_complete", newRecorder().onComplete()); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Patch after Close = %v, want Closed", err)
	}
	if err := f.b.Close(f.ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestRegisterClose_NoLeak(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	const n = 32

	bindings := make([]*Binding, n)
	for i := range bindings {
		bindings[i] = f.patch(t, uint32(0x1000+i*24), setCookie, "on_complete", newRecorder().onComplete())
	}
	if f.b.Len() != n {
		t.Fatalf("Len = %d, want %d", f.b.Len(), n)
	}
	for _, binding := range bindings {
		if err := binding.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	s := f.b.Stats()
	if s.Bindings != 0 || s.Binds != n || s.Unbinds != n || s.Dispatches != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDispatch_Concurrent(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}}, WithShards(8))
	const (
		objects = 64
		calls   = 50
	)
	counts := make([]atomic.Int32, objects)
	var misrouted atomic.Int32

	var wg sync.WaitGroup
	errs := make(chan error, objects)
	for i := 0; i < objects; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			self := uint32(0x1000 + i*24)
			table, err := f.b.Table(self, setCookie)
			if err != nil {
				errs <- err
				return
			}
			_, err = f.b.Patch(table, "on_complete", FuncOf(func(got uint32, idx int32) {
				if got != self || int(idx) != i {
					misrouted.Add(1)
				}
				counts[i].Add(1)
			}))
			if err != nil {
				errs <- err
				return
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Patch: %v", err)
	}

	for i := 0; i < objects; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fn := f.native.ExportedFunction("on_complete")
			self := uint64(0x1000 + i*24)
			for j := 0; j < calls; j++ {
				if _, err := fn.Call(f.ctx, self, uint64(i)); err != nil {
					misrouted.Add(1)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if n := misrouted.Load(); n != 0 {
		t.Errorf("%d misrouted calls", n)
	}
	for i := range counts {
		if got := counts[i].Load(); got != calls {
			t.Errorf("object %d got %d calls, want %d", i, got, calls)
		}
	}
	if s := f.b.Stats(); s.Dispatches != objects*calls || s.Fallbacks != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestNew_SealsSet(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	if !f.set.Sealed() {
		t.Fatal("set not sealed by New")
	}
	if _, err := f.set.Add(visitor, "visit"); !stderrors.Is(err, errors.ErrInvalidSlot) {
		t.Fatalf("Add after New = %v, want InvalidSlot", err)
	}

	_, err := f.b.Patch(f.table(t, 0x300, visitor), "visit", CallbackFunc(func(context.Context, *Call) error {
		return nil
	}))
	if !stderrors.Is(err, errors.ErrInvalidSlot) {
		t.Fatalf("Patch(visit) = %v, want InvalidSlot", err)
	}
	if got := f.slot(t, 0x300+20); got != 0 {
		t.Errorf("slot = %d, want untouched", got)
	}
	if f.set.TableSize() != 2 {
		t.Errorf("TableSize = %d, want 2", f.set.TableSize())
	}
}

// TestTeardown_DuringDispatch fires slots from many goroutines while another
// goroutine tears the objects down. Once a teardown has returned and the
// binding has drained, its callback must never run again.
func TestTeardown_DuringDispatch(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}}, WithShards(8))
	const (
		objects = 16
		calls   = 200
	)
	var (
		delivered atomic.Uint64
		late      atomic.Int32
	)
	torn := make([]atomic.Bool, objects)
	bindings := make([]*Binding, objects)
	for i := 0; i < objects; i++ {
		self := uint32(0x1000 + i*24)
		if i%2 == 1 {
			// a proxy installed the trampoline before binding, so Close
			// restores a routable slot instead of null
			if !f.native.Memory().WriteUint32Le(self+20, 1) {
				t.Fatal("seed slot")
			}
		}
		bindings[i] = f.patch(t, self, setCookie, "on_complete", FuncOf(func(uint32, int32) {
			if torn[i].Load() {
				late.Add(1)
			}
			delivered.Add(1)
		}))
	}

	var wg sync.WaitGroup
	var failed atomic.Int32
	start := make(chan struct{})
	for i := 0; i < objects; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fn := f.native.ExportedFunction("on_complete")
			self := uint64(0x1000 + i*24)
			<-start
			for j := 0; j < calls; j++ {
				if _, err := fn.Call(f.ctx, self, 1); err != nil {
					failed.Add(1)
					return
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < objects; i++ {
			if i%2 == 0 {
				f.b.Teardown(uint32(0x1000 + i*24))
			} else {
				_ = bindings[i].Close()
			}
			for bindings[i].InFlight() != 0 {
				runtime.Gosched()
			}
			torn[i].Store(true)
		}
	}()
	close(start)
	wg.Wait()

	if n := failed.Load(); n != 0 {
		t.Fatalf("%d guest calls failed", n)
	}
	if n := late.Load(); n != 0 {
		t.Errorf("%d callbacks ran after teardown", n)
	}
	if f.b.Len() != 0 {
		t.Errorf("Len = %d after teardown", f.b.Len())
	}
	s := f.b.Stats()
	fired := uint64(objects * calls)
	if s.Dispatches != fired {
		t.Errorf("Dispatches = %d, want %d", s.Dispatches, fired)
	}
	if delivered.Load()+s.Fallbacks != fired {
		t.Errorf("delivered %d + fallbacks %d != fired %d", delivered.Load(), s.Fallbacks, fired)
	}
}

func TestDispatch_ExitErrorReleasesInFlight(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	binding := f.patch(t, 0x100, setCookie, "on_complete", CallbackFunc(func(context.Context, *Call) error {
		panic(sys.NewExitError(3))
	}))

	_, err := f.native.ExportedFunction("on_complete").Call(f.ctx, 0x100, 1)
	if err == nil {
		t.Fatal("guest exit did not unwind")
	}
	if n := binding.InFlight(); n != 0 {
		t.Errorf("InFlight = %d after unwind, want 0", n)
	}
	if s := f.b.Stats(); s.Panics != 0 || s.Fallbacks != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDispatch_CallbackPanicFallsBack(t *testing.T) {
	var events []EventKind
	obs := ObserverFunc(func(e Event) { events = append(events, e.Kind) })
	f := newFixture(t, []slotRef{{progress, "get_flags"}}, WithObserver(obs))

	f.patch(t, 0x100, progress, "get_flags", CallbackFunc(func(context.Context, *Call) error {
		panic("boom")
	}))
	res := f.fire(t, "get_flags", 0x100)
	if res[0] != 0 {
		t.Errorf("result = %d, want 0", res[0])
	}

	s := f.b.Stats()
	if s.Panics != 1 || s.Fallbacks != 1 {
		t.Errorf("stats = %+v", s)
	}
	want := []EventKind{EventBind, EventPanic, EventFallback}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestDispatch_CallbackErrorFallsBack(t *testing.T) {
	var fallback error
	obs := ObserverFunc(func(e Event) {
		if e.Kind == EventFallback {
			fallback = e.Err
		}
	})
	f := newFixture(t, []slotRef{{progress, "get_flags"}}, WithObserver(obs))
	sentinel := stderrors.New("no flags")

	f.patch(t, 0x100, progress, "get_flags", FuncOf(func(self uint32) (uint32, error) {
		return 42, sentinel
	}))
	if res := f.fire(t, "get_flags", 0x100); res[0] != 0 {
		t.Errorf("result = %d, want 0", res[0])
	}
	if !stderrors.Is(fallback, sentinel) {
		t.Errorf("fallback cause = %v", fallback)
	}
}

func TestDispatch_UnknownContextEvent(t *testing.T) {
	var got []Event
	obs := ObserverFunc(func(e Event) { got = append(got, e) })
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}}, WithObserver(obs))

	f.patch(t, 0x100, setCookie, "on_complete", newRecorder().onComplete())
	f.b.Teardown(0x100)
	f.fire(t, "on_complete", 0x100, 1)

	last := got[len(got)-1]
	if last.Kind != EventFallback || last.Self != 0x100 || !stderrors.Is(last.Err, errors.ErrUnknownContext) {
		t.Errorf("last event = %+v", last)
	}
	if last.Trampoline != "_cef_set_cookie_callback_t.on_complete" {
		t.Errorf("trampoline = %q", last.Trampoline)
	}
}

func TestBinding_CloseFromCallback(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}})
	var calls int
	var inflight int32
	f.patch(t, 0x100, setCookie, "on_complete", CallbackFunc(func(_ context.Context, call *Call) error {
		calls++
		inflight = call.Binding.InFlight()
		return call.Binding.Close()
	}))

	f.fire(t, "on_complete", 0x100, 1)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if inflight != 1 {
		t.Errorf("InFlight during call = %d, want 1", inflight)
	}
	if f.slot(t, 0x100+20) != 0 {
		t.Error("slot not restored")
	}
	if f.b.Len() != 0 {
		t.Errorf("Len = %d", f.b.Len())
	}
}

func TestPolicyAbort(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "on_complete"}}, WithPolicy(PolicyAbort))
	f.patch(t, 0x100, setCookie, "on_complete", newRecorder().onComplete())
	f.b.Teardown(0x100)

	_, err := f.native.ExportedFunction("on_complete").Call(f.ctx, 0x100, 1)
	var exit *sys.ExitError
	if !stderrors.As(err, &exit) {
		t.Fatalf("err = %v, want *sys.ExitError", err)
	}
	if exit.ExitCode() != AbortExitCode {
		t.Errorf("exit code = %d, want %d", exit.ExitCode(), AbortExitCode)
	}
	if s := f.b.Stats(); s.Aborts != 1 || s.Fallbacks != 1 {
		t.Errorf("stats = %+v", s)
	}
	if _, err := f.native.ExportedFunction("on_complete").Call(f.ctx, 0x100, 1); err == nil {
		t.Error("aborted module still callable")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyNoop, false},
		{"noop", PolicyNoop, false},
		{" Abort ", PolicyAbort, false},
		{"crash", PolicyNoop, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
	if PolicyAbort.String() != "abort" || PolicyNoop.String() != "noop" {
		t.Error("Policy.String")
	}
}
