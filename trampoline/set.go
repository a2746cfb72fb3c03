package trampoline

import (
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/callbridge/abi"
	"github.com/wippyai/callbridge/errors"
	"github.com/wippyai/callbridge/layout"
)

// TableExport is the name under which the trampoline table is exported.
const TableExport = "table"

// Trampoline is one generated entry point serving a struct slot. Its ID is its
// funcref table index; a patched slot holds this value.
type Trampoline struct {
	ID     uint32
	Struct string
	Slot   string
	Offset uint32
	Sig    *abi.Signature
}

// Name is "<struct>.<slot>", the trampoline's export name.
func (t *Trampoline) Name() string {
	return t.Struct + "." + t.Slot
}

// Dispatch is one imported host entry shared by every trampoline whose slot
// lowers to the same wasm type. Params lead with the i32 trampoline id.
type Dispatch struct {
	Key         string
	Import      string
	Params      []api.ValueType
	Results     []api.ValueType
	Trampolines []*Trampoline
}

// Set collects trampolines for one namespace. Ids are dense from 1; table
// index 0 stays null. Once sealed the set is read-only and safe for
// concurrent lookups.
type Set struct {
	namespace string
	layouts   *layout.Set
	list      []*Trampoline
	byName    map[string]*Trampoline
	mu        sync.Mutex
	sealed    bool
	reserve   uint32
}

// Option configures a Set.
type Option func(*Set)

// WithReserve leaves n empty table entries after the trampolines.
func WithReserve(n uint32) Option {
	return func(s *Set) {
		s.reserve = n
	}
}

// NewSet creates a set resolving struct names against layouts.
func NewSet(namespace string, layouts *layout.Set, opts ...Option) *Set {
	s := &Set{
		namespace: namespace,
		layouts:   layouts,
		byName:    make(map[string]*Trampoline),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace is the wasm module name the trampoline module is instantiated as.
func (s *Set) Namespace() string {
	return s.namespace
}

// DispatchModule is the host module the trampolines import from.
func (s *Set) DispatchModule() string {
	return s.namespace + ".dispatch"
}

// Layouts returns the layout set the trampolines were resolved against.
func (s *Set) Layouts() *layout.Set {
	return s.layouts
}

// Seal freezes the set. The trampoline module and table size are fixed from
// here on; Add fails for slots not already present.
func (s *Set) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (s *Set) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Add generates a trampoline for the slot at path in structName. Adding the
// same slot twice returns the existing trampoline.
func (s *Set) Add(structName, path string) (*Trampoline, error) {
	st, slot, sig, err := s.layouts.Lower(structName, path)
	if err != nil {
		return nil, codegenError(structName, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byName[st.Name+"."+path]; ok {
		return t, nil
	}
	if s.sealed {
		return nil, errors.InvalidSlot(errors.PhaseCodegen, st.Name, path, "trampoline set is sealed")
	}

	if len(sig.Params) == 0 || sig.Params[0].Type.Ptrs != 1 {
		return nil, errors.New(errors.PhaseCodegen, errors.KindInvalidSlot).
			Path(st.Name, path).Native(slot.Func.Decl).
			Detail("first parameter must be the object pointer").Build()
	}
	switch sig.Params[0].Kind {
	case abi.KindPointer:
	case abi.KindStruct:
		// self is routed by address, never snapshotted
		sig.Params[0].Kind = abi.KindPointer
		sig.Params[0].Size = 0
		sig.Rows[0].Kind = abi.KindPointer
		sig.Rows[0].WIT = abi.KindPointer.WITName()
	default:
		return nil, errors.New(errors.PhaseCodegen, errors.KindInvalidSlot).
			Path(st.Name, path).Native(slot.Func.Decl).
			Detail("first parameter %s cannot carry the object pointer", sig.Params[0].Type).Build()
	}

	t := &Trampoline{
		ID:     uint32(len(s.list)) + 1,
		Struct: st.Name,
		Slot:   path,
		Offset: slot.Offset,
		Sig:    sig,
	}
	s.list = append(s.list, t)
	s.byName[t.Name()] = t
	return t, nil
}

// AddStruct adds every slot of the struct, embedded structs included.
func (s *Set) AddStruct(structName string) ([]*Trampoline, error) {
	st, ok := s.layouts.Lookup(structName)
	if !ok {
		return nil, errors.InvalidSlot(errors.PhaseCodegen, structName, "*", "unknown struct")
	}
	var out []*Trampoline
	for _, slot := range st.Slots() {
		t, err := s.Add(st.Name, slot.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Lookup finds the trampoline for a slot. structName may be a typedef.
func (s *Set) Lookup(structName, path string) (*Trampoline, bool) {
	if st, ok := s.layouts.Lookup(structName); ok {
		structName = st.Name
	}
	t, ok := s.byName[structName+"."+path]
	return t, ok
}

// ByID finds a trampoline by table index.
func (s *Set) ByID(id uint32) (*Trampoline, bool) {
	if id == 0 || id > uint32(len(s.list)) {
		return nil, false
	}
	return s.list[id-1], true
}

// Trampolines returns every trampoline in id order.
func (s *Set) Trampolines() []*Trampoline {
	return s.list
}

// Len returns the number of trampolines.
func (s *Set) Len() int {
	return len(s.list)
}

// TableSize is the funcref table size: null entry, trampolines, reserve.
func (s *Set) TableSize() uint32 {
	return 1 + uint32(len(s.list)) + s.reserve
}

// Dispatches groups trampolines by lowered wasm type, in first-use order.
func (s *Set) Dispatches() []*Dispatch {
	var out []*Dispatch
	index := make(map[string]*Dispatch)
	for _, t := range s.list {
		key := t.Sig.Key()
		d, ok := index[key]
		if !ok {
			params := append([]api.ValueType{api.ValueTypeI32}, t.Sig.WasmParams()...)
			d = &Dispatch{
				Key:     key,
				Import:  "dispatch_" + key,
				Params:  params,
				Results: t.Sig.WasmResults(),
			}
			index[key] = d
			out = append(out, d)
		}
		d.Trampolines = append(d.Trampolines, t)
	}
	return out
}

func codegenError(structName, path string, err error) error {
	if e, ok := err.(*errors.Error); ok && e.Kind == errors.KindInvalidSlot {
		return errors.New(errors.PhaseCodegen, errors.KindInvalidSlot).
			Path(structName, path).Native(e.Native).Detail(e.Detail).Cause(e.Cause).Build()
	}
	return errors.Wrap(errors.PhaseCodegen, errors.KindInvalidSlot, err, fmt.Sprintf("%s.%s", structName, path))
}
