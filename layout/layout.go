package layout

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/callbridge/abi"
	"github.com/wippyai/callbridge/errors"
)

// Field is one member of a struct with its wasm32 placement.
type Field struct {
	Name   string
	Type   abi.Type
	Func   *abi.FuncPtr // set for function-pointer fields
	Struct *Struct      // set for embedded structs
	Count  uint32       // array length, 0 for scalars
	Offset uint32
	Size   uint32
	Align  uint32
}

// IsFunc reports whether the field holds a function pointer.
func (f *Field) IsFunc() bool {
	return f.Func != nil
}

// Struct is a C struct laid out for wasm32.
type Struct struct {
	Name    string
	Aliases []string
	Fields  []Field
	Size    uint32
	Align   uint32
	// Class marks objects whose slots take the object itself as first parameter.
	Class bool
}

// Slot is a function-pointer field addressed by dotted path from the outer struct.
type Slot struct {
	Path   string
	Offset uint32
	Func   *abi.FuncPtr
	Owner  *Struct
}

// Field returns the named direct member.
func (s *Struct) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Slot resolves a dotted path such as "base.release" to a function-pointer slot.
func (s *Struct) Slot(path string) (Slot, error) {
	parts := strings.Split(path, ".")
	cur := s
	var off uint32
	for i, name := range parts {
		f, ok := cur.Field(name)
		if !ok {
			return Slot{}, errors.InvalidSlot(errors.PhaseLayout, s.Name, path,
				fmt.Sprintf("%s has no field %q", cur.Name, name))
		}
		off += f.Offset
		last := i == len(parts)-1
		if last {
			if !f.IsFunc() {
				return Slot{}, errors.InvalidSlot(errors.PhaseLayout, s.Name, path,
					fmt.Sprintf("field %q is %s, not a function pointer", name, f.Type))
			}
			return Slot{Path: path, Offset: off, Func: f.Func, Owner: cur}, nil
		}
		if f.Struct == nil || f.Count > 0 {
			return Slot{}, errors.InvalidSlot(errors.PhaseLayout, s.Name, path,
				fmt.Sprintf("field %q is not an embedded struct", name))
		}
		cur = f.Struct
	}
	return Slot{}, errors.InvalidSlot(errors.PhaseLayout, s.Name, path, "empty path")
}

// Slots lists every function-pointer slot, embedded structs included, in offset order.
func (s *Struct) Slots() []Slot {
	var out []Slot
	var walk func(st *Struct, prefix string, base uint32)
	walk = func(st *Struct, prefix string, base uint32) {
		for i := range st.Fields {
			f := &st.Fields[i]
			switch {
			case f.IsFunc():
				out = append(out, Slot{Path: prefix + f.Name, Offset: base + f.Offset, Func: f.Func, Owner: st})
			case f.Struct != nil && f.Count == 0:
				walk(f.Struct, prefix+f.Name+".", base+f.Offset)
			}
		}
	}
	walk(s, "", 0)
	return out
}

// Named reports whether name is the struct tag or one of its typedefs.
func (s *Struct) Named(name string) bool {
	if s.Name == name {
		return true
	}
	for _, a := range s.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Set holds struct layouts by tag and typedef name. It implements abi.Structs.
type Set struct {
	structs map[string]*Struct
	scalars map[string]abi.Type
	enums   map[string]bool
	order   []*Struct
}

// NewSet creates an empty layout set.
func NewSet() *Set {
	return &Set{
		structs: make(map[string]*Struct),
		scalars: make(map[string]abi.Type),
		enums:   make(map[string]bool),
	}
}

var arrayField = regexp.MustCompile(`^(.*)\[\s*(\d+)\s*\]$`)

// Define lays out a struct from its member declarations. Embedded structs must
// already be defined.
func (s *Set) Define(name string, fields []string, aliases ...string) (*Struct, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLayout, "struct without name")
	}
	if _, exists := s.structs[name]; exists {
		return nil, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
			Path(name).Detail("struct redefined").Build()
	}

	st := &Struct{Name: name, Aliases: append([]string(nil), aliases...), Align: 1}
	var off uint32
	for _, raw := range fields {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		f, err := s.field(raw)
		if err != nil {
			return nil, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
				Path(name).Native(raw).Cause(err).Build()
		}
		off = alignUp(off, f.Align)
		f.Offset = off
		off += f.Size
		if f.Align > st.Align {
			st.Align = f.Align
		}
		st.Fields = append(st.Fields, f)
	}
	if len(st.Fields) == 0 {
		return nil, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
			Path(name).Detail("struct has no fields").Build()
	}
	st.Size = alignUp(off, st.Align)

	// forward typedefs seen before the body
	for a, t := range s.scalars {
		if t.Tag == "struct" && t.Base == name && t.Ptrs == 0 {
			st.Aliases = append(st.Aliases, a)
			delete(s.scalars, a)
		}
	}
	st.Class = isClass(st)

	s.structs[name] = st
	for _, a := range st.Aliases {
		s.structs[a] = st
	}
	s.order = append(s.order, st)
	return st, nil
}

// Alias registers typedef name for an existing struct or scalar type.
func (s *Set) Alias(alias, target string) error {
	if st, ok := s.structs[target]; ok {
		s.structs[alias] = st
		st.Aliases = append(st.Aliases, alias)
		return nil
	}
	t, err := abi.ParseType(target)
	if err != nil {
		return errors.ParseFailed("typedef "+alias, err)
	}
	if t.Ptrs == 0 && (t.Tag == "enum" || s.enums[t.Base]) {
		s.enums[alias] = true
	}
	if t.Tag == "struct" {
		if st, ok := s.structs[t.Base]; ok && t.Ptrs == 0 {
			s.structs[alias] = st
			st.Aliases = append(st.Aliases, alias)
			return nil
		}
	}
	s.scalars[alias] = t
	return nil
}

// Lookup finds a struct by tag or typedef name.
func (s *Set) Lookup(name string) (*Struct, bool) {
	st, ok := s.structs[name]
	return st, ok
}

// Structs returns the defined structs in definition order.
func (s *Set) Structs() []*Struct {
	return s.order
}

// Names returns every known struct name, tags and typedefs, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.structs))
	for n := range s.structs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StructInfo implements abi.Structs.
func (s *Set) StructInfo(name string) (abi.StructInfo, bool) {
	st, ok := s.structs[name]
	if !ok {
		return abi.StructInfo{}, false
	}
	return abi.StructInfo{Name: st.Name, Size: st.Size, Class: st.Class}, true
}

// IsEnum implements abi.Enums.
func (s *Set) IsEnum(name string) bool {
	return s.enums[name]
}

// Lower lowers the signature of the slot at path in the struct name.
func (s *Set) Lower(name, path string) (*Struct, Slot, *abi.Signature, error) {
	st, ok := s.Lookup(name)
	if !ok {
		return nil, Slot{}, nil, errors.InvalidSlot(errors.PhaseLayout, name, path, "unknown struct")
	}
	slot, err := st.Slot(path)
	if err != nil {
		return nil, Slot{}, nil, err
	}
	sig, err := abi.Lower(slot.Func, s)
	if err != nil {
		return nil, Slot{}, nil, errors.New(errors.PhaseLayout, errors.KindInvalidSlot).
			Path(st.Name, path).Native(slot.Func.Decl).Cause(err).Build()
	}
	return st, slot, sig, nil
}

func (s *Set) field(raw string) (Field, error) {
	if strings.Contains(raw, "(") {
		fp, err := abi.ParseFuncPtr(raw)
		if err != nil {
			return Field{}, err
		}
		if fp.Name == "" {
			return Field{}, fmt.Errorf("unnamed function pointer")
		}
		return Field{Name: fp.Name, Func: fp, Size: abi.PointerSize, Align: abi.PointerSize}, nil
	}

	var count uint32
	if m := arrayField.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil || n == 0 {
			return Field{}, fmt.Errorf("bad array length in %q", raw)
		}
		raw, count = m[1], uint32(n)
	}

	p, err := abi.ParseParam(raw)
	if err != nil {
		return Field{}, err
	}
	if p.Name == "" {
		return Field{}, fmt.Errorf("unnamed field %q", raw)
	}
	f := Field{Name: p.Name, Type: p.Type, Count: count}
	if err := s.size(&f); err != nil {
		return Field{}, err
	}
	if count > 0 {
		f.Size *= count
	}
	return f, nil
}

func (s *Set) size(f *Field) error {
	t := f.Type
	if t.Ptrs > 0 {
		f.Size, f.Align = abi.PointerSize, abi.PointerSize
		return nil
	}
	if alias, ok := s.scalars[t.Base]; ok {
		if alias.Ptrs > 0 {
			f.Size, f.Align = abi.PointerSize, abi.PointerSize
			return nil
		}
		t = alias
	}
	if sz, ok := abi.ScalarSize(t.Base); ok {
		f.Size, f.Align = sz, sz
		return nil
	}
	if st, ok := s.structs[t.Base]; ok {
		f.Struct = st
		f.Size, f.Align = st.Size, st.Align
		return nil
	}
	if t.Tag == "struct" || t.Tag == "union" {
		return fmt.Errorf("incomplete type %s %s", t.Tag, t.Base)
	}
	if t.IsVoid() {
		return fmt.Errorf("void field")
	}
	// enum typedef
	f.Size, f.Align = 4, 4
	return nil
}

// isClass: a function-pointer member taking the struct itself first, or a class
// embedded at offset zero.
func isClass(st *Struct) bool {
	for i := range st.Fields {
		f := &st.Fields[i]
		if f.IsFunc() && len(f.Func.Params) > 0 {
			first := f.Func.Params[0].Type
			if first.Ptrs == 1 && st.Named(first.Base) {
				return true
			}
		}
	}
	first := st.Fields[0]
	return first.Offset == 0 && first.Struct != nil && first.Count == 0 && first.Struct.Class
}

func alignUp(n, align uint32) uint32 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
