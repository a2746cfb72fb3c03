package abi

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// PointerSize is the size of a pointer, int, long and size_t on wasm32.
const PointerSize = 4

// HostKind is how a lowered value is presented to Go callbacks.
type HostKind uint8

const (
	KindVoid HostKind = iota
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindPointer // class object or opaque address
	KindString  // cef_string_t* copied into a Go string
	KindCString // char* copied into a Go string
	KindStruct  // pointer to a plain data struct, copied as bytes
	KindRef     // pointer to a 32-bit integer, read and written back
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindPointer: "pointer",
	KindString:  "string",
	KindCString: "cstring",
	KindStruct:  "struct",
	KindRef:     "ref",
}

func (k HostKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// GoType names the Go type a typed callback uses for this kind.
func (k HostKind) GoType() string {
	switch k {
	case KindVoid:
		return ""
	case KindPointer:
		return "uint32"
	case KindString, KindCString:
		return "string"
	case KindStruct:
		return "[]byte"
	case KindRef:
		return "*bridge.Ref"
	}
	return k.String()
}

// WIT returns the component-model type carrying this kind, nil for void.
func (k HostKind) WIT() wit.Type {
	switch k {
	case KindInt32, KindRef:
		return wit.S32{}
	case KindUint32, KindPointer:
		return wit.U32{}
	case KindInt64:
		return wit.S64{}
	case KindUint64:
		return wit.U64{}
	case KindFloat32:
		return wit.F32{}
	case KindFloat64:
		return wit.F64{}
	case KindString, KindCString:
		return wit.String{}
	case KindStruct:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}
	}
	return nil
}

// WITName renders the WIT spelling of this kind.
func (k HostKind) WITName() string {
	return witName(k.WIT())
}

func witName(t wit.Type) string {
	switch t := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if l, ok := t.Kind.(*wit.List); ok {
			return "list<" + witName(l.Type) + ">"
		}
	}
	return "?"
}

// Structs resolves struct names during lowering. Layout sets implement it.
type Structs interface {
	StructInfo(name string) (StructInfo, bool)
}

// Enums is implemented by resolvers that know enum typedef names. Only
// pointers to known enums lower to KindRef.
type Enums interface {
	IsEnum(name string) bool
}

// StructInfo is what lowering needs to know about a named struct.
type StructInfo struct {
	Name string
	Size uint32
	// Class marks ref-counted or v-table objects, passed by address.
	Class bool
}

// Lowered is one value of a signature mapped onto the wasm32 calling convention.
type Lowered struct {
	Type   Type
	Wasm   api.ValueType
	Kind   HostKind
	Struct string // pointee struct for KindStruct and class pointers
	Size   uint32 // bytes copied for KindStruct
}

// Void reports whether the value produces no wasm value.
func (l Lowered) Void() bool {
	return l.Kind == KindVoid
}

// stringStructs are the UTF-16 string struct names passed by pointer.
var stringStructs = map[string]bool{
	"cef_string_t":        true,
	"cef_string_utf16_t":  true,
	"_cef_string_utf16_t": true,
}

// userfreeStrings are pointer typedefs to host-owned strings.
var userfreeStrings = map[string]bool{
	"cef_string_userfree_t":       true,
	"cef_string_userfree_utf16_t": true,
}

var scalarKinds = map[string]HostKind{
	"int":                KindInt32,
	"long":               KindInt32,
	"short":              KindInt32,
	"char":               KindInt32,
	"signed char":        KindInt32,
	"bool":               KindInt32,
	"int8_t":             KindInt32,
	"int16_t":            KindInt32,
	"int32_t":            KindInt32,
	"int32":              KindInt32,
	"intptr_t":           KindInt32,
	"ssize_t":            KindInt32,
	"char16":             KindUint32,
	"char16_t":           KindUint32,
	"unsigned int":       KindUint32,
	"unsigned long":      KindUint32,
	"unsigned short":     KindUint32,
	"unsigned char":      KindUint32,
	"uint8_t":            KindUint32,
	"uint16_t":           KindUint32,
	"uint32_t":           KindUint32,
	"uint32":             KindUint32,
	"size_t":             KindUint32,
	"uintptr_t":          KindUint32,
	"cef_color_t":        KindUint32,
	"long long":          KindInt64,
	"int64_t":            KindInt64,
	"int64":              KindInt64,
	"time_t":             KindInt64,
	"unsigned long long": KindUint64,
	"uint64_t":           KindUint64,
	"uint64":             KindUint64,
	"float":              KindFloat32,
	"double":             KindFloat64,
}

// ScalarSize returns the wasm32 size of a non-pointer scalar base type.
func ScalarSize(base string) (uint32, bool) {
	switch base {
	case "char", "signed char", "unsigned char", "bool", "int8_t", "uint8_t":
		return 1, true
	case "short", "unsigned short", "int16_t", "uint16_t", "char16", "char16_t":
		return 2, true
	case "float":
		return 4, true
	case "double":
		return 8, true
	}
	switch scalarKinds[base] {
	case KindInt64, KindUint64:
		return 8, true
	case KindInt32, KindUint32:
		return 4, true
	}
	return 0, false
}

func wasmOf(k HostKind) api.ValueType {
	switch k {
	case KindInt64, KindUint64:
		return api.ValueTypeI64
	case KindFloat32:
		return api.ValueTypeF32
	case KindFloat64:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

// LowerParam maps a parameter type onto wasm32. Unknown non-struct names are
// treated as enums.
func LowerParam(t Type, structs Structs) (Lowered, error) {
	l := Lowered{Type: t}
	switch {
	case t.Ptrs == 0:
		if t.IsVoid() {
			return l, fmt.Errorf("void parameter")
		}
		if t.Tag == "union" {
			return l, fmt.Errorf("union %s passed by value", t.Base)
		}
		if userfreeStrings[t.Base] {
			l.Kind = KindString
			break
		}
		if k, ok := scalarKinds[t.Base]; ok {
			l.Kind = k
			break
		}
		if info, ok := lookup(structs, t.Base); ok || t.Tag == "struct" {
			name := t.Base
			if ok {
				name = info.Name
			}
			return l, fmt.Errorf("struct %s passed by value", name)
		}
		l.Kind = KindInt32
	case t.Ptrs == 1:
		elem := t.Base
		switch {
		case stringStructs[elem]:
			l.Kind = KindString
		case elem == "char":
			l.Kind = KindCString
		case elem == "void":
			l.Kind = KindPointer
		default:
			if info, ok := lookup(structs, elem); ok {
				l.Struct = info.Name
				if info.Class {
					l.Kind = KindPointer
				} else {
					l.Kind = KindStruct
					l.Size = info.Size
				}
				break
			}
			if k, ok := scalarKinds[elem]; ok {
				if k == KindInt32 || k == KindUint32 {
					if sz, _ := ScalarSize(elem); sz == 4 {
						l.Kind = KindRef
						break
					}
				}
				l.Kind = KindPointer
				break
			}
			if t.Tag == "struct" || t.Tag == "union" {
				l.Kind = KindPointer
				l.Struct = elem
				break
			}
			if t.Tag == "enum" || isEnum(structs, elem) {
				l.Kind = KindRef
				break
			}
			// unknown typedef, possibly an object whose header was not parsed
			l.Kind = KindPointer
		}
	default:
		l.Kind = KindPointer
	}
	l.Wasm = wasmOf(l.Kind)
	return l, nil
}

// LowerResult maps a result type onto wasm32. Results that would need host
// allocation in guest memory are rejected.
func LowerResult(t Type, structs Structs) (Lowered, error) {
	l := Lowered{Type: t}
	if t.IsVoid() {
		l.Kind = KindVoid
		return l, nil
	}
	if t.Ptrs > 0 {
		l.Kind = KindPointer
		l.Wasm = api.ValueTypeI32
		if _, ok := lookup(structs, t.Base); ok {
			l.Struct = t.Base
		}
		return l, nil
	}
	if userfreeStrings[t.Base] {
		return l, fmt.Errorf("string result %s requires guest allocation", t.Base)
	}
	p, err := LowerParam(t, structs)
	if err != nil {
		return l, err
	}
	return p, nil
}

func isEnum(structs Structs, name string) bool {
	e, ok := structs.(Enums)
	return ok && e.IsEnum(name)
}

func lookup(structs Structs, name string) (StructInfo, bool) {
	if structs == nil {
		return StructInfo{}, false
	}
	return structs.StructInfo(name)
}
