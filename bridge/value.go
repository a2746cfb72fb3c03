package bridge

import (
	"fmt"
	"math"

	"github.com/wippyai/callbridge/abi"
)

// Value is one marshaled argument or result. Integer kinds convert freely
// between each other; guest data (strings, struct snapshots) is already a copy.
type Value struct {
	kind abi.HostKind
	num  uint64
	f    float64
	str  string
	raw  []byte
	ref  *Ref
}

func Int32(v int32) Value     { return Value{kind: abi.KindInt32, num: uint64(int64(v))} }
func Uint32(v uint32) Value   { return Value{kind: abi.KindUint32, num: uint64(v)} }
func Int64(v int64) Value     { return Value{kind: abi.KindInt64, num: uint64(v)} }
func Uint64(v uint64) Value   { return Value{kind: abi.KindUint64, num: v} }
func Float32(v float32) Value { return Value{kind: abi.KindFloat32, f: float64(v)} }
func Float64(v float64) Value { return Value{kind: abi.KindFloat64, f: v} }
func Pointer(addr uint32) Value {
	return Value{kind: abi.KindPointer, num: uint64(addr)}
}
func String(s string) Value { return Value{kind: abi.KindString, str: s} }
func Bytes(b []byte) Value  { return Value{kind: abi.KindStruct, raw: b} }

// Bool is an int32 holding 1 or 0, as C int flags do.
func Bool(b bool) Value {
	if b {
		return Int32(1)
	}
	return Int32(0)
}

func refValue(r *Ref) Value {
	return Value{kind: abi.KindRef, num: uint64(int64(r.val)), ref: r}
}

// Kind returns the host kind the value was built as.
func (v Value) Kind() abi.HostKind {
	return v.kind
}

func (v Value) isFloat() bool {
	return v.kind == abi.KindFloat32 || v.kind == abi.KindFloat64
}

func (v Value) Int32() int32 {
	if v.isFloat() {
		return int32(v.f)
	}
	return int32(v.num)
}

func (v Value) Uint32() uint32 {
	if v.isFloat() {
		return uint32(v.f)
	}
	return uint32(v.num)
}

func (v Value) Int64() int64 {
	if v.isFloat() {
		return int64(v.f)
	}
	return int64(v.num)
}

func (v Value) Uint64() uint64 {
	if v.isFloat() {
		return uint64(v.f)
	}
	return v.num
}

func (v Value) Float32() float32 {
	return float32(v.Float64())
}

func (v Value) Float64() float64 {
	switch v.kind {
	case abi.KindFloat32, abi.KindFloat64:
		return v.f
	case abi.KindInt32, abi.KindInt64, abi.KindRef:
		return float64(int64(v.num))
	}
	return float64(v.num)
}

// Bool reports a non-zero integer.
func (v Value) Bool() bool {
	if v.isFloat() {
		return v.f != 0
	}
	return v.num != 0
}

// Pointer returns the guest address for pointer kinds.
func (v Value) Pointer() uint32 {
	return uint32(v.num)
}

// String returns the text of string kinds and a rendering of the rest.
func (v Value) String() string {
	switch v.kind {
	case abi.KindString, abi.KindCString:
		return v.str
	case abi.KindFloat32, abi.KindFloat64:
		return fmt.Sprint(v.f)
	case abi.KindPointer:
		return fmt.Sprintf("0x%x", uint32(v.num))
	case abi.KindStruct:
		return fmt.Sprintf("%x", v.raw)
	case abi.KindInt32, abi.KindInt64, abi.KindRef:
		return fmt.Sprint(int64(v.num))
	case abi.KindVoid:
		return "void"
	}
	return fmt.Sprint(v.num)
}

// Bytes returns the snapshot of a struct argument.
func (v Value) Bytes() []byte {
	return v.raw
}

// Ref returns the in-out cell of a ref argument, nil otherwise.
func (v Value) Ref() *Ref {
	return v.ref
}

// bits encodes v as the raw wasm value of the given result kind.
func (v Value) bits(k abi.HostKind) uint64 {
	switch k {
	case abi.KindInt32:
		return uint64(uint32(v.Int32()))
	case abi.KindUint32, abi.KindPointer:
		return uint64(v.Uint32())
	case abi.KindInt64:
		return uint64(v.Int64())
	case abi.KindUint64:
		return v.Uint64()
	case abi.KindFloat32:
		return uint64(math.Float32bits(v.Float32()))
	case abi.KindFloat64:
		return math.Float64bits(v.Float64())
	}
	return 0
}

// Ref is an int or enum the native side passed by pointer. Set values are
// written back to guest memory after the callback returns.
type Ref struct {
	addr  uint32
	val   int32
	dirty bool
}

// NewRef creates a detached cell, for tests and direct Invoke calls.
func NewRef(v int32) *Ref {
	return &Ref{val: v}
}

// Addr is the guest address, 0 for a null pointer.
func (r *Ref) Addr() uint32 {
	return r.addr
}

// IsNull reports a null pointer.
func (r *Ref) IsNull() bool {
	return r.addr == 0
}

func (r *Ref) Get() int32 {
	return r.val
}

// Set stores v for write-back. Writes through a null pointer are dropped.
func (r *Ref) Set(v int32) {
	r.val = v
	r.dirty = true
}
