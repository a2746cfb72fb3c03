package bridge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/callbridge/abi"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	refType     = reflect.TypeOf((*Ref)(nil))
	bytesType   = reflect.TypeOf([]byte(nil))
)

// funcCallback calls a typed Go function. Parameters follow the slot: self as
// uint32, then one Go value per native parameter. An optional leading
// context.Context and trailing error are allowed.
type funcCallback struct {
	fn      reflect.Value
	typ     reflect.Type
	withCtx bool
	withErr bool
	hasRes  bool
	err     error
}

// FuncOf adapts a typed function to Callback. Its shape is checked against the
// slot when patched; a mismatch fails Patch with InvalidSlot.
//
//	bridge.FuncOf(func(self uint32, success int32) { ... })
//	bridge.FuncOf(func(ctx context.Context, self uint32, url string, n int64) (int32, error) { ... })
//
// Go types per kind: int32 (or bool), uint32, int64, uint64, float32, float64,
// uint32 for pointers, string for cef_string_t* and char*, []byte for struct
// snapshots, *Ref for int and enum pointers.
func FuncOf(fn any) Callback {
	f := &funcCallback{fn: reflect.ValueOf(fn)}
	if fn == nil || f.fn.Kind() != reflect.Func {
		f.err = fmt.Errorf("callback must be a function, got %T", fn)
		return f
	}
	f.typ = f.fn.Type()
	if f.typ.IsVariadic() {
		f.err = fmt.Errorf("variadic callback %s", f.typ)
		return f
	}
	f.withCtx = f.typ.NumIn() > 0 && f.typ.In(0) == contextType
	outs := f.typ.NumOut()
	if outs > 0 && f.typ.Out(outs-1) == errorType {
		f.withErr = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		f.hasRes = true
	default:
		f.err = fmt.Errorf("callback %s returns more than one value", f.typ)
	}
	return f
}

func (f *funcCallback) params() int {
	n := f.typ.NumIn()
	if f.withCtx {
		n--
	}
	return n
}

func (f *funcCallback) in(i int) reflect.Type {
	if f.withCtx {
		return f.typ.In(i + 1)
	}
	return f.typ.In(i)
}

func (f *funcCallback) check(sig *abi.Signature) error {
	if f.err != nil {
		return f.err
	}
	if f.params() != len(sig.Params) {
		return fmt.Errorf("callback %s takes %d parameters, slot has %d (%s)",
			f.typ, f.params(), len(sig.Params), sig.HostSignature())
	}
	for i, p := range sig.Params {
		if !accepts(p.Kind, f.in(i)) {
			return fmt.Errorf("parameter %d (%s) is %s, callback takes %s",
				i, sig.Func.ParamName(i), p.Kind.GoType(), f.in(i))
		}
	}
	if sig.Result.Void() {
		if f.hasRes {
			return fmt.Errorf("slot returns void, callback %s returns a value", f.typ)
		}
		return nil
	}
	if !f.hasRes {
		return fmt.Errorf("slot returns %s, callback %s returns nothing", sig.Result.Kind.GoType(), f.typ)
	}
	if !accepts(sig.Result.Kind, f.typ.Out(0)) {
		return fmt.Errorf("slot returns %s, callback returns %s", sig.Result.Kind.GoType(), f.typ.Out(0))
	}
	return nil
}

func accepts(k abi.HostKind, t reflect.Type) bool {
	switch k {
	case abi.KindInt32:
		return t.Kind() == reflect.Int32 || t.Kind() == reflect.Bool
	case abi.KindUint32, abi.KindPointer:
		return t.Kind() == reflect.Uint32
	case abi.KindInt64:
		return t.Kind() == reflect.Int64
	case abi.KindUint64:
		return t.Kind() == reflect.Uint64
	case abi.KindFloat32:
		return t.Kind() == reflect.Float32
	case abi.KindFloat64:
		return t.Kind() == reflect.Float64
	case abi.KindString, abi.KindCString:
		return t.Kind() == reflect.String
	case abi.KindStruct:
		return t == bytesType
	case abi.KindRef:
		return t == refType
	}
	return false
}

func (f *funcCallback) Invoke(ctx context.Context, call *Call) error {
	if f.err != nil {
		return f.err
	}
	if f.params() != call.Len() {
		return fmt.Errorf("callback %s called with %d arguments", f.typ, call.Len())
	}

	in := make([]reflect.Value, 0, f.typ.NumIn())
	if f.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, a := range call.Args() {
		in = append(in, toGo(a, f.in(i)))
	}

	out := f.fn.Call(in)
	if f.withErr {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return err
		}
	}
	if f.hasRes {
		call.SetResult(fromGo(out[0]))
	}
	return nil
}

func toGo(v Value, t reflect.Type) reflect.Value {
	switch {
	case t == refType:
		return reflect.ValueOf(v.Ref())
	case t == bytesType:
		return reflect.ValueOf(v.Bytes())
	}
	var rv reflect.Value
	switch t.Kind() {
	case reflect.Bool:
		rv = reflect.ValueOf(v.Bool())
	case reflect.Int32:
		rv = reflect.ValueOf(v.Int32())
	case reflect.Uint32:
		rv = reflect.ValueOf(v.Uint32())
	case reflect.Int64:
		rv = reflect.ValueOf(v.Int64())
	case reflect.Uint64:
		rv = reflect.ValueOf(v.Uint64())
	case reflect.Float32:
		rv = reflect.ValueOf(v.Float32())
	case reflect.Float64:
		rv = reflect.ValueOf(v.Float64())
	case reflect.String:
		rv = reflect.ValueOf(v.String())
	default:
		return reflect.Zero(t)
	}
	return rv.Convert(t)
}

func fromGo(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int32:
		return Int32(int32(rv.Int()))
	case reflect.Uint32:
		return Uint32(uint32(rv.Uint()))
	case reflect.Int64:
		return Int64(rv.Int())
	case reflect.Uint64:
		return Uint64(rv.Uint())
	case reflect.Float32:
		return Float32(float32(rv.Float()))
	case reflect.Float64:
		return Float64(rv.Float())
	}
	return Value{}
}
