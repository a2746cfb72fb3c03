package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/callbridge/abi"
	"github.com/wippyai/callbridge/bridge"
	"github.com/wippyai/callbridge/config"
	"github.com/wippyai/callbridge/internal/nativetest"
	"github.com/wippyai/callbridge/trampoline"
)

const (
	probeSelf    = 0x100
	probeScratch = 0x4000
)

type probeRequest struct {
	Slot   string
	Args   []string
	Result string
	Abort  bool
}

type probeArg struct {
	Name  string
	Kind  abi.HostKind
	Value string
}

type probeResponse struct {
	Trampoline *trampoline.Trampoline
	Received   []probeArg
	Returned   string
	Reached    bool
	Stats      bridge.Stats
	Err        error
}

func (r *probeResponse) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s  %s\n", r.Trampoline.ID, r.Trampoline.Name(), r.Trampoline.Sig.HostSignature())
	if !r.Reached {
		b.WriteString("callback not reached (fallback)\n")
	}
	for _, a := range r.Received {
		fmt.Fprintf(&b, "  %-12s %-8s %s\n", a.Name, a.Kind, a.Value)
	}
	if r.Returned != "" {
		fmt.Fprintf(&b, "  -> %s\n", r.Returned)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "  native error: %v\n", r.Err)
	}
	fmt.Fprintf(&b, "  dispatches=%d fallbacks=%d panics=%d aborts=%d\n",
		r.Stats.Dispatches, r.Stats.Fallbacks, r.Stats.Panics, r.Stats.Aborts)
	return b.String()
}

// runProbe builds a one-slot bridge and a guest whose only export calls that
// slot on an object at probeSelf. Args fill the parameters after self; string
// kinds are written into guest memory first.
func runProbe(ctx context.Context, e *env, req probeRequest) (*probeResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	structName, path, err := config.SplitSlot(req.Slot)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("probe needs a single slot, got %q", req.Slot)
	}

	set := trampoline.NewSet(e.cfg.Namespace, e.layouts)
	t, err := set.Add(structName, path)
	if err != nil {
		return nil, err
	}
	sig := t.Sig
	if want := len(sig.Params) - 1; len(req.Args) > want {
		return nil, fmt.Errorf("%s takes %d arguments after self, got %d", t.Name(), want, len(req.Args))
	}

	var result bridge.Value
	if !sig.Result.Void() {
		if result, err = parseValue(sig.Result.Kind, req.Result); err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
	}

	policy := bridge.PolicyNoop
	if req.Abort {
		policy = bridge.PolicyAbort
	}
	b, err := bridge.New(ctx, set, bridge.WithPolicy(policy), bridge.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	defer b.Close(ctx)

	lib := nativetest.Library{
		Namespace: set.Namespace(),
		TableSize: set.TableSize(),
		Fires: []nativetest.Fire{{
			Name:    "fire",
			Offset:  t.Offset,
			Params:  sig.WasmParams(),
			Results: sig.WasmResults(),
		}},
	}
	native, err := b.Load(ctx, lib.Build(), "probe")
	if err != nil {
		return nil, err
	}

	raw := make([]uint64, len(sig.Params))
	raw[0] = api.EncodeU32(probeSelf)
	scratch := uint32(probeScratch)
	for i := 1; i < len(sig.Params); i++ {
		var in string
		if i-1 < len(req.Args) {
			in = req.Args[i-1]
		}
		if raw[i], scratch, err = encodeArg(native.Memory(), sig.Params[i], in, scratch); err != nil {
			return nil, fmt.Errorf("%s: %w", sig.Func.ParamName(i), err)
		}
	}

	resp := &probeResponse{Trampoline: t}
	table, err := b.Table(probeSelf, structName)
	if err != nil {
		return nil, err
	}
	_, err = b.Patch(table, path, bridge.CallbackFunc(func(_ context.Context, call *bridge.Call) error {
		resp.Reached = true
		for i, v := range call.Args() {
			resp.Received = append(resp.Received, probeArg{
				Name:  sig.Func.ParamName(i),
				Kind:  v.Kind(),
				Value: renderValue(v),
			})
		}
		if !sig.Result.Void() {
			call.SetResult(result)
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	out, err := native.ExportedFunction("fire").Call(ctx, raw...)
	resp.Err = err
	if err == nil && len(out) > 0 {
		resp.Returned = renderRaw(sig.Result.Kind, out[0])
	}
	resp.Stats = b.Stats()
	return resp, nil
}

// encodeArg lowers one textual argument. Pointer kinds allocate from scratch
// and return the next free address.
func encodeArg(mem api.Memory, l abi.Lowered, in string, scratch uint32) (uint64, uint32, error) {
	in = strings.TrimSpace(in)
	switch l.Kind {
	case abi.KindString:
		if in == "" {
			return 0, scratch, nil
		}
		end, ok := nativetest.PutCEFString(mem, scratch, scratch+nativetest.CEFStringSize, in)
		if !ok {
			return 0, scratch, fmt.Errorf("string does not fit guest memory")
		}
		return api.EncodeU32(scratch), align4(end), nil
	case abi.KindCString:
		if in == "" {
			return 0, scratch, nil
		}
		if !nativetest.PutCString(mem, scratch, in) {
			return 0, scratch, fmt.Errorf("string does not fit guest memory")
		}
		return api.EncodeU32(scratch), align4(scratch + uint32(len(in)) + 1), nil
	case abi.KindStruct:
		if in == "" || in == "null" {
			return 0, scratch, nil
		}
		data := make([]byte, l.Size)
		if in != "zero" {
			raw, err := hex.DecodeString(in)
			if err != nil {
				return 0, scratch, fmt.Errorf("struct bytes: %w", err)
			}
			copy(data, raw)
		}
		if !mem.Write(scratch, data) {
			return 0, scratch, fmt.Errorf("struct does not fit guest memory")
		}
		return api.EncodeU32(scratch), align4(scratch + l.Size), nil
	case abi.KindRef:
		if in == "" || in == "null" {
			return 0, scratch, nil
		}
		v, err := strconv.ParseInt(in, 0, 32)
		if err != nil {
			return 0, scratch, err
		}
		if !mem.WriteUint32Le(scratch, uint32(int32(v))) {
			return 0, scratch, fmt.Errorf("ref does not fit guest memory")
		}
		return api.EncodeU32(scratch), scratch + 4, nil
	}
	v, err := parseValue(l.Kind, in)
	if err != nil {
		return 0, scratch, err
	}
	return rawBits(l.Kind, v), scratch, nil
}

func parseValue(k abi.HostKind, in string) (bridge.Value, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		in = "0"
	}
	switch k {
	case abi.KindInt32:
		v, err := strconv.ParseInt(in, 0, 32)
		return bridge.Int32(int32(v)), err
	case abi.KindUint32, abi.KindPointer:
		v, err := strconv.ParseUint(in, 0, 32)
		return bridge.Uint32(uint32(v)), err
	case abi.KindInt64:
		v, err := strconv.ParseInt(in, 0, 64)
		return bridge.Int64(v), err
	case abi.KindUint64:
		v, err := strconv.ParseUint(in, 0, 64)
		return bridge.Uint64(v), err
	case abi.KindFloat32:
		v, err := strconv.ParseFloat(in, 32)
		return bridge.Float32(float32(v)), err
	case abi.KindFloat64:
		v, err := strconv.ParseFloat(in, 64)
		return bridge.Float64(v), err
	}
	return bridge.Value{}, fmt.Errorf("cannot parse %s", k)
}

func rawBits(k abi.HostKind, v bridge.Value) uint64 {
	switch k {
	case abi.KindInt32:
		return api.EncodeI32(v.Int32())
	case abi.KindInt64:
		return api.EncodeI64(v.Int64())
	case abi.KindUint64:
		return v.Uint64()
	case abi.KindFloat32:
		return api.EncodeF32(v.Float32())
	case abi.KindFloat64:
		return api.EncodeF64(v.Float64())
	}
	return api.EncodeU32(v.Uint32())
}

func renderRaw(k abi.HostKind, raw uint64) string {
	switch k {
	case abi.KindInt32:
		return strconv.FormatInt(int64(api.DecodeI32(raw)), 10)
	case abi.KindInt64:
		return strconv.FormatInt(int64(raw), 10)
	case abi.KindUint64:
		return strconv.FormatUint(raw, 10)
	case abi.KindFloat32:
		return strconv.FormatFloat(float64(api.DecodeF32(raw)), 'g', -1, 32)
	case abi.KindFloat64:
		return strconv.FormatFloat(api.DecodeF64(raw), 'g', -1, 64)
	case abi.KindPointer:
		return fmt.Sprintf("0x%x", api.DecodeU32(raw))
	}
	return strconv.FormatUint(uint64(api.DecodeU32(raw)), 10)
}

func renderValue(v bridge.Value) string {
	switch v.Kind() {
	case abi.KindString, abi.KindCString:
		return strconv.Quote(v.String())
	case abi.KindRef:
		r := v.Ref()
		if r.IsNull() {
			return "null"
		}
		return fmt.Sprintf("*0x%x = %d", r.Addr(), r.Get())
	case abi.KindStruct:
		if v.Bytes() == nil {
			return "null"
		}
		return fmt.Sprintf("%d bytes %x", len(v.Bytes()), v.Bytes())
	}
	return v.String()
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}
