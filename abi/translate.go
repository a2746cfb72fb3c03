package abi

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tetratelabs/wazero/api"
)

// Direction tells whether a value flows into the callback, back out, or both.
type Direction string

const (
	DirIn    Direction = "in"
	DirInOut Direction = "inout"
	DirOut   Direction = "out"
)

// Row is one line of a translation table.
type Row struct {
	Position  int // -1 for the result
	Name      string
	Native    string
	Erased    string
	Qualifier []string
	Wasm      string
	Kind      HostKind
	WIT       string
	Direction Direction
}

// Signature is a function pointer lowered onto wasm32, with its translation table.
type Signature struct {
	Func   *FuncPtr
	Params []Lowered
	Result Lowered
	Rows   []Row
}

// Lower lowers every parameter and the result of fp.
func Lower(fp *FuncPtr, structs Structs) (*Signature, error) {
	sig := &Signature{Func: fp}
	for i, p := range fp.Params {
		l, err := LowerParam(p.Type, structs)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", fp.ParamName(i), err)
		}
		sig.Params = append(sig.Params, l)
		dir := DirIn
		if l.Kind == KindRef {
			dir = DirInOut
		}
		sig.Rows = append(sig.Rows, row(i, fp.ParamName(i), l, dir))
	}
	res, err := LowerResult(fp.Result, structs)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	sig.Result = res
	sig.Rows = append(sig.Rows, row(-1, "result", res, DirOut))
	return sig, nil
}

func row(pos int, name string, l Lowered, dir Direction) Row {
	wasm := "-"
	if !l.Void() {
		wasm = api.ValueTypeName(l.Wasm)
	}
	return Row{
		Position:  pos,
		Name:      name,
		Native:    l.Type.Native,
		Erased:    l.Type.String(),
		Qualifier: l.Type.Erased,
		Wasm:      wasm,
		Kind:      l.Kind,
		WIT:       l.Kind.WITName(),
		Direction: dir,
	}
}

// WasmParams returns the wasm parameter types.
func (s *Signature) WasmParams() []api.ValueType {
	out := make([]api.ValueType, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Wasm
	}
	return out
}

// WasmResults returns the wasm result types, empty for void.
func (s *Signature) WasmResults() []api.ValueType {
	if s.Result.Void() {
		return nil
	}
	return []api.ValueType{s.Result.Wasm}
}

// Key identifies the wasm-level shape, e.g. "i32_i32__void".
func (s *Signature) Key() string {
	return WasmKey(s.WasmParams(), s.WasmResults())
}

// WasmKey renders a wasm function type as an identifier.
func WasmKey(params, results []api.ValueType) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteString("__")
	if len(results) == 0 {
		b.WriteString("void")
	}
	for i, r := range results {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(api.ValueTypeName(r))
	}
	return b.String()
}

// Kinds returns the host kinds of the parameters.
func (s *Signature) Kinds() []HostKind {
	out := make([]HostKind, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Kind
	}
	return out
}

// Matches reports whether o lowers to the same wasm type and host kinds.
func (s *Signature) Matches(o *Signature) bool {
	if len(s.Params) != len(o.Params) || s.Result.Kind != o.Result.Kind || s.Result.Wasm != o.Result.Wasm {
		return false
	}
	for i := range s.Params {
		if s.Params[i].Kind != o.Params[i].Kind || s.Params[i].Wasm != o.Params[i].Wasm {
			return false
		}
	}
	return true
}

// Erasures counts the qualifiers removed across the signature.
func (s *Signature) Erasures() int {
	n := 0
	for _, r := range s.Rows {
		n += len(r.Qualifier)
	}
	return n
}

// HostSignature renders the Go-side shape, e.g. "func(self uint32, success int32)".
func (s *Signature) HostSignature() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.Func.ParamName(i))
		b.WriteByte(' ')
		b.WriteString(p.Kind.GoType())
	}
	b.WriteByte(')')
	if !s.Result.Void() {
		b.WriteByte(' ')
		b.WriteString(s.Result.Kind.GoType())
	}
	return b.String()
}

// WriteTable writes the translation table as aligned text.
func (s *Signature) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tNAME\tNATIVE\tERASED\tWASM\tHOST\tWIT\tDIR")
	for _, r := range s.Rows {
		pos := "ret"
		if r.Position >= 0 {
			pos = fmt.Sprint(r.Position)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			pos, r.Name, r.Native, r.Erased, r.Wasm, r.Kind, r.WIT, r.Direction)
	}
	return tw.Flush()
}
