// Package nativetest builds small wasm32 guests that behave like a native C
// library holding callback structs: they import the bridge table and invoke
// slots through call_indirect, as C code does with function pointers.
package nativetest

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/callbridge/internal/wasmenc"
)

// CEFStringSize is sizeof(cef_string_utf16_t) on wasm32.
const CEFStringSize = 12

// Fire is an exported guest function that loads the slot at self+Offset and
// calls it with its own arguments. Params include self first.
type Fire struct {
	Name    string
	Offset  uint32
	Params  []api.ValueType
	Results []api.ValueType
}

// Library describes a guest.
type Library struct {
	// Namespace is the module the table is imported from.
	Namespace string
	TableSize uint32
	Pages     uint32
	Fires     []Fire
}

// Build encodes the guest module.
func (l Library) Build() []byte {
	m := wasmenc.NewModule()
	size := l.TableSize
	if size == 0 {
		size = 1
	}
	m.ImportTable(l.Namespace, "table", size)
	pages := l.Pages
	if pages == 0 {
		pages = 1
	}
	m.Memory(pages)
	m.Export("memory", wasmenc.ExternMemory, 0)

	for _, f := range l.Fires {
		typ := m.Type(f.Params, f.Results)
		code := new(wasmenc.Code)
		for i := range f.Params {
			code.LocalGet(uint32(i))
		}
		code.LocalGet(0).I32Load(f.Offset).CallIndirect(typ, 0)
		fn := m.Func(f.Params, f.Results, code)
		m.Export(f.Name, wasmenc.ExternFunc, fn)
	}
	return m.Encode()
}

// Instantiate compiles and instantiates the guest under name.
func (l Library) Instantiate(ctx context.Context, rt wazero.Runtime, name string) (api.Module, error) {
	compiled, err := rt.CompileModule(ctx, l.Build())
	if err != nil {
		return nil, err
	}
	return rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// PutCEFString writes s as UTF-16 at data and a cef_string_t at addr
// pointing to it. It returns the first free byte after the characters.
func PutCEFString(mem api.Memory, addr, data uint32, s string) (uint32, bool) {
	encoded, err := utf16le.NewEncoder().String(s)
	if err != nil {
		return 0, false
	}
	if !mem.Write(data, []byte(encoded)) {
		return 0, false
	}
	var hdr [CEFStringSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], data)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(encoded)/2))
	if !mem.Write(addr, hdr[:]) {
		return 0, false
	}
	return data + uint32(len(encoded)), true
}

// PutCString writes s with a trailing NUL.
func PutCString(mem api.Memory, addr uint32, s string) bool {
	return mem.Write(addr, append([]byte(s), 0))
}
