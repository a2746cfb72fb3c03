package trampoline

import (
	"github.com/wippyai/callbridge/internal/wasmenc"
)

// Module synthesizes the trampoline module. Each trampoline has its slot's
// exact wasm type and forwards (id, args...) to the dispatch import for that
// type. The defined table holds trampoline k at index k.
func (s *Set) Module() []byte {
	m := wasmenc.NewModule()

	imports := make(map[string]uint32)
	for _, d := range s.Dispatches() {
		imports[d.Key] = m.ImportFunc(s.DispatchModule(), d.Import, d.Params, d.Results)
	}

	funcs := make([]uint32, 0, len(s.list))
	for _, t := range s.list {
		params := t.Sig.WasmParams()
		code := new(wasmenc.Code).I32Const(int32(t.ID))
		for i := range params {
			code.LocalGet(uint32(i))
		}
		code.Call(imports[t.Sig.Key()])

		fn := m.Func(params, t.Sig.WasmResults(), code)
		m.Export(t.Name(), wasmenc.ExternFunc, fn)
		funcs = append(funcs, fn)
	}

	m.Table(s.TableSize())
	m.Export(TableExport, wasmenc.ExternTable, 0)
	if len(funcs) > 0 {
		m.Elem(1, funcs)
	}
	return m.Encode()
}
