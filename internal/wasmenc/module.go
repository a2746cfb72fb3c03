// Package wasmenc encodes small WebAssembly modules: trampoline modules and
// test guests.
package wasmenc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero/api"
)

// Section ids.
const (
	SectionType   byte = 0x01
	SectionImport byte = 0x02
	SectionFunc   byte = 0x03
	SectionTable  byte = 0x04
	SectionMemory byte = 0x05
	SectionExport byte = 0x07
	SectionElem   byte = 0x09
	SectionCode   byte = 0x0a
	SectionData   byte = 0x0b
)

// ExternKind is the kind byte of imports and exports.
type ExternKind byte

const (
	ExternFunc   ExternKind = 0x00
	ExternTable  ExternKind = 0x01
	ExternMemory ExternKind = 0x02
)

const funcref = 0x70

var magicVersion = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// FuncType is a wasm function signature.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (t FuncType) equal(o FuncType) bool {
	return bytes.Equal(t.Params, o.Params) && bytes.Equal(t.Results, o.Results)
}

type importEntry struct {
	module  string
	name    string
	kind    ExternKind
	typeIdx uint32
	min     uint32
}

type funcDef struct {
	typeIdx uint32
	body    []byte
}

type exportEntry struct {
	name  string
	kind  ExternKind
	index uint32
}

type segment struct {
	offset uint32
	funcs  []uint32
	data   []byte
}

// Module builds one wasm binary. Function imports must precede definitions so
// function indices stay stable.
type Module struct {
	types       []FuncType
	imports     []importEntry
	funcs       []funcDef
	exports     []exportEntry
	elems       []segment
	data        []segment
	importFuncs uint32
	tableMin    uint32
	memPages    uint32
	hasTable    bool
	hasMemory   bool
}

// NewModule creates an empty module builder.
func NewModule() *Module {
	return &Module{}
}

// Type interns a function type and returns its index.
func (m *Module) Type(params, results []api.ValueType) uint32 {
	ft := FuncType{Params: params, Results: results}
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// ImportFunc imports a function and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic(fmt.Sprintf("wasmenc: import %s.%s after function definitions", module, name))
	}
	m.imports = append(m.imports, importEntry{
		module:  module,
		name:    name,
		kind:    ExternFunc,
		typeIdx: m.Type(params, results),
	})
	m.importFuncs++
	return m.importFuncs - 1
}

// ImportTable imports a funcref table with the given minimum size.
func (m *Module) ImportTable(module, name string, size uint32) {
	m.imports = append(m.imports, importEntry{module: module, name: name, kind: ExternTable, min: size})
}

// ImportMemory imports a memory with the given minimum pages.
func (m *Module) ImportMemory(module, name string, pages uint32) {
	m.imports = append(m.imports, importEntry{module: module, name: name, kind: ExternMemory, min: pages})
}

// Func defines a function and returns its function index.
func (m *Module) Func(params, results []api.ValueType, code *Code) uint32 {
	var body []byte
	if code != nil {
		body = append(body, code.Bytes()...)
	}
	m.funcs = append(m.funcs, funcDef{typeIdx: m.Type(params, results), body: body})
	return m.importFuncs + uint32(len(m.funcs)-1)
}

// Table defines the module's funcref table.
func (m *Module) Table(size uint32) {
	m.hasTable = true
	m.tableMin = size
}

// Memory defines the module's memory.
func (m *Module) Memory(pages uint32) {
	m.hasMemory = true
	m.memPages = pages
}

// Export exports an entity by index.
func (m *Module) Export(name string, kind ExternKind, index uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: kind, index: index})
}

// Elem places function indices into table 0 starting at offset.
func (m *Module) Elem(offset uint32, funcs []uint32) {
	m.elems = append(m.elems, segment{offset: offset, funcs: funcs})
}

// Data places bytes into memory 0 at offset.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, segment{offset: offset, data: data})
}

// Encode produces the module binary.
func (m *Module) Encode() []byte {
	var out bytes.Buffer
	out.Write(magicVersion)

	if len(m.types) > 0 {
		writeSection(&out, SectionType, m.typeSection())
	}
	if len(m.imports) > 0 {
		writeSection(&out, SectionImport, m.importSection())
	}
	if len(m.funcs) > 0 {
		var s bytes.Buffer
		WriteLEB128u(&s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			WriteLEB128u(&s, f.typeIdx)
		}
		writeSection(&out, SectionFunc, s.Bytes())
	}
	if m.hasTable {
		var s bytes.Buffer
		s.WriteByte(0x01)
		s.WriteByte(funcref)
		writeLimits(&s, m.tableMin)
		writeSection(&out, SectionTable, s.Bytes())
	}
	if m.hasMemory {
		var s bytes.Buffer
		s.WriteByte(0x01)
		writeLimits(&s, m.memPages)
		writeSection(&out, SectionMemory, s.Bytes())
	}
	if len(m.exports) > 0 {
		writeSection(&out, SectionExport, m.exportSection())
	}
	if len(m.elems) > 0 {
		var s bytes.Buffer
		WriteLEB128u(&s, uint32(len(m.elems)))
		for _, e := range m.elems {
			s.WriteByte(0x00)
			writeOffset(&s, e.offset)
			WriteLEB128u(&s, uint32(len(e.funcs)))
			for _, fn := range e.funcs {
				WriteLEB128u(&s, fn)
			}
		}
		writeSection(&out, SectionElem, s.Bytes())
	}
	if len(m.funcs) > 0 {
		writeSection(&out, SectionCode, m.codeSection())
	}
	if len(m.data) > 0 {
		var s bytes.Buffer
		WriteLEB128u(&s, uint32(len(m.data)))
		for _, d := range m.data {
			s.WriteByte(0x00)
			writeOffset(&s, d.offset)
			WriteLEB128u(&s, uint32(len(d.data)))
			s.Write(d.data)
		}
		writeSection(&out, SectionData, s.Bytes())
	}
	return out.Bytes()
}

func (m *Module) typeSection() []byte {
	var s bytes.Buffer
	WriteLEB128u(&s, uint32(len(m.types)))
	for _, t := range m.types {
		s.WriteByte(0x60)
		writeValTypes(&s, t.Params)
		writeValTypes(&s, t.Results)
	}
	return s.Bytes()
}

func (m *Module) importSection() []byte {
	var s bytes.Buffer
	WriteLEB128u(&s, uint32(len(m.imports)))
	for _, imp := range m.imports {
		writeName(&s, imp.module)
		writeName(&s, imp.name)
		s.WriteByte(byte(imp.kind))
		switch imp.kind {
		case ExternFunc:
			WriteLEB128u(&s, imp.typeIdx)
		case ExternTable:
			s.WriteByte(funcref)
			writeLimits(&s, imp.min)
		case ExternMemory:
			writeLimits(&s, imp.min)
		}
	}
	return s.Bytes()
}

func (m *Module) exportSection() []byte {
	var s bytes.Buffer
	WriteLEB128u(&s, uint32(len(m.exports)))
	for _, e := range m.exports {
		writeName(&s, e.name)
		s.WriteByte(byte(e.kind))
		WriteLEB128u(&s, e.index)
	}
	return s.Bytes()
}

func (m *Module) codeSection() []byte {
	var s bytes.Buffer
	WriteLEB128u(&s, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		// no locals beyond parameters
		body := make([]byte, 0, len(f.body)+2)
		body = append(body, 0x00)
		body = append(body, f.body...)
		body = append(body, opEnd)
		WriteLEB128u(&s, uint32(len(body)))
		s.Write(body)
	}
	return s.Bytes()
}

func writeSection(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	WriteLEB128u(out, uint32(len(payload)))
	out.Write(payload)
}

func writeName(w *bytes.Buffer, name string) {
	WriteLEB128u(w, uint32(len(name)))
	w.WriteString(name)
}

func writeLimits(w *bytes.Buffer, n uint32) {
	w.WriteByte(0x00)
	WriteLEB128u(w, n)
}

func writeOffset(w *bytes.Buffer, offset uint32) {
	w.WriteByte(opI32Const)
	WriteLEB128s(w, int32(offset))
	w.WriteByte(opEnd)
}

func writeValTypes(w *bytes.Buffer, types []api.ValueType) {
	WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(ValTypeToWasm(t))
	}
}

// ValTypeToWasm converts a wazero value type to its wasm encoding.
func ValTypeToWasm(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI32:
		return 0x7f
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}

// Section is one top-level section of an encoded module.
type Section struct {
	ID   byte
	Size uint32
}

var sectionNames = map[byte]string{
	0x00:          "custom",
	SectionType:   "type",
	SectionImport: "import",
	SectionFunc:   "function",
	SectionTable:  "table",
	SectionMemory: "memory",
	0x06:          "global",
	SectionExport: "export",
	0x08:          "start",
	SectionElem:   "element",
	SectionCode:   "code",
	SectionData:   "data",
}

// Name returns the section's name.
func (s Section) Name() string {
	if n, ok := sectionNames[s.ID]; ok {
		return n
	}
	return fmt.Sprintf("section(%d)", s.ID)
}

// Sections walks the section headers of an encoded module.
func Sections(wasm []byte) ([]Section, error) {
	if !bytes.HasPrefix(wasm, magicVersion) {
		return nil, fmt.Errorf("not a wasm module")
	}
	r := bytes.NewReader(wasm[len(magicVersion):])
	var out []Section
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("section %d truncated", id)
		}
		if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, err
		}
		out = append(out, Section{ID: id, Size: size})
	}
	return out, nil
}
