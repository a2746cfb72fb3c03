package abi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

type structMap map[string]StructInfo

func (m structMap) StructInfo(name string) (StructInfo, bool) {
	info, ok := m[name]
	return info, ok
}

func (m structMap) IsEnum(name string) bool {
	return name == "cef_errorcode_t" || name == "cef_cookie_priority_t"
}

var testStructs = structMap{
	"_cef_cookie_t":                {Name: "_cef_cookie_t", Size: 40},
	"cef_cookie_t":                 {Name: "_cef_cookie_t", Size: 40},
	"_cef_browser_t":               {Name: "_cef_browser_t", Size: 24, Class: true},
	"_cef_set_cookie_callback_t":   {Name: "_cef_set_cookie_callback_t", Size: 24, Class: true},
	"cef_set_cookie_callback_t":    {Name: "_cef_set_cookie_callback_t", Size: 24, Class: true},
	"_cef_base_ref_counted_t":      {Name: "_cef_base_ref_counted_t", Size: 20, Class: true},
	"cef_base_ref_counted_t":       {Name: "_cef_base_ref_counted_t", Size: 20, Class: true},
	"_cef_cookie_visitor_t":        {Name: "_cef_cookie_visitor_t", Size: 24, Class: true},
	"cef_string_visitor_unrelated": {Name: "cef_string_visitor_unrelated", Size: 4},
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in     string
		base   string
		tag    string
		ptrs   int
		erased []string
		str    string
	}{
		{"int", "int", "", 0, nil, "int"},
		{"const cef_string_t*", "cef_string_t", "", 1, []string{"const"}, "cef_string_t *"},
		{"unsigned long int", "unsigned long", "", 0, nil, "unsigned long"},
		{"unsigned", "unsigned int", "", 0, nil, "unsigned int"},
		{"struct _cef_cookie_t *", "_cef_cookie_t", "struct", 1, nil, "_cef_cookie_t *"},
		{"volatile   int * const *", "int", "", 2, []string{"volatile", "const"}, "int **"},
		{"long long", "long long", "", 0, nil, "long long"},
		{"_Bool", "bool", "", 0, nil, "bool"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if err != nil {
				t.Fatalf("ParseType: %v", err)
			}
			if got.Base != tt.base {
				t.Errorf("Base = %q, want %q", got.Base, tt.base)
			}
			if got.Tag != tt.tag {
				t.Errorf("Tag = %q, want %q", got.Tag, tt.tag)
			}
			if got.Ptrs != tt.ptrs {
				t.Errorf("Ptrs = %d, want %d", got.Ptrs, tt.ptrs)
			}
			if strings.Join(got.Erased, ",") != strings.Join(tt.erased, ",") {
				t.Errorf("Erased = %v, want %v", got.Erased, tt.erased)
			}
			if got.String() != tt.str {
				t.Errorf("String() = %q, want %q", got.String(), tt.str)
			}
		})
	}
}

func TestParseType_Errors(t *testing.T) {
	for _, in := range []string{"", "int x", "const", "int (*f)(void)", "foo bar baz"} {
		if _, err := ParseType(in); err == nil {
			t.Errorf("ParseType(%q) expected error", in)
		}
	}
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		in   string
		name string
		base string
		ptrs int
	}{
		{"const char* const name", "name", "char", 1},
		{"unsigned int", "", "unsigned int", 0},
		{"unsigned int count", "count", "unsigned int", 0},
		{"struct _cef_set_cookie_callback_t* self", "self", "_cef_set_cookie_callback_t", 1},
		{"char* argv[]", "argv", "char", 2},
		{"int", "", "int", 0},
	}
	for _, tt := range tests {
		p, err := ParseParam(tt.in)
		if err != nil {
			t.Fatalf("ParseParam(%q): %v", tt.in, err)
		}
		if p.Name != tt.name || p.Type.Base != tt.base || p.Type.Ptrs != tt.ptrs {
			t.Errorf("ParseParam(%q) = {%q %q %d}, want {%q %q %d}",
				tt.in, p.Name, p.Type.Base, p.Type.Ptrs, tt.name, tt.base, tt.ptrs)
		}
	}
}

func TestParseFuncPtr(t *testing.T) {
	fp, err := ParseFuncPtr("void(CEF_CALLBACK* on_complete)(struct _cef_set_cookie_callback_t* self, int success);")
	if err != nil {
		t.Fatalf("ParseFuncPtr: %v", err)
	}
	if fp.Name != "on_complete" {
		t.Errorf("Name = %q", fp.Name)
	}
	if fp.Conv != "CEF_CALLBACK" {
		t.Errorf("Conv = %q", fp.Conv)
	}
	if !fp.Result.IsVoid() {
		t.Errorf("Result = %v, want void", fp.Result)
	}
	if len(fp.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fp.Params))
	}
	if fp.ParamName(1) != "success" {
		t.Errorf("ParamName(1) = %q", fp.ParamName(1))
	}
	want := "void (*)(_cef_set_cookie_callback_t *, int)"
	if fp.Signature() != want {
		t.Errorf("Signature() = %q, want %q", fp.Signature(), want)
	}
}

func TestParseFuncPtr_NoParams(t *testing.T) {
	fp, err := ParseFuncPtr("int (*get_count)(void)")
	if err != nil {
		t.Fatalf("ParseFuncPtr: %v", err)
	}
	if fp.Conv != "" || fp.Name != "get_count" || len(fp.Params) != 0 {
		t.Errorf("unexpected parse: %+v", fp)
	}
	if fp.ParamName(0) != "arg0" {
		t.Errorf("ParamName(0) = %q", fp.ParamName(0))
	}
}

func TestParseFuncPtr_Errors(t *testing.T) {
	for _, in := range []string{
		"int count",
		"int get(void)",
		"int (*f(void)",
		"int (*f)",
		"int (*f)(int (*cb)(int))",
	} {
		if _, err := ParseFuncPtr(in); err == nil {
			t.Errorf("ParseFuncPtr(%q) expected error", in)
		}
	}
}

func TestLowerParam(t *testing.T) {
	tests := []struct {
		in     string
		kind   HostKind
		wasm   api.ValueType
		size   uint32
		strukt string
	}{
		{"int", KindInt32, api.ValueTypeI32, 0, ""},
		{"size_t", KindUint32, api.ValueTypeI32, 0, ""},
		{"int64_t", KindInt64, api.ValueTypeI64, 0, ""},
		{"unsigned long long", KindUint64, api.ValueTypeI64, 0, ""},
		{"float", KindFloat32, api.ValueTypeF32, 0, ""},
		{"double", KindFloat64, api.ValueTypeF64, 0, ""},
		{"cef_cookie_priority_t", KindInt32, api.ValueTypeI32, 0, ""},
		{"const cef_string_t*", KindString, api.ValueTypeI32, 0, ""},
		{"cef_string_userfree_t", KindString, api.ValueTypeI32, 0, ""},
		{"const char*", KindCString, api.ValueTypeI32, 0, ""},
		{"int*", KindRef, api.ValueTypeI32, 0, ""},
		{"cef_errorcode_t*", KindRef, api.ValueTypeI32, 0, ""},
		{"enum cef_state_t*", KindRef, api.ValueTypeI32, 0, ""},
		{"cef_unparsed_handler_t*", KindPointer, api.ValueTypeI32, 0, ""},
		{"short*", KindPointer, api.ValueTypeI32, 0, ""},
		{"void*", KindPointer, api.ValueTypeI32, 0, ""},
		{"char**", KindPointer, api.ValueTypeI32, 0, ""},
		{"const struct _cef_cookie_t*", KindStruct, api.ValueTypeI32, 40, "_cef_cookie_t"},
		{"struct _cef_browser_t*", KindPointer, api.ValueTypeI32, 0, "_cef_browser_t"},
		{"struct _cef_unknown_t*", KindPointer, api.ValueTypeI32, 0, "_cef_unknown_t"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, err := ParseType(tt.in)
			if err != nil {
				t.Fatalf("ParseType: %v", err)
			}
			l, err := LowerParam(typ, testStructs)
			if err != nil {
				t.Fatalf("LowerParam: %v", err)
			}
			if l.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", l.Kind, tt.kind)
			}
			if l.Wasm != tt.wasm {
				t.Errorf("Wasm = %s, want %s", api.ValueTypeName(l.Wasm), api.ValueTypeName(tt.wasm))
			}
			if l.Size != tt.size {
				t.Errorf("Size = %d, want %d", l.Size, tt.size)
			}
			if l.Struct != tt.strukt {
				t.Errorf("Struct = %q, want %q", l.Struct, tt.strukt)
			}
		})
	}
}

func TestLowerParam_Rejects(t *testing.T) {
	for _, in := range []string{"void", "cef_cookie_t", "struct _cef_other_t", "union _u"} {
		typ, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
		if _, err := LowerParam(typ, testStructs); err == nil {
			t.Errorf("LowerParam(%q) expected error", in)
		}
	}
}

func TestLowerResult(t *testing.T) {
	tests := []struct {
		in      string
		kind    HostKind
		wantErr bool
	}{
		{"void", KindVoid, false},
		{"int", KindInt32, false},
		{"double", KindFloat64, false},
		{"char*", KindPointer, false},
		{"struct _cef_browser_t*", KindPointer, false},
		{"cef_string_userfree_t", 0, true},
		{"cef_cookie_t", 0, true},
	}
	for _, tt := range tests {
		typ, err := ParseType(tt.in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", tt.in, err)
		}
		l, err := LowerResult(typ, testStructs)
		if tt.wantErr {
			if err == nil {
				t.Errorf("LowerResult(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("LowerResult(%q): %v", tt.in, err)
			continue
		}
		if l.Kind != tt.kind {
			t.Errorf("LowerResult(%q).Kind = %v, want %v", tt.in, l.Kind, tt.kind)
		}
	}
}

func TestLower_TranslationTable(t *testing.T) {
	fp, err := ParseFuncPtr("int(CEF_CALLBACK* visit)(struct _cef_cookie_visitor_t* self, const struct _cef_cookie_t* cookie, int count, int total, int* deleteCookie)")
	if err != nil {
		t.Fatalf("ParseFuncPtr: %v", err)
	}
	sig, err := Lower(fp, testStructs)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	if got := sig.Key(); got != "i32_i32_i32_i32_i32__i32" {
		t.Errorf("Key() = %q", got)
	}
	if len(sig.Rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(sig.Rows))
	}
	cookie := sig.Rows[1]
	if cookie.Native != "const struct _cef_cookie_t*" || cookie.Erased != "_cef_cookie_t *" {
		t.Errorf("cookie row = %+v", cookie)
	}
	if cookie.WIT != "list<u8>" {
		t.Errorf("cookie WIT = %q", cookie.WIT)
	}
	if sig.Rows[4].Direction != DirInOut || sig.Rows[4].Kind != KindRef {
		t.Errorf("deleteCookie row = %+v", sig.Rows[4])
	}
	if sig.Rows[5].Position != -1 || sig.Rows[5].Direction != DirOut {
		t.Errorf("result row = %+v", sig.Rows[5])
	}
	if sig.Erasures() != 1 {
		t.Errorf("Erasures() = %d, want 1", sig.Erasures())
	}

	wantHost := "func(self uint32, cookie []byte, count int32, total int32, deleteCookie *bridge.Ref) int32"
	if got := sig.HostSignature(); got != wantHost {
		t.Errorf("HostSignature() = %q, want %q", got, wantHost)
	}

	var buf bytes.Buffer
	if err := sig.WriteTable(&buf); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"NATIVE", "const struct _cef_cookie_t*", "inout", "ret"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestSignature_Matches(t *testing.T) {
	a, _ := ParseFuncPtr("void (*f)(struct _cef_browser_t* self, const cef_string_t* url)")
	b, _ := ParseFuncPtr("void (*g)(struct _cef_browser_t* self, cef_string_t* name)")
	c, _ := ParseFuncPtr("void (*h)(struct _cef_browser_t* self, const char* url)")

	sa, err := Lower(a, testStructs)
	if err != nil {
		t.Fatal(err)
	}
	sb, _ := Lower(b, testStructs)
	sc, _ := Lower(c, testStructs)

	if !sa.Matches(sb) {
		t.Error("expected const-erased signatures to match")
	}
	if sa.Matches(sc) {
		t.Error("cef_string_t* and char* must not match")
	}
	if sa.Key() != sc.Key() {
		t.Error("expected identical wasm keys")
	}
}

func TestHostKind_Names(t *testing.T) {
	tests := []struct {
		kind HostKind
		wit  string
		go_  string
	}{
		{KindVoid, "_", ""},
		{KindInt32, "s32", "int32"},
		{KindUint64, "u64", "uint64"},
		{KindPointer, "u32", "uint32"},
		{KindString, "string", "string"},
		{KindStruct, "list<u8>", "[]byte"},
		{KindRef, "s32", "*bridge.Ref"},
	}
	for _, tt := range tests {
		if got := tt.kind.WITName(); got != tt.wit {
			t.Errorf("%v.WITName() = %q, want %q", tt.kind, got, tt.wit)
		}
		if got := tt.kind.GoType(); got != tt.go_ {
			t.Errorf("%v.GoType() = %q, want %q", tt.kind, got, tt.go_)
		}
	}
	if HostKind(99).String() != "kind(99)" {
		t.Errorf("unexpected name for unknown kind: %s", HostKind(99))
	}
}

func TestScalarSize(t *testing.T) {
	for base, want := range map[string]uint32{
		"char": 1, "short": 2, "int": 4, "size_t": 4, "long": 4, "int64_t": 8, "double": 8,
	} {
		got, ok := ScalarSize(base)
		if !ok || got != want {
			t.Errorf("ScalarSize(%q) = %d, %v; want %d", base, got, ok, want)
		}
	}
	if _, ok := ScalarSize("cef_cookie_t"); ok {
		t.Error("expected struct name to have no scalar size")
	}
}
