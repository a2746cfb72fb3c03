package abi

import (
	"fmt"
	"strings"
)

// qualifiers are accepted in native declarations and erased from host signatures.
var qualifiers = map[string]bool{
	"const":      true,
	"volatile":   true,
	"restrict":   true,
	"__restrict": true,
}

// builtinWords are the words that may combine into a multi-word C base type.
var builtinWords = map[string]bool{
	"unsigned": true,
	"signed":   true,
	"int":      true,
	"long":     true,
	"short":    true,
	"char":     true,
	"float":    true,
	"double":   true,
	"void":     true,
	"bool":     true,
	"_Bool":    true,
}

// Type is a C type as declared by the native library, with qualifiers erased.
type Type struct {
	// Base is the type name without tag keyword, qualifiers or pointer stars
	// ("int", "unsigned int", "_cef_cookie_t", "cef_string_t").
	Base string
	// Tag is "struct", "enum" or "union" when the declaration spelled one.
	Tag string
	// Native is the declaration as written, whitespace-normalized.
	Native string
	// Erased lists the qualifiers dropped from Native, in source order.
	Erased []string
	// Ptrs is the pointer depth.
	Ptrs int
}

// String returns the erased spelling used in host-facing signatures.
func (t Type) String() string {
	if t.Ptrs == 0 {
		return t.Base
	}
	return t.Base + " " + strings.Repeat("*", t.Ptrs)
}

// IsVoid reports a plain void (not void*).
func (t Type) IsVoid() bool {
	return t.Base == "void" && t.Ptrs == 0
}

// IsPointer reports whether the type is any pointer.
func (t Type) IsPointer() bool {
	return t.Ptrs > 0
}

// Elem returns the pointee type.
func (t Type) Elem() Type {
	e := t
	if e.Ptrs > 0 {
		e.Ptrs--
	}
	return e
}

// Qualified reports whether any qualifier was erased.
func (t Type) Qualified() bool {
	return len(t.Erased) > 0
}

// ParseType parses a C type without a declarator name.
func ParseType(s string) (Type, error) {
	t, name, err := parseDecl(s)
	if err != nil {
		return Type{}, err
	}
	if name != "" {
		return Type{}, fmt.Errorf("unexpected declarator %q in type %q", name, s)
	}
	return t, nil
}

// ParseParam parses a parameter declaration such as "const cef_string_t* name".
// The name is empty for unnamed parameters.
func ParseParam(s string) (Param, error) {
	t, name, err := parseDecl(s)
	if err != nil {
		return Param{}, err
	}
	return Param{Name: name, Type: t}, nil
}

func parseDecl(s string) (Type, string, error) {
	native := normalizeSpace(s)
	if native == "" {
		return Type{}, "", fmt.Errorf("empty type")
	}
	if strings.ContainsAny(native, "(){};") {
		return Type{}, "", fmt.Errorf("unsupported declarator %q", native)
	}

	t := Type{Native: native}
	var idents []string
	for _, tok := range tokenizeType(native) {
		switch {
		case tok == "*":
			t.Ptrs++
		case tok == "[]":
			t.Ptrs++
		case qualifiers[tok]:
			t.Erased = append(t.Erased, tok)
		case tok == "struct" || tok == "enum" || tok == "union":
			if t.Tag != "" || len(idents) > 0 {
				return Type{}, "", fmt.Errorf("misplaced %q in %q", tok, native)
			}
			t.Tag = tok
		default:
			idents = append(idents, tok)
		}
	}

	if len(idents) == 0 {
		return Type{}, "", fmt.Errorf("missing type name in %q", native)
	}

	name := ""
	if len(idents) >= 2 && !allBuiltin(idents) {
		name = idents[len(idents)-1]
		idents = idents[:len(idents)-1]
		if i := strings.LastIndex(native, name); i >= 0 {
			t.Native = normalizeSpace(native[:i] + native[i+len(name):])
		}
	}
	if len(idents) > 1 && !allBuiltin(idents) {
		return Type{}, "", fmt.Errorf("cannot parse type %q", native)
	}
	t.Base = canonicalBase(idents)
	return t, name, nil
}

func tokenizeType(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '*':
			flush()
			toks = append(toks, "*")
		case c == '[':
			flush()
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				cur.WriteByte(c)
				continue
			}
			toks = append(toks, "[]")
			i += end
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	// move a trailing array marker ahead of the declarator so "char* argv[]" reads as char**
	for i := 1; i < len(toks); i++ {
		if toks[i] == "[]" && toks[i-1] != "*" && toks[i-1] != "[]" {
			toks[i-1], toks[i] = toks[i], toks[i-1]
		}
	}
	return toks
}

func allBuiltin(words []string) bool {
	for _, w := range words {
		if !builtinWords[w] {
			return false
		}
	}
	return true
}

// canonicalBase folds multi-word builtins to one spelling ("long int" -> "long").
func canonicalBase(words []string) string {
	s := strings.Join(words, " ")
	switch s {
	case "signed", "signed int":
		return "int"
	case "unsigned":
		return "unsigned int"
	case "long int", "signed long", "signed long int":
		return "long"
	case "unsigned long int":
		return "unsigned long"
	case "long long int", "signed long long", "signed long long int":
		return "long long"
	case "unsigned long long int":
		return "unsigned long long"
	case "short int", "signed short", "signed short int":
		return "short"
	case "unsigned short int":
		return "unsigned short"
	case "_Bool":
		return "bool"
	}
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
