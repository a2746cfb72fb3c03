package abi

import (
	"fmt"
	"strings"
)

// Param is one declared parameter of a function pointer.
type Param struct {
	Name string
	Type Type
}

// FuncPtr is a parsed C function-pointer declaration such as
// "void(CEF_CALLBACK* on_complete)(struct _cef_set_cookie_callback_t* self, int success)".
type FuncPtr struct {
	Name   string
	Conv   string // calling-convention macro, if any
	Result Type
	Params []Param
	Decl   string
}

// ParseFuncPtr parses a function-pointer field declaration.
func ParseFuncPtr(decl string) (*FuncPtr, error) {
	decl = strings.TrimSuffix(normalizeSpace(decl), ";")
	open := strings.IndexByte(decl, '(')
	if open < 0 {
		return nil, fmt.Errorf("not a function pointer: %q", decl)
	}
	closeIdx := matchParen(decl, open)
	if closeIdx < 0 {
		return nil, fmt.Errorf("unbalanced parentheses in %q", decl)
	}

	result, err := ParseType(decl[:open])
	if err != nil {
		return nil, fmt.Errorf("result of %q: %w", decl, err)
	}

	inner := strings.TrimSpace(decl[open+1 : closeIdx])
	star := strings.LastIndexByte(inner, '*')
	if star < 0 {
		return nil, fmt.Errorf("missing '*' in declarator of %q", decl)
	}
	fp := &FuncPtr{
		Name:   strings.TrimSpace(inner[star+1:]),
		Conv:   strings.TrimSpace(strings.TrimRight(inner[:star], "* ")),
		Result: result,
		Decl:   decl,
	}
	if fp.Name != "" && !isIdent(fp.Name) {
		return nil, fmt.Errorf("invalid declarator name %q", fp.Name)
	}

	rest := strings.TrimSpace(decl[closeIdx+1:])
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("missing parameter list in %q", decl)
	}
	list := strings.TrimSpace(rest[1 : len(rest)-1])
	if list == "" || list == "void" {
		return fp, nil
	}
	for i, raw := range strings.Split(list, ",") {
		p, err := ParseParam(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %d of %q: %w", i, decl, err)
		}
		fp.Params = append(fp.Params, p)
	}
	return fp, nil
}

// Signature returns the erased C signature, e.g. "void (*)(cef_set_cookie_callback_t *, int)".
func (f *FuncPtr) Signature() string {
	var b strings.Builder
	b.WriteString(f.Result.String())
	b.WriteString(" (*)(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Type.String())
	}
	b.WriteString(")")
	return b.String()
}

// ParamName returns the declared name of parameter i or a positional one.
func (f *FuncPtr) ParamName(i int) string {
	if i < len(f.Params) && f.Params[i].Name != "" {
		return f.Params[i].Name
	}
	return fmt.Sprintf("arg%d", i)
}

func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdent(s string) bool {
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return s != ""
}
