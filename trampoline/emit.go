package trampoline

import (
	"io"
	"strings"
	"text/template"

	"github.com/wippyai/callbridge/errors"
)

var headerTmpl = template.Must(template.New("header").Parse(`/* Code generated by callbridge gen. DO NOT EDIT. */
#ifndef {{.Guard}}
#define {{.Guard}}

#include <stdint.h>

/* Slots hold indices into the table imported as "{{.Namespace}}"."table". */
{{range .Structs}}
/* {{.CName}} */
{{- range .Slots}}
#define {{.Macro}} {{.ID}} /* {{.Signature}} */
{{- end}}
{{end}}
{{- range .Structs}}
static inline void {{.Proxy}}({{.CName}}* self) {
  /* (void *) casts drop qualifiers the host side erases. */
{{- range .Slots}}
  self->{{.Field}} = (void *)(uintptr_t){{.Macro}};
{{- end}}
}
{{end}}
#endif /* {{.Guard}} */
`))

type headerData struct {
	Guard     string
	Namespace string
	Structs   []*headerStruct
}

type headerStruct struct {
	CName string
	Proxy string
	Slots []headerSlot
}

type headerSlot struct {
	ID        uint32
	Macro     string
	Field     string
	Signature string
}

// EmitC writes a C header for the native side: one index macro per
// trampoline and one proxy function per struct assigning them to its slots.
func EmitC(w io.Writer, s *Set) error {
	ns := cIdent(s.namespace)
	data := headerData{
		Guard:     "CALLBRIDGE_" + strings.ToUpper(ns) + "_H_",
		Namespace: s.namespace,
	}

	byStruct := make(map[string]*headerStruct)
	for _, t := range s.list {
		hs, ok := byStruct[t.Struct]
		if !ok {
			cname := "struct " + t.Struct
			if st, found := s.layouts.Lookup(t.Struct); found && len(st.Aliases) > 0 {
				cname = st.Aliases[0]
			}
			hs = &headerStruct{
				CName: cname,
				Proxy: "callbridge_" + ns + "_" + cIdent(strings.TrimPrefix(t.Struct, "_")) + "_proxy",
			}
			byStruct[t.Struct] = hs
			data.Structs = append(data.Structs, hs)
		}
		hs.Slots = append(hs.Slots, headerSlot{
			ID:        t.ID,
			Macro:     strings.ToUpper("CALLBRIDGE_" + ns + "_" + cIdent(strings.TrimPrefix(t.Struct, "_")) + "_" + cIdent(t.Slot)),
			Field:     t.Slot,
			Signature: t.Sig.Func.Signature(),
		})
	}

	if err := headerTmpl.Execute(w, data); err != nil {
		return errors.Wrap(errors.PhaseCodegen, errors.KindInvalidInput, err, "emit C header")
	}
	return nil
}

func cIdent(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
