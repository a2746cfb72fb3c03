package layout

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/wippyai/callbridge/errors"
)

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	externC      = regexp.MustCompile(`extern\s+"C"\s*\{`)
)

// ParseHeader reads C struct typedefs from r into the set. Enum names are
// recorded without their members. Function declarations and preprocessor
// lines are skipped.
func (s *Set) ParseHeader(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.ParseFailed("header", err)
	}
	for _, stmt := range statements(clean(string(data))) {
		if err := s.statement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ParseHeaderString is ParseHeader over a string.
func (s *Set) ParseHeaderString(src string) error {
	return s.ParseHeader(strings.NewReader(src))
}

func clean(src string) string {
	src = blockComment.ReplaceAllString(src, " ")
	src = lineComment.ReplaceAllString(src, "")
	src = externC.ReplaceAllString(src, "")

	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// statements splits at top-level semicolons; unmatched closing braces are dropped.
func statements(src string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
		case ';':
			if depth == 0 {
				if stmt := normalize(cur.String()); stmt != "" {
					out = append(out, stmt)
				}
				cur.Reset()
				continue
			}
		}
		cur.WriteByte(c)
	}
	if stmt := normalize(cur.String()); stmt != "" {
		out = append(out, stmt)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (s *Set) statement(stmt string) error {
	typedef := strings.HasPrefix(stmt, "typedef ")
	body := strings.TrimPrefix(stmt, "typedef ")

	switch {
	case strings.HasPrefix(body, "struct ") && strings.Contains(body, "{"):
		return s.structStatement(body, typedef)
	case strings.HasPrefix(body, "enum"):
		s.enumStatement(body, typedef)
		return nil
	case strings.HasPrefix(body, "union"):
		return nil
	case typedef && !strings.Contains(body, "("):
		fields := strings.Fields(body)
		if len(fields) < 2 {
			return errors.ParseFailed("typedef", fmt.Errorf("malformed %q", stmt))
		}
		alias := fields[len(fields)-1]
		target := strings.TrimSpace(strings.TrimSuffix(body, alias))
		return s.Alias(alias, target)
	}
	return nil
}

// enumStatement records the tag and typedef names of an enum. Members are
// not needed: enums are 4-byte ints on wasm32.
func (s *Set) enumStatement(body string, typedef bool) {
	head, tail := strings.TrimPrefix(body, "enum"), ""
	if open := strings.IndexByte(body, '{'); open >= 0 {
		head = strings.TrimPrefix(body[:open], "enum")
		if closeIdx := strings.LastIndexByte(body, '}'); closeIdx > open {
			tail = body[closeIdx+1:]
		}
	}
	names := strings.Fields(head)
	if typedef {
		for _, a := range strings.Split(tail, ",") {
			if a = strings.TrimSpace(a); a != "" && !strings.ContainsAny(a, "*[") {
				names = append(names, a)
			}
		}
	}
	for _, n := range names {
		s.enums[n] = true
	}
}

func (s *Set) structStatement(body string, typedef bool) error {
	open := strings.IndexByte(body, '{')
	closeIdx := strings.LastIndexByte(body, '}')
	if closeIdx < open {
		return errors.ParseFailed("struct", fmt.Errorf("unbalanced braces in %q", body))
	}
	tag := strings.TrimSpace(strings.TrimPrefix(body[:open], "struct"))
	members := strings.Split(body[open+1:closeIdx], ";")

	var aliases []string
	if typedef {
		for _, a := range strings.Split(body[closeIdx+1:], ",") {
			if a = strings.TrimSpace(a); a != "" && !strings.ContainsAny(a, "*[") {
				aliases = append(aliases, a)
			}
		}
	}
	if tag == "" {
		if len(aliases) == 0 {
			return errors.ParseFailed("struct", fmt.Errorf("anonymous struct without typedef"))
		}
		tag, aliases = aliases[0], aliases[1:]
	}
	_, err := s.Define(tag, members, aliases...)
	return err
}
