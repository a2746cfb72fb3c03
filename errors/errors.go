package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse    Phase = "parse"    // C header and type parsing
	PhaseLayout   Phase = "layout"   // struct offset computation
	PhaseCodegen  Phase = "codegen"  // trampoline generation
	PhaseBind     Phase = "bind"     // slot patching
	PhaseDispatch Phase = "dispatch" // native to host routing
	PhaseLoad     Phase = "load"     // module instantiation
	PhaseConfig   Phase = "config"   // manifest and environment
	PhaseRuntime  Phase = "runtime"  // bridge lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidSlot    Kind = "invalid_slot"
	KindUnknownContext Kind = "unknown_context"
	KindAlreadyBound   Kind = "already_bound"
	KindNotAttached    Kind = "not_attached"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindCallbackPanic  Kind = "callback_panic"
	KindInstantiation  Kind = "instantiation"
	KindClosed         Kind = "closed"
)

// Sentinels for errors.Is. They carry no phase, so they match any phase.
var (
	ErrInvalidSlot    = &Error{Kind: KindInvalidSlot}
	ErrUnknownContext = &Error{Kind: KindUnknownContext}
	ErrAlreadyBound   = &Error{Kind: KindAlreadyBound}
	ErrNotAttached    = &Error{Kind: KindNotAttached}
	ErrOutOfBounds    = &Error{Kind: KindOutOfBounds}
	ErrClosed         = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Native string // native (C) type or declaration involved
	Host   string // host (Go) type involved
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Native != "" || e.Host != "" {
		b.WriteString(": ")
		if e.Native != "" && e.Host != "" {
			b.WriteString("native type ")
			b.WriteString(e.Native)
			b.WriteString(", host type ")
			b.WriteString(e.Host)
		} else if e.Native != "" {
			b.WriteString("native type ")
			b.WriteString(e.Native)
		} else {
			b.WriteString("host type ")
			b.WriteString(e.Host)
		}
	}

	if e.Detail != "" {
		if e.Native != "" || e.Host != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase on the target matches every phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the slot or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Native sets the native type or declaration
func (b *Builder) Native(t string) *Builder {
	b.err.Native = t
	return b
}

// Host sets the host type name
func (b *Builder) Host(t string) *Builder {
	b.err.Host = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// InvalidSlot reports a slot whose declaration cannot be served by its trampoline.
func InvalidSlot(phase Phase, structName, slot, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidSlot,
		Path:   []string{structName, slot},
		Detail: detail,
	}
}

// UnknownContext reports a native call for an object with no live binding.
func UnknownContext(self uint32, trampoline string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnknownContext,
		Path:   []string{trampoline},
		Detail: fmt.Sprintf("no live binding for self=0x%x", self),
		Value:  self,
	}
}

// AlreadyBound reports a second binding for the same object slot.
func AlreadyBound(self uint32, trampoline string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindAlreadyBound,
		Path:   []string{trampoline},
		Detail: fmt.Sprintf("self=0x%x already bound", self),
		Value:  self,
	}
}

// NotAttached reports use of a bridge with no native module attached.
func NotAttached(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotAttached,
		Detail: "no native module attached",
	}
}

// OutOfBounds reports a guest memory range outside linear memory.
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [0x%x, +%d) outside memory of %d bytes", offset, length, size),
		Value:  offset,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, native, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Native: native,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// CallbackPanic wraps a value recovered from a host callback.
func CallbackPanic(trampoline string, recovered any) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindCallbackPanic,
		Path:   []string{trampoline},
		Detail: fmt.Sprintf("host callback panicked: %v", recovered),
		Value:  recovered,
	}
}

// Instantiation creates an instantiation error
func Instantiation(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate module %q", module),
		Cause:  cause,
	}
}

// Closed reports use of a closed bridge.
func Closed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: "bridge closed",
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
