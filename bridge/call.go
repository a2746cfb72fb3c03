package bridge

import (
	"context"

	"github.com/wippyai/callbridge"
	"github.com/wippyai/callbridge/abi"
	"github.com/wippyai/callbridge/trampoline"
)

// Callback handles native calls routed to a binding. An error, like a panic,
// is handled by the bridge's fallback policy.
type Callback interface {
	Invoke(ctx context.Context, call *Call) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(ctx context.Context, call *Call) error

func (f CallbackFunc) Invoke(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// signatureChecker is implemented by callbacks that can reject a slot at
// Patch time.
type signatureChecker interface {
	check(sig *abi.Signature) error
}

// Call is one native invocation. Arg 0 is self.
type Call struct {
	Self       uint32
	Trampoline *trampoline.Trampoline
	Binding    *Binding

	args      []Value
	result    Value
	hasResult bool
	mem       callbridge.Memory
}

// NewCall builds a call outside dispatch, for invoking callbacks directly.
func NewCall(t *trampoline.Trampoline, args ...Value) *Call {
	c := &Call{Trampoline: t, args: args}
	if len(args) > 0 {
		c.Self = args[0].Pointer()
	}
	return c
}

// Len returns the number of arguments, self included.
func (c *Call) Len() int {
	return len(c.args)
}

// Arg returns argument i. Out of range returns the zero Value.
func (c *Call) Arg(i int) Value {
	if i < 0 || i >= len(c.args) {
		return Value{}
	}
	return c.args[i]
}

// Args returns every argument.
func (c *Call) Args() []Value {
	return c.args
}

// Signature is the lowered slot signature.
func (c *Call) Signature() *abi.Signature {
	if c.Trampoline == nil {
		return nil
	}
	return c.Trampoline.Sig
}

// SetResult sets the value returned to native code. Unset results are zero.
func (c *Call) SetResult(v Value) {
	c.result = v
	c.hasResult = true
}

// Result returns the result set by the callback.
func (c *Call) Result() (Value, bool) {
	return c.result, c.hasResult
}

// Memory gives direct access to guest memory during the call.
func (c *Call) Memory() callbridge.Memory {
	return c.mem
}
