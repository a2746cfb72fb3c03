// Package errors provides structured error types for the callback bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the slot path, the native and host type names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBind, errors.KindInvalidSlot).
//		Path("cef_set_cookie_callback_t", "on_complete").
//		Native("void (*)(cef_set_cookie_callback_t *, int)").
//		Host("func(uint32, string)").
//		Detail("callback parameter 1 does not accept s32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidSlot(errors.PhaseCodegen, "cef_cookie_visitor_t", "visit", "by-value struct parameter")
//	err := errors.UnknownContext(self, "cef_set_cookie_callback_t.on_complete")
//
// Sentinels match on Kind regardless of phase:
//
//	if errors.Is(err, cberrors.ErrInvalidSlot) { ... }
package errors
