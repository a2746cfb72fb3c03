// Package bridge binds Go callbacks to function-pointer slots of C structs
// living in a wasm32 guest.
//
// A Bridge instantiates two modules for a trampoline.Set: the dispatch host
// module, with one Go entry per lowered wasm signature, and the trampoline
// module, which exports the funcref table native modules import. Patch writes
// a trampoline id into a slot and registers the callback under (self,
// trampoline). When native code calls the slot, the trampoline forwards to the
// dispatch entry, which looks up the binding, copies arguments out of guest
// memory and invokes the callback on the calling goroutine.
//
// Calls that find no live binding, fail to marshal, or whose callback returns
// an error or panics take the fallback path chosen by Policy: PolicyNoop
// returns zero to native code, PolicyAbort closes the native module with
// AbortExitCode.
//
// Object lifetimes follow the native side. Binding.Close unbinds a live object
// and restores the slot; Bridge.Teardown drops every binding of an object that
// native code destroyed and never writes its memory. Track ties Teardown to a
// CEF-style reference count.
package bridge
