// Package trampoline generates the entry points native code calls through
// patched function-pointer slots.
//
// A Set assigns each declared slot a trampoline whose id is its index in a
// funcref table; index 0 is left null so a zeroed slot never aliases a
// trampoline. Module synthesizes the wasm module defining the table and the
// trampolines. Each trampoline has its slot's exact wasm type and calls the
// host dispatch import for that type with its id prepended:
//
//	(func $_cef_set_cookie_callback_t.on_complete (param i32 i32)
//	  i32.const 1
//	  local.get 0
//	  local.get 1
//	  call $dispatch_i32_i32__void)
//
// EmitC writes the matching native-side header.
package trampoline
