// Package callbridge routes calls made by native code through C function
// pointers into Go callbacks.
//
// The native library is a wasm32 guest running under wazero. Its callback
// objects are C structs in linear memory whose function-pointer fields hold
// funcref table indices. The bridge generates one trampoline per declared slot,
// places them in a table the guest imports, patches slots with trampoline
// indices and routes each call to the Go callback bound to the invoking object.
//
// # Architecture Overview
//
//	callbridge/          Root package with the Memory interface
//	├── abi/             C types, qualifier erasure, wasm32 lowering
//	├── layout/          Struct layouts, slot paths, C header parser
//	├── trampoline/      Trampoline sets, module synthesis, C proxy header
//	├── registry/        Sharded concurrent map of invocation contexts
//	├── bridge/          Patch, dispatch, marshaling, teardown, lifetimes
//	├── config/          YAML manifest with environment overrides
//	├── errors/          Structured error types
//	└── cmd/callbridge/  inspect, table, gen, probe and browse commands
//
// # Quick Start
//
//	layouts := layout.NewSet()
//	if err := layouts.ParseHeaderString(header); err != nil {
//	    log.Fatal(err)
//	}
//
//	set := trampoline.NewSet("cef", layouts)
//	set.Add("cef_set_cookie_callback_t", "on_complete")
//
//	b, err := bridge.New(ctx, set)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(ctx)
//
//	native, err := b.Load(ctx, guestWasm, "libcef")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	table, _ := b.Table(callbackAddr, "cef_set_cookie_callback_t")
//	binding, err := b.Patch(table, "on_complete", bridge.FuncOf(func(self uint32, success int32) {
//	    fmt.Println("cookie set:", success == 1)
//	}))
//	defer binding.Close()
//
// # Thread Safety
//
// Patch, Close, Teardown and dispatch are safe for concurrent use. Callbacks
// run synchronously on the goroutine executing the guest.
//
// # Memory Model
//
// Guest-owned data (strings, struct snapshots) is copied before a callback
// runs. In-out integer pointers are written back after it returns. The bridge
// writes guest memory only when patching or restoring a slot.
package callbridge
