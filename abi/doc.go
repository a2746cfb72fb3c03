// Package abi models C declarations of callback slots and lowers them onto the
// wasm32 calling convention.
//
// Qualifiers (const, volatile, restrict) are erased from host signatures and
// recorded per value, so every signature carries a translation table from the
// native spelling to the wasm value type, the host kind and its WIT name.
//
// Lowering follows ILP32: pointers, int, long and size_t are i32; long long
// and the 64-bit fixed types are i64; float and double are f32 and f64.
// Structs by value and results that need guest allocation are rejected.
package abi
