package vm

import "github.com/wippyai/wasm-runtime/wasm"

// Value is a runtime WebAssembly value: exactly one of the four numeric
// types or a reference, tagged by Type. The zero Value is a null funcref,
// matching the zero ValType byte's implicit "no value" meaning nowhere
// else in the engine relies on.
type Value struct {
	Type wasm.ValType
	// num holds i32/i64 bit patterns and the raw bits of f32/f64 (via
	// math.Float32bits/Float64bits), avoiding a second union arm.
	num uint64
	// ref holds a reference value's target: a function index for
	// funcref, an opaque host identity for externref. nil means null.
	ref any
}

func I32(v int32) Value  { return Value{Type: wasm.ValI32, num: uint64(uint32(v))} }
func I64(v int64) Value  { return Value{Type: wasm.ValI64, num: uint64(v)} }
func F32Bits(b uint32) Value { return Value{Type: wasm.ValF32, num: uint64(b)} }
func F64Bits(b uint64) Value { return Value{Type: wasm.ValF64, num: b} }

// RefNull returns a null reference value of the given reference type.
func RefNull(t wasm.ValType) Value { return Value{Type: t} }

// Ref returns a non-null reference value carrying target.
func Ref(t wasm.ValType, target any) Value { return Value{Type: t, ref: target} }

func (v Value) I32() int32  { return int32(uint32(v.num)) }
func (v Value) U32() uint32 { return uint32(v.num) }
func (v Value) I64() int64  { return int64(v.num) }
func (v Value) U64() uint64 { return v.num }
func (v Value) F32Bits() uint32 { return uint32(v.num) }
func (v Value) F64Bits() uint64 { return v.num }

// IsNull reports whether a reference-typed value is null.
func (v Value) IsNull() bool { return v.ref == nil }

// RefTarget returns the reference's target, or nil if null or non-reference.
func (v Value) RefTarget() any { return v.ref }

// FuncRef returns a non-null funcref value naming a function by index.
func FuncRef(funcIdx uint32) Value { return Value{Type: wasm.ValFuncRef, ref: funcIdx} }

// zeroFor returns the default value for a local of type t, per the
// WebAssembly spec's zero-initialization rule for locals.
func zeroFor(t wasm.ValType) Value {
	switch t {
	case wasm.ValI32:
		return I32(0)
	case wasm.ValI64:
		return I64(0)
	case wasm.ValF32:
		return F32Bits(0)
	case wasm.ValF64:
		return F64Bits(0)
	default:
		return RefNull(t)
	}
}
