package vm

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/wasm"
)

// isNumericOp reports whether op is a constant, comparison, arithmetic,
// or conversion instruction (0x41-0xC4), the contiguous range the core
// spec lays these out in between the memory and sign-extension blocks.
func isNumericOp(op byte) bool {
	return op >= wasm.OpI32Const && op <= wasm.OpI64Extend32S
}

// execNumeric dispatches a single numeric instruction. Grounded on the
// opcode groupings in wasm/constants.go; traps rather than panicking on
// the operations the core spec itself defines as trapping (integer
// division and remainder by zero, signed overflow on division).
func (e *Engine) execNumeric(ins wasm.Instruction) {
	switch ins.Opcode {
	case wasm.OpI32Const:
		e.finish(e.pushValue(I32(ins.Imm.(wasm.I32Imm).Value)))
	case wasm.OpI64Const:
		e.finish(e.pushValue(I64(ins.Imm.(wasm.I64Imm).Value)))
	case wasm.OpF32Const:
		e.finish(e.pushValue(F32Bits(math.Float32bits(ins.Imm.(wasm.F32Imm).Value))))
	case wasm.OpF64Const:
		e.finish(e.pushValue(F64Bits(math.Float64bits(ins.Imm.(wasm.F64Imm).Value))))
	default:
		e.execNumericOp(ins.Opcode)
	}
}

func (e *Engine) execNumericOp(op byte) {
	switch {
	case op >= wasm.OpI32Eqz && op <= wasm.OpI32GeU:
		e.i32Compare(op)
	case op >= wasm.OpI64Eqz && op <= wasm.OpI64GeU:
		e.i64Compare(op)
	case op >= wasm.OpF32Eq && op <= wasm.OpF32Ge:
		e.f32Compare(op)
	case op >= wasm.OpF64Eq && op <= wasm.OpF64Ge:
		e.f64Compare(op)
	case op >= wasm.OpI32Clz && op <= wasm.OpI32Rotr:
		e.i32Arith(op)
	case op >= wasm.OpI64Clz && op <= wasm.OpI64Rotr:
		e.i64Arith(op)
	case op >= wasm.OpF32Abs && op <= wasm.OpF32Copysign:
		e.f32Arith(op)
	case op >= wasm.OpF64Abs && op <= wasm.OpF64Copysign:
		e.f64Arith(op)
	case op >= wasm.OpI32WrapI64 && op <= wasm.OpI64Extend32S:
		e.execConversion(op)
	default:
		e.fail(errors.Trap(errors.KindNotImplemented, "numeric opcode not supported"))
	}
}

func (e *Engine) pop2i32() (int32, int32, bool) {
	b, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	a, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	return a.I32(), b.I32(), true
}

func (e *Engine) pop2i64() (int64, int64, bool) {
	b, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	a, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	return a.I64(), b.I64(), true
}

func boolI32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

func (e *Engine) i32Compare(op byte) {
	if op == wasm.OpI32Eqz {
		v, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(boolI32(v.I32() == 0))))
		return
	}
	a, b, ok := e.pop2i32()
	if !ok {
		return
	}
	ua, ub := uint32(a), uint32(b)
	var r int32
	switch op {
	case wasm.OpI32Eq:
		r = boolI32(a == b)
	case wasm.OpI32Ne:
		r = boolI32(a != b)
	case wasm.OpI32LtS:
		r = boolI32(a < b)
	case wasm.OpI32LtU:
		r = boolI32(ua < ub)
	case wasm.OpI32GtS:
		r = boolI32(a > b)
	case wasm.OpI32GtU:
		r = boolI32(ua > ub)
	case wasm.OpI32LeS:
		r = boolI32(a <= b)
	case wasm.OpI32LeU:
		r = boolI32(ua <= ub)
	case wasm.OpI32GeS:
		r = boolI32(a >= b)
	case wasm.OpI32GeU:
		r = boolI32(ua >= ub)
	}
	e.finish(e.pushValue(I32(r)))
}

func (e *Engine) i64Compare(op byte) {
	if op == wasm.OpI64Eqz {
		v, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(boolI32(v.I64() == 0))))
		return
	}
	a, b, ok := e.pop2i64()
	if !ok {
		return
	}
	ua, ub := uint64(a), uint64(b)
	var r int32
	switch op {
	case wasm.OpI64Eq:
		r = boolI32(a == b)
	case wasm.OpI64Ne:
		r = boolI32(a != b)
	case wasm.OpI64LtS:
		r = boolI32(a < b)
	case wasm.OpI64LtU:
		r = boolI32(ua < ub)
	case wasm.OpI64GtS:
		r = boolI32(a > b)
	case wasm.OpI64GtU:
		r = boolI32(ua > ub)
	case wasm.OpI64LeS:
		r = boolI32(a <= b)
	case wasm.OpI64LeU:
		r = boolI32(ua <= ub)
	case wasm.OpI64GeS:
		r = boolI32(a >= b)
	case wasm.OpI64GeU:
		r = boolI32(ua >= ub)
	}
	e.finish(e.pushValue(I32(r)))
}

func (e *Engine) pop2f32() (float32, float32, bool) {
	b, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	a, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	return math.Float32frombits(a.F32Bits()), math.Float32frombits(b.F32Bits()), true
}

func (e *Engine) pop2f64() (float64, float64, bool) {
	b, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	a, err := e.popValue()
	if err != nil {
		e.fail(err)
		return 0, 0, false
	}
	return math.Float64frombits(a.F64Bits()), math.Float64frombits(b.F64Bits()), true
}

func (e *Engine) f32Compare(op byte) {
	a, b, ok := e.pop2f32()
	if !ok {
		return
	}
	var r int32
	switch op {
	case wasm.OpF32Eq:
		r = boolI32(a == b)
	case wasm.OpF32Ne:
		r = boolI32(a != b)
	case wasm.OpF32Lt:
		r = boolI32(a < b)
	case wasm.OpF32Gt:
		r = boolI32(a > b)
	case wasm.OpF32Le:
		r = boolI32(a <= b)
	case wasm.OpF32Ge:
		r = boolI32(a >= b)
	}
	e.finish(e.pushValue(I32(r)))
}

func (e *Engine) f64Compare(op byte) {
	a, b, ok := e.pop2f64()
	if !ok {
		return
	}
	var r int32
	switch op {
	case wasm.OpF64Eq:
		r = boolI32(a == b)
	case wasm.OpF64Ne:
		r = boolI32(a != b)
	case wasm.OpF64Lt:
		r = boolI32(a < b)
	case wasm.OpF64Gt:
		r = boolI32(a > b)
	case wasm.OpF64Le:
		r = boolI32(a <= b)
	case wasm.OpF64Ge:
		r = boolI32(a >= b)
	}
	e.finish(e.pushValue(I32(r)))
}

func (e *Engine) i32Arith(op byte) {
	if op == wasm.OpI32Clz || op == wasm.OpI32Ctz || op == wasm.OpI32Popcnt {
		v, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		u := v.U32()
		var r int32
		switch op {
		case wasm.OpI32Clz:
			r = int32(bits.LeadingZeros32(u))
		case wasm.OpI32Ctz:
			r = int32(bits.TrailingZeros32(u))
		case wasm.OpI32Popcnt:
			r = int32(bits.OnesCount32(u))
		}
		e.finish(e.pushValue(I32(r)))
		return
	}
	a, b, ok := e.pop2i32()
	if !ok {
		return
	}
	ua, ub := uint32(a), uint32(b)
	var r int32
	switch op {
	case wasm.OpI32Add:
		r = a + b
	case wasm.OpI32Sub:
		r = a - b
	case wasm.OpI32Mul:
		r = a * b
	case wasm.OpI32DivS:
		if b == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i32.div_s by zero"))
			return
		}
		if a == math.MinInt32 && b == -1 {
			e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "i32.div_s overflow"))
			return
		}
		r = a / b
	case wasm.OpI32DivU:
		if ub == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i32.div_u by zero"))
			return
		}
		r = int32(ua / ub)
	case wasm.OpI32RemS:
		if b == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i32.rem_s by zero"))
			return
		}
		if a == math.MinInt32 && b == -1 {
			r = 0
		} else {
			r = a % b
		}
	case wasm.OpI32RemU:
		if ub == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i32.rem_u by zero"))
			return
		}
		r = int32(ua % ub)
	case wasm.OpI32And:
		r = a & b
	case wasm.OpI32Or:
		r = a | b
	case wasm.OpI32Xor:
		r = a ^ b
	case wasm.OpI32Shl:
		r = int32(ua << (ub & 31))
	case wasm.OpI32ShrS:
		r = a >> (ub & 31)
	case wasm.OpI32ShrU:
		r = int32(ua >> (ub & 31))
	case wasm.OpI32Rotl:
		r = int32(bits.RotateLeft32(ua, int(ub&31)))
	case wasm.OpI32Rotr:
		r = int32(bits.RotateLeft32(ua, -int(ub&31)))
	}
	e.finish(e.pushValue(I32(r)))
}

func (e *Engine) i64Arith(op byte) {
	if op == wasm.OpI64Clz || op == wasm.OpI64Ctz || op == wasm.OpI64Popcnt {
		v, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		u := v.U64()
		var r int64
		switch op {
		case wasm.OpI64Clz:
			r = int64(bits.LeadingZeros64(u))
		case wasm.OpI64Ctz:
			r = int64(bits.TrailingZeros64(u))
		case wasm.OpI64Popcnt:
			r = int64(bits.OnesCount64(u))
		}
		e.finish(e.pushValue(I64(r)))
		return
	}
	a, b, ok := e.pop2i64()
	if !ok {
		return
	}
	ua, ub := uint64(a), uint64(b)
	var r int64
	switch op {
	case wasm.OpI64Add:
		r = a + b
	case wasm.OpI64Sub:
		r = a - b
	case wasm.OpI64Mul:
		r = a * b
	case wasm.OpI64DivS:
		if b == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i64.div_s by zero"))
			return
		}
		if a == math.MinInt64 && b == -1 {
			e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "i64.div_s overflow"))
			return
		}
		r = a / b
	case wasm.OpI64DivU:
		if ub == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i64.div_u by zero"))
			return
		}
		r = int64(ua / ub)
	case wasm.OpI64RemS:
		if b == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i64.rem_s by zero"))
			return
		}
		if a == math.MinInt64 && b == -1 {
			r = 0
		} else {
			r = a % b
		}
	case wasm.OpI64RemU:
		if ub == 0 {
			e.fail(errors.Trap(errors.KindTrapDivByZero, "i64.rem_u by zero"))
			return
		}
		r = int64(ua % ub)
	case wasm.OpI64And:
		r = a & b
	case wasm.OpI64Or:
		r = a | b
	case wasm.OpI64Xor:
		r = a ^ b
	case wasm.OpI64Shl:
		r = int64(ua << (ub & 63))
	case wasm.OpI64ShrS:
		r = a >> (ub & 63)
	case wasm.OpI64ShrU:
		r = int64(ua >> (ub & 63))
	case wasm.OpI64Rotl:
		r = int64(bits.RotateLeft64(ua, int(ub&63)))
	case wasm.OpI64Rotr:
		r = int64(bits.RotateLeft64(ua, -int(ub&63)))
	}
	e.finish(e.pushValue(I64(r)))
}

func (e *Engine) f32Arith(op byte) {
	if op >= wasm.OpF32Abs && op <= wasm.OpF32Sqrt {
		v, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		f := math.Float32frombits(v.F32Bits())
		var r float32
		switch op {
		case wasm.OpF32Abs:
			r = float32(math.Abs(float64(f)))
		case wasm.OpF32Neg:
			r = -f
		case wasm.OpF32Ceil:
			r = float32(math.Ceil(float64(f)))
		case wasm.OpF32Floor:
			r = float32(math.Floor(float64(f)))
		case wasm.OpF32Trunc:
			r = float32(math.Trunc(float64(f)))
		case wasm.OpF32Nearest:
			r = float32(math.RoundToEven(float64(f)))
		case wasm.OpF32Sqrt:
			r = float32(math.Sqrt(float64(f)))
		}
		e.finish(e.pushValue(F32Bits(math.Float32bits(r))))
		return
	}
	a, b, ok := e.pop2f32()
	if !ok {
		return
	}
	var r float32
	switch op {
	case wasm.OpF32Add:
		r = a + b
	case wasm.OpF32Sub:
		r = a - b
	case wasm.OpF32Mul:
		r = a * b
	case wasm.OpF32Div:
		r = a / b
	case wasm.OpF32Min:
		r = float32(math.Min(float64(a), float64(b)))
	case wasm.OpF32Max:
		r = float32(math.Max(float64(a), float64(b)))
	case wasm.OpF32Copysign:
		r = float32(math.Copysign(float64(a), float64(b)))
	}
	e.finish(e.pushValue(F32Bits(math.Float32bits(r))))
}

func (e *Engine) f64Arith(op byte) {
	if op >= wasm.OpF64Abs && op <= wasm.OpF64Sqrt {
		v, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		f := math.Float64frombits(v.F64Bits())
		var r float64
		switch op {
		case wasm.OpF64Abs:
			r = math.Abs(f)
		case wasm.OpF64Neg:
			r = -f
		case wasm.OpF64Ceil:
			r = math.Ceil(f)
		case wasm.OpF64Floor:
			r = math.Floor(f)
		case wasm.OpF64Trunc:
			r = math.Trunc(f)
		case wasm.OpF64Nearest:
			r = math.RoundToEven(f)
		case wasm.OpF64Sqrt:
			r = math.Sqrt(f)
		}
		e.finish(e.pushValue(F64Bits(math.Float64bits(r))))
		return
	}
	a, b, ok := e.pop2f64()
	if !ok {
		return
	}
	var r float64
	switch op {
	case wasm.OpF64Add:
		r = a + b
	case wasm.OpF64Sub:
		r = a - b
	case wasm.OpF64Mul:
		r = a * b
	case wasm.OpF64Div:
		r = a / b
	case wasm.OpF64Min:
		r = math.Min(a, b)
	case wasm.OpF64Max:
		r = math.Max(a, b)
	case wasm.OpF64Copysign:
		r = math.Copysign(a, b)
	}
	e.finish(e.pushValue(F64Bits(math.Float64bits(r))))
}

func (e *Engine) execConversion(op byte) {
	v, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	switch op {
	case wasm.OpI32WrapI64:
		e.finish(e.pushValue(I32(int32(v.I64()))))
	case wasm.OpI32TruncF32S:
		e.truncToI32(float64(math.Float32frombits(v.F32Bits())), true)
	case wasm.OpI32TruncF32U:
		e.truncToI32(float64(math.Float32frombits(v.F32Bits())), false)
	case wasm.OpI32TruncF64S:
		e.truncToI32(math.Float64frombits(v.F64Bits()), true)
	case wasm.OpI32TruncF64U:
		e.truncToI32(math.Float64frombits(v.F64Bits()), false)
	case wasm.OpI64ExtendI32S:
		e.finish(e.pushValue(I64(int64(v.I32()))))
	case wasm.OpI64ExtendI32U:
		e.finish(e.pushValue(I64(int64(v.U32()))))
	case wasm.OpI64TruncF32S:
		e.truncToI64(float64(math.Float32frombits(v.F32Bits())), true)
	case wasm.OpI64TruncF32U:
		e.truncToI64(float64(math.Float32frombits(v.F32Bits())), false)
	case wasm.OpI64TruncF64S:
		e.truncToI64(math.Float64frombits(v.F64Bits()), true)
	case wasm.OpI64TruncF64U:
		e.truncToI64(math.Float64frombits(v.F64Bits()), false)
	case wasm.OpF32ConvertI32S:
		e.finish(e.pushValue(F32Bits(math.Float32bits(float32(v.I32())))))
	case wasm.OpF32ConvertI32U:
		e.finish(e.pushValue(F32Bits(math.Float32bits(float32(v.U32())))))
	case wasm.OpF32ConvertI64S:
		e.finish(e.pushValue(F32Bits(math.Float32bits(float32(v.I64())))))
	case wasm.OpF32ConvertI64U:
		e.finish(e.pushValue(F32Bits(math.Float32bits(float32(v.U64())))))
	case wasm.OpF32DemoteF64:
		e.finish(e.pushValue(F32Bits(math.Float32bits(float32(math.Float64frombits(v.F64Bits()))))))
	case wasm.OpF64ConvertI32S:
		e.finish(e.pushValue(F64Bits(math.Float64bits(float64(v.I32())))))
	case wasm.OpF64ConvertI32U:
		e.finish(e.pushValue(F64Bits(math.Float64bits(float64(v.U32())))))
	case wasm.OpF64ConvertI64S:
		e.finish(e.pushValue(F64Bits(math.Float64bits(float64(v.I64())))))
	case wasm.OpF64ConvertI64U:
		e.finish(e.pushValue(F64Bits(math.Float64bits(float64(v.U64())))))
	case wasm.OpF64PromoteF32:
		e.finish(e.pushValue(F64Bits(math.Float64bits(float64(math.Float32frombits(v.F32Bits()))))))
	case wasm.OpI32ReinterpretF32:
		e.finish(e.pushValue(I32(int32(v.F32Bits()))))
	case wasm.OpI64ReinterpretF64:
		e.finish(e.pushValue(I64(int64(v.F64Bits()))))
	case wasm.OpF32ReinterpretI32:
		e.finish(e.pushValue(F32Bits(v.U32())))
	case wasm.OpF64ReinterpretI64:
		e.finish(e.pushValue(F64Bits(v.U64())))
	case wasm.OpI32Extend8S:
		e.finish(e.pushValue(I32(int32(int8(v.I32())))))
	case wasm.OpI32Extend16S:
		e.finish(e.pushValue(I32(int32(int16(v.I32())))))
	case wasm.OpI64Extend8S:
		e.finish(e.pushValue(I64(int64(int8(v.I64())))))
	case wasm.OpI64Extend16S:
		e.finish(e.pushValue(I64(int64(int16(v.I64())))))
	case wasm.OpI64Extend32S:
		e.finish(e.pushValue(I64(int64(int32(v.I64())))))
	default:
		e.fail(errors.Trap(errors.KindNotImplemented, "conversion opcode not supported"))
	}
}

// truncToI32 implements the non-saturating trunc family: out-of-range or
// NaN inputs trap rather than produce a saturated or wrapped result, per
// the core spec (the 0xFC-prefixed trunc_sat family is the saturating
// variant and is not part of this instruction).
func (e *Engine) truncToI32(f float64, signed bool) {
	if math.IsNaN(f) {
		e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "trunc of NaN"))
		return
	}
	t := math.Trunc(f)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "i32.trunc out of range"))
			return
		}
		e.finish(e.pushValue(I32(int32(t))))
		return
	}
	if t < 0 || t > math.MaxUint32 {
		e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "i32.trunc_u out of range"))
		return
	}
	e.finish(e.pushValue(I32(int32(uint32(t)))))
}

func (e *Engine) truncToI64(f float64, signed bool) {
	if math.IsNaN(f) {
		e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "trunc of NaN"))
		return
	}
	t := math.Trunc(f)
	if signed {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "i64.trunc out of range"))
			return
		}
		e.finish(e.pushValue(I64(int64(t))))
		return
	}
	if t < 0 || t >= math.MaxUint64 {
		e.fail(errors.Trap(errors.KindTrapIntegerOverflow, "i64.trunc_u out of range"))
		return
	}
	e.finish(e.pushValue(I64(int64(uint64(t)))))
}
