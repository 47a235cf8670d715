package vm

import (
	"encoding/binary"
	"math/bits"

	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
	"github.com/wippyai/wasm-runtime/wasm"
)

func isMemoryOp(op byte) bool {
	return op >= wasm.OpI32Load && op <= wasm.OpMemoryGrow
}

func isLoadOp(op byte) bool {
	return op >= wasm.OpI32Load && op <= wasm.OpI64Load32U
}

func isStoreOp(op byte) bool {
	return op >= wasm.OpI32Store && op <= wasm.OpI64Store32
}

func loadFuelKind(op byte) fuel.Kind {
	switch op {
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		return fuel.KindMemoryLoad8
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U:
		return fuel.KindMemoryLoad16
	case wasm.OpI64Load, wasm.OpF64Load, wasm.OpI64Load32S, wasm.OpI64Load32U:
		return fuel.KindMemoryLoad64
	default:
		return fuel.KindMemoryLoad32
	}
}

func storeFuelKind(op byte) fuel.Kind {
	switch op {
	case wasm.OpI32Store8, wasm.OpI64Store8:
		return fuel.KindMemoryStore8
	case wasm.OpI32Store16, wasm.OpI64Store16:
		return fuel.KindMemoryStore16
	case wasm.OpI64Store, wasm.OpF64Store, wasm.OpI64Store32:
		return fuel.KindMemoryStore64
	default:
		return fuel.KindMemoryStore32
	}
}

// naturalAlignExp returns the log2 byte alignment a load/store's access
// width implies, for comparison against the instruction's declared
// alignment hint.
func naturalAlignExp(width int) uint32 {
	return uint32(bits.Len(uint(width)) - 1)
}

// execMemory dispatches a load, store, memory.size, or memory.grow
// instruction against the current frame's linear memory.
func (e *Engine) execMemory(frame *Frame, ins wasm.Instruction) {
	switch ins.Opcode {
	case wasm.OpMemorySize:
		e.finish(e.pushValue(I32(int32(frame.Instance.Pages()))))
	case wasm.OpMemoryGrow:
		deltaVal, err := e.popValue()
		if err != nil {
			e.fail(err)
			return
		}
		prev := frame.Instance.Grow(deltaVal.U32())
		e.finish(e.pushValue(I32(prev)))
	default:
		e.execLoadStore(frame, ins)
	}
}

// addr computes the absolute byte offset for a memory access and bounds
// checks it against the instance's current memory size. offset and align
// come from the instruction's MemoryImm; width is the access size in
// bytes.
func (e *Engine) addr(frame *Frame, imm wasm.MemoryImm, base uint32, width int) (int, error) {
	if naturalAlignExp(width) < imm.Align {
		e.alignmentMismatches++
	}
	effective := uint64(base) + imm.Offset
	if effective+uint64(width) > uint64(len(frame.Instance.Memory)) {
		return 0, errors.Trap(errors.KindOutOfBounds, "memory access out of bounds")
	}
	return int(effective), nil
}

func (e *Engine) execLoadStore(frame *Frame, ins wasm.Instruction) {
	imm := ins.Imm.(wasm.MemoryImm)
	if isStoreOp(ins.Opcode) {
		e.execStore(frame, ins.Opcode, imm)
		return
	}
	e.execLoad(frame, ins.Opcode, imm)
}

func (e *Engine) execLoad(frame *Frame, op byte, imm wasm.MemoryImm) {
	baseVal, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	base := baseVal.U32()
	mem := frame.Instance.Memory

	switch op {
	case wasm.OpI32Load:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(int32(binary.LittleEndian.Uint32(mem[off:])))))
	case wasm.OpI64Load:
		off, err := e.addr(frame, imm, base, 8)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(binary.LittleEndian.Uint64(mem[off:])))))
	case wasm.OpF32Load:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(F32Bits(binary.LittleEndian.Uint32(mem[off:]))))
	case wasm.OpF64Load:
		off, err := e.addr(frame, imm, base, 8)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(F64Bits(binary.LittleEndian.Uint64(mem[off:]))))
	case wasm.OpI32Load8S:
		off, err := e.addr(frame, imm, base, 1)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(int32(int8(mem[off])))))
	case wasm.OpI32Load8U:
		off, err := e.addr(frame, imm, base, 1)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(int32(mem[off]))))
	case wasm.OpI32Load16S:
		off, err := e.addr(frame, imm, base, 2)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(int32(int16(binary.LittleEndian.Uint16(mem[off:]))))))
	case wasm.OpI32Load16U:
		off, err := e.addr(frame, imm, base, 2)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I32(int32(binary.LittleEndian.Uint16(mem[off:])))))
	case wasm.OpI64Load8S:
		off, err := e.addr(frame, imm, base, 1)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(int8(mem[off])))))
	case wasm.OpI64Load8U:
		off, err := e.addr(frame, imm, base, 1)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(mem[off]))))
	case wasm.OpI64Load16S:
		off, err := e.addr(frame, imm, base, 2)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(int16(binary.LittleEndian.Uint16(mem[off:]))))))
	case wasm.OpI64Load16U:
		off, err := e.addr(frame, imm, base, 2)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(binary.LittleEndian.Uint16(mem[off:])))))
	case wasm.OpI64Load32S:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(int32(binary.LittleEndian.Uint32(mem[off:]))))))
	case wasm.OpI64Load32U:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		e.finish(e.pushValue(I64(int64(binary.LittleEndian.Uint32(mem[off:])))))
	default:
		e.fail(errors.Trap(errors.KindNotImplemented, "load opcode not supported"))
	}
}

func (e *Engine) execStore(frame *Frame, op byte, imm wasm.MemoryImm) {
	val, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	baseVal, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	base := baseVal.U32()
	mem := frame.Instance.Memory

	switch op {
	case wasm.OpI32Store:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		binary.LittleEndian.PutUint32(mem[off:], val.U32())
	case wasm.OpI64Store:
		off, err := e.addr(frame, imm, base, 8)
		if err != nil {
			e.fail(err)
			return
		}
		binary.LittleEndian.PutUint64(mem[off:], val.U64())
	case wasm.OpF32Store:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		binary.LittleEndian.PutUint32(mem[off:], val.F32Bits())
	case wasm.OpF64Store:
		off, err := e.addr(frame, imm, base, 8)
		if err != nil {
			e.fail(err)
			return
		}
		binary.LittleEndian.PutUint64(mem[off:], val.F64Bits())
	case wasm.OpI32Store8, wasm.OpI64Store8:
		off, err := e.addr(frame, imm, base, 1)
		if err != nil {
			e.fail(err)
			return
		}
		mem[off] = byte(val.U64())
	case wasm.OpI32Store16, wasm.OpI64Store16:
		off, err := e.addr(frame, imm, base, 2)
		if err != nil {
			e.fail(err)
			return
		}
		binary.LittleEndian.PutUint16(mem[off:], uint16(val.U64()))
	case wasm.OpI64Store32:
		off, err := e.addr(frame, imm, base, 4)
		if err != nil {
			e.fail(err)
			return
		}
		binary.LittleEndian.PutUint32(mem[off:], uint32(val.U64()))
	default:
		e.fail(errors.Trap(errors.KindNotImplemented, "store opcode not supported"))
		return
	}
	e.pc++
}
