package vm

import (
	"math"

	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/wasm"
)

// Instantiate builds a runnable Instance from a decoded core module:
// allocates and initializes linear memory from active data segments,
// evaluates global initializers, and builds the flattened function
// table from active element segments. Only memory 0 and table 0 are
// populated, matching the single-memory, single-table shape every
// module this runtime links against (core modules and component-model
// core modules alike) actually declares.
//
// importedGlobals supplies the values of any imported globals the
// module's own global initializers reference via global.get; it may be
// nil when the module has none. Missing entries read as the zero value
// of the referenced global's declared type.
func Instantiate(mod *wasm.Module, importedGlobals []Value) (*Instance, error) {
	inst := &Instance{Module: mod}

	if err := inst.initMemory(mod); err != nil {
		return nil, err
	}
	if err := inst.initGlobals(mod, importedGlobals); err != nil {
		return nil, err
	}
	if err := inst.initTable(mod); err != nil {
		return nil, err
	}
	if err := inst.applyDataSegments(mod); err != nil {
		return nil, err
	}
	if err := inst.applyElementSegments(mod); err != nil {
		return nil, err
	}
	return inst, nil
}

func (inst *Instance) initMemory(mod *wasm.Module) error {
	if len(mod.Memories) == 0 {
		return nil
	}
	mt := mod.Memories[0]
	inst.Memory = make([]byte, mt.Limits.Min*Page)
	if mt.Limits.Max != nil {
		inst.MaxPage = uint32(*mt.Limits.Max)
	}
	return nil
}

func (inst *Instance) initGlobals(mod *wasm.Module, importedGlobals []Value) error {
	numImportedGlobals := 0
	for _, imp := range mod.Imports {
		if imp.Desc.Kind == wasm.KindGlobal {
			numImportedGlobals++
		}
	}

	globals := make([]Value, 0, numImportedGlobals+len(mod.Globals))
	for i := 0; i < numImportedGlobals; i++ {
		if i < len(importedGlobals) {
			globals = append(globals, importedGlobals[i])
			continue
		}
		globals = append(globals, Value{})
	}
	for _, g := range mod.Globals {
		v, err := evalConstExpr(g.Init, globals)
		if err != nil {
			return err
		}
		globals = append(globals, v)
	}
	inst.Globals = globals
	return nil
}

func (inst *Instance) initTable(mod *wasm.Module) error {
	if len(mod.Tables) == 0 {
		return nil
	}
	tt := mod.Tables[0]
	refType := wasm.ValType(tt.ElemType)
	if refType != wasm.ValFuncRef && refType != wasm.ValExtern {
		refType = wasm.ValFuncRef
	}
	table := make([]Value, tt.Limits.Min)
	for i := range table {
		table[i] = RefNull(refType)
	}
	inst.Table = table
	return nil
}

func (inst *Instance) applyDataSegments(mod *wasm.Module) error {
	for _, seg := range mod.Data {
		if seg.Flags == 1 {
			continue // passive: left for memory.init, not applied at instantiation
		}
		offsetVal, err := evalConstExpr(seg.Offset, inst.Globals)
		if err != nil {
			return err
		}
		offset := int(offsetVal.I32())
		end := offset + len(seg.Init)
		if offset < 0 || end > len(inst.Memory) {
			return errors.Trap(errors.KindOutOfBounds, "active data segment out of memory bounds")
		}
		copy(inst.Memory[offset:end], seg.Init)
	}
	return nil
}

func (inst *Instance) applyElementSegments(mod *wasm.Module) error {
	for _, seg := range mod.Elements {
		switch seg.Flags {
		case 1, 3, 5, 7:
			continue // passive or declarative: no effect on the table at instantiation
		}
		offsetVal, err := evalConstExpr(seg.Offset, inst.Globals)
		if err != nil {
			return err
		}
		offset := int(offsetVal.I32())

		n := len(seg.FuncIdxs)
		if n == 0 {
			n = len(seg.Exprs)
		}
		if offset < 0 || offset+n > len(inst.Table) {
			return errors.Trap(errors.KindOutOfBounds, "active element segment out of table bounds")
		}

		if len(seg.FuncIdxs) > 0 {
			for i, fn := range seg.FuncIdxs {
				inst.Table[offset+i] = FuncRef(fn)
			}
			continue
		}
		for i, expr := range seg.Exprs {
			v, err := evalConstExpr(expr, inst.Globals)
			if err != nil {
				return err
			}
			inst.Table[offset+i] = v
		}
	}
	return nil
}

// evalConstExpr evaluates a constant expression (a global initializer or
// an active segment's offset): exactly one value-producing instruction
// followed by the implicit end the decoder's raw bytes always carry.
// Covers the MVP constant-expression grammar — *.const, global.get of an
// already-initialized global, and ref.null/ref.func — which is every
// constant expression the modules this runtime links ever contain;
// extended const expressions from the GC proposal are out of scope.
func evalConstExpr(raw []byte, globalsSoFar []Value) (Value, error) {
	instrs, err := wasm.DecodeInstructions(raw)
	if err != nil {
		return Value{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decoding constant expression")
	}
	if len(instrs) == 0 {
		return Value{}, errors.Trap(errors.KindInvalidData, "empty constant expression")
	}

	switch ins := instrs[0]; ins.Opcode {
	case wasm.OpI32Const:
		return I32(ins.Imm.(wasm.I32Imm).Value), nil
	case wasm.OpI64Const:
		return I64(ins.Imm.(wasm.I64Imm).Value), nil
	case wasm.OpF32Const:
		return F32Bits(math.Float32bits(ins.Imm.(wasm.F32Imm).Value)), nil
	case wasm.OpF64Const:
		return F64Bits(math.Float64bits(ins.Imm.(wasm.F64Imm).Value)), nil
	case wasm.OpGlobalGet:
		idx := ins.Imm.(wasm.GlobalImm).GlobalIdx
		if int(idx) >= len(globalsSoFar) {
			return Value{}, errors.Trap(errors.KindOutOfBounds, "constant expression references an unresolved global")
		}
		return globalsSoFar[idx], nil
	case wasm.OpRefNull:
		heapType := ins.Imm.(wasm.RefNullImm).HeapType
		t := wasm.ValExtern
		if heapType == wasm.HeapTypeFunc {
			t = wasm.ValFuncRef
		}
		return RefNull(t), nil
	case wasm.OpRefFunc:
		return FuncRef(ins.Imm.(wasm.RefFuncImm).FuncIdx), nil
	default:
		return Value{}, errors.Unsupported(errors.PhaseDecode, "constant expression opcode")
	}
}
