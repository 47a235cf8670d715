package vm

import (
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
	"github.com/wippyai/wasm-runtime/wasm"
)

// stepOne decodes and executes the instruction at the current frame's
// program counter, the Running state's half of a Step. Most opcodes
// advance pc by one and stay Running; control instructions hand off to
// Calling, Returning, or Branching for their second half.
func (e *Engine) stepOne() {
	frame := e.currentFrame()
	if frame == nil {
		e.fail(errors.Trap(errors.KindFunctionNotFound, "no active frame"))
		return
	}
	localIdx := frame.localIdx()
	instrs, err := frame.Instance.instructions(localIdx)
	if err != nil {
		e.fail(err)
		return
	}
	if e.pc >= len(instrs) {
		// the decoder guarantees every body ends with an explicit `end`;
		// reaching past it means one was consumed without popping back to
		// the function's own label depth.
		e.fail(errors.Trap(errors.KindInvalidLabel, "fell off the end of a function body"))
		return
	}
	ins := instrs[e.pc]

	exhausted := false
	if kind, ok := fuelKindFor(ins.Opcode); ok {
		// the ledger still registers the charge and the instruction below
		// still executes even when this reports exhaustion; the engine
		// only pauses afterward, once it lands back in a steady Running
		// state, so the caller suspends before the *next* instruction.
		exhausted = e.chargeFuel(kind) != nil
	}

	switch {
	case ins.Opcode == wasm.OpUnreachable:
		e.fail(errors.Trap(errors.KindTrapUnreachable, "unreachable executed"))
	case ins.Opcode == wasm.OpNop:
		e.pc++
	case ins.Opcode == wasm.OpBlock || ins.Opcode == wasm.OpLoop:
		e.execBlockEnter(frame, localIdx, ins)
	case ins.Opcode == wasm.OpIf:
		e.execIf(frame, localIdx, ins)
	case ins.Opcode == wasm.OpElse:
		e.execElse(frame, localIdx)
	case ins.Opcode == wasm.OpEnd:
		e.execEnd(frame)
	case ins.Opcode == wasm.OpBr:
		e.beginBranch(int(ins.Imm.(wasm.BranchImm).LabelIdx))
	case ins.Opcode == wasm.OpBrIf:
		e.execBrIf(ins)
	case ins.Opcode == wasm.OpBrTable:
		e.execBrTable(ins)
	case ins.Opcode == wasm.OpReturn:
		e.beginReturn(frame)
	case ins.Opcode == wasm.OpCall:
		e.execCall(frame, ins)
	case ins.Opcode == wasm.OpCallIndirect:
		e.execCallIndirect(frame, ins)
	case ins.Opcode == wasm.OpDrop:
		_, err := e.popValue()
		e.finish(err)
	case ins.Opcode == wasm.OpSelect || ins.Opcode == wasm.OpSelectType:
		e.execSelect()
	case ins.Opcode == wasm.OpLocalGet:
		e.execLocalGet(frame, ins)
	case ins.Opcode == wasm.OpLocalSet:
		e.execLocalSet(frame, ins, false)
	case ins.Opcode == wasm.OpLocalTee:
		e.execLocalSet(frame, ins, true)
	case ins.Opcode == wasm.OpGlobalGet:
		e.execGlobalGet(frame, ins)
	case ins.Opcode == wasm.OpGlobalSet:
		e.execGlobalSet(frame, ins)
	case ins.Opcode == wasm.OpTableGet:
		e.execTableGet(frame)
	case ins.Opcode == wasm.OpTableSet:
		e.execTableSet(frame)
	case ins.Opcode == wasm.OpRefNull:
		e.execRefNull(ins)
	case ins.Opcode == wasm.OpRefIsNull:
		e.execRefIsNull()
	case ins.Opcode == wasm.OpRefFunc:
		e.execRefFunc(ins)
	case ins.Opcode == wasm.OpRefAsNonNull:
		e.execRefAsNonNull()
	case ins.Opcode == wasm.OpRefEq:
		e.execRefEq()
	case isMemoryOp(ins.Opcode):
		e.execMemory(frame, ins)
	case isNumericOp(ins.Opcode):
		e.execNumeric(ins)
	default:
		e.fail(errors.Trap(errors.KindNotImplemented, "opcode not supported by the stackless interpreter"))
	}

	if exhausted && e.state == Running {
		e.state = Paused
	}
}

// finish advances pc on success or fails the engine with err.
func (e *Engine) finish(err error) {
	if err != nil {
		e.fail(err)
		return
	}
	e.pc++
}

// fuelKindFor maps an opcode to its metered cost bucket. Opcodes with no
// entry (most control-flow bookkeeping) are unmetered: they cost host
// cycles but no WebAssembly-visible fuel, mirroring how a real CPU's
// branch prediction is invisible to the program counter it's steering.
func fuelKindFor(op byte) (fuel.Kind, bool) {
	switch {
	case op == wasm.OpCall || op == wasm.OpCallIndirect:
		return fuel.KindFunctionCall, true
	case op == wasm.OpBr || op == wasm.OpBrIf || op == wasm.OpBrTable:
		return fuel.KindControlTransfer, true
	case isNumericOp(op):
		return fuel.KindArithmetic, true
	case isLoadOp(op):
		return loadFuelKind(op), true
	case isStoreOp(op):
		return storeFuelKind(op), true
	default:
		return 0, false
	}
}

func (e *Engine) execBlockEnter(frame *Frame, localIdx uint32, ins wasm.Instruction) {
	bt := ins.Imm.(wasm.BlockImm).Type
	target, ok := frame.Instance.blockTargetFor(localIdx, e.pc)
	if !ok {
		e.fail(errors.Trap(errors.KindInvalidLabel, "missing jump target for block/loop"))
		return
	}
	label := Label{StackBase: e.values.Len() - blockParamArity(frame.Instance, bt)}
	if ins.Opcode == wasm.OpLoop {
		label.IsLoop = true
		label.Arity = blockParamArity(frame.Instance, bt)
		label.Continuation = e.pc + 1
	} else {
		label.Arity = blockArity(frame.Instance, bt)
		label.Continuation = target.EndPC + 1
	}
	if err := e.labels.Push(label); err != nil {
		e.fail(errors.CapacityExceeded(errors.PhaseExecute, []string{"label_stack"}, e.labels.Cap()))
		return
	}
	e.pc++
}

func (e *Engine) execIf(frame *Frame, localIdx uint32, ins wasm.Instruction) {
	bt := ins.Imm.(wasm.BlockImm).Type
	target, ok := frame.Instance.blockTargetFor(localIdx, e.pc)
	if !ok {
		e.fail(errors.Trap(errors.KindInvalidLabel, "missing jump target for if"))
		return
	}
	cond, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	label := Label{
		Arity:        blockArity(frame.Instance, bt),
		Continuation: target.EndPC + 1,
		StackBase:    e.values.Len() - blockParamArity(frame.Instance, bt),
	}
	if err := e.labels.Push(label); err != nil {
		e.fail(errors.CapacityExceeded(errors.PhaseExecute, []string{"label_stack"}, e.labels.Cap()))
		return
	}
	if cond.I32() != 0 {
		e.pc++
		return
	}
	if target.ElsePC < 0 {
		// no else clause: the block produces no values, jump straight past end
		e.pc = target.EndPC + 1
		e.labels.Pop()
		return
	}
	e.pc = target.ElsePC + 1
}

// execElse is only reached by falling through the then-branch to its
// matching else; it skips the else-block's body and behaves like end.
func (e *Engine) execElse(frame *Frame, localIdx uint32) {
	label, ok := e.labels.Get(e.labels.Len() - 1)
	if !ok {
		e.fail(errors.Trap(errors.KindInvalidLabel, "else with no active label"))
		return
	}
	e.labels.Pop()
	e.pc = label.Continuation
}

func (e *Engine) execEnd(frame *Frame) {
	if e.labels.Len() > frame.LabelBase {
		e.labels.Pop()
		e.pc++
		return
	}
	e.beginReturn(frame)
}

func (e *Engine) beginBranch(depth int) {
	e.branch = &pendingBranch{depth: depth}
	e.state = Branching
}

func (e *Engine) execBrIf(ins wasm.Instruction) {
	cond, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	if cond.I32() == 0 {
		e.pc++
		return
	}
	e.beginBranch(int(ins.Imm.(wasm.BranchImm).LabelIdx))
}

func (e *Engine) execBrTable(ins wasm.Instruction) {
	imm := ins.Imm.(wasm.BrTableImm)
	idxVal, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	idx := idxVal.U32()
	depth := imm.Default
	if idx < uint32(len(imm.Labels)) {
		depth = imm.Labels[idx]
	}
	e.beginBranch(int(depth))
}

// performBranch is the Branching state's half: unwind the value and
// label stacks to the resolved target, preserving the target label's
// arity worth of values, then resume at its continuation.
func (e *Engine) performBranch() {
	b := e.branch
	e.branch = nil
	idx := e.labels.Len() - 1 - b.depth
	label, ok := e.labels.Get(idx)
	if !ok {
		e.fail(errors.Trap(errors.KindInvalidBranch, "branch target out of range"))
		return
	}
	vals, err := e.popN(label.Arity)
	if err != nil {
		e.fail(err)
		return
	}
	for e.values.Len() > label.StackBase {
		e.values.Pop()
	}
	for _, v := range vals {
		if err := e.pushValue(v); err != nil {
			e.fail(err)
			return
		}
	}
	if label.IsLoop {
		for e.labels.Len() > idx+1 {
			e.labels.Pop()
		}
	} else {
		for e.labels.Len() > idx {
			e.labels.Pop()
		}
	}
	e.pc = label.Continuation
	e.state = Running
}

func (e *Engine) beginReturn(frame *Frame) {
	vals, err := e.popN(frame.ResultArity)
	if err != nil {
		e.fail(err)
		return
	}
	e.ret = &pendingReturn{vals: vals}
	e.state = Returning
}

// performReturn is the Returning state's half: pop the current frame,
// either completing the call (no frames left) or resuming the caller
// with the computed results pushed onto its operand stack.
func (e *Engine) performReturn() {
	frame, ok := e.frames.Pop()
	if !ok {
		e.fail(errors.Trap(errors.KindFunctionNotFound, "return with no active frame"))
		return
	}
	for e.labels.Len() > frame.LabelBase {
		e.labels.Pop()
	}
	ret := e.ret
	e.ret = nil
	if e.frames.Len() == 0 {
		e.results = ret.vals
		e.state = Completed
		return
	}
	for _, v := range ret.vals {
		if err := e.pushValue(v); err != nil {
			e.fail(err)
			return
		}
	}
	e.pc = frame.ReturnPC
	e.state = Running
}

func (e *Engine) execCall(frame *Frame, ins wasm.Instruction) {
	funcIdx := ins.Imm.(wasm.CallImm).FuncIdx
	ft := frame.Instance.Module.GetFuncType(funcIdx)
	if ft == nil {
		e.fail(errors.Trap(errors.KindFunctionNotFound, "call target out of range"))
		return
	}
	args, err := e.popN(len(ft.Params))
	if err != nil {
		e.fail(err)
		return
	}
	e.pc++
	e.call = &pendingCall{inst: frame.Instance, funcIdx: funcIdx, args: args, resultArity: len(ft.Results)}
	e.state = Calling
}

func (e *Engine) execCallIndirect(frame *Frame, ins wasm.Instruction) {
	imm := ins.Imm.(wasm.CallIndirectImm)
	idxVal, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	idx := idxVal.I32()
	if idx < 0 || int(idx) >= len(frame.Instance.Table) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "call_indirect index out of table bounds"))
		return
	}
	elem := frame.Instance.Table[idx]
	if elem.IsNull() {
		e.fail(errors.Trap(errors.KindTrapUnreachable, "call_indirect through a null table entry"))
		return
	}
	targetFuncIdx, ok := elem.RefTarget().(uint32)
	if !ok {
		e.fail(errors.Trap(errors.KindTrapIndirectMismatch, "table entry does not hold a function reference"))
		return
	}
	wantFt := frame.Instance.Module.GetFuncType(targetFuncIdx)
	declaredFt := funcTypeByTypeIdx(frame.Instance.Module, imm.TypeIdx)
	if wantFt == nil || declaredFt == nil || !sameSignature(wantFt, declaredFt) {
		e.fail(errors.Trap(errors.KindTrapIndirectMismatch, "call_indirect signature mismatch"))
		return
	}
	args, err := e.popN(len(wantFt.Params))
	if err != nil {
		e.fail(err)
		return
	}
	e.pc++
	e.call = &pendingCall{inst: frame.Instance, funcIdx: targetFuncIdx, args: args, resultArity: len(wantFt.Results)}
	e.state = Calling
}

// funcTypeByTypeIdx resolves a call_indirect instruction's declared type
// index directly against the module's type section: unlike GetFuncType,
// typeIdx here already names a type, not a function whose type is looked
// up indirectly through Funcs. GC modules with TypeDefs are out of scope
// for this interpreter, so the flat Types slice is the only case handled.
func funcTypeByTypeIdx(mod *wasm.Module, typeIdx uint32) *wasm.FuncType {
	if int(typeIdx) >= len(mod.Types) {
		return nil
	}
	return &mod.Types[typeIdx]
}

func sameSignature(a, b *wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// performCall is the Calling state's half: push a new Frame for the
// resolved target and begin interpreting it at instruction 0.
func (e *Engine) performCall() {
	c := e.call
	e.call = nil
	numImported := uint32(c.inst.Module.NumImportedFuncs())
	if c.funcIdx < numImported {
		e.hostCall = &PendingHostCall{Instance: c.inst, FuncIdx: c.funcIdx, Args: c.args, ResultArity: c.resultArity}
		e.state = HostCall
		return
	}
	if err := e.pushFrame(c.inst, c.funcIdx, c.args, c.resultArity); err != nil {
		e.fail(err)
		return
	}
	e.pc = 0
	e.state = Running
}

func (e *Engine) execSelect() {
	cond, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	b, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	a, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	if cond.I32() != 0 {
		e.finish(e.pushValue(a))
	} else {
		e.finish(e.pushValue(b))
	}
}

func (e *Engine) execLocalGet(frame *Frame, ins wasm.Instruction) {
	idx := ins.Imm.(wasm.LocalImm).LocalIdx
	if int(idx) >= len(frame.Locals) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "local index out of range"))
		return
	}
	e.finish(e.pushValue(frame.Locals[idx]))
}

func (e *Engine) execLocalSet(frame *Frame, ins wasm.Instruction, tee bool) {
	idx := ins.Imm.(wasm.LocalImm).LocalIdx
	v, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	mut := e.currentFrameMut()
	if mut == nil || int(idx) >= len(mut.Locals) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "local index out of range"))
		return
	}
	mut.Locals[idx] = v
	if tee {
		e.finish(e.pushValue(v))
		return
	}
	e.pc++
}

func (e *Engine) execGlobalGet(frame *Frame, ins wasm.Instruction) {
	idx := ins.Imm.(wasm.GlobalImm).GlobalIdx
	if int(idx) >= len(frame.Instance.Globals) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "global index out of range"))
		return
	}
	e.finish(e.pushValue(frame.Instance.Globals[idx]))
}

func (e *Engine) execGlobalSet(frame *Frame, ins wasm.Instruction) {
	idx := ins.Imm.(wasm.GlobalImm).GlobalIdx
	v, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	if int(idx) >= len(frame.Instance.Globals) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "global index out of range"))
		return
	}
	frame.Instance.Globals[idx] = v
	e.pc++
}

func (e *Engine) execTableGet(frame *Frame) {
	idxVal, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	idx := idxVal.I32()
	if idx < 0 || int(idx) >= len(frame.Instance.Table) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "table index out of range"))
		return
	}
	e.finish(e.pushValue(frame.Instance.Table[idx]))
}

func (e *Engine) execTableSet(frame *Frame) {
	v, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	idxVal, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	idx := idxVal.I32()
	if idx < 0 || int(idx) >= len(frame.Instance.Table) {
		e.fail(errors.Trap(errors.KindOutOfBounds, "table index out of range"))
		return
	}
	frame.Instance.Table[idx] = v
	e.pc++
}

func (e *Engine) execRefNull(ins wasm.Instruction) {
	heapType := ins.Imm.(wasm.RefNullImm).HeapType
	t := wasm.ValExtern
	if heapType == wasm.HeapTypeFunc {
		t = wasm.ValFuncRef
	}
	e.finish(e.pushValue(RefNull(t)))
}

func (e *Engine) execRefIsNull() {
	v, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	result := int32(0)
	if v.IsNull() {
		result = 1
	}
	e.finish(e.pushValue(I32(result)))
}

func (e *Engine) execRefFunc(ins wasm.Instruction) {
	idx := ins.Imm.(wasm.RefFuncImm).FuncIdx
	e.finish(e.pushValue(FuncRef(idx)))
}

func (e *Engine) execRefAsNonNull() {
	v, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	if v.IsNull() {
		e.fail(errors.Trap(errors.KindTrapUnreachable, "ref.as_non_null on a null reference"))
		return
	}
	e.finish(e.pushValue(v))
}

func (e *Engine) execRefEq() {
	b, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	a, err := e.popValue()
	if err != nil {
		e.fail(err)
		return
	}
	result := int32(0)
	if a.IsNull() && b.IsNull() {
		result = 1
	} else if a.RefTarget() == b.RefTarget() {
		result = 1
	}
	e.finish(e.pushValue(I32(result)))
}
