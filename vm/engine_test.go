package vm_test

import (
	"testing"

	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
	"github.com/wippyai/wasm-runtime/vm"
	"github.com/wippyai/wasm-runtime/wasm"
)

func addOneModule() *wasm.Module {
	// (func (param i32 i32) (result i32) local.get 0, local.get 1, i32.add)
	code := cat(
		[]byte{wasm.OpLocalGet}, uleb(0),
		[]byte{wasm.OpLocalGet}, uleb(1),
		[]byte{wasm.OpI32Add},
		[]byte{wasm.OpEnd},
	)
	return newModule(
		[]wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		[]uint32{0},
		[]wasm.FuncBody{newBody(code)},
	)
}

func TestEngineRunAddsTwoOperands(t *testing.T) {
	inst := newInstance(addOneModule())
	results := runFunc(t, inst, 0, vm.I32(3), vm.I32(4))
	if len(results) != 1 || results[0].I32() != 7 {
		t.Fatalf("results = %v, want [7]", results)
	}
}

func TestEngineFreshlyConstructedIsCompleted(t *testing.T) {
	e := newEngine()
	if e.State() != vm.Completed {
		t.Errorf("State() = %v, want Completed before any Call", e.State())
	}
}

func TestCallUnknownFunctionIndex(t *testing.T) {
	inst := newInstance(addOneModule())
	e := newEngine()
	err := e.Call(inst, 99, nil)
	if err == nil {
		t.Fatal("expected an error calling an out-of-range function index")
	}
	trapErr, ok := err.(*errors.Error)
	if !ok || trapErr.Kind != errors.KindFunctionNotFound {
		t.Errorf("err = %v, want KindFunctionNotFound", err)
	}
	// Call validates the function index before touching engine state, so
	// an engine that was never given a valid call stays Completed.
	if e.State() != vm.Completed {
		t.Errorf("State() = %v, want Completed", e.State())
	}
}

func TestStackUnderflowTraps(t *testing.T) {
	// i32.add with nothing pushed onto the operand stack first.
	code := cat([]byte{wasm.OpI32Add}, []byte{wasm.OpEnd})
	m := newModule(
		[]wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		[]uint32{0},
		[]wasm.FuncBody{newBody(code)},
	)
	inst := newInstance(m)

	_, err := runFuncErr(t, inst, 0)
	if err == nil {
		t.Fatal("expected a stack underflow trap")
	}
	trapErr, ok := err.(*errors.Error)
	if !ok || trapErr.Kind != errors.KindStackUnderflow {
		t.Errorf("err = %v, want KindStackUnderflow", err)
	}
}

func TestOperandStackOverflowTraps(t *testing.T) {
	code := cat(
		[]byte{wasm.OpI32Const}, sleb(1),
		[]byte{wasm.OpI32Const}, sleb(2),
		[]byte{wasm.OpDrop},
		[]byte{wasm.OpDrop},
		[]byte{wasm.OpEnd},
	)
	m := newModule(
		[]wasm.FuncType{{}},
		[]uint32{0},
		[]wasm.FuncBody{newBody(code)},
	)
	inst := newInstance(m)

	e := vm.NewEngine(nil, vm.Limits{MaxValueStack: 1, MaxLabelStack: 8, MaxFrameStack: 8}, testProvider())
	if err := e.Call(inst, 0, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	_, err := e.Run()
	if err == nil {
		t.Fatal("expected a stack overflow trap pushing a second value onto a capacity-1 stack")
	}
	trapErr, ok := err.(*errors.Error)
	if !ok || trapErr.Kind != errors.KindStackOverflow {
		t.Errorf("err = %v, want KindStackOverflow", err)
	}
}

func TestFuelExhaustionPausesAfterTheChargingInstruction(t *testing.T) {
	// Two i32.const instructions, each charging 1 fuel (KindArithmetic)
	// against a 2-unit budget: the second charge drives the ledger to
	// exactly zero, so the engine must still finish pushing that
	// instruction's value before pausing.
	code := cat(
		[]byte{wasm.OpI32Const}, sleb(10),
		[]byte{wasm.OpI32Const}, sleb(20),
		[]byte{wasm.OpI32Add},
		[]byte{wasm.OpEnd},
	)
	m := newModule(
		[]wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		[]uint32{0},
		[]wasm.FuncBody{newBody(code)},
	)
	inst := newInstance(m)

	ledger := fuel.NewLedger(2, fuel.DefaultCosts)
	e := vm.NewEngine(ledger, vm.DefaultLimits(), testProvider())
	if err := e.Call(inst, 0, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if !e.Step() { // i32.const 10: charges fuel 1, remaining 1, stays Running
		t.Fatal("Step() returned false too early")
	}
	if e.State() != vm.Running {
		t.Fatalf("State() after first const = %v, want Running", e.State())
	}

	if !e.Step() { // i32.const 20: charges fuel 1, remaining 0, pauses
		t.Fatal("Step() returned false too early")
	}
	if e.State() != vm.Paused {
		t.Fatalf("State() after second const = %v, want Paused", e.State())
	}

	// Drive the rest of the function to completion; the instruction that
	// exhausted fuel already ran, so nothing here should be skipped.
	results, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].I32() != 30 {
		t.Fatalf("results = %v, want [30]", results)
	}
}
