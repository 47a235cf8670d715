package vm

import (
	"github.com/wippyai/wasm-runtime/bounded"
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
)

// Limits bounds the engine's three stacks, the host-stack-free
// equivalent of a recursive interpreter's native stack depth.
type Limits struct {
	MaxValueStack int
	MaxLabelStack int
	MaxFrameStack int
}

// DefaultLimits mirrors the scheduler's own order-of-magnitude defaults:
// generous enough for realistic module bodies, small enough to fail fast
// on a runaway recursive function instead of exhausting host memory.
func DefaultLimits() Limits {
	return Limits{MaxValueStack: 4096, MaxLabelStack: 256, MaxFrameStack: 256}
}

// pendingCall captures a call/call_indirect instruction's resolved
// target between the Calling state's two steps: the step that resolves
// it and the step that pushes the new Frame.
type pendingCall struct {
	inst        *Instance
	funcIdx     uint32
	args        []Value
	resultArity int
}

// pendingBranch captures a resolved branch target between the
// Branching state's two steps.
type pendingBranch struct {
	depth int
}

// pendingReturn captures a function's result values between the
// Returning state's two steps: the step that computes them and the step
// that pops the frame and hands them to the caller (or to Results, for
// the outermost frame).
type pendingReturn struct {
	vals []Value
}

// PendingHostCall is the information the engine exposes once a
// call/call_indirect resolves to an imported function: the driver one
// level up (the runtime facade) owns the import table the interpreter
// deliberately has no notion of, so it resolves FuncIdx, invokes the
// host function with Args, and reports back through ResumeHostCall.
type PendingHostCall struct {
	Instance    *Instance
	FuncIdx     uint32
	Args        []Value
	ResultArity int
}

// Engine interprets one function call tree with bounded, non-recursive
// host stack use. Grounded on the decode shape in wasm/instruction.go and
// the state machine of the original stackless interpreter; expressed as
// a small struct over an opaque-to-callers backend, the same shape the
// runtime facade gives its own embedded engine.
type Engine struct {
	values *bounded.Sequence[Value]
	labels *bounded.Sequence[Label]
	frames *bounded.Sequence[Frame]

	ledger *fuel.Ledger
	state  State
	pc     int

	call     *pendingCall
	hostCall *PendingHostCall
	branch   *pendingBranch
	ret      *pendingReturn
	results  []Value
	err      error

	alignmentMismatches int
}

// NewEngine creates an Engine bounded by limits and metered by ledger.
// provider backs the three interpreter stacks: a bounded.DynamicProvider
// at safety.LevelQM/LevelA, a bounded.StaticProvider at higher integrity
// levels where host allocation after initialization is forbidden.
func NewEngine(ledger *fuel.Ledger, limits Limits, provider bounded.Provider) *Engine {
	return &Engine{
		values: bounded.NewSequence[Value](provider, limits.MaxValueStack),
		labels: bounded.NewSequence[Label](provider, limits.MaxLabelStack),
		frames: bounded.NewSequence[Frame](provider, limits.MaxFrameStack),
		ledger: ledger,
		state:  Completed, // no call in flight until Call is invoked
	}
}

// State returns the engine's current execution phase.
func (e *Engine) State() State { return e.state }

// Err returns the trap that put the engine in the Error state, or nil.
func (e *Engine) Err() error { return e.err }

// Results returns the final return values once State is Completed.
func (e *Engine) Results() []Value { return e.results }

// Call begins interpreting funcIdx in inst with args as its arguments.
// The engine must be Completed or freshly constructed; call Step
// repeatedly afterward to drive execution to completion.
func (e *Engine) Call(inst *Instance, funcIdx uint32, args []Value) error {
	ft := inst.Module.GetFuncType(funcIdx)
	if ft == nil {
		return errors.Trap(errors.KindFunctionNotFound, "function index out of range")
	}
	e.err = nil
	e.results = nil
	if err := e.pushFrame(inst, funcIdx, args, len(ft.Results)); err != nil {
		e.fail(err)
		return err
	}
	e.state = Running
	e.pc = 0
	return nil
}

// Step advances the engine by exactly one state transition: decoding and
// executing one instruction in Running, or completing one half of a
// pending call/return/branch otherwise. Returns false once State is
// Completed or Error, at which point further calls are no-ops, and also
// while State is HostCall, since that state can only be left by the
// driver calling ResumeHostCall or FailHostCall.
func (e *Engine) Step() bool {
	switch e.state {
	case Completed, Error, HostCall:
		return false
	case Calling:
		e.performCall()
	case Returning:
		e.performReturn()
	case Branching:
		e.performBranch()
	case Running:
		e.stepOne()
	case Paused:
		e.state = Running
	}
	return e.state != Completed && e.state != Error
}

// Run drives Step to completion, a convenience for callers that do not
// need instruction-granular interleaving.
func (e *Engine) Run() ([]Value, error) {
	for e.Step() {
	}
	if e.state == Error {
		return nil, e.err
	}
	return e.results, nil
}

func (e *Engine) fail(err error) {
	e.err = err
	e.state = Error
}

// PendingHostCall returns the import call the engine is waiting on, or
// nil when State is not HostCall.
func (e *Engine) PendingHostCall() *PendingHostCall {
	if e.state != HostCall {
		return nil
	}
	return e.hostCall
}

// ResumeHostCall supplies the results of a pending host call, pushes
// them onto the caller's operand stack, and returns the engine to
// Running so Step picks up right after the call/call_indirect
// instruction that triggered it. It is an error to call this when State
// is not HostCall, or with a result count other than the pending call's
// ResultArity.
func (e *Engine) ResumeHostCall(results []Value) error {
	if e.state != HostCall || e.hostCall == nil {
		return errors.Trap(errors.KindFunctionNotFound, "ResumeHostCall with no pending host call")
	}
	c := e.hostCall
	if len(results) != c.ResultArity {
		err := errors.Trap(errors.KindCanonicalABI, "host call returned the wrong number of results")
		e.fail(err)
		return err
	}
	e.hostCall = nil
	for _, v := range results {
		if err := e.pushValue(v); err != nil {
			e.fail(err)
			return err
		}
	}
	e.state = Running
	return nil
}

// FailHostCall aborts the in-flight call tree with err, the host-call
// counterpart of a trap raised from within the interpreter itself.
func (e *Engine) FailHostCall(err error) {
	e.hostCall = nil
	e.fail(err)
}

func (e *Engine) currentFrame() *Frame {
	f, ok := e.frames.Get(e.frames.Len() - 1)
	if !ok {
		return nil
	}
	return &f
}

func (e *Engine) currentFrameMut() *Frame {
	fr, ok := e.frames.GetMut(e.frames.Len() - 1)
	if !ok {
		return nil
	}
	return fr
}

func (e *Engine) pushFrame(inst *Instance, funcIdx uint32, args []Value, resultArity int) error {
	locals, err := localsFor(inst, funcIdx, args)
	if err != nil {
		return err
	}
	frame := Frame{
		FuncIdx:     funcIdx,
		Locals:      locals,
		Instance:    inst,
		ReturnPC:    e.pc,
		LabelBase:   e.labels.Len(),
		ResultArity: resultArity,
	}
	if err := e.frames.Push(frame); err != nil {
		return errors.CapacityExceeded(errors.PhaseExecute, []string{"call_stack"}, e.frames.Cap())
	}
	return nil
}

// localsFor builds a function's initial local slots: arguments, followed
// by zero-valued declared locals per the core spec's zero-init rule.
func localsFor(inst *Instance, funcIdx uint32, args []Value) ([]Value, error) {
	numImported := uint32(inst.Module.NumImportedFuncs())
	if funcIdx < numImported {
		return nil, errors.Trap(errors.KindFunctionNotFound, "cannot interpret an imported function directly")
	}
	localIdx := funcIdx - numImported
	if int(localIdx) >= len(inst.Module.Code) {
		return nil, errors.Trap(errors.KindFunctionNotFound, "function body not found")
	}
	body := inst.Module.Code[localIdx]

	locals := make([]Value, 0, len(args)+len(body.Locals))
	locals = append(locals, args...)
	for _, decl := range body.Locals {
		for i := uint32(0); i < decl.Count; i++ {
			locals = append(locals, zeroFor(decl.ValType))
		}
	}
	return locals, nil
}

func (e *Engine) pushValue(v Value) error {
	if err := e.values.Push(v); err != nil {
		return errors.Trap(errors.KindStackOverflow, "operand stack overflow")
	}
	return nil
}

func (e *Engine) popValue() (Value, error) {
	v, ok := e.values.Pop()
	if !ok {
		return Value{}, errors.Trap(errors.KindStackUnderflow, "operand stack underflow")
	}
	return v, nil
}

// popN pops n values off the operand stack and returns them in their
// original (bottom-to-top) order, for passing as call arguments or
// function results.
func (e *Engine) popN(n int) ([]Value, error) {
	vals := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := e.popValue()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (e *Engine) chargeFuel(kind fuel.Kind) error {
	if e.ledger == nil {
		return nil
	}
	if err := e.ledger.Charge(kind); err != nil {
		return err
	}
	return nil
}

// AlignmentMismatches returns the number of memory accesses whose
// declared alignment exceeded the natural alignment of the access width;
// diagnostic only, counted for audit rather than trapped.
func (e *Engine) AlignmentMismatches() int { return e.alignmentMismatches }
