package vm

// Label is a control-flow marker pushed by block/loop/if and popped by
// end or by a branch that targets it. Continuation is the instruction
// index execution resumes at: the matching end for block/if, the loop's
// own first instruction for loop (so a branch to a loop repeats it).
type Label struct {
	Arity        int // number of values live across this label on a branch
	Continuation int
	IsLoop       bool
	StackBase    int // value-stack depth at the point the label was pushed
}

// Frame is one call's activation record: its function, locals, the
// module instance it executes against, and where to resume the caller.
type Frame struct {
	FuncIdx     uint32
	Locals      []Value
	Instance    *Instance
	ReturnPC    int
	LabelBase   int // label-stack depth at call entry, so return unwinds only this call's labels
	ResultArity int
}

// localIdx returns the function's index into Instance.Module.Code, valid
// only for frames pushed via pushFrame (which rejects imported functions).
func (f *Frame) localIdx() uint32 {
	return f.FuncIdx - uint32(f.Instance.Module.NumImportedFuncs())
}

// blockArity returns the number of values a block type produces, used as
// a label's Arity.
func blockArity(inst *Instance, bt int32) int {
	switch {
	case bt == -64:
		return 0
	case bt < 0:
		return 1 // single value type encoded as a negative valtype byte
	default:
		ft := inst.Module.GetFuncType(uint32(bt))
		if ft == nil {
			return 0
		}
		return len(ft.Results)
	}
}

// blockParamArity returns the number of values a block type consumes on
// entry (0 for void and single-value block types, which never take
// operands per the core spec's block type encoding).
func blockParamArity(inst *Instance, bt int32) int {
	if bt < 0 {
		return 0
	}
	ft := inst.Module.GetFuncType(uint32(bt))
	if ft == nil {
		return 0
	}
	return len(ft.Params)
}
