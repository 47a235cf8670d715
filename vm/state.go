package vm

// State is the engine's current execution phase, advanced one transition
// per Step.
type State uint8

const (
	// Running is the steady state: Step decodes and executes the next
	// instruction at the current frame's program counter.
	Running State = iota
	// Paused holds execution between host-function calls or yields; pc,
	// the active instance/function and the expected result count are
	// preserved in the current frame so Resume can pick up exactly here.
	Paused
	// Calling means a call/call_indirect popped its arguments and is
	// about to push a new Frame; Step performs the push on the next tick.
	Calling
	// HostCall means a call/call_indirect resolved to an imported
	// function rather than a local one: PendingHostCall names the
	// target and arguments, and Step returns false until the driver
	// reports the outcome via ResumeHostCall or FailHostCall.
	HostCall
	// Returning means the current function's results are computed and
	// its Frame is about to be popped, resuming the caller.
	Returning
	// Branching means a br/br_if/br_table/end target has been resolved
	// and the label/value stacks are about to be unwound to it.
	Branching
	// Completed means the outermost call has returned with no more
	// frames left; Results holds the final values.
	Completed
	// Error means a trap occurred; Err holds the cause.
	Error
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Calling:
		return "calling"
	case HostCall:
		return "host_call"
	case Returning:
		return "returning"
	case Branching:
		return "branching"
	case Completed:
		return "completed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
