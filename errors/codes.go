package errors

// Additional phases for the safety-critical core: scheduling, execution,
// fuel accounting, and safety-context validation sit outside the
// encode/decode/link pipeline the original Kind/Phase set was built for.
const (
	PhaseSchedule Phase = "schedule"
	PhaseExecute  Phase = "execute"
	PhaseFuel     Phase = "fuel"
	PhaseSafety   Phase = "safety"
)

// Additional kinds covering the error taxonomy of the safety-critical
// core: bounded-container capacity, fuel metering, integrity-level
// policy, capability-checked handles, traps, and async primitives.
const (
	KindCapacityExceeded      Kind = "capacity_exceeded"
	KindOutOfBudget           Kind = "out_of_budget"
	KindFuelExhausted         Kind = "fuel_exhausted"
	KindSafetyViolation       Kind = "safety_violation"
	KindCapabilityDenied      Kind = "capability_denied"
	KindHandleNotFound        Kind = "handle_not_found"
	KindHandleTypeMismatch    Kind = "handle_type_mismatch"
	KindResourceLimitExceeded Kind = "resource_limit_exceeded"
	KindStackUnderflow        Kind = "stack_underflow"
	KindStackOverflow         Kind = "stack_overflow"
	KindInvalidBranch         Kind = "invalid_branch"
	KindInvalidLabel          Kind = "invalid_label"
	KindFunctionNotFound      Kind = "function_not_found"
	KindTrapUnreachable       Kind = "trap_unreachable"
	KindTrapDivByZero         Kind = "trap_div_by_zero"
	KindTrapIntegerOverflow   Kind = "trap_integer_overflow"
	KindTrapIndirectMismatch  Kind = "trap_indirect_call_type_mismatch"
	KindComponentInstantiate  Kind = "component_instantiation"
	KindCanonicalABI          Kind = "canonical_abi"
	KindAsyncExecutorState    Kind = "async_executor_state"
	KindAsyncTimeout          Kind = "async_timeout"
	KindCancelled             Kind = "cancelled"
	KindNotImplemented        Kind = "not_implemented"
	KindDeadlineMiss          Kind = "deadline_miss"
	KindRecursionTooDeep      Kind = "recursion_too_deep"
)

// code assigns the stable numeric code used for cross-boundary
// reporting. Grouped by hundreds per taxonomy family so the embedder can
// bucket on integer division without a lookup table.
var code = map[Kind]int{
	KindTypeMismatch:   100,
	KindOutOfBounds:    101,
	KindInvalidData:    102,
	KindUnsupported:    103,
	KindAllocation:     104,
	KindFieldMissing:   105,
	KindFieldUnknown:   106,
	KindInvalidUTF8:    107,
	KindOverflow:       108,
	KindNilPointer:     109,
	KindInvalidEnum:    110,
	KindInvalidVariant: 111,
	KindMissingImport:  112,
	KindNotFound:       113,
	KindNotInitialized: 114,
	KindInvalidInput:   115,
	KindRegistration:   116,
	KindInstantiation:  117,

	KindCapacityExceeded:      200,
	KindOutOfBudget:           201,
	KindFuelExhausted:         300,
	KindSafetyViolation:       400,
	KindCapabilityDenied:      401,
	KindHandleNotFound:        500,
	KindHandleTypeMismatch:    501,
	KindResourceLimitExceeded: 502,
	KindStackUnderflow:        600,
	KindStackOverflow:         601,
	KindInvalidBranch:         602,
	KindInvalidLabel:          603,
	KindFunctionNotFound:      604,
	KindTrapUnreachable:       700,
	KindTrapDivByZero:         701,
	KindTrapIntegerOverflow:   702,
	KindTrapIndirectMismatch:  703,
	KindComponentInstantiate:  800,
	KindCanonicalABI:          801,
	KindAsyncExecutorState:    900,
	KindAsyncTimeout:          901,
	KindCancelled:             902,
	KindDeadlineMiss:          903,
	KindNotImplemented:        999,
	KindRecursionTooDeep:      204,
}

// Code returns the stable numeric code for this error's Kind, or 0 if the
// Kind predates this registry and was never assigned one.
func (e *Error) Code() int {
	return code[e.Kind]
}

// CapacityExceeded creates a bounded-container capacity error.
func CapacityExceeded(phase Phase, path []string, capacity int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacityExceeded,
		Path:   path,
		Detail: "capacity exceeded",
		Value:  capacity,
	}
}

// OutOfBudget creates a memory-provider budget exhaustion error.
func OutOfBudget(phase Phase, crateID string, requested int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBudget,
		Detail: "out of budget for crate " + crateID,
		Value:  requested,
	}
}

// FuelExhaustedErr creates a fuel-exhaustion error.
func FuelExhaustedErr(remaining int64) *Error {
	return &Error{
		Phase:  PhaseFuel,
		Kind:   KindFuelExhausted,
		Detail: "fuel exhausted",
		Value:  remaining,
	}
}

// RecursionTooDeep creates an error for a recursive parse (nested
// instance/component types, nested value types) that exceeded the
// depth cap a StrictProfile enforces against unbounded input.
func RecursionTooDeep(phase Phase, depth int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRecursionTooDeep,
		Detail: "recursion depth exceeds profile cap",
		Value:  depth,
	}
}

// SafetyViolation creates a terminal safety-context policy error.
func SafetyViolation(op string, detail string) *Error {
	return &Error{
		Phase:  PhaseSafety,
		Kind:   KindSafetyViolation,
		Detail: detail,
		Value:  op,
	}
}

// CapabilityDenied creates a handle access-check failure.
func CapabilityDenied(detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindCapabilityDenied,
		Detail: detail,
	}
}

// HandleNotFound creates a handle-lookup failure. Used for idempotent
// drop: the second drop of an already-dropped handle returns this.
func HandleNotFound(handle uint32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindHandleNotFound,
		Detail: "handle not found",
		Value:  handle,
	}
}

// HandleTypeMismatch creates a handle type-identity mismatch error.
func HandleTypeMismatch(want, got uint32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindHandleTypeMismatch,
		Detail: "handle type mismatch",
		Value:  [2]uint32{want, got},
	}
}

// Trap creates a stackless-engine trap error of the given kind.
func Trap(kind Kind, detail string) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   kind,
		Detail: detail,
	}
}

// AsyncTimeoutErr creates a waitable-set timeout error.
func AsyncTimeoutErr(detail string) *Error {
	return &Error{
		Phase:  PhaseSchedule,
		Kind:   KindAsyncTimeout,
		Detail: detail,
	}
}

// CancelledErr creates a task-cancellation error. Idempotent: cancelling
// an already-terminal task still returns this rather than panicking.
func CancelledErr(taskID uint32) *Error {
	return &Error{
		Phase:  PhaseSchedule,
		Kind:   KindCancelled,
		Detail: "task cancelled",
		Value:  taskID,
	}
}
