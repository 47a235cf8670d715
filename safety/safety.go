package safety

import (
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/platform"
)

// Level is the automotive integrity level, increasing in strictness.
type Level uint8

const (
	LevelQM Level = iota
	LevelA
	LevelB
	LevelC
	LevelD
)

func (l Level) String() string {
	switch l {
	case LevelQM:
		return "QM"
	case LevelA:
		return "A"
	case LevelB:
		return "B"
	case LevelC:
		return "C"
	case LevelD:
		return "D"
	default:
		return "unknown"
	}
}

// Standard names the functional-safety standard a Level is interpreted
// under (e.g. ISO 26262 for automotive). Kept as an opaque string since the
// core does not need to parse it, only report it to the embedder.
type Standard string

const StandardISO26262 Standard = "ISO-26262"

// VerificationLevel governs the cost of runtime self-checks.
type VerificationLevel uint8

const (
	VerificationNone VerificationLevel = iota
	VerificationSampling
	VerificationContinuous
)

// OperationKind enumerates the operations Validate classifies.
type OperationKind uint8

const (
	OpMemoryAlloc OperationKind = iota
	OpInstantiateComponent
	OpDebug
	OpRealtime
	OpFSAccess
	OpNetAccess
	OpDynamicAllocAfterInit
)

// Operation is a concrete request to Validate: a kind plus, for
// OpMemoryAlloc, the requested size in bytes.
type Operation struct {
	Kind OperationKind
	Size int
}

// policyRow is one row of the non-exhaustive per-level policy table.
type policyRow struct {
	maxAllocation  int // bytes; 0 means platform max (no ceiling enforced here)
	debugAllowed   bool
	dynamicAllocOK bool // after init
	fsNetAllowed   bool
}

var policy = map[Level]policyRow{
	LevelQM: {maxAllocation: 0, debugAllowed: true, dynamicAllocOK: true, fsNetAllowed: true},
	LevelA:  {maxAllocation: 0, debugAllowed: true, dynamicAllocOK: true, fsNetAllowed: true},
	LevelB:  {maxAllocation: 1 << 20, debugAllowed: false, dynamicAllocOK: true, fsNetAllowed: false},
	LevelC:  {maxAllocation: 256 << 10, debugAllowed: false, dynamicAllocOK: false, fsNetAllowed: false},
	LevelD:  {maxAllocation: 128 << 10, debugAllowed: false, dynamicAllocOK: false, fsNetAllowed: false},
}

// Context carries the active safety policy.
type Context struct {
	level        Level
	standard     Standard
	verification VerificationLevel
	initDone     bool
}

// NewContext creates a Context for the given level/standard/verification.
// The context starts in its "initialization" phase; call FinishInit once
// startup allocation is complete so OpDynamicAllocAfterInit policing takes
// effect at LevelC/LevelD.
func NewContext(level Level, standard Standard, verification VerificationLevel) *Context {
	return &Context{level: level, standard: standard, verification: verification}
}

// FinishInit marks initialization complete; dynamic allocation requests at
// LevelC/LevelD are rejected from this point on.
func (c *Context) FinishInit() { c.initDone = true }

// Level returns the active integrity level.
func (c *Context) Level() Level { return c.level }

// Standard returns the interpreting standard.
func (c *Context) Standard() Standard { return c.standard }

// Verification returns the configured verification level.
func (c *Context) Verification() VerificationLevel { return c.verification }

// Validate enforces the per-level policy table, returning a
// SafetyViolation error (terminal for the calling operation) when op is
// rejected, or nil when admissible.
func (c *Context) Validate(op Operation) error {
	row := policy[c.level]

	switch op.Kind {
	case OpMemoryAlloc:
		if row.maxAllocation > 0 && op.Size > row.maxAllocation {
			return errors.SafetyViolation("memory-alloc",
				"allocation size exceeds integrity-level ceiling")
		}
	case OpDynamicAllocAfterInit:
		if c.initDone && !row.dynamicAllocOK {
			return errors.SafetyViolation("dynamic-alloc-after-init",
				"dynamic allocation after initialization is forbidden at level "+c.level.String())
		}
	case OpDebug:
		if !row.debugAllowed {
			return errors.SafetyViolation("debug-op",
				"debug operations are rejected at level "+c.level.String())
		}
	case OpFSAccess, OpNetAccess:
		if !row.fsNetAllowed {
			return errors.SafetyViolation("fs-net-access",
				"filesystem/network access rejected at level "+c.level.String())
		}
	case OpInstantiateComponent, OpRealtime:
		// No level rejects these outright in the non-exhaustive table;
		// present for completeness and future tightening.
	}
	return nil
}

// FeatureSet reports the platform feature subset admissible at a
// context's level: SIMD and reference types are forbidden at LevelB and
// stricter.
type FeatureSet struct {
	SIMD           bool
	ReferenceTypes bool
	NativeAtomics  bool
	GuardPages     bool
	VirtualMemory  bool
}

// AllowedFeatures reports which of plat's features remain usable under
// c's integrity level.
func (c *Context) AllowedFeatures(plat platform.Platform) FeatureSet {
	strict := c.level >= LevelB
	return FeatureSet{
		SIMD:           !strict,
		ReferenceTypes: !strict,
		NativeAtomics:  plat.Features().Has(platform.FeatureNativeAtomics),
		GuardPages:     plat.Features().Has(platform.FeatureGuardPages),
		VirtualMemory:  plat.Features().Has(platform.FeatureVirtualMemory),
	}
}

// ContainerCapacityDefault returns the default bounded-container capacity
// hint for a given nominal (QM) capacity, tightened at higher integrity
// levels.
func (c *Context) ContainerCapacityDefault(nominal int) int {
	switch c.level {
	case LevelD:
		return nominal / 4
	case LevelC:
		return nominal / 2
	case LevelB:
		return (nominal * 3) / 4
	default:
		return nominal
	}
}
