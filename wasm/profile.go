package wasm

import (
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/safety"
)

// Severity classifies a StrictProfile finding.
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityFatal
)

// Issue is one structured StrictProfile finding, collected rather than
// raised immediately so a caller can see every problem a module has, not
// just the first one Validate happened to trip over.
type Issue struct {
	Detail   string
	Code     string
	Section  string
	FuncIdx  int // -1 when the issue is not function-scoped
	Offset   int // byte offset within the section, -1 when unknown
	Severity Severity
}

// ProfileLimits is the platform/integrity-level-derived set of structural
// ceilings a StrictProfile enforces against a decoded Module. Named
// distinctly from the wire-format Limits (table/memory min/max) it bounds
// counts of, not size ranges within, module structures.
type ProfileLimits struct {
	MaxFuncs            int
	MaxTypes            int
	MaxGlobals          int
	MaxTables           int
	MaxMemories         int
	MaxPages            uint64
	MaxTableSize        uint64
	MaxBodySize         int
	MaxLocals           int
	MaxImports          int
	MaxExports          int
	MaxControlDepth     int
	MaxBranchTableSize  int
	AllowSIMD           bool
	AllowReferenceTypes bool
}

// DefaultProfileLimits is a generous, QM-equivalent ceiling table, meant
// as a starting point for callers that only need to tighten a few fields
// for a stricter integrity level.
func DefaultProfileLimits() ProfileLimits {
	return ProfileLimits{
		MaxFuncs:            1 << 20,
		MaxTypes:            1 << 20,
		MaxGlobals:          1 << 16,
		MaxTables:           256,
		MaxMemories:         16,
		MaxPages:            65536,
		MaxTableSize:        1 << 20,
		MaxBodySize:         1 << 20,
		MaxLocals:           50000,
		MaxImports:          1 << 16,
		MaxExports:          1 << 16,
		MaxControlDepth:     1024,
		MaxBranchTableSize:  1 << 16,
		AllowSIMD:           true,
		AllowReferenceTypes: true,
	}
}

// StrictProfile pairs a ProfileLimits ceiling table with the checks run
// against a decoded Module.
type StrictProfile struct {
	Limits ProfileLimits
}

// NewStrictProfile builds a profile from an explicit ProfileLimits table.
func NewStrictProfile(limits ProfileLimits) StrictProfile {
	return StrictProfile{Limits: limits}
}

// ProfileFromSafetyContext derives a StrictProfile from an active
// integrity-level context: container-capacity defaults tighten per
// ctx.ContainerCapacityDefault, and SIMD/reference types follow
// ctx.AllowedFeatures rather than being independently configured, so a
// single source of truth (the safety.Context) governs both the bounded
// containers built at runtime and the structural ceilings enforced at
// decode time.
func ProfileFromSafetyContext(ctx *safety.Context, plat safety.FeatureSet) StrictProfile {
	base := DefaultProfileLimits()
	tighten := func(n int) int { return ctx.ContainerCapacityDefault(n) }

	limits := ProfileLimits{
		MaxFuncs:            tighten(base.MaxFuncs),
		MaxTypes:             tighten(base.MaxTypes),
		MaxGlobals:           tighten(base.MaxGlobals),
		MaxTables:            tighten(base.MaxTables),
		MaxMemories:          base.MaxMemories,
		MaxPages:             base.MaxPages,
		MaxTableSize:         uint64(tighten(int(base.MaxTableSize))),
		MaxBodySize:          tighten(base.MaxBodySize),
		MaxLocals:            tighten(base.MaxLocals),
		MaxImports:           tighten(base.MaxImports),
		MaxExports:           tighten(base.MaxExports),
		MaxControlDepth:      tighten(base.MaxControlDepth),
		MaxBranchTableSize:   tighten(base.MaxBranchTableSize),
		AllowSIMD:            plat.SIMD,
		AllowReferenceTypes:  plat.ReferenceTypes,
	}
	return NewStrictProfile(limits)
}

// Check walks m against p's ceilings, collecting one Issue per violation.
// Unlike Validate, Check never aborts early: the caller decides, by
// inspecting Severity, whether a given Issue is fatal for the active
// integrity level.
func (p StrictProfile) Check(m *Module) []Issue {
	var issues []Issue
	note := func(sev Severity, code, section string, funcIdx, offset int, detail string) {
		issues = append(issues, Issue{Severity: sev, Code: code, Section: section, FuncIdx: funcIdx, Offset: offset, Detail: detail})
	}

	if n := m.NumTypes(); n > p.Limits.MaxTypes {
		note(SeverityFatal, "too_many_types", "type", -1, -1, "type count exceeds profile ceiling")
	}
	if n := len(m.Funcs); n > p.Limits.MaxFuncs {
		note(SeverityFatal, "too_many_funcs", "function", -1, -1, "function count exceeds profile ceiling")
	}
	if n := len(m.Globals); n > p.Limits.MaxGlobals {
		note(SeverityFatal, "too_many_globals", "global", -1, -1, "global count exceeds profile ceiling")
	}
	if n := len(m.Tables); n > p.Limits.MaxTables {
		note(SeverityFatal, "too_many_tables", "table", -1, -1, "table count exceeds profile ceiling")
	}
	if n := len(m.Memories); n > p.Limits.MaxMemories {
		note(SeverityFatal, "too_many_memories", "memory", -1, -1, "memory count exceeds profile ceiling")
	}
	if n := len(m.Imports); n > p.Limits.MaxImports {
		note(SeverityFatal, "too_many_imports", "import", -1, -1, "import count exceeds profile ceiling")
	}
	if n := len(m.Exports); n > p.Limits.MaxExports {
		note(SeverityFatal, "too_many_exports", "export", -1, -1, "export count exceeds profile ceiling")
	}

	for i, mem := range m.Memories {
		if mem.Limits.Min > p.Limits.MaxPages {
			note(SeverityFatal, "memory_min_too_large", "memory", i, -1, "memory minimum page count exceeds profile ceiling")
		}
		if mem.Limits.Max != nil && *mem.Limits.Max > p.Limits.MaxPages {
			note(SeverityFatal, "memory_max_too_large", "memory", i, -1, "memory maximum page count exceeds profile ceiling")
		}
	}
	for i, tbl := range m.Tables {
		if tbl.Limits.Min > p.Limits.MaxTableSize {
			note(SeverityFatal, "table_too_large", "table", i, -1, "table minimum size exceeds profile ceiling")
		}
	}

	for i, body := range m.Code {
		if len(body.Code) > p.Limits.MaxBodySize {
			note(SeverityFatal, "body_too_large", "code", i, -1, "function body size exceeds profile ceiling")
		}
		localCount := 0
		for _, l := range body.Locals {
			localCount += int(l.Count)
		}
		if localCount > p.Limits.MaxLocals {
			note(SeverityFatal, "too_many_locals", "code", i, -1, "declared local count exceeds profile ceiling")
		}

		instrs, err := DecodeInstructions(body.Code)
		if err != nil {
			// Malformed code is Validate's job to reject outright; Check
			// only scans bodies that already decoded cleanly.
			continue
		}
		p.scanInstructions(instrs, i, note)
	}

	return issues
}

func (p StrictProfile) scanInstructions(instrs []Instruction, funcIdx int, note func(Severity, string, string, int, int, string)) {
	depth := 0
	for pc, ins := range instrs {
		switch ins.Opcode {
		case OpBlock, OpLoop, OpIf:
			depth++
			if depth > p.Limits.MaxControlDepth {
				note(SeverityFatal, "control_too_deep", "code", funcIdx, pc, "nested control depth exceeds profile ceiling")
			}
		case OpEnd:
			if depth > 0 {
				depth--
			}
		case OpBrTable:
			if bt, ok := ins.Imm.(BrTableImm); ok && len(bt.Labels) > p.Limits.MaxBranchTableSize {
				note(SeverityFatal, "branch_table_too_large", "code", funcIdx, pc, "br_table label count exceeds profile ceiling")
			}
		case OpPrefixSIMD:
			if !p.Limits.AllowSIMD {
				note(SeverityWarning, "simd_disallowed", "code", funcIdx, pc, "SIMD instruction present under a profile that forbids it")
			}
		case OpRefNull, OpRefIsNull, OpRefFunc:
			if !p.Limits.AllowReferenceTypes {
				note(SeverityWarning, "reference_type_disallowed", "code", funcIdx, pc, "reference-type instruction present under a profile that forbids it")
			}
		}
	}
}

// Enforce runs Check and returns the first Fatal issue as a structured
// error, or nil if every issue (if any) was a Warning.
func (p StrictProfile) Enforce(m *Module) error {
	for _, issue := range p.Check(m) {
		if issue.Severity == SeverityFatal {
			return errors.CapacityExceeded(errors.PhaseValidate, []string{issue.Section, issue.Code}, issue.Offset)
		}
	}
	return nil
}
