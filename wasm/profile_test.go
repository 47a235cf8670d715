package wasm_test

import (
	"testing"

	"github.com/wippyai/wasm-runtime/wasm"
)

func TestStrictProfileFlagsTooManyFuncs(t *testing.T) {
	m := &wasm.Module{
		Funcs: make([]uint32, 5),
		Types: []wasm.FuncType{{}},
	}
	p := wasm.NewStrictProfile(wasm.ProfileLimits{MaxFuncs: 4, MaxTypes: 10})
	issues := p.Check(m)
	found := false
	for _, i := range issues {
		if i.Code == "too_many_funcs" && i.Severity == wasm.SeverityFatal {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a fatal too_many_funcs issue", issues)
	}
}

func TestStrictProfileAllowsModuleUnderCeilings(t *testing.T) {
	m := &wasm.Module{
		Funcs: []uint32{0},
		Types: []wasm.FuncType{{}},
		Code:  []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}
	p := wasm.NewStrictProfile(wasm.DefaultProfileLimits())
	if issues := p.Check(m); len(issues) != 0 {
		t.Fatalf("issues = %v, want none for a trivial module under default ceilings", issues)
	}
	if err := p.Enforce(m); err != nil {
		t.Fatalf("Enforce: %v", err)
	}
}

func TestStrictProfileFlagsMemoryPastMaxPages(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 100}}},
	}
	p := wasm.NewStrictProfile(wasm.ProfileLimits{MaxPages: 10, MaxMemories: 4})
	issues := p.Check(m)
	found := false
	for _, i := range issues {
		if i.Code == "memory_min_too_large" {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a memory_min_too_large issue", issues)
	}
}

func TestStrictProfileFlagsControlDepthExceeded(t *testing.T) {
	// Three nested blocks (no matching ends) against a ceiling of one.
	code := append(append(append(
		[]byte{wasm.OpBlock}, byte(0x40)),
		[]byte{wasm.OpBlock, 0x40}...),
		[]byte{wasm.OpBlock, 0x40, wasm.OpEnd, wasm.OpEnd, wasm.OpEnd}...)
	m := &wasm.Module{
		Funcs: []uint32{0},
		Types: []wasm.FuncType{{}},
		Code:  []wasm.FuncBody{{Code: code}},
	}
	p := wasm.NewStrictProfile(wasm.ProfileLimits{
		MaxFuncs: 10, MaxTypes: 10, MaxBodySize: 1000, MaxLocals: 10, MaxControlDepth: 1,
	})
	issues := p.Check(m)
	found := false
	for _, i := range issues {
		if i.Code == "control_too_deep" {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a control_too_deep issue", issues)
	}
}

func TestStrictProfileWarnsOnDisallowedReferenceType(t *testing.T) {
	code := []byte{wasm.OpRefIsNull, wasm.OpEnd}
	m := &wasm.Module{
		Funcs: []uint32{0},
		Types: []wasm.FuncType{{}},
		Code:  []wasm.FuncBody{{Code: code}},
	}
	limits := wasm.DefaultProfileLimits()
	limits.AllowReferenceTypes = false
	p := wasm.NewStrictProfile(limits)
	issues := p.Check(m)
	if len(issues) != 1 || issues[0].Severity != wasm.SeverityWarning || issues[0].Code != "reference_type_disallowed" {
		t.Fatalf("issues = %v, want a single reference_type_disallowed warning", issues)
	}
	// A warning alone must not fail Enforce.
	if err := p.Enforce(m); err != nil {
		t.Fatalf("Enforce: %v, want nil since no issue was Fatal", err)
	}
}
