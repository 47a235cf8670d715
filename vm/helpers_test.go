package vm_test

import (
	"testing"

	"github.com/wippyai/wasm-runtime/bounded"
	"github.com/wippyai/wasm-runtime/platform"
	"github.com/wippyai/wasm-runtime/vm"
	"github.com/wippyai/wasm-runtime/wasm"
)

// uleb encodes v as unsigned LEB128, the immediate encoding used for
// indices, counts, and memory alignment/offset throughout the core spec.
func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		out = append(out, b)
		return out
	}
}

// sleb encodes v as signed LEB128, used for const immediates and block
// types.
func sleb(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func cat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// memArg encodes a load/store instruction's alignment and offset
// immediate in the single-memory (no multi-memory bit) form.
func memArg(align uint32, offset uint64) []byte {
	return cat(uleb(uint64(align)), uleb(offset))
}

func newModule(types []wasm.FuncType, funcs []uint32, bodies []wasm.FuncBody) *wasm.Module {
	return &wasm.Module{Types: types, Funcs: funcs, Code: bodies}
}

func newBody(code []byte, locals ...wasm.LocalEntry) wasm.FuncBody {
	return wasm.FuncBody{Locals: locals, Code: code}
}

func newInstance(m *wasm.Module) *vm.Instance {
	return &vm.Instance{Module: m}
}

func testProvider() bounded.Provider {
	return bounded.NewDynamicProvider(platform.Default(), "vm-test")
}

func newEngine() *vm.Engine {
	return vm.NewEngine(nil, vm.DefaultLimits(), testProvider())
}

func runFunc(t *testing.T, inst *vm.Instance, funcIdx uint32, args ...vm.Value) []vm.Value {
	t.Helper()
	e := newEngine()
	if err := e.Call(inst, funcIdx, args); err != nil {
		t.Fatalf("Call: %v", err)
	}
	results, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return results
}

func runFuncErr(t *testing.T, inst *vm.Instance, funcIdx uint32, args ...vm.Value) ([]vm.Value, error) {
	t.Helper()
	e := newEngine()
	if err := e.Call(inst, funcIdx, args); err != nil {
		return nil, err
	}
	return e.Run()
}
