package vm

import "github.com/wippyai/wasm-runtime/wasm"

// Instance is the minimal module instance the stackless engine needs:
// the decoded module plus its instantiated linear memory, globals, and
// table of function references. Import resolution and host-function
// binding happen one level up, in the runtime facade; Instance only
// holds what Step needs to interpret bytecode.
type Instance struct {
	Module  *wasm.Module
	Memory  []byte
	Globals []Value
	Table   []Value // funcref/externref table, flattened across table 0..n
	MaxPage uint32  // memory.grow ceiling, 0 means unbounded within the declared limits

	code  map[uint32][]wasm.Instruction   // per-local-funcIdx decode cache
	jumps map[uint32]map[int]blockTarget // per-local-funcIdx block opener -> matching else/end
}

// blockTarget records where a block/loop/if instruction's matching else
// (if any) and end live in the flat decoded instruction stream.
// ElsePC is -1 when the construct has no else clause.
type blockTarget struct {
	ElsePC int
	EndPC  int
}

// instructions returns funcIdx's decoded body, decoding and caching it on
// first use. The module has already passed validation by the time it
// reaches the engine, so a decode error here indicates a bug in the
// decoder or validator rather than a malformed module.
func (inst *Instance) instructions(localIdx uint32) ([]wasm.Instruction, error) {
	if inst.code == nil {
		inst.code = make(map[uint32][]wasm.Instruction)
	}
	if cached, ok := inst.code[localIdx]; ok {
		return cached, nil
	}
	body := inst.Module.Code[localIdx]
	decoded, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return nil, err
	}
	inst.code[localIdx] = decoded
	if inst.jumps == nil {
		inst.jumps = make(map[uint32]map[int]blockTarget)
	}
	inst.jumps[localIdx] = computeBlockTargets(decoded)
	return decoded, nil
}

// blockTargetFor returns the precomputed else/end positions for the
// block/loop/if/try opener at pc in funcIdx's body.
func (inst *Instance) blockTargetFor(localIdx uint32, pc int) (blockTarget, bool) {
	targets := inst.jumps[localIdx]
	if targets == nil {
		return blockTarget{}, false
	}
	t, ok := targets[pc]
	return t, ok
}

// computeBlockTargets walks a flat decoded instruction stream once,
// matching every block/loop/if/try opener to its else (if present) and
// end, via a simple nesting-depth stack. The decoder's flat Instruction
// list carries block type only, not its extent, so this single pass is
// the engine's own "where do I jump" table — mirroring how a validator
// would track nesting, but kept separate since wasm.DecodeInstructions
// has no notion of control-flow targets.
func computeBlockTargets(instrs []wasm.Instruction) map[int]blockTarget {
	targets := make(map[int]*blockTarget)
	var openers []int
	for i, ins := range instrs {
		switch ins.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry:
			openers = append(openers, i)
			targets[i] = &blockTarget{ElsePC: -1}
		case wasm.OpElse:
			if len(openers) > 0 {
				targets[openers[len(openers)-1]].ElsePC = i
			}
		case wasm.OpEnd:
			if len(openers) > 0 {
				top := openers[len(openers)-1]
				openers = openers[:len(openers)-1]
				targets[top].EndPC = i
			}
		}
	}
	flat := make(map[int]blockTarget, len(targets))
	for k, v := range targets {
		flat[k] = *v
	}
	return flat
}

// Page is the WebAssembly linear memory page size in bytes.
const Page = 65536

// Pages returns the instance's current memory size in pages.
func (inst *Instance) Pages() uint32 {
	return uint32(len(inst.Memory) / Page)
}

// Grow extends memory by delta pages, returning the previous page count,
// or -1 if the grow would exceed MaxPage. Mirrors memory.grow's contract:
// failure returns a sentinel rather than trapping.
func (inst *Instance) Grow(delta uint32) int32 {
	prev := inst.Pages()
	if inst.MaxPage != 0 && prev+delta > inst.MaxPage {
		return -1
	}
	inst.Memory = append(inst.Memory, make([]byte, int(delta)*Page)...)
	return int32(prev)
}
