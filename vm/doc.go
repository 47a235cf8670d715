// Package vm is a stackless interpreter for validated WebAssembly function
// bodies. Where the runtime package can target an embedded, JIT-backed
// engine for QM-level workloads, vm exists for the integrity levels above
// it: no recursion in the host call stack, an explicit frame and label
// stack bounded by the same bounded.Sequence family used elsewhere, and
// one state transition per Step so a supervising scheduler can interleave
// execution with other tasks at instruction granularity.
package vm
