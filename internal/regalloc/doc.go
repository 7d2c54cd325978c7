// Package regalloc assigns physical registers and stack spill slots to the
// SSA values of a single compiled function, given a control-flow graph
// already in SSA form together with per-instruction location constraints
// supplied by a backend code generator.
//
// Two interchangeable strategies are provided: a classical linear-scan
// allocator (LinearScan) and a graph-coloring allocator with optional
// iterative move coalescing (GraphColoring). Both consume the same live
// interval model (LiveInterval) and feed a common resolver that inserts
// the moves needed to honor the assignment across splits, block
// boundaries, and phi merges.
//
// The allocator is single-threaded, performs no I/O, and returns no
// user-visible errors: every failure mode it can hit is an internal
// invariant violation in an already-validated input, and is reported by
// panicking (see arena.ValidationEnabled).
package regalloc

import "github.com/aot-regalloc/regalloc/internal/arena"

// arenaValidationEnabled and arenaLoggingEnabled alias the arena package's
// debug toggles so the rest of this package can reference them without a
// package-qualified name at every call site.
const (
	arenaValidationEnabled = arena.ValidationEnabled
	arenaLoggingEnabled    = arena.RegAllocLoggingEnabled
)
