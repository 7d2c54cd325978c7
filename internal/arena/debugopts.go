package arena

// These consts gate debug-only behavior across the allocator: assertion
// checks that walk already-computed state to confirm an invariant, and
// trace printing. In this source tree validation is on and logging is
// off; flip them locally when chasing a regression in the allocation or
// splitting heuristics.
//
// Unlike a build-tag-gated file, a plain const bool lets the compiler
// dead-code-eliminate the guarded branch in a release build without a
// second source file to keep in sync.
const (
	// ValidationEnabled turns on O(n) or worse post-condition checks
	// (no register/spill-slot conflicts, coloring forward progress,
	// search-start cache invariants) that are too expensive to run
	// unconditionally in a release compiler.
	ValidationEnabled = true

	// RegAllocLoggingEnabled turns on step-by-step tracing of the
	// linear-scan and graph-coloring main loops.
	RegAllocLoggingEnabled = false
)
