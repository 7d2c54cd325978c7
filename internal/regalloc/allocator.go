package regalloc

import "github.com/aot-regalloc/regalloc/internal/arena"

// Strategy selects which allocation algorithm Allocate uses; both share
// the same interval model and resolver (§2, §9 "tagged variant").
type Strategy uint8

const (
	// LinearScan is the classical linear-scan allocator (§4.C).
	LinearScan Strategy = iota
	// GraphColoring is the Chaitin-Briggs-style allocator with iterative
	// move coalescing (§4.D).
	GraphColoring
)

func (s Strategy) String() string {
	if s == GraphColoring {
		return "graph-coloring"
	}
	return "linear-scan"
}

// Allocator assigns physical registers and spill slots to every SSA value
// of one compiled function. It is not safe for concurrent use; callers
// compiling functions on multiple goroutines should use one Allocator per
// goroutine, exactly as the arena pools it owns are single-owner (§5).
type Allocator struct {
	cg      CodeGenerator
	regInfo *RegisterInfo

	intervalPool arena.Pool[LiveInterval]

	ls *linearScan
	gc *graphColoring

	lastResult *Result
}

// Result is everything Allocate produced: the resolver's move set and
// finalized frame layout, plus the interval map for tests and debug
// tooling that want to inspect individual assignments directly.
type Result struct {
	Resolution *Resolution
	Intervals  map[VRegID]*LiveInterval
}

// NewAllocator constructs an Allocator bound to one code generator and its
// static register information. Both are expected to outlive every call to
// Allocate.
func NewAllocator(cg CodeGenerator, regInfo *RegisterInfo) *Allocator {
	a := &Allocator{cg: cg, regInfo: regInfo}
	a.intervalPool = arena.NewPool[LiveInterval]()
	a.ls = newLinearScan(cg, regInfo, &a.intervalPool)
	a.gc = newGraphColoring(cg, regInfo, &a.intervalPool)
	return a
}

// Reset releases every interval and auxiliary structure from the previous
// Allocate call, reusing the underlying arena pages for the next function
// (§5: "scoped arena whose lifetime equals one function-compilation").
func (a *Allocator) Reset() {
	a.intervalPool.Reset()
	a.lastResult = nil
}

// Allocate runs liveness-to-interval construction, the chosen strategy,
// and the resolver over f, returning the computed moves and frame layout.
// f's instruction graph and location summaries are mutated in place by the
// resolver (step 4 of §4.E); Allocate itself never mutates f's CFG shape.
func (a *Allocator) Allocate(f Function, strategy Strategy) *Result {
	entry := f.ReversePostOrderBlockIteratorBegin()
	order := computeLinearOrder(f, entry)

	intervals, fixedIntervals := buildLiveIntervals(f, &a.intervalPool)

	var flat []*LiveInterval
	var temps []*LiveInterval
	for _, li := range intervals {
		for sib := li; sib != nil; sib = sib.NextSibling() {
			if sib.IsTemp() {
				temps = append(temps, sib)
			}
			flat = append(flat, sib)
		}
	}
	// Fixed intervals block a physical register for part of its lifetime;
	// they never represent an SSA value, so they stay out of `intervals`
	// (the resolver only ever writes operands and inserts moves for real
	// values) but still need to compete for the register they pin across
	// both strategies.
	flat = append(flat, fixedIntervals...)

	switch strategy {
	case GraphColoring:
		a.gc.Run(f, RegTypeInt, flat, order)
		a.gc.Run(f, RegTypeFloat, flat, order)
	default:
		a.ls.Run(RegTypeInt, flat)
		a.ls.Run(RegTypeFloat, flat)
	}

	if arenaValidationEnabled {
		Validate(intervals)
	}

	res := Resolve(f, order, intervals, temps, a.cg)

	if arenaValidationEnabled {
		Validate(intervals)
	}

	result := &Result{Resolution: res, Intervals: intervals}
	a.lastResult = result
	return result
}
