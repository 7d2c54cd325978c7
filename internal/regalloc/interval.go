package regalloc

import (
	"fmt"

	"github.com/aot-regalloc/regalloc/internal/arena"
)

// LiveRange is a half-open position interval [start, end) during which an
// interval's value must be addressable. Ranges within one interval are
// disjoint, sorted ascending by start, and chained by next (§3 invariant 1).
type LiveRange struct {
	start, end position
	next       *LiveRange
}

func (r *LiveRange) intersects(other *LiveRange) bool {
	return r.start < other.end && other.start < r.end
}

func (r *LiveRange) String() string { return fmt.Sprintf("[%d,%d)", r.start, r.end) }

// UsePosition is a single use of an interval's value by an instruction's
// input (§3).
type UsePosition struct {
	user       Instr // nil for a synthesized use (loop back-edge pin)
	inputIndex int
	pos        position
	// phi marks a use recorded on behalf of a phi input rather than a
	// normal instruction input; phi uses never require a register.
	phi bool
}

// IsSynthesized reports whether this use was inserted to pin a value live
// (e.g. across a loop back-edge) rather than recorded from a real operand.
func (u UsePosition) IsSynthesized() bool { return u.user == nil && !u.phi }

// Position returns the position this use occupies.
func (u UsePosition) Position() position { return u.pos }

// RequiresRegister reports whether the user's location summary demands a
// register for this input (§4.A).
func (u UsePosition) RequiresRegister() bool {
	if u.user == nil {
		return false
	}
	return u.user.Locations().InAt(u.inputIndex).RequiresRegisterKind()
}

// EnvUsePosition is a use of an interval's value from a debuggability
// environment slot (§3).
type EnvUsePosition struct {
	instr      Instr
	inputIndex int
	pos        position
}

func (u EnvUsePosition) Position() position { return u.pos }

// SafepointPosition is a point at which the runtime may inspect live
// values (§3).
type SafepointPosition struct {
	instr Instr
	pos   position
}

func (s SafepointPosition) Position() position { return s.pos }
func (s SafepointPosition) Locations() *LocationSummary { return s.instr.Locations() }

// LiveInterval is the central entity of the live interval model (§3, §4.A).
type LiveInterval struct {
	kind ValueKind

	firstRange  *LiveRange
	searchStart *LiveRange

	// uses/envUses/safepoints are populated only on the parent; see
	// Parent(). They are ordinary growable slices (Design Notes §9:
	// "prefer a vector owned by the parent interval"), not arena-pooled,
	// since their volume is far lower than the range/interval graph.
	uses       []UsePosition
	envUses    []EnvUsePosition
	safepoints []SafepointPosition

	parent      *LiveInterval
	nextSibling *LiveInterval

	register  RealReg
	spillSlot int

	isFixed         bool
	isTemp          bool
	isHighInterval  bool
	pairedInterval  *LiveInterval

	// hintReg is the register a downstream fixed-input use suggests for
	// this value, recorded on the parent only (§4.C "hints from a
	// fixed-input use").
	hintReg RealReg

	// definingInstr/definesReqReg capture the defining instruction's
	// output policy at construction time, before the resolver starts
	// mutating LocationSummary in place.
	definingInstr  Instr
	definesReqReg  bool

	value VReg
}

const (
	kNoRegister  = RealRegInvalid
	kNoSpillSlot = -1
)

// newLiveInterval allocates a fresh, unsplit interval for value v from the
// pool.
func newLiveInterval(pool *arena.Pool[LiveInterval], v VReg, kind ValueKind) *LiveInterval {
	li := pool.Allocate()
	li.kind = kind
	li.value = v
	li.register = kNoRegister
	li.spillSlot = kNoSpillSlot
	li.parent = li
	li.hintReg = kNoRegister
	return li
}

// Parent returns the root of this interval's split chain; only the parent
// holds the canonical use/env-use/safepoint lists (§3 invariant 2).
func (li *LiveInterval) Parent() *LiveInterval { return li.parent }

// SetDefiningInstr records the instruction that defines li's value and
// whether its output policy demands a register, captured once up front so
// DefinitionRequiresRegister reads a stable fact rather than a
// LocationSummary the resolver may have since overwritten in place.
func (li *LiveInterval) SetDefiningInstr(instr Instr, requiresRegister bool) {
	li.definingInstr = instr
	li.definesReqReg = requiresRegister
}

// MarkFixed marks li as a pre-colored interval representing a physical
// register the code generator reserves for part of its lifetime (e.g. a
// call's clobber set or a fixed-input constraint), rather than an SSA
// value competing for allocation.
func (li *LiveInterval) MarkFixed() { li.isFixed = true }

// MarkTemp marks li as a temp interval: live only across one instruction,
// excluded from splitting (§3 invariant 6).
func (li *LiveInterval) MarkTemp() { li.isTemp = true }

// Hint returns the register a fixed-input use elsewhere in the function
// suggested for li, and whether one was ever recorded.
func (li *LiveInterval) Hint() (RealReg, bool) {
	r := li.parent.hintReg
	return r, r != kNoRegister
}

// SetHintReg records r as li's preferred register, keeping the first hint
// recorded rather than letting a later, weaker one overwrite it.
func (li *LiveInterval) SetHintReg(r RealReg) {
	if li.parent.hintReg == kNoRegister {
		li.parent.hintReg = r
	}
}

// Pair links li with hi as a register-pair interval: lo is li, the
// low-order half, and hi is the high-order half (§3 invariant 4).
func (li *LiveInterval) Pair(hi *LiveInterval) {
	li.pairedInterval = hi
	hi.pairedInterval = li
	hi.isHighInterval = true
}

func (li *LiveInterval) Value() VReg   { return li.value }
func (li *LiveInterval) Kind() ValueKind { return li.kind }

func (li *LiveInterval) Register() RealReg     { return li.register }
func (li *LiveInterval) SetRegister(r RealReg) { li.register = r }
func (li *LiveInterval) HasRegister() bool     { return li.register != kNoRegister }
func (li *LiveInterval) ClearRegister()        { li.register = kNoRegister }

func (li *LiveInterval) SpillSlot() int      { return li.spillSlot }
func (li *LiveInterval) SetSpillSlot(s int)  { li.spillSlot = s }
func (li *LiveInterval) HasSpillSlot() bool  { return li.spillSlot != kNoSpillSlot }

func (li *LiveInterval) IsFixed() bool { return li.isFixed }
func (li *LiveInterval) IsTemp() bool  { return li.isTemp }
func (li *LiveInterval) IsHighInterval() bool { return li.isHighInterval }
func (li *LiveInterval) PairedInterval() *LiveInterval { return li.pairedInterval }

// NextSibling returns the next interval in the split chain, or nil if li
// is the last (or only) sibling.
func (li *LiveInterval) NextSibling() *LiveInterval { return li.nextSibling }

// IsSplit reports whether li has ever been split (has more than one
// sibling in its chain).
func (li *LiveInterval) IsSplit() bool { return li.parent.nextSibling != nil }

// Start returns the lowest position live in this (sibling) interval, or
// positionInvalid if it holds no ranges.
func (li *LiveInterval) Start() position {
	if li.firstRange == nil {
		return positionInvalid
	}
	return li.firstRange.start
}

// End returns the highest position live in this (sibling) interval.
func (li *LiveInterval) End() position {
	r := li.firstRange
	if r == nil {
		return positionInvalid
	}
	for r.next != nil {
		r = r.next
	}
	return r.end
}

// HasRanges reports whether li holds any live range at all.
func (li *LiveInterval) HasRanges() bool { return li.firstRange != nil }

// AddRange prepends or merges [start, end) with the current first range.
// Must be called in decreasing order of positions (§4.A).
func (li *LiveInterval) AddRange(start, end position) {
	first := li.firstRange
	switch {
	case first == nil || first.start > end:
		r := &LiveRange{start: start, end: end, next: first}
		li.firstRange = r
	case first.start == end:
		first.start = start
	default:
		// Overlapping range added out of the required decreasing-position
		// order; widen defensively rather than corrupt the chain.
		if start < first.start {
			first.start = start
		}
		if end > first.end {
			first.end = end
		}
	}
	li.searchStart = li.firstRange
}

// AddLoopRange ensures the interval is live across an entire loop body,
// merging any ranges overlapping [start, end) into one spanning range
// (§4.A).
func (li *LiveInterval) AddLoopRange(start, end position) {
	first := li.firstRange
	if first == nil || first.start > end {
		li.AddRange(start, end)
		return
	}
	newEnd := end
	if first.end > newEnd {
		newEnd = first.end
	}
	cur := first.next
	for cur != nil && cur.start <= newEnd {
		if cur.end > newEnd {
			newEnd = cur.end
		}
		cur = cur.next
	}
	first.start = start
	first.end = newEnd
	first.next = cur
	li.searchStart = li.firstRange
}

// extendToCover ensures some range in the (still-being-built) interval
// covers pos, creating or widening the first range as needed. Used by
// AddUse/AddPhiUse so that a use is never recorded outside of any range.
func (li *LiveInterval) extendToCover(pos position) {
	first := li.firstRange
	switch {
	case first == nil:
		li.AddRange(pos, pos+1)
	case pos < first.start:
		first.start = pos
	case pos >= first.end:
		first.end = pos + 1
	}
}

// SetFrom trims the first range's start down to pos, or creates a
// one-position range if none exists yet. Used by the interval builder when
// it reaches a value's defining instruction while walking a block
// backward: every range recorded so far came from later uses, so the
// definition simply clips how far back the first range reaches.
func (li *LiveInterval) SetFrom(pos position) {
	if li.firstRange == nil {
		li.AddRange(pos, pos+1)
		return
	}
	li.firstRange.start = pos
	if li.searchStart == nil {
		li.searchStart = li.firstRange
	}
}

// AddUse records a use of li's value by instr's input at inputIndex. If
// actualUser is non-nil, the UsePosition's "user" for record-keeping
// (e.g. to later update its location) is actualUser instead of instr,
// while the position is still derived from instr's own location summary
// (used when one instruction's operand encodes a condition evaluated by
// another instruction). A use is dropped if the input's location is
// LocationKindInvalid (unused intrinsic input).
func (li *LiveInterval) AddUse(instr Instr, inputIndex int, actualUser Instr) {
	ls := instr.Locations()
	loc := ls.InAt(inputIndex)
	if loc.kind == LocationKindInvalid {
		return
	}
	user := instr
	if actualUser != nil {
		user = actualUser
	}
	pos := instr.Position()
	if !(ls.IsFixedInput(inputIndex) || ls.OutputUsesSameAs(inputIndex)) {
		pos++
	}

	p := li.parent
	if len(p.uses) > 0 {
		h := p.uses[0]
		if h.user == user && h.inputIndex == inputIndex && (h.pos == pos || h.pos == pos+1) {
			return // merged: the later use is already first.
		}
	}
	p.uses = append(p.uses, UsePosition{})
	copy(p.uses[1:], p.uses)
	p.uses[0] = UsePosition{user: user, inputIndex: inputIndex, pos: pos}
	p.extendToCover(pos)
}

// AddPhiUse records a phi's use of li's value from predecessor block pred,
// pinned at pred's lifetime end. If phiBlock is in a loop (and the loop is
// not irreducible), synthesized uses are also added at every enclosing
// loop's back-edge so the value survives across back-edges.
func (li *LiveInterval) AddPhiUse(f Function, phiBlock, pred Block) {
	pos := pred.LifetimeEnd()
	p := li.parent
	p.uses = append([]UsePosition{{pos: pos, phi: true}}, p.uses...)
	p.extendToCover(pos)

	if f.IsIrreducibleLoopHeader(phiBlock) {
		return
	}
	for loop := f.LoopInfo(phiBlock); loop != nil; loop = loop.Outer {
		for _, be := range loop.BackEdges {
			bePos := be.LifetimeEnd()
			p.uses = append([]UsePosition{{pos: bePos}}, p.uses...)
			p.extendToCover(bePos)
		}
	}
}

// AddEnvUse records an environment (debuggability) use of li's value.
func (li *LiveInterval) AddEnvUse(instr Instr, inputIndex int, pos position) {
	p := li.parent
	p.envUses = append([]EnvUsePosition{{instr: instr, inputIndex: inputIndex, pos: pos}}, p.envUses...)
	p.extendToCover(pos)
}

// AddSafepoint records that this interval's value is live at a safepoint.
func (li *LiveInterval) AddSafepoint(instr Instr, pos position) {
	p := li.parent
	p.safepoints = append(p.safepoints, SafepointPosition{instr: instr, pos: pos})
}

// Uses returns the parent's use list, sorted ascending by position.
func (li *LiveInterval) Uses() []UsePosition { return li.parent.uses }

// EnvUses returns the parent's environment-use list.
func (li *LiveInterval) EnvUses() []EnvUsePosition { return li.parent.envUses }

// Safepoints returns every safepoint the whole split chain may cover;
// callers determine which sibling actually covers a given one via Covers.
func (li *LiveInterval) Safepoints() []SafepointPosition { return li.parent.safepoints }

// FirstRegisterUseAfter returns the earliest use at or after pos whose
// location summary requires a register, including the defining position
// itself if the definition requires a register (§4.A).
func (li *LiveInterval) FirstRegisterUseAfter(pos position) (position, bool) {
	best := positionInvalid
	found := false
	if li.definesReqReg {
		if def := li.Start(); def != positionInvalid && def >= pos {
			best, found = def, true
		}
	}
	for _, u := range li.Uses() {
		if u.pos < pos || !u.RequiresRegister() {
			continue
		}
		if !found || u.pos < best {
			best, found = u.pos, true
		}
	}
	return best, found
}

// Covers reports whether pos falls within one of li's ranges, using (and
// advancing) the search-start cache for amortized O(1) cost during a
// single forward pass (§4.A).
func (li *LiveInterval) Covers(pos position) bool {
	r := li.searchStart
	if r == nil {
		r = li.firstRange
	}
	for r != nil && r.end <= pos {
		r = r.next
	}
	li.searchStart = r
	return r != nil && r.start <= pos && pos < r.end
}

// CoversSlow is the non-cache-advancing version of Covers, rescanning
// from the first range every call.
func (li *LiveInterval) CoversSlow(pos position) bool {
	for r := li.firstRange; r != nil; r = r.next {
		if r.start <= pos && pos < r.end {
			return true
		}
		if r.start > pos {
			return false
		}
	}
	return false
}

// FirstIntersectionWith returns the first position present in a range of
// both li and other, or (positionInvalid, false) if they never intersect.
// Uses li's search-start cache for amortized linear cost (§4.A).
func (li *LiveInterval) FirstIntersectionWith(other *LiveInterval) (position, bool) {
	a := li.searchStart
	if a == nil {
		a = li.firstRange
	}
	b := other.firstRange
	for a != nil && b != nil {
		if a.end <= b.start {
			a = a.next
			continue
		}
		if b.end <= a.start {
			b = b.next
			continue
		}
		start := a.start
		if b.start > start {
			start = b.start
		}
		li.searchStart = a
		return start, true
	}
	li.searchStart = a
	return positionInvalid, false
}

// SplitAt constructs a new sibling covering [pos, end) in the same pool,
// splitting a straddling range and relinking the range list. If pos
// equals the interval's start, the register is cleared in place instead
// (the interval will be re-allocated as spill-only) and li itself is
// returned. Returns nil if li holds no range alive at or after pos (§4.A).
func (li *LiveInterval) SplitAt(pos position, pool *arena.Pool[LiveInterval]) *LiveInterval {
	if !li.aliveAtOrAfter(pos) {
		return nil
	}
	if pos == li.Start() {
		li.ClearRegister()
		return li
	}

	sib := pool.Allocate()
	sib.kind = li.kind
	sib.value = li.value
	sib.parent = li.parent
	sib.register = kNoRegister
	sib.spillSlot = kNoSpillSlot
	sib.isFixed = li.isFixed
	sib.definingInstr = li.definingInstr
	sib.definesReqReg = li.definesReqReg

	var prev *LiveRange
	r := li.firstRange
	for r != nil && r.end <= pos {
		prev = r
		r = r.next
	}
	switch {
	case r != nil && r.start < pos && pos < r.end:
		tail := &LiveRange{start: pos, end: r.end, next: r.next}
		r.end = pos
		r.next = nil
		sib.firstRange = tail
	case r == li.firstRange:
		sib.firstRange = r
		li.firstRange = nil
	default:
		sib.firstRange = r
		if prev != nil {
			prev.next = nil
		}
	}
	sib.searchStart = sib.firstRange

	sib.nextSibling = li.nextSibling
	li.nextSibling = sib
	return sib
}

func (li *LiveInterval) aliveAtOrAfter(pos position) bool {
	for r := li.firstRange; r != nil; r = r.next {
		if r.end > pos {
			return true
		}
	}
	return false
}

// NumberOfSpillSlotsNeeded returns how many consecutive spill slots this
// interval's value occupies (§4.A).
func (li *LiveInterval) NumberOfSpillSlotsNeeded() int { return li.kind.NumSpillSlots() }

// DefinitionRequiresRegister reports whether the defining instruction
// demands a register output (§4.A).
func (li *LiveInterval) DefinitionRequiresRegister() bool { return li.parent.definesReqReg }

func (li *LiveInterval) String() string {
	s := fmt.Sprintf("v%d", li.value.ID())
	if li.HasRegister() {
		s += "@" + li.register.String()
	} else if li.HasSpillSlot() {
		s += fmt.Sprintf("@slot%d", li.spillSlot)
	}
	return s
}
