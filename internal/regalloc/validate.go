package regalloc

import "fmt"

// Validate checks the universal invariants of §4.F / §8 invariants 1-2:
// for each register bank and for the spill-slot space, no two intervals
// occupy the same location at the same position, except where an input
// is explicitly allowed to share its output's register, or where both
// conflicting spill-slot holders are parameters or the current-method
// value. It panics on the first violation found (§7: internal invariant
// violation, fatal in debug, no user-visible error).
func Validate(intervals map[VRegID]*LiveInterval) {
	if !arenaValidationEnabled {
		return
	}

	maxPos := position(0)
	for _, parent := range intervals {
		for sib := parent; sib != nil; sib = sib.NextSibling() {
			if e := sib.End(); e != positionInvalid && e > maxPos {
				maxPos = e
			}
		}
	}

	regOwner := map[RegType]map[RealReg][]*LiveInterval{RegTypeInt: {}, RegTypeFloat: {}}
	slotOwner := map[SpillSlotClass]map[int][]*LiveInterval{}

	for _, parent := range intervals {
		for sib := parent; sib != nil; sib = sib.NextSibling() {
			if sib.HasRegister() {
				bank := sib.kind.RegType()
				regOwner[bank][sib.Register()] = append(regOwner[bank][sib.Register()], sib)
			}
			if sib.HasSpillSlot() {
				cls := SpillSlotClassOf(sib.kind)
				if slotOwner[cls] == nil {
					slotOwner[cls] = map[int][]*LiveInterval{}
				}
				slotOwner[cls][sib.SpillSlot()] = append(slotOwner[cls][sib.SpillSlot()], sib)
			}
		}
	}

	for _, byReg := range regOwner {
		for reg, holders := range byReg {
			checkNoOverlap(holders, func(a, b *LiveInterval) bool {
				return sharesOutputInput(a, b)
			}, fmt.Sprintf("register %v", reg))
		}
	}
	for cls, bySlot := range slotOwner {
		for slot, holders := range bySlot {
			checkNoOverlap(holders, isParameterOrCurrentMethodPair, fmt.Sprintf("spill slot %v/%d", cls, slot))
		}
	}
}

func checkNoOverlap(holders []*LiveInterval, exempt func(a, b *LiveInterval) bool, what string) {
	for i := 0; i < len(holders); i++ {
		for j := i + 1; j < len(holders); j++ {
			a, b := holders[i], holders[j]
			if !rangesOverlap(a, b) {
				continue
			}
			if exempt(a, b) || exempt(b, a) {
				continue
			}
			panic(fmt.Sprintf("BUG: %s holds conflicting intervals %s and %s at an overlapping position", what, a, b))
		}
	}
}

// rangesOverlap is a non-cache-mutating range intersection test (unlike
// FirstIntersectionWith, safe to call repeatedly in arbitrary pairings
// without perturbing either interval's search-start cache).
func rangesOverlap(a, b *LiveInterval) bool {
	ra, rb := a.firstRange, b.firstRange
	for ra != nil && rb != nil {
		if ra.end <= rb.start {
			ra = ra.next
			continue
		}
		if rb.end <= ra.start {
			rb = rb.next
			continue
		}
		return true
	}
	return false
}

// sharesOutputInput implements the §8 invariant 1 exception: a is exempt
// from conflicting with b if a is an input of the instruction defining b,
// and that instruction permits input/output register sharing.
func sharesOutputInput(a, b *LiveInterval) bool {
	instr := b.parent.definingInstr
	if instr == nil || !instr.Locations().OutputCanOverlapWithInputs() {
		return false
	}
	for _, in := range instr.Inputs() {
		if in.ID() == a.Value().ID() {
			return true
		}
	}
	return false
}

// isParameterOrCurrentMethodPair implements the §8 invariant 2 exception:
// both conflicting spill-slot holders are parameters or the current-method
// value. This allocator has no direct "is parameter" predicate on
// LiveInterval; callers that need the exception mark such intervals fixed
// with no defining instruction, which this recognizes conservatively.
func isParameterOrCurrentMethodPair(a, b *LiveInterval) bool {
	return a.parent.definingInstr == nil && b.parent.definingInstr == nil && a.IsFixed() && b.IsFixed()
}
