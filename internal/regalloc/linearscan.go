package regalloc

import (
	"fmt"
	"sort"

	"github.com/aot-regalloc/regalloc/internal/arena"
)

// linearScan is the classical linear-scan allocator (§4.C): unhandled
// intervals are scanned in increasing-start order, split on conflict, and
// assigned either a free register or a register taken from a currently
// active/inactive holder.
type linearScan struct {
	cg      CodeGenerator
	regInfo *RegisterInfo
	pool    *arena.Pool[LiveInterval]

	unhandled []*LiveInterval // sorted descending by start; popped from the back.
	active    []*LiveInterval
	inactive  []*LiveInterval
	handled   []*LiveInterval

	hints map[*LiveInterval]RealReg
}

func newLinearScan(cg CodeGenerator, regInfo *RegisterInfo, pool *arena.Pool[LiveInterval]) *linearScan {
	return &linearScan{cg: cg, regInfo: regInfo, pool: pool, hints: map[*LiveInterval]RealReg{}}
}

// Run allocates registers of regType for every interval in intervals whose
// kind maps to that bank, splitting and spilling as needed.
func (s *linearScan) Run(regType RegType, intervals []*LiveInterval) {
	allocatable := s.allocatableFor(regType)

	s.unhandled = s.unhandled[:0]
	s.active, s.inactive, s.handled = s.active[:0], s.inactive[:0], s.handled[:0]
	for _, li := range intervals {
		if li.kind.RegType() != regType || !li.HasRanges() {
			continue
		}
		if li.IsFixed() {
			// Pre-colored intervals already hold their register and are
			// never themselves allocated; they go straight into inactive
			// and the usual active/inactive bucketing below promotes them
			// whenever `pos` enters one of their blocked ranges, exactly
			// like any other interval (§4.C).
			s.inactive = append(s.inactive, li)
			continue
		}
		s.unhandled = append(s.unhandled, li)
	}
	// Sort descending by start so the smallest start sits at the back.
	sort.Slice(s.unhandled, func(i, j int) bool { return s.unhandled[i].Start() > s.unhandled[j].Start() })

	for k := range s.hints {
		delete(s.hints, k)
	}
	for _, li := range s.unhandled {
		if r, ok := li.Hint(); ok {
			s.SetHint(li, r)
		}
	}

	for len(s.unhandled) > 0 {
		current := s.unhandled[len(s.unhandled)-1]
		s.unhandled = s.unhandled[:len(s.unhandled)-1]
		pos := current.Start()

		var stillActive []*LiveInterval
		for _, a := range s.active {
			switch {
			case a.End() <= pos:
				s.handled = append(s.handled, a)
			case !a.Covers(pos):
				s.inactive = append(s.inactive, a)
			default:
				stillActive = append(stillActive, a)
			}
		}
		s.active = stillActive

		var stillInactive []*LiveInterval
		for _, a := range s.inactive {
			switch {
			case a.End() <= pos:
				s.handled = append(s.handled, a)
			case a.Covers(pos):
				s.active = append(s.active, a)
			default:
				stillInactive = append(stillInactive, a)
			}
		}
		s.inactive = stillInactive

		if arenaLoggingEnabled {
			fmt.Printf("linearscan: current=%s pos=%d active=%d inactive=%d\n", current, pos, len(s.active), len(s.inactive))
		}

		if !s.tryAllocateFreeReg(current, allocatable) {
			s.allocateBlockedReg(current, allocatable)
		}
		if current.HasRegister() {
			s.active = append(s.active, current)
		} else {
			s.handled = append(s.handled, current)
		}
	}

	s.assignSpillSlots()
}

// assignSpillSlots gives every register-less, non-fixed sibling left over
// from this Run call the lowest same-class spill slot not already held by
// an overlapping sibling, mirroring the graph-coloring allocator's own
// sweep (§4.D "Spill-slot coloring") so both strategies finalize a frame
// layout resolve.go's step2/step3 can size and place.
func (s *linearScan) assignSpillSlots() {
	var all []*LiveInterval
	all = append(all, s.active...)
	all = append(all, s.inactive...)
	all = append(all, s.handled...)

	byClass := map[SpillSlotClass][]*LiveInterval{}
	for _, li := range all {
		if li.IsFixed() || li.HasRegister() || li.HasSpillSlot() {
			continue
		}
		cls := SpillSlotClassOf(li.kind)
		byClass[cls] = append(byClass[cls], li)
	}
	for _, lis := range byClass {
		sort.Slice(lis, func(i, j int) bool { return lis[i].Start() < lis[j].Start() })
		occupied := map[int]*LiveInterval{}
		for _, li := range lis {
			slot := 0
			for {
				holder, taken := occupied[slot]
				if !taken || holder.End() <= li.Start() {
					break
				}
				slot++
			}
			li.SetSpillSlot(slot)
			occupied[slot] = li
		}
	}
}

func (s *linearScan) allocatableFor(regType RegType) []RealReg {
	var out []RealReg
	for _, r := range s.regInfo.AllocatableRegisters[regType] {
		blocked := s.cg.IsBlockedCore(r)
		if regType == RegTypeFloat {
			blocked = s.cg.IsBlockedFP(r)
		}
		if !blocked {
			out = append(out, r)
		}
	}
	return out
}

const posInfinite position = 1<<31 - 1

// tryAllocateFreeReg implements §4.C's TryAllocateFreeReg.
func (s *linearScan) tryAllocateFreeReg(current *LiveInterval, allocatable []RealReg) bool {
	freeUntil := newRegPositions(posInfinite)

	for _, a := range s.active {
		freeUntil[a.Register()] = 0
		if p := a.PairedInterval(); p != nil && p.HasRegister() {
			freeUntil[p.Register()] = 0
		}
	}
	for _, a := range s.inactive {
		if pos, ok := current.FirstIntersectionWith(a); ok {
			if pos < freeUntil[a.Register()] {
				freeUntil[a.Register()] = pos
			}
		}
	}

	needsPair := s.cg.NeedsTwoRegisters(current.kind)
	reg, until := s.pickRegister(current, allocatable, freeUntil, needsPair)
	if reg == RealRegInvalid || until <= current.Start() {
		return false
	}
	if until >= current.End() {
		s.assign(current, reg, needsPair)
		return true
	}
	// Register only free for a prefix: split just before it runs out and
	// requeue the tail.
	tail := current.SplitAt(until, s.pool)
	if tail == nil {
		return false
	}
	s.assign(current, reg, needsPair)
	s.insertUnhandled(tail)
	return true
}

// pickRegister chooses among allocatable the one that is free longest,
// preferring (in order) a hinted register still free for the whole
// interval, then a caller-save register, honoring pair alignment when
// needsPair is set.
func (s *linearScan) pickRegister(current *LiveInterval, allocatable []RealReg, freeUntil regPositions, needsPair bool) (RealReg, position) {
	if hint, ok := s.hints[current]; ok && s.regValid(allocatable, hint) {
		if !needsPair || hint%2 == 0 {
			if !needsPair && freeUntil[hint] > current.Start() {
				return hint, freeUntil[hint]
			}
			if needsPair && hint+1 < RealRegsMax && freeUntil[hint] > current.Start() && freeUntil[hint+1] > current.Start() {
				return hint, min32(freeUntil[hint], freeUntil[hint+1])
			}
		}
	}

	best, bestUntil := RealRegInvalid, position(-1)
	bestCallerSave := false
	for _, r := range allocatable {
		if needsPair {
			if r%2 != 0 || !s.regValid(allocatable, r+1) {
				continue
			}
		}
		until := freeUntil[r]
		if needsPair {
			if u2 := freeUntil[r+1]; u2 < until {
				until = u2
			}
		}
		callerSave := !s.regInfo.isCalleeSaved(r)
		better := until > bestUntil || (until == bestUntil && callerSave && !bestCallerSave)
		if better {
			best, bestUntil, bestCallerSave = r, until, callerSave
		}
	}
	return best, bestUntil
}

func (s *linearScan) regValid(allocatable []RealReg, r RealReg) bool {
	for _, a := range allocatable {
		if a == r {
			return true
		}
	}
	return false
}

// allocateBlockedReg implements §4.C's AllocateBlockedReg.
func (s *linearScan) allocateBlockedReg(current *LiveInterval, allocatable []RealReg) {
	nextUse := newRegPositions(posInfinite)

	for _, a := range s.active {
		if a.IsFixed() {
			// A fixed active holds no ordinary uses of its own; treat its
			// register as needed right now so it reads as the least
			// attractive (not the most attractive) eviction target.
			nextUse[a.Register()] = current.Start()
			continue
		}
		if p, ok := a.FirstRegisterUseAfter(current.Start()); ok {
			nextUse[a.Register()] = p
		}
	}
	for _, a := range s.inactive {
		pos, ok := current.FirstIntersectionWith(a)
		if !ok {
			continue
		}
		if a.IsFixed() {
			if pos < nextUse[a.Register()] {
				nextUse[a.Register()] = pos
			}
			continue
		}
		if p, ok := a.FirstRegisterUseAfter(current.Start()); ok && p < nextUse[a.Register()] {
			nextUse[a.Register()] = p
		}
	}

	var bestReg RealReg = RealRegInvalid
	bestPos := position(-1)
	for _, r := range allocatable {
		if nextUse[r] > bestPos {
			bestReg, bestPos = r, nextUse[r]
		}
	}

	firstUse, hasFirstUse := current.FirstRegisterUseAfter(current.Start())
	// bestPos <= current.Start() means even the most attractive register is
	// already needed at (or before) the position current itself starts at —
	// evict() refuses to move a fixed holder out of the way, so assigning
	// here would silently violate invariant 1 rather than make progress.
	if bestReg == RealRegInvalid || bestPos <= current.Start() || (hasFirstUse && bestPos < firstUse) {
		// current itself must be spilled: give it no register and let the
		// resolver place it entirely in a spill slot, splitting off a
		// register-holding tail right at its first register-requiring use
		// for forward progress (§4.C "Forward progress").
		if hasFirstUse && firstUse > current.Start() {
			if tail := current.SplitAt(firstUse, s.pool); tail != nil && tail != current {
				s.insertUnhandled(tail)
			}
		}
		current.ClearRegister()
		return
	}

	// Evict the current holder of bestReg, splitting it at current.Start().
	s.evict(bestReg, current)
	s.assign(current, bestReg, s.cg.NeedsTwoRegisters(current.kind))
}

// evict splits and spills whichever interval currently holds reg, both
// among active intervals (split exactly at current.Start()) and among
// inactive intervals that still intersect current (split at that
// intersection), per §4.C's AllocateBlockedReg.
func (s *linearScan) evict(reg RealReg, current *LiveInterval) {
	var stillActive []*LiveInterval
	for _, a := range s.active {
		if a.Register() != reg || a.IsFixed() {
			stillActive = append(stillActive, a)
			continue
		}
		if tail := a.SplitAt(current.Start(), s.pool); tail != nil && tail != a {
			s.insertUnhandled(tail)
		}
		a.ClearRegister()
		s.handled = append(s.handled, a)
	}
	s.active = stillActive

	var stillInactive []*LiveInterval
	for _, a := range s.inactive {
		if a.Register() != reg || a.IsFixed() {
			stillInactive = append(stillInactive, a)
			continue
		}
		if pos, ok := a.FirstIntersectionWith(current); ok {
			if tail := a.SplitAt(pos, s.pool); tail != nil && tail != a {
				s.insertUnhandled(tail)
			}
		}
		stillInactive = append(stillInactive, a)
	}
	s.inactive = stillInactive
}

func (s *linearScan) assign(current *LiveInterval, reg RealReg, pair bool) {
	current.SetRegister(reg)
	if pair {
		hi := current.PairedInterval()
		if hi != nil {
			hi.SetRegister(reg + 1)
		}
	}
}

func (s *linearScan) insertUnhandled(li *LiveInterval) {
	i := sort.Search(len(s.unhandled), func(i int) bool { return s.unhandled[i].Start() <= li.Start() })
	s.unhandled = append(s.unhandled, nil)
	copy(s.unhandled[i+1:], s.unhandled[i:])
	s.unhandled[i] = li
}

// SetHint records that interval li should prefer register r when it is
// free for long enough, per §4.C's hint propagation (same-as-first-input
// outputs, phi-move destinations, fixed-input uses).
func (s *linearScan) SetHint(li *LiveInterval, r RealReg) {
	if _, ok := s.hints[li]; !ok {
		s.hints[li] = r
	}
}

func min32(a, b position) position {
	if a < b {
		return a
	}
	return b
}
