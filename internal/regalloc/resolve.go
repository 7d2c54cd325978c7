package regalloc

// Move is one (src, dst) copy the resolver decided is needed to honor an
// allocation decision across a split, a block boundary, or a phi merge
// (§4.E "Parallel move insertion").
type Move struct {
	From, To Location
	Kind     ValueKind
}

// ParallelMove is a set of moves to be performed as if simultaneously (no
// move may observe another's result) at one position.
type ParallelMove struct {
	Pos   position
	Moves []Move
}

func (m *ParallelMove) add(from, to Location, kind ValueKind, splitLong bool) {
	if from == to {
		return
	}
	if splitLong && kind.Is64Bit() && from.IsPair() && to.IsPair() {
		loPair, hiPair := Register, Register
		if from.kind == LocationKindFpuRegisterPair {
			loPair, hiPair = FpuRegister, FpuRegister
		}
		m.Moves = append(m.Moves,
			Move{loPair(from.reg), loPair(to.reg), kind},
			Move{hiPair(from.hi), hiPair(to.hi), kind},
		)
		return
	}
	m.Moves = append(m.Moves, Move{from, to, kind})
}

// Resolution is everything the resolver computed: moves to splice before,
// after, or at the exit of given program points, plus the finalized frame
// layout published to the code generator (§4.E).
type Resolution struct {
	Before map[Instr]*ParallelMove
	After  map[Instr]*ParallelMove
	AtExit map[int]*ParallelMove // keyed by predecessor block ID

	Safepoints map[Instr]SafepointLiveSet
	FrameSize  FrameSpillSlots
}

// SafepointLiveSet is the per-safepoint register/stack-bit summary from
// §4.E step 1.
type SafepointLiveSet struct {
	CoreRegisters  RegSet
	FPRegisters    RegSet
	ReferenceSlots map[int]bool
}

type resolver struct {
	cg        CodeGenerator
	res       *Resolution
	splitLong bool
}

// Resolve runs all seven steps of §4.E against the now-fully-allocated set
// of parent intervals (one per SSA value), the function's block order, and
// the set of temp intervals collected during allocation.
func Resolve(f Function, order []Block, intervals map[VRegID]*LiveInterval, temps []*LiveInterval, cg CodeGenerator) *Resolution {
	res := &Resolution{
		Before:     map[Instr]*ParallelMove{},
		After:      map[Instr]*ParallelMove{},
		AtExit:     map[int]*ParallelMove{},
		Safepoints: map[Instr]SafepointLiveSet{},
	}
	r := &resolver{cg: cg, res: res, splitLong: cg.ShouldSplitLongMoves()}

	r.step1Safepoints(intervals)
	spillSlots := r.step2FrameSize(intervals)
	r.step3FinalizeSpillSlots(intervals, spillSlots)
	r.step4ConnectSiblings(intervals)
	r.step5NonLinearControlFlow(f, order, intervals)
	r.step6PhiEdges(f, order, intervals)
	r.step7Temps(temps)

	cg.InitializeCodeGeneration(spillSlots, r.maxSafepointSpillSize(intervals), 0, order)
	for _, li := range intervals {
		if li.HasRegister() {
			loc := Register(li.Register())
			if li.kind.RegType() == RegTypeFloat {
				loc = FpuRegister(li.Register())
			}
			cg.AddAllocatedRegister(loc)
		}
	}

	res.FrameSize = spillSlots
	return res
}

// step1Safepoints walks every interval's sibling chain and, for each
// safepoint it covers, records the sibling's register (or spill slot, for
// references) in that safepoint's live set.
func (r *resolver) step1Safepoints(intervals map[VRegID]*LiveInterval) {
	for _, parent := range intervals {
		for _, sp := range parent.Safepoints() {
			for sib := parent; sib != nil; sib = sib.NextSibling() {
				if !sib.Covers(sp.pos) {
					continue
				}
				set := r.res.Safepoints[sp.instr]
				if set.ReferenceSlots == nil {
					set.ReferenceSlots = map[int]bool{}
				}
				if sib.HasRegister() {
					if sib.kind.RegType() == RegTypeFloat {
						set.FPRegisters = set.FPRegisters.add(sib.Register())
					} else {
						set.CoreRegisters = set.CoreRegisters.add(sib.Register())
					}
				}
				if sib.kind.IsReference() && sib.HasSpillSlot() {
					set.ReferenceSlots[sib.SpillSlot()] = true
				}
				r.res.Safepoints[sp.instr] = set
				break
			}
		}
	}
}

// step2FrameSize sums per-type spill slot counts, consuming the counts
// graph coloring or linear scan already assigned (SpillSlotClassOf).
func (r *resolver) step2FrameSize(intervals map[VRegID]*LiveInterval) FrameSpillSlots {
	var f FrameSpillSlots
	count := func(cls SpillSlotClass, n int) {
		switch cls {
		case SpillSlotClassInt:
			if n+1 > f.Int {
				f.Int = n + 1
			}
		case SpillSlotClassFloat:
			if n+1 > f.Float {
				f.Float = n + 1
			}
		case SpillSlotClassLong:
			if n+1 > f.Long {
				f.Long = n + 1
			}
		case SpillSlotClassDouble:
			if n+1 > f.Double {
				f.Double = n + 1
			}
		}
	}
	for _, li := range intervals {
		if li.HasSpillSlot() {
			count(SpillSlotClassOf(li.kind), li.SpillSlot())
		}
	}
	return f
}

// step3FinalizeSpillSlots converts each interval's type-relative slot
// index into the actual frame-offset layout named in §4.E step 3:
// double, then long, then float, then int/ref, each type partition
// appended after the previous.
func (r *resolver) step3FinalizeSpillSlots(intervals map[VRegID]*LiveInterval, f FrameSpillSlots) {
	base := map[SpillSlotClass]int{
		SpillSlotClassDouble: 0,
		SpillSlotClassLong:   f.Double,
		SpillSlotClassFloat:  f.Double + f.Long,
		SpillSlotClassInt:    f.Double + f.Long + f.Float,
	}
	for _, li := range intervals {
		if li.HasSpillSlot() {
			cls := SpillSlotClassOf(li.kind)
			li.SetSpillSlot(li.SpillSlot() + base[cls])
		}
	}
}

func (r *resolver) maxSafepointSpillSize(intervals map[VRegID]*LiveInterval) int {
	max := 0
	for instr, set := range r.res.Safepoints {
		n := r.cg.GetNumSlowPathSpills(instr.Locations(), true) + r.cg.GetNumSlowPathSpills(instr.Locations(), false)
		_ = set
		if n > max {
			max = n
		}
	}
	return max
}

// step4ConnectSiblings eagerly spills values holding both a register and a
// slot, then walks each sibling chain writing the assigned location back
// into every use's operand slot and inserting boundary moves between
// adjacent siblings (§4.E step 4).
func (r *resolver) step4ConnectSiblings(intervals map[VRegID]*LiveInterval) {
	for _, parent := range intervals {
		if parent.HasRegister() && parent.HasSpillSlot() && parent.definingInstr != nil {
			loc := parent.locationAt()
			slotLoc := parent.spillLocation()
			r.insertAfter(parent.definingInstr, loc, slotLoc, parent.kind)
		}

		var prev *LiveInterval
		for sib := parent; sib != nil; sib = sib.NextSibling() {
			loc := sib.locationAt()
			for _, u := range sib.Uses() {
				if u.phi || u.user == nil || !sib.Covers(u.pos) {
					continue
				}
				r.writeOperand(u, loc, sib.kind)
			}
			if prev != nil {
				prevEnd, sibStart := prev.End(), sib.Start()
				if prevEnd == sibStart && sib.HasRegister() {
					r.insertBefore(firstUserAt(sib, sibStart), prev.locationAt(), loc, sib.kind)
				}
			}
			prev = sib
		}
	}
}

func firstUserAt(li *LiveInterval, pos position) Instr {
	for _, u := range li.Uses() {
		if u.pos == pos && u.user != nil {
			return u.user
		}
	}
	return nil
}

// writeOperand writes loc back into the use's operand slot. A fixed-input
// operand (§4.E step 4, §6 is_fixed_input) is pinned to a specific physical
// register regardless of what the allocator assigned the covering sibling;
// when the two differ, a move is spliced in immediately before the
// instruction rather than silently overwriting the operand with the wrong
// register.
func (r *resolver) writeOperand(u UsePosition, loc Location, kind ValueKind) {
	if u.user == nil {
		return
	}
	ls := u.user.Locations()
	final := loc
	if reg, ok := ls.InAt(u.inputIndex).FixedReg(); ok {
		target := Register(reg)
		if kind.RegType() == RegTypeFloat {
			target = FpuRegister(reg)
		}
		if loc != target {
			r.insertBefore(u.user, loc, target, kind)
		}
		final = target
	}
	if ls.OutputUsesSameAs(u.inputIndex) {
		ls.SetOut(final)
	}
	ls.SetInAt(u.inputIndex, final)
}

// locationAt returns li's resolved Location: a register/pair if assigned,
// else its spill slot.
func (li *LiveInterval) locationAt() Location {
	if li.HasRegister() {
		if li.kind.RegType() == RegTypeFloat {
			if hi := li.PairedInterval(); hi != nil {
				return FpuRegisterPair(li.Register(), hi.Register())
			}
			return FpuRegister(li.Register())
		}
		if hi := li.PairedInterval(); hi != nil {
			return RegisterPair(li.Register(), hi.Register())
		}
		return Register(li.Register())
	}
	return li.spillLocation()
}

func (li *LiveInterval) spillLocation() Location {
	if !li.HasSpillSlot() {
		return Unallocated(PolicyAny)
	}
	switch SpillSlotClassOf(li.kind) {
	case SpillSlotClassDouble:
		return DoubleStackSlot(li.SpillSlot())
	case SpillSlotClassLong:
		return DoubleStackSlot(li.SpillSlot())
	default:
		return StackSlot(li.SpillSlot())
	}
}

// step5NonLinearControlFlow inserts the moves needed at block boundaries
// whose predecessor does not flow straight into the block in program
// order (§4.E step 5, the critical-edge rule).
func (r *resolver) step5NonLinearControlFlow(f Function, order []Block, intervals map[VRegID]*LiveInterval) {
	for _, blk := range order {
		if blk.IsCatchBlock() || f.IsIrreducibleLoopHeader(blk) {
			continue
		}
		info := blk.Info()
		if info.LiveIn == nil {
			continue
		}
		for _, pred := range blk.Preds() {
			info.LiveIn.Range(func(v VReg) {
				parent, ok := intervals[v.ID()]
				if !ok {
					return
				}
				src := locationCovering(parent, pred.LifetimeEnd()-1)
				dst := locationCovering(parent, blk.LifetimeStart())
				if src == dst {
					return
				}
				if len(pred.Succs()) == 1 {
					r.insertAtExit(pred, src, dst, v.ValueKind())
				} else {
					r.insertBeforeBlockEntry(blk, src, dst, v.ValueKind())
				}
			})
		}
	}
}

func locationCovering(parent *LiveInterval, pos position) Location {
	for sib := parent; sib != nil; sib = sib.NextSibling() {
		if sib.Covers(pos) {
			return sib.locationAt()
		}
	}
	return Unallocated(PolicyAny)
}

// step6PhiEdges inserts a move from each phi input's predecessor-end
// location to the phi's own location, skipping catch phis (§4.E step 6).
func (r *resolver) step6PhiEdges(f Function, order []Block, intervals map[VRegID]*LiveInterval) {
	for _, blk := range order {
		preds := blk.Preds()
		for _, phi := range blk.Phis() {
			if phi.IsCatchPhi() {
				continue
			}
			out, ok := intervals[phi.Output().ID()]
			if !ok {
				continue
			}
			dst := locationCovering(out, blk.LifetimeStart())
			for i, pred := range preds {
				in, ok := intervals[phi.InputAt(i).ID()]
				if !ok {
					continue
				}
				src := locationCovering(in, pred.LifetimeEnd()-1)
				if src == dst {
					continue
				}
				r.insertAtExit(pred, src, dst, out.kind)
			}
		}
	}
}

// step7Temps writes each temp interval's assigned register back into the
// owning instruction's temp slot (§4.E step 7).
func (r *resolver) step7Temps(temps []*LiveInterval) {
	for _, t := range temps {
		if t.definingInstr == nil {
			continue
		}
		ls := t.definingInstr.Locations()
		for i := 0; i < ls.NumTemp(); i++ {
			if ls.TempAt(i).IsUnallocated() {
				ls.SetTempAt(i, t.locationAt())
				break
			}
		}
	}
}

func (r *resolver) insertBefore(instr Instr, from, to Location, kind ValueKind) {
	if instr == nil {
		return
	}
	pm, ok := r.res.Before[instr]
	if !ok {
		pm = &ParallelMove{Pos: instr.Position()}
		r.res.Before[instr] = pm
	}
	pm.add(from, to, kind, r.splitLong)
}

func (r *resolver) insertAfter(instr Instr, from, to Location, kind ValueKind) {
	pm, ok := r.res.After[instr]
	if !ok {
		pm = &ParallelMove{Pos: instr.Position() + 1}
		r.res.After[instr] = pm
	}
	pm.add(from, to, kind, r.splitLong)
}

func (r *resolver) insertAtExit(pred Block, from, to Location, kind ValueKind) {
	pm, ok := r.res.AtExit[pred.ID()]
	if !ok {
		pm = &ParallelMove{Pos: pred.LifetimeEnd()}
		r.res.AtExit[pred.ID()] = pm
	}
	pm.add(from, to, kind, r.splitLong)
}

func (r *resolver) insertBeforeBlockEntry(blk Block, from, to Location, kind ValueKind) {
	first := blk.InstrIteratorBegin()
	r.insertBefore(first, from, to, kind)
}
