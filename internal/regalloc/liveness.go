package regalloc

import "github.com/aot-regalloc/regalloc/internal/arena"

// fixedKey names one physical register of one bank, the identity a
// pre-colored blocking interval is built against. It is kept separate from
// VRegID on purpose: FromRealReg's VReg packs the register index into the
// low ID bits, which can collide with a real SSA value's id if used as a
// map key directly (§3 "fixed").
type fixedKey struct {
	t RegType
	r RealReg
}

// buildLiveIntervals is the block visitor named in §2's control-flow
// summary: it walks the function once, consuming each block's
// already-computed BlockInfo (live-in/out/kill — liveness analysis itself
// is out of scope, §1) together with instruction inputs/outputs/temps, and
// produces one parent LiveInterval per SSA value.
//
// Blocks are visited via ReversePostOrderBlockIteratorBegin/Next, so
// across blocks positions increase; within a block, instructions are
// walked from last to first. A range added out of decreasing order
// overlaps or follows the interval's first range, which AddRange then
// widens, so a gap between two blocks where a value is not live is not
// kept as a hole in its interval.
//
// A second return value carries one pre-colored LiveInterval per physical
// register a fixed-input constraint pins during the walk (§3's is_fixed,
// §4.C "fixed intervals are never split"). These never enter byID: they
// represent a blocked register, not an SSA value, and are fed to the
// allocator strategies directly by the caller.
func buildLiveIntervals(f Function, pool *arena.Pool[LiveInterval]) (map[VRegID]*LiveInterval, []*LiveInterval) {
	byID := make(map[VRegID]*LiveInterval)
	get := func(v VReg) *LiveInterval {
		id := v.ID()
		li, ok := byID[id]
		if !ok {
			li = newLiveInterval(pool, v, v.ValueKind())
			byID[id] = li
		}
		return li
	}

	fixed := make(map[fixedKey]*LiveInterval)
	getFixed := func(r RealReg, t RegType) *LiveInterval {
		key := fixedKey{t, r}
		li, ok := fixed[key]
		if !ok {
			kind := ValueKindInt32
			if t == RegTypeFloat {
				kind = ValueKindFloat32
			}
			li = newLiveInterval(pool, FromRealReg(r, t), kind)
			li.MarkFixed()
			li.SetRegister(r)
			fixed[key] = li
		}
		return li
	}

	var instrs []Instr
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		info := blk.Info()
		blockStart, blockEnd := blk.LifetimeStart(), blk.LifetimeEnd()

		// live tracks the working live set for this block as a dense bit
		// vector rather than a map, matching the teacher's own bitset-based
		// liveness representation (§9's "no hidden allocation in the hot
		// per-instruction loop" is satisfied the same way here).
		var live vrSet
		live.reset(0)
		if info.LiveOut != nil {
			info.LiveOut.Range(func(v VReg) {
				get(v).AddRange(blockStart, blockEnd)
				live.insert(v.ID())
			})
		}

		instrs = instrs[:0]
		for in := blk.InstrIteratorBegin(); in != nil; in = blk.InstrIteratorNext() {
			instrs = append(instrs, in)
		}

		for i := len(instrs) - 1; i >= 0; i-- {
			instr := instrs[i]
			pos := instr.Position()
			ls := instr.Locations()

			for outIdx, out := range instr.Outputs() {
				li := get(out)
				if outIdx == 0 {
					li.SetDefiningInstr(instr, outputRequiresRegister(ls))
				}
				li.SetFrom(pos)
				live.remove(out.ID())
			}

			for inIdx, in := range instr.Inputs() {
				vli := get(in)
				vli.AddUse(instr, inIdx, nil)
				live.insert(in.ID())

				if r, ok := ls.InAt(inIdx).FixedReg(); ok {
					getFixed(r, in.RegType()).AddRange(pos, pos+1)
					vli.SetHintReg(r)
				}
			}

			for _, t := range instr.Temps() {
				temp := get(t)
				temp.MarkTemp()
				temp.AddRange(pos, pos+1)
			}

			if instr.IsSafepoint() {
				live.Range(func(id VRegID) {
					byID[id].AddSafepoint(instr, pos)
				})
			}

			for _, es := range instr.Environment() {
				get(es.Value).AddEnvUse(instr, es.Index, pos)
			}
		}

		for _, phi := range blk.Phis() {
			out := get(phi.Output())
			out.AddRange(blockStart, blockStart+1)
			live.remove(out.Value().ID())

			if phi.IsCatchPhi() {
				continue
			}
			preds := blk.Preds()
			for i, pred := range preds {
				get(phi.InputAt(i)).AddPhiUse(f, blk, pred)
			}
		}
	}

	var fixedIntervals []*LiveInterval
	for _, li := range fixed {
		fixedIntervals = append(fixedIntervals, li)
	}
	return byID, fixedIntervals
}

func outputRequiresRegister(ls *LocationSummary) bool {
	out := ls.Out()
	if out.RequiresRegisterKind() {
		return true
	}
	if out.Policy() == PolicySameAsFirstInput && ls.NumIn() > 0 {
		return ls.InAt(0).RequiresRegisterKind()
	}
	return false
}
