package regalloc

// computeLinearOrder produces a block order where every block follows its
// dominator and each loop's blocks form a contiguous run ending in a
// back-edge, except where the function reports irreducible loops (§4.B).
//
// Algorithm: seed a work list with the entry block; repeatedly pop and
// emit a block, decrementing each successor's remaining forward-predecessor
// count (total preds minus back-edges if the successor is a loop header).
// When a successor's count reaches zero it is inserted into the work list
// at a position that keeps blocks of the same loop grouped together.
func computeLinearOrder(f Function, entry Block) []Block {
	remaining := map[int]int{}
	blocks := map[int]Block{}
	collectBlocks(f, entry, blocks)
	for id, b := range blocks {
		n := len(b.Preds())
		if loop := f.LoopInfo(b); loop != nil && loop.Header.ID() == id {
			n -= len(loop.BackEdges)
		}
		if n < 0 {
			n = 0
		}
		remaining[id] = n
	}

	order := make([]Block, 0, len(blocks))
	work := []Block{entry}

	sameOrInnerLoop := func(candidate Block, relativeTo Block) bool {
		cl, rl := f.LoopInfo(candidate), f.LoopInfo(relativeTo)
		if rl == nil {
			return true // not in any loop: always a valid insertion boundary
		}
		if cl == nil {
			return false
		}
		for l := cl; l != nil; l = l.Outer {
			if l.Header.ID() == rl.Header.ID() {
				return true
			}
		}
		return false
	}

	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		order = append(order, cur)

		for _, succ := range cur.Succs() {
			id := succ.ID()
			remaining[id]--
			if remaining[id] != 0 {
				continue
			}
			// Insert succ scanning from the back of the work list, stopping
			// at the first entry that is in no loop, in succ's own loop, or
			// in a loop enclosing succ's loop, and placing succ right after it.
			insertAt := len(work)
			for insertAt > 0 && !sameOrInnerLoop(succ, work[insertAt-1]) {
				insertAt--
			}
			work = append(work, nil)
			copy(work[insertAt+1:], work[insertAt:])
			work[insertAt] = succ
		}
	}

	if arenaValidationEnabled {
		assertLinearOrderContiguity(f, order)
	}
	return order
}

func collectBlocks(f Function, entry Block, out map[int]Block) {
	// Reuses the function's own post-order iterator rather than a
	// separate worklist walk, since every Function implementation already
	// provides one.
	for b := f.PostOrderBlockIteratorBegin(); b != nil; b = f.PostOrderBlockIteratorNext() {
		out[b.ID()] = b
	}
}

// assertLinearOrderContiguity checks the §4.B post-condition: for each
// reducible loop header, its blocks form a contiguous run in order,
// starting at the header and ending at a back-edge block.
func assertLinearOrderContiguity(f Function, order []Block) {
	indexOf := make(map[int]int, len(order))
	for i, b := range order {
		indexOf[b.ID()] = i
	}
	seenHeaders := map[int]bool{}
	for _, b := range order {
		loop := f.LoopInfo(b)
		if loop == nil || loop.Header.ID() != b.ID() || seenHeaders[b.ID()] {
			continue
		}
		seenHeaders[b.ID()] = true
		if f.IsIrreducibleLoopHeader(b) {
			continue
		}
		start := indexOf[b.ID()]
		end := start
		for _, be := range loop.BackEdges {
			if i := indexOf[be.ID()]; i > end {
				end = i
			}
		}
		for i := start; i <= end; i++ {
			if !blockInLoop(f, order[i], loop) {
				panic("BUG: linear order broke loop contiguity for a reducible loop")
			}
		}
	}
}

func blockInLoop(f Function, b Block, loop *LoopInfo) bool {
	for l := f.LoopInfo(b); l != nil; l = l.Outer {
		if l.Header.ID() == loop.Header.ID() {
			return true
		}
	}
	return false
}
