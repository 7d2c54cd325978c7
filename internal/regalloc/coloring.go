package regalloc

import (
	"fmt"
	"sort"

	"github.com/aot-regalloc/regalloc/internal/arena"
)

// coloringNode is one node of the interference graph: either a split
// sibling competing for a color, or a canonical pre-colored node standing
// in for one physical register (§4.D).
type coloringNode struct {
	li         *LiveInterval
	precolored bool
	reg        RealReg // valid only if precolored

	neighbors map[*coloringNode]int // edge weight, 2 if either side is a pair
	degree    int

	alias  *coloringNode // union-find: non-nil once coalesced away
	color  RealReg
	colored bool
	needsSpill bool

	pairHi *coloringNode // the paired high node, if li is a pair's low half
}

func (n *coloringNode) find() *coloringNode {
	for n.alias != nil {
		n = n.alias
	}
	return n
}

func (n *coloringNode) String() string {
	if n.precolored {
		return fmt.Sprintf("precolored(%s)", n.reg)
	}
	return n.li.String()
}

// coalesceOpportunity is a candidate merge between two nodes, weighted by
// the estimated runtime cost of the move it would eliminate (§4.D).
type coalesceOpportunity struct {
	a, b     *coloringNode
	priority int
	inactive bool
	defunct  bool
}

// graphColoring is the Chaitin-Briggs-style optimistic-coloring allocator
// with iterative move coalescing (§4.D).
type graphColoring struct {
	cg      CodeGenerator
	regInfo *RegisterInfo
	pool    *arena.Pool[LiveInterval]

	nodes    []*coloringNode
	precolored map[RealReg]*coloringNode

	simplify []*coloringNode
	freeze   []*coloringNode
	spill    []*coloringNode
	stack    []*coloringNode

	coalesceQueue []*coalesceOpportunity

	attempts    int
	newSiblings []*LiveInterval
}

// maxColoringAttempts is the debug cap on retries named by §7's error
// taxonomy ("coloring attempt count exceeding its debug cap").
const maxColoringAttempts = 64

func newGraphColoring(cg CodeGenerator, regInfo *RegisterInfo, pool *arena.Pool[LiveInterval]) *graphColoring {
	return &graphColoring{cg: cg, regInfo: regInfo, pool: pool}
}

// Run colors every interval of regType, retrying with splits on failure
// until every register-requiring node gets a color (or a debug cap is
// hit). Intervals left without a color after this call need a spill slot.
func (c *graphColoring) Run(f Function, regType RegType, intervals []*LiveInterval, order []Block) {
	allocatable := c.allocatableFor(regType)
	k := len(allocatable)

	// live is the working set of intervals for this bank; splitAtRegisterUses
	// appends newly created siblings to c.newSiblings as a side effect, and
	// each retry folds them in so the next attempt's graph sees them.
	live := append([]*LiveInterval(nil), intervals...)
	prevLen := totalLength(live)

	// attempts is scoped to one bank's run: Run is called once per RegType
	// from the same graphColoring instance, and a prior bank's attempt count
	// must not carry over into this bank's cap check or progress exemption.
	c.attempts = 0

	for {
		c.attempts++
		if arenaValidationEnabled && c.attempts > maxColoringAttempts {
			panic("BUG: graph-coloring exceeded its debug attempt cap, forward progress heuristic regressed")
		}

		c.newSiblings = c.newSiblings[:0]
		c.buildGraph(order, regType, live)
		c.generateCoalesceOpportunities(f, order, regType)
		failed := c.pruneAndColor(k, allocatable)
		if !failed {
			c.assignSpillSlots(live)
			return
		}

		live = append(live, c.newSiblings...)
		newLen := totalLength(live)
		if arenaValidationEnabled && c.attempts > 1 && newLen >= prevLen {
			panic("BUG: coloring retry did not shorten total interval length, forward progress violated")
		}
		prevLen = newLen
	}
}

func totalLength(intervals []*LiveInterval) int {
	total := 0
	for _, li := range intervals {
		if s, e := li.Start(), li.End(); s != positionInvalid && e != positionInvalid {
			total += int(e - s)
		}
	}
	return total
}

func (c *graphColoring) allocatableFor(regType RegType) []RealReg {
	var out []RealReg
	for _, r := range c.regInfo.AllocatableRegisters[regType] {
		blocked := c.cg.IsBlockedCore(r)
		if regType == RegTypeFloat {
			blocked = c.cg.IsBlockedFP(r)
		}
		if !blocked {
			out = append(out, r)
		}
	}
	return out
}

// buildGraph constructs the interference graph for one register bank by
// sweeping range endpoints in linear (dominator-respecting) order (§4.D
// "Interference graph construction").
func (c *graphColoring) buildGraph(order []Block, regType RegType, intervals []*LiveInterval) {
	c.nodes = c.nodes[:0]
	c.precolored = map[RealReg]*coloringNode{}

	type endpoint struct {
		pos     position
		isBegin bool
		node    *coloringNode
	}
	var points []endpoint
	nodeOf := map[*LiveInterval]*coloringNode{}

	for _, li := range intervals {
		if li.kind.RegType() != regType || !li.HasRanges() {
			continue
		}
		n := &coloringNode{li: li, neighbors: map[*coloringNode]int{}}
		if li.IsFixed() && li.HasRegister() {
			n.precolored = true
			n.reg = li.Register()
			c.precolored[n.reg] = n
		}
		c.nodes = append(c.nodes, n)
		nodeOf[li] = n
		points = append(points, endpoint{li.Start(), true, n}, endpoint{li.End(), false, n})
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].pos != points[j].pos {
			return points[i].pos < points[j].pos
		}
		// end-before-begin at the same position so a dying value frees its
		// slot before a new one claims it.
		return !points[i].isBegin && points[j].isBegin
	})

	live := map[*coloringNode]bool{}
	for _, pt := range points {
		if pt.isBegin {
			for other := range live {
				if other == pt.node {
					continue
				}
				if c.mayShareRegister(pt.node, other) {
					continue
				}
				weight := 1
				if c.isPair(pt.node) || c.isPair(other) {
					weight = 2
				}
				c.addEdge(pt.node, other, weight)
			}
			live[pt.node] = true
		} else {
			delete(live, pt.node)
		}
	}
}

// mayShareRegister implements §4.D rule 4: an output whose location summary
// allows overlap with its inputs does not interfere with the specific
// still-live input that dies at this position.
func (c *graphColoring) mayShareRegister(begin, live *coloringNode) bool {
	if begin.li == nil || live.li == nil {
		return false
	}
	if live.precolored {
		// A pre-colored node's VReg packs the register index into the low
		// id bits (FromRealReg), which can coincide with a real SSA
		// value's id; never let that coincidence be mistaken for the
		// defining instruction's own dying input.
		return false
	}
	instr := begin.li.definingInstr
	if instr == nil || !instr.Locations().OutputCanOverlapWithInputs() {
		return false
	}
	for _, in := range instr.Inputs() {
		if in.ID() == live.li.Value().ID() {
			return true
		}
	}
	return false
}

func (c *graphColoring) isPair(n *coloringNode) bool {
	return n.li != nil && (n.li.PairedInterval() != nil)
}

func (c *graphColoring) addEdge(a, b *coloringNode, weight int) {
	if a.precolored && b.precolored {
		return
	}
	if a.precolored {
		// Edges from pre-colored nodes are suppressed (infinite degree);
		// only the uncolored side accrues degree.
		b.neighbors[a] += weight
		b.degree += weight
		return
	}
	if b.precolored {
		a.neighbors[b] += weight
		a.degree += weight
		return
	}
	if _, ok := a.neighbors[b]; !ok {
		a.degree += weight
		b.degree += weight
	}
	a.neighbors[b] += weight
	b.neighbors[a] += weight
}

// generateCoalesceOpportunities enumerates the candidate merges named in
// §4.D, weighted by estimated avoided-move cost.
func (c *graphColoring) generateCoalesceOpportunities(f Function, order []Block, regType RegType) {
	c.coalesceQueue = c.coalesceQueue[:0]
	nodeByValue := map[VRegID]*coloringNode{}
	for _, n := range c.nodes {
		if n.li != nil && !n.precolored {
			nodeByValue[n.li.Value().ID()] = n
		}
	}

	push := func(a, b *coloringNode, priority int) {
		if a == nil || b == nil || a == b {
			return
		}
		c.coalesceQueue = append(c.coalesceQueue, &coalesceOpportunity{a: a, b: b, priority: priority})
	}

	for _, blk := range order {
		weight := c.blockMoveWeight(f, blk)
		for _, phi := range blk.Phis() {
			out := nodeByValue[phi.Output().ID()]
			preds := blk.Preds()
			for i := range preds {
				push(out, nodeByValue[phi.InputAt(i).ID()], weight)
			}
		}
		for in := blk.InstrIteratorBegin(); in != nil; in = blk.InstrIteratorNext() {
			ls := in.Locations()
			outs := in.Outputs()
			if len(outs) == 0 {
				continue
			}
			outNode := nodeByValue[outs[0].ID()]
			if outNode == nil {
				continue
			}
			ins := in.Inputs()
			if ls.OutputUsesSameAs(0) && len(ins) > 0 {
				push(outNode, nodeByValue[ins[0].ID()], weight)
			}
			if ls.OutputCanOverlapWithInputs() {
				for _, iv := range ins {
					push(outNode, nodeByValue[iv.ID()], 0)
				}
			}
		}
	}

	// Adjacent siblings of the same value always get priority to coalesce
	// (eliminates the resolver's sibling-boundary move entirely).
	seen := map[*LiveInterval]bool{}
	for _, n := range c.nodes {
		if n.li == nil || seen[n.li] {
			continue
		}
		seen[n.li] = true
		if sib := n.li.NextSibling(); sib != nil {
			if sibNode := nodeByValue[sib.Value().ID()]; sibNode != nil {
				push(n, sibNode, 100)
			}
		}
	}

	sort.SliceStable(c.coalesceQueue, func(i, j int) bool {
		return c.coalesceQueue[i].priority > c.coalesceQueue[j].priority
	})
}

func (c *graphColoring) blockMoveWeight(f Function, blk Block) int {
	w := 1
	if len(blk.Succs()) == 1 {
		w *= 2
	}
	if loop := f.LoopInfo(blk); loop != nil {
		w *= 10 * loop.Depth
	}
	return w
}

// spillWeight computes §4.D's per-node spill priority: +infinity for
// length-1 (temp) intervals that cannot be split further, -infinity for
// fixed intervals, otherwise total move cost over uses divided by length.
func spillWeight(n *coloringNode) float64 {
	li := n.li
	if li.IsFixed() {
		return negInf
	}
	start, end := li.Start(), li.End()
	length := int(end - start)
	if length <= 1 {
		return posInf
	}
	cost := 0.0
	for range li.Uses() {
		cost++
	}
	if li.DefinitionRequiresRegister() {
		cost++
	}
	return cost / float64(length)
}

const posInf = 1e18
const negInf = -1e18

// pruneAndColor runs the simplify/coalesce/freeze/spill main loop (§4.D)
// and then assigns colors by popping the prune stack. Returns true if some
// register-requiring node could not be colored (the caller must split and
// retry).
func (c *graphColoring) pruneAndColor(k int, allocatable []RealReg) bool {
	c.stack = c.stack[:0]
	c.simplify, c.freeze, c.spill = nil, nil, nil

	inWorklist := map[*coloringNode]bool{}
	classify := func(n *coloringNode) {
		if n.precolored || inWorklist[n] {
			return
		}
		inWorklist[n] = true
		switch {
		case n.degree < k && !c.hasCoalesceOpportunity(n):
			c.simplify = append(c.simplify, n)
		case n.degree < k:
			c.freeze = append(c.freeze, n)
		default:
			c.spill = append(c.spill, n)
		}
	}
	for _, n := range c.nodes {
		classify(n)
	}

	prune := func(n *coloringNode) {
		c.stack = append(c.stack, n)
		for nb := range n.neighbors {
			if nb.precolored {
				continue
			}
			before := nb.degree
			nb.degree -= n.neighbors[nb]
			if before >= k && nb.degree < k {
				// nb just crossed below the color budget: it no longer
				// belongs on the spill worklist, and its coalesce
				// opportunities become live again (§4.D pruning step 1).
				c.spill = removeNode(c.spill, nb)
				c.freeze = removeNode(c.freeze, nb)
				if c.hasCoalesceOpportunity(nb) {
					c.freeze = append(c.freeze, nb)
				} else {
					c.simplify = append(c.simplify, nb)
				}
			}
		}
	}

	for len(c.simplify) > 0 || len(c.coalesceQueue) > 0 || len(c.freeze) > 0 || len(c.spill) > 0 {
		switch {
		case len(c.simplify) > 0:
			n := c.simplify[len(c.simplify)-1]
			c.simplify = c.simplify[:len(c.simplify)-1]
			prune(n)
		case len(c.coalesceQueue) > 0:
			op := c.coalesceQueue[0]
			c.coalesceQueue = c.coalesceQueue[1:]
			c.tryCoalesce(op, k)
		case len(c.freeze) > 0:
			n := c.freeze[len(c.freeze)-1]
			c.freeze = c.freeze[:len(c.freeze)-1]
			c.freezeMoves(n)
			prune(n)
		default:
			sort.SliceStable(c.spill, func(i, j int) bool { return spillPriorityLess(c.spill[i], c.spill[j]) })
			n := c.spill[0]
			c.spill = c.spill[1:]
			c.freezeMoves(n)
			prune(n)
		}
	}

	return c.assignColors(allocatable)
}

func spillPriorityLess(a, b *coloringNode) bool {
	ra, rb := a.li.DefinitionRequiresRegister(), b.li.DefinitionRequiresRegister()
	if ra != rb {
		return !ra && rb // register-requiring nodes outrank others, popped last (kept off the early-prune path)
	}
	return spillWeight(a) < spillWeight(b)
}

func removeNode(list []*coloringNode, n *coloringNode) []*coloringNode {
	for i, m := range list {
		if m == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (c *graphColoring) hasCoalesceOpportunity(n *coloringNode) bool {
	for _, op := range c.coalesceQueue {
		if (op.a == n || op.b == n) && !op.defunct && !op.inactive {
			return true
		}
	}
	return false
}

func (c *graphColoring) freezeMoves(n *coloringNode) {
	for _, op := range c.coalesceQueue {
		if op.a == n || op.b == n {
			op.inactive = true
		}
	}
}

// tryCoalesce implements the George/Briggs coalesce test (§4.D).
func (c *graphColoring) tryCoalesce(op *coalesceOpportunity, k int) {
	a, b := op.a.find(), op.b.find()
	if a == b {
		op.defunct = true
		return
	}
	if _, interferes := a.neighbors[b]; interferes {
		op.defunct = true
		return
	}
	if b.precolored {
		a, b = b, a
	}

	ok := false
	if a.precolored {
		ok = true
		for nb := range b.neighbors {
			if nb.degree < k || nb.precolored {
				continue
			}
			if _, adj := a.neighbors[nb]; adj {
				continue
			}
			ok = false
			break
		}
	} else {
		highDegree := 0
		merged := map[*coloringNode]bool{}
		for nb := range a.neighbors {
			merged[nb] = true
		}
		for nb := range b.neighbors {
			merged[nb] = true
		}
		for nb := range merged {
			if nb.degree >= k {
				highDegree++
			}
		}
		ok = highDegree < k
	}

	if !ok {
		op.inactive = true
		return
	}
	c.merge(a, b)
	op.defunct = true
}

func (c *graphColoring) merge(into, from *coloringNode) {
	from.alias = into
	for nb, w := range from.neighbors {
		if nb.find() == into {
			continue
		}
		c.addEdge(into, nb, w)
	}
}

// assignColors pops the prune stack and assigns each node the lowest
// available color, preferring caller-save, using last-chance hints from
// defunct/inactive coalesce opportunities (§4.D "Coloring"). Coalesced
// nodes take their root's color after every stack node has been colored.
// Returns true if a register-requiring node could not be colored.
func (c *graphColoring) assignColors(allocatable []RealReg) bool {
	failed := false
	for i := len(c.stack) - 1; i >= 0; i-- {
		n := c.stack[i]
		if n.alias != nil {
			continue
		}

		used := map[RealReg]bool{}
		for nb := range n.neighbors {
			r := nb.find()
			if r.precolored {
				used[r.reg] = true
			} else if r.colored {
				used[r.color] = true
			}
		}

		chosen := RealRegInvalid
		if hint := c.lastChanceHint(n); hint != RealRegInvalid && !used[hint] {
			chosen = hint
		} else {
			for _, r := range allocatable {
				if !used[r] {
					if c.regInfo.isCalleeSaved(r) && chosen != RealRegInvalid {
						continue
					}
					chosen = r
					if !c.regInfo.isCalleeSaved(r) {
						break
					}
				}
			}
		}

		if chosen == RealRegInvalid {
			if n.li.DefinitionRequiresRegister() || hasRegisterRequiringUse(n.li) {
				c.splitAtRegisterUses(n.li)
				failed = true
				continue
			}
			n.needsSpill = true
			continue
		}
		n.color, n.colored = chosen, true
		n.li.SetRegister(chosen)
	}
	for _, n := range c.stack {
		if root := n.find(); n.alias != nil && root.colored {
			n.color, n.colored = root.color, true
			n.li.SetRegister(n.color)
		}
	}
	return failed
}

func hasRegisterRequiringUse(li *LiveInterval) bool {
	_, ok := li.FirstRegisterUseAfter(li.Start())
	return ok
}

func (c *graphColoring) lastChanceHint(n *coloringNode) RealReg {
	for _, op := range c.coalesceQueue {
		if !op.defunct && !op.inactive {
			continue
		}
		var partner *coloringNode
		if op.a.find() == n {
			partner = op.b.find()
		} else if op.b.find() == n {
			partner = op.a.find()
		} else {
			continue
		}
		if partner.precolored {
			return partner.reg
		}
		if partner.colored {
			return partner.color
		}
	}
	return RealRegInvalid
}

// splitAtRegisterUses breaks li into one fragment per register-requiring
// use, guaranteeing the next coloring attempt can at least color the
// narrowed fragments (§4.D "Forward progress").
func (c *graphColoring) splitAtRegisterUses(li *LiveInterval) {
	pos := li.Start()
	for {
		next, ok := li.FirstRegisterUseAfter(pos + 1)
		if !ok {
			return
		}
		if tail := li.SplitAt(next, c.pool); tail != nil && tail != li {
			c.newSiblings = append(c.newSiblings, tail)
			li = tail
		}
		pos = next
	}
}

// assignSpillSlots partitions every node needing a spill slot by type and
// linear-sweeps their ranges, giving each parent interval the lowest slot
// not currently occupied by a live parent (§4.D "Spill-slot coloring").
func (c *graphColoring) assignSpillSlots(intervals []*LiveInterval) {
	byClass := map[SpillSlotClass][]*LiveInterval{}
	for _, n := range c.nodes {
		if n.needsSpill && !n.li.HasSpillSlot() {
			cls := SpillSlotClassOf(n.li.kind)
			byClass[cls] = append(byClass[cls], n.li)
		}
	}
	for cls, lis := range byClass {
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
		_ = cls
	}
}
