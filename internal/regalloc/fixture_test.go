package regalloc

// Hand-written Function/Block/Instr/Phi fixtures, grounded on the teacher's
// own mockFunction/mockBlock/mockInstr trio (regalloc_test.go): a whole-CFG
// scenario is easier to read as a small literal graph than as a generated
// mock, so these back every scenario and component test in this package.
// Narrower, single-interface behavior is instead driven by go.uber.org/mock
// (see mock_test.go).

type testVRegSet []VReg

func (s testVRegSet) Contains(v VReg) bool {
	for _, x := range s {
		if x.ID() == v.ID() {
			return true
		}
	}
	return false
}

func (s testVRegSet) Range(f func(VReg)) {
	for _, x := range s {
		f(x)
	}
}

type testPhi struct {
	out   VReg
	ins   []VReg
	catch bool
}

func (p *testPhi) Output() VReg          { return p.out }
func (p *testPhi) InputAt(i int) VReg    { return p.ins[i] }
func (p *testPhi) IsCatchPhi() bool      { return p.catch }

type testInstr struct {
	pos       position
	str       string
	ins       []VReg
	outs      []VReg
	temps     []VReg
	loc       *LocationSummary
	safepoint bool
	env       []EnvSlot
}

func newTestInstr(pos position, str string) *testInstr {
	return &testInstr{pos: pos, str: str, loc: NewLocationSummary(0, 0)}
}

func (i *testInstr) String() string             { return i.str }
func (i *testInstr) Position() position          { return i.pos }
func (i *testInstr) Inputs() []VReg              { return i.ins }
func (i *testInstr) Outputs() []VReg             { return i.outs }
func (i *testInstr) Temps() []VReg               { return i.temps }
func (i *testInstr) Locations() *LocationSummary { return i.loc }
func (i *testInstr) IsSafepoint() bool           { return i.safepoint }
func (i *testInstr) Environment() []EnvSlot       { return i.env }

// withIO sets the instruction's outputs and inputs together, sizing its
// location summary's input slice to match.
func (i *testInstr) withIO(outs []VReg, ins []VReg) *testInstr {
	i.outs = outs
	i.ins = ins
	i.loc = NewLocationSummary(len(ins), 0)
	return i
}

type testBlock struct {
	id               int
	instrs           []Instr
	preds, succs     []*testBlock
	isEntry, isCatch bool
	start, end       position
	phis             []Phi
	info             BlockInfo

	iter int
}

func (b *testBlock) ID() int { return b.id }

func (b *testBlock) InstrIteratorBegin() Instr {
	b.iter = 0
	return b.instrAt(0)
}

func (b *testBlock) InstrIteratorNext() Instr {
	b.iter++
	return b.instrAt(b.iter)
}

func (b *testBlock) instrAt(i int) Instr {
	if i >= len(b.instrs) {
		return nil
	}
	return b.instrs[i]
}

func (b *testBlock) Preds() []Block {
	out := make([]Block, len(b.preds))
	for i, p := range b.preds {
		out[i] = p
	}
	return out
}

func (b *testBlock) Succs() []Block {
	out := make([]Block, len(b.succs))
	for i, s := range b.succs {
		out[i] = s
	}
	return out
}

func (b *testBlock) Entry() bool             { return b.isEntry }
func (b *testBlock) IsCatchBlock() bool      { return b.isCatch }
func (b *testBlock) LifetimeStart() position { return b.start }
func (b *testBlock) LifetimeEnd() position   { return b.end }
func (b *testBlock) Phis() []Phi             { return b.phis }
func (b *testBlock) Info() BlockInfo         { return b.info }

func link(pred, succ *testBlock) {
	pred.succs = append(pred.succs, succ)
	succ.preds = append(succ.preds, pred)
}

type testFunc struct {
	rpo         []*testBlock // authored in reverse-post order
	po          []*testBlock // authored in post order (reverse of rpo for every acyclic fixture)
	loopInfo    map[int]*LoopInfo
	irreducible map[int]bool
	debuggable  bool

	rpoIdx, poIdx, loIdx int
}

// newTestFunc builds a Function over blocks given in reverse-post order; the
// post-order iterator defaults to the exact reverse, which holds for every
// acyclic fixture used in this package's tests (loop fixtures override it
// explicitly with setPostOrder).
func newTestFunc(blocks ...*testBlock) *testFunc {
	f := &testFunc{rpo: blocks, loopInfo: map[int]*LoopInfo{}, irreducible: map[int]bool{}}
	f.po = make([]*testBlock, len(blocks))
	for i, b := range blocks {
		f.po[len(blocks)-1-i] = b
	}
	return f
}

func (f *testFunc) setPostOrder(blocks ...*testBlock) { f.po = blocks }

func (f *testFunc) setLoop(header *testBlock, depth int, outer *LoopInfo, backEdges ...*testBlock) *LoopInfo {
	var be []Block
	for _, b := range backEdges {
		be = append(be, b)
	}
	li := &LoopInfo{Header: header, BackEdges: be, Depth: depth, Outer: outer}
	f.loopInfo[header.id] = li
	return li
}

// setLoopMember records that b belongs to the loop headed by header (without
// itself being the header), so LoopInfo(b) resolves for every block in the
// loop body, not only the header.
func (f *testFunc) setLoopMember(b *testBlock, loop *LoopInfo) { f.loopInfo[b.id] = loop }

func (f *testFunc) PostOrderBlockIteratorBegin() Block {
	f.poIdx = 0
	return f.poAt(0)
}
func (f *testFunc) PostOrderBlockIteratorNext() Block {
	f.poIdx++
	return f.poAt(f.poIdx)
}
func (f *testFunc) poAt(i int) Block {
	if i >= len(f.po) {
		return nil
	}
	return f.po[i]
}

func (f *testFunc) ReversePostOrderBlockIteratorBegin() Block {
	f.rpoIdx = 0
	return f.rpoAt(0)
}
func (f *testFunc) ReversePostOrderBlockIteratorNext() Block {
	f.rpoIdx++
	return f.rpoAt(f.rpoIdx)
}
func (f *testFunc) rpoAt(i int) Block {
	if i >= len(f.rpo) {
		return nil
	}
	return f.rpo[i]
}

// LinearOrderBlockIteratorBegin/Next are never consulted by this package's
// own code (computeLinearOrder derives its own order from PostOrder), but
// the interface requires them; reuse the authored rpo order.
func (f *testFunc) LinearOrderBlockIteratorBegin() Block { f.loIdx = 0; return f.loAt(0) }
func (f *testFunc) LinearOrderBlockIteratorNext() Block  { f.loIdx++; return f.loAt(f.loIdx) }
func (f *testFunc) loAt(i int) Block {
	if i >= len(f.rpo) {
		return nil
	}
	return f.rpo[i]
}

func (f *testFunc) LoopInfo(b Block) *LoopInfo {
	tb, ok := b.(*testBlock)
	if !ok {
		return nil
	}
	return f.loopInfo[tb.id]
}

func (f *testFunc) IsIrreducibleLoopHeader(b Block) bool {
	tb, ok := b.(*testBlock)
	return ok && f.irreducible[tb.id]
}

func (f *testFunc) IsDebuggable() bool { return f.debuggable }

// testCodeGenerator is a minimal CodeGenerator fixture: two-register-pair
// support and blocked registers are opt-in via fields, everything else is a
// fixed, unconditional answer, matching the teacher's own scaled-down mock
// backends used for regalloc unit tests.
type testCodeGenerator struct {
	blockedCore map[RealReg]bool
	blockedFP   map[RealReg]bool
	calleeSave  map[RealReg]bool
	pairKinds   map[ValueKind]bool
	splitMoves  bool

	published     FrameSpillSlots
	publishedCore int
	linearOrder   []Block
	allocated     []Location
}

func (g *testCodeGenerator) NumCoreRegisters() int   { return 16 }
func (g *testCodeGenerator) NumFPRegisters() int     { return 16 }
func (g *testCodeGenerator) IsBlockedCore(r RealReg) bool { return g.blockedCore[r] }
func (g *testCodeGenerator) IsBlockedFP(r RealReg) bool   { return g.blockedFP[r] }
func (g *testCodeGenerator) IsCoreCalleeSave(r RealReg) bool { return g.calleeSave[r] }
func (g *testCodeGenerator) IsFPCalleeSave(r RealReg) bool   { return g.calleeSave[r] }
func (g *testCodeGenerator) NeedsTwoRegisters(k ValueKind) bool { return g.pairKinds[k] }
func (g *testCodeGenerator) WordSize() int                     { return 4 }
func (g *testCodeGenerator) FPSpillSlotSize() int              { return 4 }
func (g *testCodeGenerator) GetNumSlowPathSpills(*LocationSummary, bool) int { return 0 }
func (g *testCodeGenerator) InitializeCodeGeneration(spillSlots FrameSpillSlots, _, _ int, order []Block) {
	g.published = spillSlots
	g.linearOrder = order
}
func (g *testCodeGenerator) AddAllocatedRegister(l Location) { g.allocated = append(g.allocated, l) }
func (g *testCodeGenerator) ShouldSplitLongMoves() bool      { return g.splitMoves }

// newTestRegInfo builds a RegisterInfo with n plain int and n plain float
// registers, none callee-saved, sufficient for every linear-scan/coloring
// test in this package.
func newTestRegInfo(n int) *RegisterInfo {
	var ints, floats []RealReg
	for r := RealReg(0); int(r) < n; r++ {
		ints = append(ints, r)
		floats = append(floats, r)
	}
	return &RegisterInfo{
		AllocatableRegisters: [NumRegType][]RealReg{RegTypeInt: ints, RegTypeFloat: floats},
		CalleeSavedRegisters: map[RealReg]bool{},
		CallerSavedRegisters: map[RealReg]bool{},
		RealRegName:          func(r RealReg) string { return r.String() },
	}
}
