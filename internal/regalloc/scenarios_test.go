package regalloc

// Scenario tests named after the worked examples of the allocation contract:
// a trivial body, a loop-carried phi, an induction variable, a fixed-input
// instruction, register pressure forcing a split/spill, and a wide value
// needing a register pair. Each test is grounded directly in the production
// code paths it exercises (linearScan, graphColoring, or the full
// Allocate/Resolve pipeline), not in an idealized reading of the contract.

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aot-regalloc/regalloc/internal/arena"
)

// S1: a single constant with a single use. After allocation the constant's
// interval has one register, was never split, and no parallel move was
// inserted anywhere for it.
func TestScenario_S1_SingleConstantSingleUse_NoSplitNoMoves(t *testing.T) {
	v1 := NewVRegForKind(1, ValueKindInt32)

	def := newTestInstr(0, "const0").withIO([]VReg{v1}, nil)
	ret := newTestInstr(2, "return").withIO(nil, []VReg{v1})
	ret.Locations().SetInAt(0, Unallocated(PolicyRequiresRegister))

	blk := &testBlock{id: 0, isEntry: true, start: 0, end: 4, instrs: []Instr{def, ret}}
	f := newTestFunc(blk)

	a := NewAllocator(&testCodeGenerator{}, newTestRegInfo(2))
	res := a.Allocate(f, LinearScan)

	li := res.Intervals[1]
	require.True(t, li.HasRegister())
	require.False(t, li.IsSplit())
	require.Empty(t, res.Resolution.Before)
	require.Empty(t, res.Resolution.After)
	require.Empty(t, res.Resolution.AtExit)
}

// S2: a loop header phi merging a pre-header constant and a loop-body
// constant. With no interference between the three values, the phi
// coalesces with one of its inputs exactly as §4.D's phi coalescing rule
// intends, so the phi's final register equals one of its input registers.
func TestScenario_S2_LoopPhiCoalescesWithAnInput(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	c := newGraphColoring(&testCodeGenerator{}, newTestRegInfo(2), &pool)

	preheaderConst := newTestInterval(t, &pool, 1, ValueKindInt32)
	preheaderConst.AddRange(0, 2)
	phi := newTestInterval(t, &pool, 2, ValueKindInt32)
	phi.AddRange(2, 4)
	bodyConst := newTestInterval(t, &pool, 3, ValueKindInt32)
	bodyConst.AddRange(4, 6)

	predEntry := &testBlock{id: 1}
	predBody := &testBlock{id: 2}
	header := &testBlock{
		id:    0,
		preds: []*testBlock{predEntry, predBody},
		phis:  []Phi{&testPhi{out: phi.Value(), ins: []VReg{preheaderConst.Value(), bodyConst.Value()}}},
	}
	f := newTestFunc(header)

	c.Run(f, RegTypeInt, []*LiveInterval{preheaderConst, phi, bodyConst}, []Block{header})

	require.True(t, phi.HasRegister())
	require.True(t, phi.Register() == preheaderConst.Register() || phi.Register() == bodyConst.Register())
}

// S3: an induction variable. The incremented value and the phi it reads
// from truly overlap at the increment instruction, so they must land in
// different registers; the loop-top copy ("b = a") shares its defining
// instruction's overlap-allowed output policy with the phi, so it coalesces
// with it and ends up in the same register.
func TestScenario_S3_IncrementInterferesButLoopTopCopyCoalescesWithPhi(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	c := newGraphColoring(&testCodeGenerator{}, newTestRegInfo(2), &pool)

	phiA := newTestInterval(t, &pool, 1, ValueKindInt32)
	phiA.AddRange(0, 5)

	bVal := NewVRegForKind(3, ValueKindInt32)
	bDef := newTestInstr(1, "mov").withIO([]VReg{bVal}, []VReg{phiA.Value()})
	bDef.Locations().SetOut(Unallocated(PolicySameAsFirstInput))
	bDef.Locations().SetOutputCanOverlapWithInputs(true)
	b := newTestInterval(t, &pool, 3, ValueKindInt32)
	b.SetDefiningInstr(bDef, true)
	b.AddRange(1, 12)

	aNextVal := NewVRegForKind(2, ValueKindInt32)
	addInstr := newTestInstr(4, "add").withIO([]VReg{aNextVal}, []VReg{phiA.Value()})
	aNext := newTestInterval(t, &pool, 2, ValueKindInt32)
	aNext.SetDefiningInstr(addInstr, false)
	aNext.AddRange(4, 10)

	blk := &testBlock{id: 0, isEntry: true, start: 0, end: 12, instrs: []Instr{bDef, addInstr}}
	f := newTestFunc(blk)

	c.Run(f, RegTypeInt, []*LiveInterval{phiA, b, aNext}, []Block{blk})

	require.True(t, phiA.HasRegister())
	require.True(t, aNext.HasRegister())
	require.True(t, b.HasRegister())
	require.NotEqual(t, phiA.Register(), aNext.Register())
	require.Equal(t, phiA.Register(), b.Register())
}

// S4: div(a, b) on x86 demands a in register 0. The fixed-input plumbing
// (§4.C/§4.E) pins the final operand to register 0 regardless of which
// register (or spill slot) the covering sibling actually holds, inserting
// a correcting move immediately before the instruction when they differ.
func TestScenario_S4_FixedInputEndsWithTheRequiredRegister(t *testing.T) {
	v1 := NewVRegForKind(1, ValueKindInt32)
	v2 := NewVRegForKind(2, ValueKindInt32)

	def := newTestInstr(0, "const").withIO([]VReg{v1}, nil)
	div := newTestInstr(2, "div").withIO([]VReg{v2}, []VReg{v1})
	div.Locations().SetInAt(0, FixedRegister(RealReg(0)))

	blk := &testBlock{id: 0, isEntry: true, start: 0, end: 4, instrs: []Instr{def, div}}
	f := newTestFunc(blk)

	a := NewAllocator(&testCodeGenerator{}, newTestRegInfo(2))
	res := a.Allocate(f, LinearScan)

	// The first (head) sibling of v1's split chain is seeded with a hint
	// toward register 0 from the fixed-input use, so it is assigned
	// register 0 directly rather than some other free register.
	require.Equal(t, RealReg(0), res.Intervals[1].Register())

	require.Equal(t, Register(RealReg(0)), div.Locations().InAt(0))

	moves := res.Resolution.Before[div]
	require.NotNil(t, moves)
	require.Len(t, moves.Moves, 1)
	require.Equal(t, Register(RealReg(0)), moves.Moves[0].To)
}

// S5: more simultaneously-live values than registers, where one value is
// marked RequiresRegister only at a single late use. The long-lived value
// spills for most of its range and gets a register only for the tail
// sibling covering that late use; a load move is spliced in immediately
// before it to bring the value back from its spill slot.
func TestScenario_S5_PressureSplitsTheLongLivedValueAndLoadsItBackLate(t *testing.T) {
	v1 := NewVRegForKind(1, ValueKindInt32) // long-lived, pressured value
	v2 := NewVRegForKind(2, ValueKindInt32) // short-lived competitor

	def1 := newTestInstr(0, "const1").withIO([]VReg{v1}, nil)
	def2 := newTestInstr(2, "const2").withIO([]VReg{v2}, nil)
	use2 := newTestInstr(4, "use2").withIO(nil, []VReg{v2})
	use2.Locations().SetInAt(0, Unallocated(PolicyRequiresRegister))
	use1 := newTestInstr(40, "use1").withIO(nil, []VReg{v1})
	use1.Locations().SetInAt(0, Unallocated(PolicyRequiresRegister))

	blk := &testBlock{id: 0, isEntry: true, start: 0, end: 44, instrs: []Instr{def1, def2, use2, use1}}
	f := newTestFunc(blk)

	a := NewAllocator(&testCodeGenerator{}, newTestRegInfo(1))
	res := a.Allocate(f, LinearScan)

	head := res.Intervals[1]
	require.False(t, head.HasRegister())
	require.True(t, head.HasSpillSlot())

	// v2's definition evicts v1 first, so the chain is head, a spilled
	// middle sibling, and the tail sibling covering the late use.
	tail := head.NextSibling()
	require.NotNil(t, tail)
	for tail.NextSibling() != nil {
		tail = tail.NextSibling()
	}
	require.True(t, tail.HasRegister())
	require.Equal(t, RealReg(0), tail.Register())

	require.Equal(t, Register(RealReg(0)), use1.Locations().InAt(0))

	moves := res.Resolution.Before[use1]
	require.NotNil(t, moves)
	require.Len(t, moves.Moves, 1)
	require.True(t, moves.Moves[0].From.IsStackSlot())
	require.Equal(t, Register(RealReg(0)), moves.Moves[0].To)
}

// S6: a float64 value, needing two registers on this target, is assigned
// an aligned pair of consecutive registers by the low sibling alone; the
// high sibling is never independently scheduled, it simply trails the low
// sibling's assignment (§3 invariant 4, §4.C pair alignment).
func TestScenario_S6_Float64GetsAnAlignedConsecutiveRegisterPair(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{pairKinds: map[ValueKind]bool{ValueKindFloat64: true}}
	s := newLinearScan(cg, newTestRegInfo(4), &pool)

	lo := newTestInterval(t, &pool, 1, ValueKindFloat64)
	lo.AddRange(0, 10)
	hi := newTestInterval(t, &pool, 2, ValueKindFloat64)
	hi.AddRange(0, 10)
	lo.Pair(hi)

	// Only the low sibling is ever handed to Run: the pair's high half is
	// assigned as a side effect of assign(), matching how resolve.go only
	// ever walks parent chains and reaches the high half via
	// PairedInterval rather than iterating it independently.
	s.Run(RegTypeFloat, []*LiveInterval{lo})

	require.True(t, lo.HasRegister())
	require.Zero(t, lo.Register()%2)
	require.Equal(t, lo.Register()+1, hi.Register())
}
