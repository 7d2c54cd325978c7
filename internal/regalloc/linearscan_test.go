package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aot-regalloc/regalloc/internal/arena"
)

// requiringUse wires a register-requiring use of li's value onto a fresh
// instruction at pos, so FirstRegisterUseAfter has something to find.
func requiringUse(pool *arena.Pool[LiveInterval], li *LiveInterval, pos position) {
	instr := newTestInstr(pos, "use").withIO(nil, []VReg{li.Value()})
	instr.Locations().SetInAt(0, Unallocated(PolicyRequiresRegister))
	li.AddUse(instr, 0, nil)
}

func TestLinearScan_TryAllocateFreeReg_AssignsWhenWhollyFree(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(2), &pool)

	li := newTestInterval(t, &pool, 1, ValueKindInt32)
	li.AddRange(0, 10)

	s.Run(RegTypeInt, []*LiveInterval{li})

	require.True(t, li.HasRegister())
}

func TestLinearScan_NonOverlappingIntervalsShareARegister(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(1), &pool)

	a := newTestInterval(t, &pool, 1, ValueKindInt32)
	a.AddRange(0, 10)
	b := newTestInterval(t, &pool, 2, ValueKindInt32)
	b.AddRange(10, 20)

	s.Run(RegTypeInt, []*LiveInterval{a, b})

	require.True(t, a.HasRegister())
	require.True(t, b.HasRegister())
	require.Equal(t, a.Register(), b.Register())
}

func TestLinearScan_FixedInterval_ReservesItsRegisterAcrossBlockedRange(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(1), &pool)

	fixed := newLiveInterval(&pool, FromRealReg(0, RegTypeInt), ValueKindInt32)
	fixed.MarkFixed()
	fixed.SetRegister(0)
	fixed.AddRange(0, 10)

	overlapping := newTestInterval(t, &pool, 1, ValueKindInt32)
	overlapping.AddRange(5, 8)

	// Only one register exists and the fixed interval blocks it for [0,10);
	// the overlapping value must be spilled, not handed reg 0.
	s.Run(RegTypeInt, []*LiveInterval{overlapping, fixed})

	require.False(t, overlapping.HasRegister())
}

func TestLinearScan_FixedInterval_FreesRegisterOnceItsRangeEnds(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(1), &pool)

	fixed := newLiveInterval(&pool, FromRealReg(0, RegTypeInt), ValueKindInt32)
	fixed.MarkFixed()
	fixed.SetRegister(0)
	fixed.AddRange(0, 4)

	after := newTestInterval(t, &pool, 1, ValueKindInt32)
	after.AddRange(4, 10)

	s.Run(RegTypeInt, []*LiveInterval{after, fixed})

	require.True(t, after.HasRegister())
	require.Equal(t, RealReg(0), after.Register())
}

// TestAllocateBlockedReg_FixedActiveIsLeastAttractiveEviction is a direct,
// white-box exercise of review finding #5: a fixed active interval must
// report its register's nextUse as "needed right now", not posInfinite,
// or it reads as the *most* attractive eviction target instead of the
// least attractive one.
func TestAllocateBlockedReg_FixedActiveIsLeastAttractiveEviction(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(2), &pool)

	fixed := newLiveInterval(&pool, FromRealReg(0, RegTypeInt), ValueKindInt32)
	fixed.MarkFixed()
	fixed.SetRegister(0)
	fixed.AddRange(0, 100)

	holder := newTestInterval(t, &pool, 1, ValueKindInt32)
	holder.AddRange(0, 100)
	holder.SetRegister(1)
	requiringUse(&pool, holder, 50)

	current := newTestInterval(t, &pool, 2, ValueKindInt32)
	current.AddRange(0, 100)
	requiringUse(&pool, current, 0)

	s.active = []*LiveInterval{fixed, holder}
	s.inactive = nil

	allocatable := []RealReg{0, 1}
	s.allocateBlockedReg(current, allocatable)

	// reg 1 (holder, next use at 50) must be evicted in preference to reg 0
	// (fixed, "next use" now) even though holder's raw nextUse position is
	// later — reg 0 is pinned and must never be handed out.
	require.True(t, current.HasRegister())
	require.Equal(t, RealReg(1), current.Register())
}

// TestAllocateBlockedReg_FixedInactiveIntersectionBlocksEviction exercises
// the inactive-list half of the same fix: a fixed interval that is merely
// inactive (not currently active) at the moment current is handled must
// still report its intersection position as "needed", not posInfinite.
func TestAllocateBlockedReg_FixedInactiveIntersectionBlocksEviction(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(1), &pool)

	fixed := newLiveInterval(&pool, FromRealReg(0, RegTypeInt), ValueKindInt32)
	fixed.MarkFixed()
	fixed.SetRegister(0)
	fixed.AddRange(20, 30) // a hole in the middle so it can sit in inactive
	fixed.AddRange(0, 5)

	current := newTestInterval(t, &pool, 1, ValueKindInt32)
	current.AddRange(0, 25)
	requiringUse(&pool, current, 0)

	s.active = nil
	s.inactive = []*LiveInterval{fixed}

	allocatable := []RealReg{0}
	s.allocateBlockedReg(current, allocatable)

	// The only register is pinned for part of current's range; with no
	// other candidate, current must spill rather than silently take reg 0.
	require.False(t, current.HasRegister())
}

func TestLinearScan_Evict_NeverEvictsAFixedHolder(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(1), &pool)

	fixed := newLiveInterval(&pool, FromRealReg(0, RegTypeInt), ValueKindInt32)
	fixed.MarkFixed()
	fixed.SetRegister(0)
	fixed.AddRange(0, 100)

	current := newTestInterval(t, &pool, 1, ValueKindInt32)
	current.AddRange(0, 10)

	s.active = []*LiveInterval{fixed}
	s.evict(0, current)

	require.Contains(t, s.active, fixed)
	require.True(t, fixed.HasRegister())
	require.Equal(t, RealReg(0), fixed.Register())
}

func TestLinearScan_PickRegister_PrefersRecordedHint(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	cg := &testCodeGenerator{}
	s := newLinearScan(cg, newTestRegInfo(2), &pool)

	li := newTestInterval(t, &pool, 1, ValueKindInt32)
	li.AddRange(0, 10)
	li.SetHintReg(1)

	s.Run(RegTypeInt, []*LiveInterval{li})

	require.True(t, li.HasRegister())
	require.Equal(t, RealReg(1), li.Register())
}
