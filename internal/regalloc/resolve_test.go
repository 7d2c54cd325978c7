package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aot-regalloc/regalloc/internal/arena"
)

func TestParallelMove_Add_SkipsNoOp(t *testing.T) {
	pm := &ParallelMove{}
	pm.add(Register(1), Register(1), ValueKindInt32, false)
	require.Empty(t, pm.Moves)
}

func TestParallelMove_Add_SplitsPairWhenRequested(t *testing.T) {
	pm := &ParallelMove{}
	from := RegisterPair(RealReg(0), RealReg(1))
	to := RegisterPair(RealReg(2), RealReg(3))
	pm.add(from, to, ValueKindInt64, true)

	require.Len(t, pm.Moves, 2)
	require.Equal(t, Register(RealReg(0)), pm.Moves[0].From)
	require.Equal(t, Register(RealReg(2)), pm.Moves[0].To)
	require.Equal(t, Register(RealReg(1)), pm.Moves[1].From)
	require.Equal(t, Register(RealReg(3)), pm.Moves[1].To)
}

func TestParallelMove_Add_SplitsFpuPairWhenRequested(t *testing.T) {
	pm := &ParallelMove{}
	from := FpuRegisterPair(RealReg(4), RealReg(5))
	to := FpuRegisterPair(RealReg(6), RealReg(7))
	pm.add(from, to, ValueKindFloat64, true)

	require.Len(t, pm.Moves, 2)
	require.Equal(t, FpuRegister(RealReg(4)), pm.Moves[0].From)
	require.Equal(t, FpuRegister(RealReg(6)), pm.Moves[0].To)
	require.Equal(t, FpuRegister(RealReg(5)), pm.Moves[1].From)
	require.Equal(t, FpuRegister(RealReg(7)), pm.Moves[1].To)
}

func TestParallelMove_Add_KeepsPairWhenNotSplitting(t *testing.T) {
	pm := &ParallelMove{}
	from := RegisterPair(RealReg(0), RealReg(1))
	to := RegisterPair(RealReg(2), RealReg(3))
	pm.add(from, to, ValueKindInt64, false)

	require.Len(t, pm.Moves, 1)
	require.Equal(t, from, pm.Moves[0].From)
	require.Equal(t, to, pm.Moves[0].To)
}

func TestStep2FrameSize(t *testing.T) {
	pool := arena.NewPool[LiveInterval]()
	intLi := newTestInterval(t, &pool, 1, ValueKindInt32)
	intLi.AddRange(0, 10)
	intLi.SetSpillSlot(2)

	longLi := newTestInterval(t, &pool, 2, ValueKindInt64)
	longLi.AddRange(0, 10)
	longLi.SetSpillSlot(0)

	r := &resolver{}
	got := r.step2FrameSize(map[VRegID]*LiveInterval{1: intLi, 2: longLi})
	require.Equal(t, 3, got.Int) // max slot 2 -> 3 slots needed
	require.Equal(t, 1, got.Long)
	require.Equal(t, 0, got.Float)
	require.Equal(t, 0, got.Double)
}
