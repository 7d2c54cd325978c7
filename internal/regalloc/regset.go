package regalloc

import (
	"fmt"
	"strings"
)

// RegSet is a set of up to 64 RealReg, used to represent things like "the
// registers blocked for this function" or "the registers clobbered by a
// call" without an allocation.
type RegSet uint64

// NewRegSet returns a RegSet containing exactly regs.
func NewRegSet(regs ...RealReg) RegSet {
	var s RegSet
	for _, r := range regs {
		s = s.add(r)
	}
	return s
}

func (rs RegSet) add(r RealReg) RegSet {
	if r >= 64 {
		return rs
	}
	return rs | 1<<uint(r)
}

func (rs RegSet) has(r RealReg) bool {
	return r < 64 && rs&(1<<uint(r)) != 0
}

// Range calls f for every RealReg present in rs, in increasing order.
func (rs RegSet) Range(f func(RealReg)) {
	for i := 0; i < 64; i++ {
		if rs&(1<<uint(i)) != 0 {
			f(RealReg(i))
		}
	}
}

func (rs RegSet) format(info *RegisterInfo) string { //nolint:unused
	var parts []string
	rs.Range(func(r RealReg) { parts = append(parts, info.RealRegName(r)) })
	return strings.Join(parts, ", ")
}

// regPositions gives, per physical register, the earliest position at
// which the register stops being free (TryAllocateFreeReg's free_until)
// or the next register-requiring use of its current holder
// (AllocateBlockedReg's next_use). posInfinite means "free for the
// entire interval under consideration".
type regPositions [RealRegsMax]position

func newRegPositions(fill position) (rp regPositions) {
	for i := range rp {
		rp[i] = fill
	}
	return
}

func (rp *regPositions) format(info *RegisterInfo, allocatable []RealReg) string { //nolint:unused
	var parts []string
	for _, r := range allocatable {
		parts = append(parts, fmt.Sprintf("%s:%d", info.RealRegName(r), rp[r]))
	}
	return strings.Join(parts, " ")
}

// RealRegsMax bounds the number of physical registers in any one bank;
// 64 is enough headroom for every real ISA this allocator targets (at
// most ~32 integer and ~32 float/vector registers per bank).
const RealRegsMax = 64
