package regalloc

import "fmt"

// VReg identifies an SSA value for the purposes of register allocation.
// It packs a dense ID together with the RegType of the value, and
// optionally the RealReg it has been pinned or assigned to.
//
// Layout (low to high bits): [0:32) ID, [32:40) RealReg, [40:48) RegType,
// [48:56) ValueKind (the data model's richer scalar/float/reference type,
// §3; RegType alone only says which register bank a value competes for).
type VReg uint64

// VRegID is the part of a VReg that uniquely names the SSA value,
// independent of any register assignment.
type VRegID uint32

const vRegIDInvalid VRegID = 1<<32 - 1

// VRegInvalid is the zero-value-adjacent sentinel for "no virtual register".
var VRegInvalid = VReg(vRegIDInvalid)

// NewVReg constructs a VReg with the given id and type, with no register
// assigned yet.
func NewVReg(id VRegID, t RegType) VReg {
	return VReg(id).SetRegType(t)
}

// NewVRegForKind constructs a VReg for an SSA value of the given data-model
// kind, deriving its register bank from kind.RegType().
func NewVRegForKind(id VRegID, kind ValueKind) VReg {
	return VReg(id).SetRegType(kind.RegType()).SetValueKind(kind)
}

// ValueKind returns the data-model kind of v, or ValueKindInvalid if v was
// built without one (e.g. a plain NewVReg/FromRealReg).
func (v VReg) ValueKind() ValueKind { return ValueKind(v >> 48) }

// SetValueKind returns v with its ValueKind replaced by k.
func (v VReg) SetValueKind(k ValueKind) VReg {
	return VReg(k)<<48 | (v & 0x00ff_ffff_ffffffff)
}

// ID returns the VRegID of v.
func (v VReg) ID() VRegID { return VRegID(v & 0xffffffff) }

// RegType returns the RegType of v.
func (v VReg) RegType() RegType { return RegType(v >> 40) }

// SetRegType returns v with its RegType replaced by t.
func (v VReg) SetRegType(t RegType) VReg {
	return VReg(t)<<40 | (v & 0x00ff_ffffffff)
}

// RealReg returns the RealReg assigned to v, or RealRegInvalid.
func (v VReg) RealReg() RealReg { return RealReg(v >> 32) }

// SetRealReg returns v with its RealReg replaced by r.
func (v VReg) SetRealReg(r RealReg) VReg {
	return VReg(r)<<32 | (v & 0xffff_00ffffffff)
}

// IsRealReg reports whether v has been pinned to (or assigned) a physical
// register.
func (v VReg) IsRealReg() bool { return v.RealReg() != RealRegInvalid }

// FromRealReg returns a VReg representing the physical register r, used to
// model a fixed/pre-colored interval (e.g. the blocked ranges of a register
// the code generator reserves, or a fixed-input/fixed-output constraint).
func FromRealReg(r RealReg, t RegType) VReg {
	return VReg(r).SetRealReg(r).SetRegType(t)
}

// Valid reports whether v names an actual SSA value or physical register.
func (v VReg) Valid() bool { return v.ID() != vRegIDInvalid }

func (v VReg) String() string {
	if v.IsRealReg() {
		return v.RealReg().String()
	}
	return fmt.Sprintf("v%d", v.ID())
}

// RealReg is the index of a physical register within its RegType's bank.
type RealReg uint8

// RealRegInvalid is the sentinel for "no physical register" (kNoRegister
// in the spec).
const RealRegInvalid RealReg = 0xff

func (r RealReg) String() string {
	if r == RealRegInvalid {
		return "invalid"
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// RegType is the machine register bank an SSA value's physical
// representation belongs to. The data model's richer value kinds (bool,
// int8..int64, uint8..uint64, float32, float64, reference) all map onto
// one of these two banks; which of the value kinds needs a pair of
// consecutive registers is a property of the type, not the bank (see
// ValueKind.NeedsPair).
type RegType uint8

const (
	RegTypeInvalid RegType = iota
	RegTypeInt
	RegTypeFloat
	NumRegType
)

func (t RegType) String() string {
	switch t {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	default:
		return "invalid"
	}
}

// ValueKind enumerates the scalar/float/reference kinds named in the data
// model (§3). It exists distinctly from RegType because a kind determines
// spill-slot width and pair-ness, while RegType only determines which
// physical-register bank a value competes for.
type ValueKind uint8

const (
	ValueKindInvalid ValueKind = iota
	ValueKindBool
	ValueKindInt8
	ValueKindInt16
	ValueKindInt32
	ValueKindInt64
	ValueKindUint8
	ValueKindUint16
	ValueKindUint32
	ValueKindUint64
	ValueKindFloat32
	ValueKindFloat64
	ValueKindReference
)

// RegType returns the register bank a value of this kind is allocated
// from.
func (k ValueKind) RegType() RegType {
	switch k {
	case ValueKindFloat32, ValueKindFloat64:
		return RegTypeFloat
	default:
		return RegTypeInt
	}
}

// Is64Bit reports whether the kind occupies a 64-bit datum.
func (k ValueKind) Is64Bit() bool {
	return k == ValueKindInt64 || k == ValueKindUint64 || k == ValueKindFloat64
}

// IsReference reports whether the kind is a GC reference, which must
// additionally contribute to a safepoint's stack-bit set (§4.E step 1).
func (k ValueKind) IsReference() bool { return k == ValueKindReference }

// NumSpillSlots returns the number of spill slots a value of this kind
// occupies: 1 for scalars, 2 for 64-bit values, matching
// LiveInterval.number_of_spill_slots_needed (SIMD, 4 slots, is not
// representable by any ValueKind on this target and is handled directly
// by callers that know they hold a SIMD value).
func (k ValueKind) NumSpillSlots() int {
	if k.Is64Bit() {
		return 2
	}
	return 1
}

// SpillSlotClass buckets spill-slot pools by type, matching the resolver's
// per-type partitioning (§4.D "Spill-slot coloring", §4.E step 3 layout).
type SpillSlotClass uint8

const (
	SpillSlotClassInt SpillSlotClass = iota
	SpillSlotClassFloat
	SpillSlotClassLong
	SpillSlotClassDouble
	NumSpillSlotClass
)

// SpillSlotClassOf returns the pool a value of this kind's spill slots are
// drawn from.
func SpillSlotClassOf(k ValueKind) SpillSlotClass {
	switch k {
	case ValueKindFloat64:
		return SpillSlotClassDouble
	case ValueKindFloat32:
		return SpillSlotClassFloat
	case ValueKindInt64, ValueKindUint64:
		return SpillSlotClassLong
	default:
		return SpillSlotClassInt
	}
}
