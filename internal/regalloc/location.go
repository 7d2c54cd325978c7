package regalloc

import "fmt"

// Policy is the constraint a code generator places on an unallocated
// operand (§6).
type Policy uint8

const (
	// PolicyAny lets the resolver place the value in a register, a stack
	// slot, or leave it as a constant, whichever is cheapest.
	PolicyAny Policy = iota
	// PolicyRequiresRegister demands a core/int register.
	PolicyRequiresRegister
	// PolicyRequiresFpuRegister demands a float/FP register.
	PolicyRequiresFpuRegister
	// PolicySameAsFirstInput demands the output share the location
	// ultimately given to the first input.
	PolicySameAsFirstInput
)

// LocationKind enumerates the concrete location kinds a Location can hold
// (§6).
type LocationKind uint8

const (
	LocationKindUnallocated LocationKind = iota
	LocationKindRegister
	LocationKindFpuRegister
	LocationKindRegisterPair
	LocationKindFpuRegisterPair
	LocationKindStackSlot
	LocationKindDoubleStackSlot
	LocationKindSIMDStackSlot
	LocationKindConstant
	// LocationKindInvalid marks an input slot the instruction does not
	// use; AddUse records no use for it.
	LocationKindInvalid
)

// Location is a single operand's resolved (or not-yet-resolved) home:
// a register, a register pair, a stack slot (of one of three widths), a
// constant, or Unallocated(policy) awaiting the allocator's decision.
type Location struct {
	kind     LocationKind
	reg, hi  RealReg
	slot     int
	policy   Policy
	fixedReg bool // true if this Unallocated location also fixes a reg (fixed-input)
}

// Unallocated returns a Location awaiting assignment under the given
// policy.
func Unallocated(p Policy) Location { return Location{kind: LocationKindUnallocated, policy: p} }

// FixedRegister returns an Unallocated-looking location that additionally
// pins the operand to reg before allocation runs — used for instructions
// like x86's `div` that demand a specific physical register for one input
// (S4 in §8).
func FixedRegister(reg RealReg) Location {
	return Location{kind: LocationKindUnallocated, policy: PolicyRequiresRegister, reg: reg, fixedReg: true}
}

// Register returns a Location pinned to the given core register.
func Register(r RealReg) Location { return Location{kind: LocationKindRegister, reg: r} }

// FpuRegister returns a Location pinned to the given float register.
func FpuRegister(r RealReg) Location { return Location{kind: LocationKindFpuRegister, reg: r} }

// RegisterPair returns a Location pinned to a pair of consecutive core
// registers, lo and hi (§3 invariant 4).
func RegisterPair(lo, hi RealReg) Location {
	return Location{kind: LocationKindRegisterPair, reg: lo, hi: hi}
}

// FpuRegisterPair is the float-bank analogue of RegisterPair.
func FpuRegisterPair(lo, hi RealReg) Location {
	return Location{kind: LocationKindFpuRegisterPair, reg: lo, hi: hi}
}

// StackSlot returns a Location naming a single-width spill slot.
func StackSlot(index int) Location { return Location{kind: LocationKindStackSlot, slot: index} }

// DoubleStackSlot returns a Location naming a 64-bit-wide spill slot.
func DoubleStackSlot(index int) Location {
	return Location{kind: LocationKindDoubleStackSlot, slot: index}
}

// SIMDStackSlot returns a Location naming a 128-bit-wide spill slot.
func SIMDStackSlot(index int) Location {
	return Location{kind: LocationKindSIMDStackSlot, slot: index}
}

// ConstantLocation returns a Location for a value materialized directly
// from a constant, contributing nothing to a safepoint's register set
// (§4.E step 1).
func ConstantLocation() Location { return Location{kind: LocationKindConstant} }

func (l Location) IsUnallocated() bool { return l.kind == LocationKindUnallocated }
func (l Location) IsRegister() bool {
	return l.kind == LocationKindRegister || l.kind == LocationKindFpuRegister
}
func (l Location) IsPair() bool {
	return l.kind == LocationKindRegisterPair || l.kind == LocationKindFpuRegisterPair
}
func (l Location) IsStackSlot() bool {
	switch l.kind {
	case LocationKindStackSlot, LocationKindDoubleStackSlot, LocationKindSIMDStackSlot:
		return true
	default:
		return false
	}
}
func (l Location) IsConstant() bool { return l.kind == LocationKindConstant }

func (l Location) Policy() Policy      { return l.policy }
func (l Location) RequiresRegisterKind() bool {
	return l.policy == PolicyRequiresRegister || l.policy == PolicyRequiresFpuRegister
}
func (l Location) Reg() RealReg  { return l.reg }
func (l Location) Hi() RealReg   { return l.hi }
func (l Location) Slot() int     { return l.slot }
func (l Location) FixedReg() (RealReg, bool) {
	if l.kind == LocationKindUnallocated && l.fixedReg {
		return l.reg, true
	}
	return RealRegInvalid, false
}

func (l Location) String() string {
	switch l.kind {
	case LocationKindUnallocated:
		if r, ok := l.FixedReg(); ok {
			return fmt.Sprintf("unallocated(fixed=%s)", r)
		}
		return "unallocated"
	case LocationKindRegister:
		return l.reg.String()
	case LocationKindFpuRegister:
		return "f" + l.reg.String()
	case LocationKindRegisterPair:
		return fmt.Sprintf("(%s,%s)", l.reg, l.hi)
	case LocationKindFpuRegisterPair:
		return fmt.Sprintf("f(%s,%s)", l.reg, l.hi)
	case LocationKindStackSlot:
		return fmt.Sprintf("slot(%d)", l.slot)
	case LocationKindDoubleStackSlot:
		return fmt.Sprintf("dslot(%d)", l.slot)
	case LocationKindSIMDStackSlot:
		return fmt.Sprintf("simdslot(%d)", l.slot)
	case LocationKindConstant:
		return "const"
	default:
		return "?"
	}
}

// LocationSummary is the per-instruction metadata the code generator
// attaches and the resolver later mutates in place (§6).
type LocationSummary struct {
	out   Location
	in    []Location
	temp  []Location

	willCall            bool
	onlySlowPathCall    bool
	mainAndSlowPathCall bool
	needsSafepoint      bool
	outputCanOverlap    bool
	fixedInputs         map[int]bool
	sameAsFirst         map[int]bool
}

// NewLocationSummary builds a summary with nIn inputs and nTemp temps, all
// initially Unallocated(PolicyAny).
func NewLocationSummary(nIn, nTemp int) *LocationSummary {
	ls := &LocationSummary{
		out:  Unallocated(PolicyAny),
		in:   make([]Location, nIn),
		temp: make([]Location, nTemp),
	}
	for i := range ls.in {
		ls.in[i] = Unallocated(PolicyAny)
	}
	for i := range ls.temp {
		ls.temp[i] = Unallocated(PolicyAny)
	}
	return ls
}

func (ls *LocationSummary) Out() Location       { return ls.out }
func (ls *LocationSummary) SetOut(l Location)   { ls.out = l }
func (ls *LocationSummary) InAt(i int) Location { return ls.in[i] }
func (ls *LocationSummary) SetInAt(i int, l Location) {
	ls.in[i] = l
}
func (ls *LocationSummary) NumIn() int { return len(ls.in) }

func (ls *LocationSummary) TempAt(i int) Location     { return ls.temp[i] }
func (ls *LocationSummary) SetTempAt(i int, l Location) { ls.temp[i] = l }
func (ls *LocationSummary) NumTemp() int              { return len(ls.temp) }

func (ls *LocationSummary) WillCall() bool               { return ls.willCall }
func (ls *LocationSummary) OnlyCallsOnSlowPath() bool     { return ls.onlySlowPathCall }
func (ls *LocationSummary) CallsOnMainAndSlowPath() bool  { return ls.mainAndSlowPathCall }
func (ls *LocationSummary) NeedsSafepoint() bool          { return ls.needsSafepoint }
func (ls *LocationSummary) OutputCanOverlapWithInputs() bool { return ls.outputCanOverlap }

// SetOutputCanOverlapWithInputs declares that the output does not need to
// be placed in a register distinct from the inputs' registers (§4.D rule
// 4, §4.F exception, §8 invariant 1's exception clause).
func (ls *LocationSummary) SetOutputCanOverlapWithInputs(v bool) { ls.outputCanOverlap = v }

// IsFixedInput reports whether input i was constructed with FixedRegister.
func (ls *LocationSummary) IsFixedInput(i int) bool {
	_, ok := ls.in[i].FixedReg()
	return ok
}

// OutputUsesSameAs reports whether the output's policy is
// PolicySameAsFirstInput and, if so, which input index (always 0 in this
// model, kept as a method for readability at call sites).
func (ls *LocationSummary) OutputUsesSameAs(i int) bool {
	return i == 0 && ls.out.policy == PolicySameAsFirstInput
}

// SetWillCall / SetOnlyCallsOnSlowPath / SetCallsOnMainAndSlowPath /
// SetNeedsSafepoint let a code generator populate the flags above when
// building a LocationSummary; kept as setters (rather than constructor
// params) since most instructions need only one or two of them.
func (ls *LocationSummary) SetWillCall(v bool)               { ls.willCall = v }
func (ls *LocationSummary) SetOnlyCallsOnSlowPath(v bool)     { ls.onlySlowPathCall = v }
func (ls *LocationSummary) SetCallsOnMainAndSlowPath(v bool)  { ls.mainAndSlowPathCall = v }
func (ls *LocationSummary) SetNeedsSafepoint(v bool)          { ls.needsSafepoint = v }

// RegisterInfo holds the statically-known, ISA-specific register
// information the code generator publishes once per compilation (§6).
type RegisterInfo struct {
	AllocatableRegisters [NumRegType][]RealReg
	CalleeSavedRegisters map[RealReg]bool
	CallerSavedRegisters map[RealReg]bool
	RealRegName          func(RealReg) string
	// UnalignedPairsAllowed answers the "Unaligned pre-colored pairs"
	// open question (§9): true only for x86-family targets.
	UnalignedPairsAllowed bool
}

func (r *RegisterInfo) isCalleeSaved(reg RealReg) bool { return r.CalleeSavedRegisters[reg] }
func (r *RegisterInfo) isCallerSaved(reg RealReg) bool { return r.CallerSavedRegisters[reg] }

// CodeGenerator is the narrow interface the backend code generator
// exposes to the allocator (§6).
type CodeGenerator interface {
	NumCoreRegisters() int
	NumFPRegisters() int
	IsBlockedCore(RealReg) bool
	IsBlockedFP(RealReg) bool
	IsCoreCalleeSave(RealReg) bool
	IsFPCalleeSave(RealReg) bool
	// NeedsTwoRegisters reports whether a value of this kind occupies a
	// register pair on this target (§3 "pair").
	NeedsTwoRegisters(ValueKind) bool
	WordSize() int
	FPSpillSlotSize() int
	// GetNumSlowPathSpills returns how many of the given safepoint's live
	// registers require a save/restore sequence around a slow path call
	// (core selects between the core/FP bank).
	GetNumSlowPathSpills(ls *LocationSummary, core bool) int
	// InitializeCodeGeneration is the resolver's single publish-to-backend
	// call (§4.E step 2, §6).
	InitializeCodeGeneration(spillSlots FrameSpillSlots, maxSafepointSpillSize, reservedOutSlots int, linearOrder []Block)
	AddAllocatedRegister(Location)
	ShouldSplitLongMoves() bool
}

// FrameSpillSlots is the per-type spill-slot-count summary published to
// the code generator (§4.E step 2).
type FrameSpillSlots struct {
	Int, Float, Long, Double int
}

func (f FrameSpillSlots) total() int { return f.Int + f.Float + f.Long + f.Double }
