package pipeline

import "github.com/sarchlab/m2sim/insts"

// StageIndex names one of the five pipeline stages. Unlike a classic
// RISC pipeline's paired inter-stage registers (IF/ID, ID/EX, ...), APEX
// models one latch per stage (matching the original APEX_CPU.stage[]
// array): the latch holds whatever instruction currently occupies that
// stage, plus its busy/stalled bits.
type StageIndex int

const (
	StageFetch StageIndex = iota
	StageDRF
	StageEX
	StageMem
	StageWB
	numStages
)

// Latch is the mutable per-stage pipeline state. A latch holding the
// BUBBLE sentinel opcode models both a deliberately injected
// bubble and the "pre-warm" state of a stage that has not yet received
// its first real instruction — both are inert to every stage's logic,
// so no separate Busy bit is tracked (see DESIGN.md).
type Latch struct {
	// PC is the absolute program-counter value of the held
	// instruction; 0 for bubbles.
	PC uint32

	// Inst is the instruction occupying this latch.
	Inst insts.Instruction

	// Rs1Value and Rs2Value are the operand values read at DRF.
	Rs1Value int32
	Rs2Value int32

	// Buffer holds the ALU/load result computed at EX (and read back at
	// MEM/WB).
	Buffer int32

	// MemAddr is the effective address computed at EX for LOAD/STORE.
	MemAddr int32

	// Stalled is set by a stage that must retain its instruction for
	// another cycle instead of advancing it downstream.
	Stalled bool

	// CyclesLeft counts down the remaining EX-stage cycles for a
	// multi-cycle operation (MUL); zero means "not yet started" for a
	// freshly arrived instruction.
	CyclesLeft uint64

	// ZFlag is the Z-flag snapshot resolved at Decode for BZ/BNZ (used
	// by both hazard disciplines so Execute never branches on
	// discipline-specific state).
	ZFlag bool
}

// newBubbleLatch returns a latch holding the BUBBLE sentinel.
func newBubbleLatch() Latch {
	return Latch{Inst: insts.Bubble()}
}

// clear resets the latch to a bubble, discarding all other fields.
func (l *Latch) clear() {
	*l = newBubbleLatch()
}
