// Package pipeline implements the APEX five-stage pipeline: per-stage
// latches, inter-stage propagation, hazard resolution, control flow,
// and the cycle-stepping driver.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/sarchlab/m2sim/insts"
)

// Discipline names a hazard-resolution policy.
type Discipline int

const (
	// Scoreboard is Variant A: a register-valid table gates readers at
	// Decode; a writer clears validity on entry and the scoreboard
	// restores it at Writeback.
	Scoreboard Discipline = iota
	// Forwarding is Variant B: Decode snoops the EX and WB latches and
	// bypasses the register file, stalling only on a LOAD-use hazard.
	Forwarding
)

// String renders the discipline the way Config's JSON form spells it.
func (d Discipline) String() string {
	switch d {
	case Scoreboard:
		return "scoreboard"
	case Forwarding:
		return "forwarding"
	default:
		return fmt.Sprintf("Discipline(%d)", int(d))
	}
}

// MarshalJSON renders the discipline as its string name.
func (d Discipline) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either "scoreboard"/"forwarding" or the bare
// discipline as a JSON number.
func (d *Discipline) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch name {
		case "scoreboard":
			*d = Scoreboard
		case "forwarding":
			*d = Forwarding
		default:
			return fmt.Errorf("unknown hazard discipline %q", name)
		}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("hazard discipline must be a string or number: %w", err)
	}
	*d = Discipline(n)
	return nil
}

// Resolver returns the HazardResolver implementing this discipline.
func (d Discipline) Resolver() HazardResolver {
	if d == Forwarding {
		return ForwardingResolver{}
	}
	return ScoreboardResolver{}
}

// DecodeOutcome is what a HazardResolver produces for the instruction
// currently held in the DRF latch.
type DecodeOutcome struct {
	// Stall is true if the instruction must remain in DRF this cycle.
	Stall bool
	// Rs1Value and Rs2Value are the resolved source operand values.
	Rs1Value int32
	Rs2Value int32
	// ZFlag is the Z value BZ/BNZ should test once it reaches EX.
	ZFlag bool
}

// HazardResolver is the Decode-stage hazard policy. Two interchangeable
// implementations exist below, selected via Config.Hazard rather than
// two parallel code paths: ScoreboardResolver (Variant A) and
// ForwardingResolver (Variant B).
type HazardResolver interface {
	// Decode resolves source operands (and, for BZ/BNZ, the Z flag) for
	// the instruction held in the DRF latch, or reports a stall. A
	// resolver that invalidates state for its own destination register
	// (Variant A) must do so only after its stall check has passed, so
	// that an instruction whose destination equals one of its own
	// sources (ADD R1,R1,R2) still reads its own pre-invalidation value.
	Decode(cpu *CPU, inst insts.Instruction) DecodeOutcome

	// Writeback performs discipline-specific bookkeeping when inst
	// retires: Variant A's no-shadowing scoreboard/Z-valid restore;
	// Variant B does nothing.
	Writeback(cpu *CPU, inst insts.Instruction)
}

// isForwardableWriter reports whether a latch holding this opcode is a
// legitimate forwarding source (Variant B) / scoreboard writer (Variant
// A): STORE, the branches, JUMP and BUBBLE never forward a result.
func isForwardableWriter(op insts.Opcode) bool {
	switch op {
	case insts.BUBBLE, insts.STORE, insts.BZ, insts.BNZ, insts.JUMP:
		return false
	default:
		return true
	}
}

// --- Variant A: scoreboard stall -------------------------------------

// ScoreboardResolver implements the register-valid-table hazard
// discipline (Variant A).
type ScoreboardResolver struct{}

// Decode stalls until every required source (and, for BZ/BNZ, the Z
// flag) is valid, then reads from the register file and, in the same
// step, clears the destination's own validity bit (and the Z validity
// bit for ADD/SUB/MUL). Clearing only after the stall check passes
// matches the original's single check-then-clear statement, so an
// instruction whose destination is also one of its sources (e.g.
// ADD R1,R1,R2) still reads its own pre-clear value instead of
// invalidating itself before it can ever pass the check.
func (ScoreboardResolver) Decode(cpu *CPU, inst insts.Instruction) DecodeOutcome {
	out := DecodeOutcome{ZFlag: cpu.RegFile.Z}

	if inst.ReadsRs1() && !cpu.RegFile.Valid[inst.Rs1] {
		out.Stall = true
	}
	if inst.ReadsRs2() && !cpu.RegFile.Valid[inst.Rs2] {
		out.Stall = true
	}
	if (inst.Opcode == insts.BZ || inst.Opcode == insts.BNZ) && !cpu.RegFile.ZValid {
		out.Stall = true
	}

	if out.Stall {
		return out
	}

	if inst.ReadsRs1() {
		out.Rs1Value = cpu.RegFile.Read(inst.Rs1)
	}
	if inst.ReadsRs2() {
		out.Rs2Value = cpu.RegFile.Read(inst.Rs2)
	}

	if inst.WritesRd() {
		cpu.RegFile.Valid[inst.Rd] = false
	}
	if inst.Opcode.SetsZFlag() {
		cpu.RegFile.ZValid = false
	}

	return out
}

// Writeback restores the destination's validity bit and the Z validity
// bit, unless a later (still in-flight) writer to the same register, or
// a later ADD/SUB/MUL, would immediately shadow the restore.
func (ScoreboardResolver) Writeback(cpu *CPU, inst insts.Instruction) {
	ex := cpu.Stages[StageEX].Inst
	mem := cpu.Stages[StageMem].Inst

	if inst.WritesRd() {
		shadowedByEX := ex.Rd == inst.Rd && isForwardableWriter(ex.Opcode)
		shadowedByMEM := mem.Rd == inst.Rd && isForwardableWriter(mem.Opcode)
		if !shadowedByEX && !shadowedByMEM {
			cpu.RegFile.Valid[inst.Rd] = true
		}
	}

	if inst.Opcode.SetsZFlag() {
		laterInEX := ex.Opcode.SetsZFlag()
		laterInMEM := mem.Opcode.SetsZFlag()
		if !laterInEX && !laterInMEM {
			cpu.RegFile.Z = cpu.Stages[StageWB].Buffer == 0
			cpu.RegFile.ZValid = true
		}
	}
}

// --- Variant B: forwarding --------------------------------------------

// ForwardingResolver implements the bypass hazard discipline (Variant
// B): no valid bits, Decode snoops the EX and WB latches.
type ForwardingResolver struct{}

// Decode resolves each source by checking the EX latch then the WB
// latch for a matching, forwardable destination; a match in EX that is
// a LOAD forces a stall since the memory result is not yet available.
// BZ/BNZ resolve the Z flag the same way instead of reading registers.
func (ForwardingResolver) Decode(cpu *CPU, inst insts.Instruction) DecodeOutcome {
	ex := &cpu.Stages[StageEX]
	wb := &cpu.Stages[StageWB]
	out := DecodeOutcome{}

	forward := func(reg uint8) (value int32, found bool, stall bool) {
		if ex.Inst.Rd == reg && isForwardableWriter(ex.Inst.Opcode) {
			if ex.Inst.Opcode == insts.LOAD {
				return 0, false, true // stall: value not ready until MEM
			}
			return ex.Buffer, true, false
		}
		if wb.Inst.Rd == reg && isForwardableWriter(wb.Inst.Opcode) {
			return wb.Buffer, true, false
		}
		return 0, false, false
	}

	if inst.ReadsRs1() {
		if v, found, stall := forward(inst.Rs1); stall {
			out.Stall = true
		} else if found {
			out.Rs1Value = v
		} else {
			out.Rs1Value = cpu.RegFile.Read(inst.Rs1)
		}
	}

	if inst.ReadsRs2() {
		if v, found, stall := forward(inst.Rs2); stall {
			out.Stall = true
		} else if found {
			out.Rs2Value = v
		} else {
			out.Rs2Value = cpu.RegFile.Read(inst.Rs2)
		}
	}

	if inst.Opcode == insts.BZ || inst.Opcode == insts.BNZ {
		switch {
		case ex.Inst.Opcode.SetsZFlag():
			out.ZFlag = ex.Buffer == 0
		case wb.Inst.Opcode.SetsZFlag():
			out.ZFlag = wb.Buffer == 0
		default:
			out.ZFlag = cpu.RegFile.Z
		}
	}

	return out
}

// Writeback is a no-op; Variant B has no scoreboard state to restore.
func (ForwardingResolver) Writeback(*CPU, insts.Instruction) {}
