package pipeline

import (
	"fmt"

	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/insts"
)

// baseAddr is the fixed program origin. Fetch reads code memory only
// while PC lies in [baseAddr, baseAddr+4*len(CodeMemory)); any other PC
// fetches a bubble.
const baseAddr = 4000

// codeIndex translates an absolute PC into a code-memory slot index.
func codeIndex(pc uint32) int {
	return int((pc - baseAddr) / 4)
}

// tickFetch advances the Fetch stage. Fetch never touches architectural
// state beyond PC.
func (cpu *CPU) tickFetch() {
	f := &cpu.Stages[StageFetch]
	drf := &cpu.Stages[StageDRF]

	if !f.Stalled {
		idx := codeIndex(cpu.PC)
		if idx >= 0 && idx < len(cpu.CodeMemory) {
			f.PC = cpu.PC
			f.Inst = cpu.CodeMemory[idx]
			cpu.PC += 4
		} else {
			f.clear()
		}

		if !drf.Stalled {
			*drf = *f
		} else {
			f.Stalled = true
		}
		return
	}

	// Fetch is stalled, holding an instruction it could not yet hand to
	// DRF, or freshly flushed into a bubble by a taken branch this same
	// cycle. Retry every cycle until DRF frees up.
	if f.Inst.IsBubble() {
		f.Stalled = false
	}

	if !drf.Stalled && !drf.Inst.IsBubble() {
		f.Stalled = false
		*drf = *f
	}
}

// tickDecode implements register read via the configured HazardResolver,
// register-range enforcement, and the HALT drain rule.
func (cpu *CPU) tickDecode() error {
	drf := &cpu.Stages[StageDRF]
	ex := &cpu.Stages[StageEX]

	if ex.Stalled {
		// EX is mid-flight on a multi-cycle operation (MUL); it keeps its
		// latch untouched, and DRF waits regardless of its own hazard
		// outcome.
		drf.Stalled = true
		return nil
	}

	if drf.Inst.IsBubble() {
		ex.clear()
		return nil
	}

	// A DRF latch parked on HALT stays parked forever once that HALT has
	// been promoted into EX (below): decode never retries it, and it
	// drains downstream unimpeded instead. A HALT held in DRF only by a
	// multi-cycle EX stall has not been promoted yet and is decoded below.
	if drf.Stalled && drf.Inst.Opcode == insts.HALT && ex.Inst.Opcode == insts.HALT {
		return nil
	}

	if err := validateRegisters(drf.Inst); err != nil {
		return cpu.fault(drf.Inst, drf.PC, err)
	}

	outcome := cpu.Hazard.Decode(cpu, drf.Inst)
	if outcome.Stall {
		drf.Stalled = true
		*ex = newBubbleLatch()
	} else {
		drf.Stalled = false
		*ex = Latch{
			PC:       drf.PC,
			Inst:     drf.Inst,
			Rs1Value: outcome.Rs1Value,
			Rs2Value: outcome.Rs2Value,
			ZFlag:    outcome.ZFlag,
		}
	}

	if drf.Inst.Opcode == insts.HALT {
		cpu.Stages[StageFetch].Stalled = true
		drf.Stalled = true
	}

	return nil
}

// validateRegisters enforces the 0..15 register range at Decode: a
// malformed operand aborts the run rather than faulting silently.
func validateRegisters(inst insts.Instruction) error {
	check := func(r uint8) error {
		if r >= 16 {
			return &FatalFault{Reason: "register number out of range"}
		}
		return nil
	}
	if inst.WritesRd() {
		if err := check(inst.Rd); err != nil {
			return err
		}
	}
	if inst.ReadsRs1() {
		if err := check(inst.Rs1); err != nil {
			return err
		}
	}
	if inst.ReadsRs2() {
		if err := check(inst.Rs2); err != nil {
			return err
		}
	}
	return nil
}

// tickExecute performs ALU/memory-address computation and the
// control-flow unit's branch resolution.
func (cpu *CPU) tickExecute() error {
	ex := &cpu.Stages[StageEX]
	mem := &cpu.Stages[StageMem]

	if ex.Inst.IsBubble() {
		mem.clear()
		return nil
	}

	if ex.CyclesLeft == 0 {
		ex.CyclesLeft = cpu.Latency.GetLatency(ex.Inst.Opcode)
	}

	if ex.CyclesLeft > 1 {
		// Multi-cycle op (MUL): hold the latch, stall DRF, and let a
		// bubble ripple into MEM this cycle.
		ex.CyclesLeft--
		ex.Stalled = true
		mem.clear()
		return nil
	}

	ex.CyclesLeft = 0
	ex.Stalled = false

	switch ex.Inst.Opcode {
	case insts.MOVC:
		ex.Buffer = ex.Inst.Imm

	case insts.ADD:
		ex.Buffer = ex.Rs1Value + ex.Rs2Value
	case insts.SUB:
		ex.Buffer = ex.Rs1Value - ex.Rs2Value
	case insts.AND:
		ex.Buffer = ex.Rs1Value & ex.Rs2Value
	case insts.OR:
		ex.Buffer = ex.Rs1Value | ex.Rs2Value
	case insts.EXOR:
		ex.Buffer = ex.Rs1Value ^ ex.Rs2Value

	case insts.MUL:
		ex.Buffer = ex.Rs1Value * ex.Rs2Value

	case insts.LOAD:
		ex.MemAddr = ex.Rs1Value + ex.Inst.Imm
		if err := cpu.checkAddress(ex.Inst, ex.PC, ex.MemAddr); err != nil {
			return err
		}

	case insts.STORE:
		ex.MemAddr = ex.Rs2Value + ex.Inst.Imm
		if err := cpu.checkAddress(ex.Inst, ex.PC, ex.MemAddr); err != nil {
			return err
		}

	case insts.JUMP:
		ex.Buffer = ex.Rs1Value + ex.Inst.Imm
		cpu.branch(uint32(ex.Buffer))

	case insts.BZ:
		if ex.ZFlag {
			ex.Buffer = int32(ex.PC) + ex.Inst.Imm
			cpu.branch(uint32(ex.Buffer))
		}

	case insts.BNZ:
		if !ex.ZFlag {
			ex.Buffer = int32(ex.PC) + ex.Inst.Imm
			cpu.branch(uint32(ex.Buffer))
		}

	case insts.HALT:
		ex.Stalled = true
		*mem = *ex
		return nil

	default:
		// Every non-bubble opcode is handled above; reaching here means a
		// new opcode was added to insts.Opcode without a matching case.
		return cpu.fault(ex.Inst, ex.PC, &FatalFault{Reason: fmt.Sprintf("unhandled opcode %s", ex.Inst.Opcode)})
	}

	*mem = *ex
	return nil
}

// checkAddress enforces the [0, MemWords) fault boundary.
func (cpu *CPU) checkAddress(inst insts.Instruction, pc uint32, addr int32) error {
	if !emu.InRange(addr) {
		return cpu.fault(inst, pc, &FatalFault{Reason: "memory address out of range"})
	}
	return nil
}

// branch is the control-flow unit: it flushes DRF and Fetch with
// bubbles, stalls Fetch for one cycle so it is not immediately refilled,
// and redirects PC.
func (cpu *CPU) branch(target uint32) {
	cpu.Stages[StageDRF].clear()
	cpu.Stages[StageFetch].clear()
	cpu.Stages[StageFetch].Stalled = true
	cpu.PC = target
	cpu.BranchCount++
}

// tickMemory performs the LOAD/STORE memory access. Memory never stalls
// except to drain HALT.
func (cpu *CPU) tickMemory() {
	mem := &cpu.Stages[StageMem]
	wb := &cpu.Stages[StageWB]

	if mem.Inst.IsBubble() {
		wb.clear()
		return
	}

	switch mem.Inst.Opcode {
	case insts.STORE:
		cpu.Memory.Write(mem.MemAddr, mem.Rs1Value)
	case insts.LOAD:
		mem.Buffer = cpu.Memory.Read(mem.MemAddr)
	}

	*wb = *mem

	if mem.Inst.Opcode == insts.HALT {
		mem.Stalled = true
	}
}

// tickWriteback commits the final register/Z-flag update and retires
// the instruction.
func (cpu *CPU) tickWriteback() {
	wb := &cpu.Stages[StageWB]

	if wb.Inst.IsBubble() {
		return
	}

	if wb.Inst.WritesRd() {
		cpu.RegFile.Write(wb.Inst.Rd, wb.Buffer)
	}

	cpu.Hazard.Writeback(cpu, wb.Inst)

	if cpu.Config.Hazard == Forwarding && wb.Inst.Opcode.SetsZFlag() {
		cpu.RegFile.Z = wb.Buffer == 0
	}

	cpu.InsCompleted++

	if wb.Inst.Opcode == insts.HALT {
		cpu.Halted = true
	}
}
