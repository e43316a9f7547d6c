package pipeline

import (
	"fmt"
	"io"

	"github.com/sarchlab/m2sim/emu"
)

// State is a point-in-time snapshot of architectural state plus run
// statistics, produced at the end of a run (or on demand) for display.
type State struct {
	Registers    [emu.NumRegs]int32
	ZFlag        bool
	Memory       []int32
	Cycles       uint64
	InsCompleted uint64
	Branches     uint64
	Halted       bool
}

// DumpState snapshots the current architectural state. memWords is the
// number of data-memory words to include (0 omits memory entirely).
func (cpu *CPU) DumpState(memWords int) State {
	return State{
		Registers:    cpu.RegFile.R,
		ZFlag:        cpu.RegFile.Z,
		Memory:       cpu.Memory.Dump(memWords),
		Cycles:       cpu.Clock,
		InsCompleted: cpu.InsCompleted,
		Branches:     cpu.BranchCount,
		Halted:       cpu.Halted,
	}
}

// WriteTo renders the state the way the reference simulator's final
// "State of Architecture" block does: one line per register, the Z
// flag, the run counters, and one line per captured data-memory word.
func (s State) WriteTo(w io.Writer) (int64, error) {
	var n int
	write := func(format string, args ...any) {
		c, _ := fmt.Fprintf(w, format, args...)
		n += c
	}

	write("State of Architecture:\n")
	for i, v := range s.Registers {
		write("R%-2d\t|\tValue = %d\n", i, v)
	}
	write("Z flag\t|\tValue = %t\n", s.ZFlag)
	write("Cycles\t|\t%d\n", s.Cycles)
	write("Instructions completed\t|\t%d\n", s.InsCompleted)
	write("Branches taken\t|\t%d\n", s.Branches)

	for i, v := range s.Memory {
		write("MEM[%d]\t|\tValue = %d\n", i, v)
	}

	return int64(n), nil
}
