package pipeline

import (
	"fmt"
	"io"

	"github.com/sarchlab/m2sim/insts"
)

// Tracer observes pipeline state once per cycle, after Tick has fully
// settled it. It is invoked only when Config.TraceEnabled is true.
type Tracer interface {
	Cycle(cpu *CPU)
}

// WriterTracer renders one line per stage per cycle to an io.Writer,
// in the spirit of the reference simulator's per-stage debug print.
type WriterTracer struct {
	W io.Writer
}

// NewWriterTracer returns a Tracer that writes to w.
func NewWriterTracer(w io.Writer) *WriterTracer {
	return &WriterTracer{W: w}
}

var stageNames = [numStages]string{"Fetch", "DRF", "EX", "MEM", "WB"}

// Cycle writes the current clock and each stage's occupant.
func (t *WriterTracer) Cycle(cpu *CPU) {
	fmt.Fprintf(t.W, "--- cycle %d, pc=%d ---\n", cpu.Clock, cpu.PC)
	for i, name := range stageNames {
		l := cpu.Stages[i]
		fmt.Fprintf(t.W, "%-6s: %s\n", name, traceLatch(l))
	}
}

// TraceCodeMemory writes the decoded code memory table (one line per
// instruction: address, opcode, and operand fields) before cycle 1, the
// way the reference simulator's debug build dumps it at startup.
func TraceCodeMemory(w io.Writer, code []insts.Instruction) {
	fmt.Fprintln(w, "Code Memory:")
	for i, inst := range code {
		addr := baseAddr + 4*i
		fmt.Fprintf(w, "%-4d\t%s\trd=%d\trs1=%d\trs2=%d\timm=%d\n",
			addr, inst.Opcode, inst.Rd, inst.Rs1, inst.Rs2, inst.Imm)
	}
}

func traceLatch(l Latch) string {
	if l.Inst.IsBubble() {
		return "BUBBLE"
	}
	return fmt.Sprintf("%s (pc=%d, rd=%d, buffer=%d, stalled=%t)",
		l.Inst.Opcode, l.PC, l.Inst.Rd, l.Buffer, l.Stalled)
}
