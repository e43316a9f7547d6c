// Package pipeline implements the APEX five-stage pipeline: per-stage
// latches, inter-stage propagation, hazard resolution, control flow,
// and the cycle-stepping driver.
package pipeline

import (
	"errors"

	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/insts"
	"github.com/sarchlab/m2sim/timing/latency"
)

// CPU is one APEX pipeline instance: its five stage latches, its
// architectural state, and the policies (hazard discipline, EX-stage
// latency table) that parameterize a run.
type CPU struct {
	// Stages holds the five stage latches, indexed by StageIndex.
	Stages [numStages]Latch

	// RegFile and Memory are the architectural register file and the
	// linear data memory.
	RegFile *emu.RegFile
	Memory  *emu.Memory

	// PC is the program counter of the next instruction Fetch will
	// read, as an absolute address (baseAddr for the first instruction).
	PC uint32

	// CodeMemory is the static, already-assembled instruction stream.
	// Index i holds the instruction at address baseAddr+4*i.
	CodeMemory []insts.Instruction

	// Clock is the number of cycles Tick has completed.
	Clock uint64

	// InsCompleted counts every instruction (including HALT, excluding
	// bubbles) that has reached Writeback.
	InsCompleted uint64

	// BranchCount counts every taken branch/JUMP.
	BranchCount uint64

	// Halted is set once HALT reaches Writeback or a FatalFault occurs.
	Halted bool

	// Hazard is the Decode-stage hazard-resolution policy.
	Hazard HazardResolver

	// Latency is the EX-stage occupancy table.
	Latency *latency.Table

	// Config holds the run's knobs (hazard discipline, cycle budget,
	// counting mode, tracing).
	Config *Config

	// Tracer receives a per-cycle callback when Config.TraceEnabled.
	Tracer Tracer
}

// Option configures a CPU at construction time.
type Option func(*CPU)

// WithConfig overrides the default Config.
func WithConfig(cfg *Config) Option {
	return func(cpu *CPU) {
		cpu.Config = cfg
	}
}

// WithTracer attaches a Tracer; Config.TraceEnabled still gates whether
// it is invoked.
func WithTracer(t Tracer) Option {
	return func(cpu *CPU) {
		cpu.Tracer = t
	}
}

// WithEntryPoint overrides the program counter the first Fetch will
// read, for code that does not start at baseAddr's first instruction.
func WithEntryPoint(pc uint32) Option {
	return func(cpu *CPU) {
		cpu.PC = pc
	}
}

// NewCPU constructs a CPU over a fixed, already-assembled code memory.
// All registers and data memory start zeroed (and, for Variant A,
// every scoreboard bit starts valid) regardless of Config.
func NewCPU(code []insts.Instruction, opts ...Option) *CPU {
	cpu := &CPU{
		RegFile:    emu.NewRegFile(),
		Memory:     emu.NewMemory(),
		CodeMemory: code,
		PC:         baseAddr,
		Config:     DefaultConfig(),
	}

	for i := range cpu.Stages {
		cpu.Stages[i] = newBubbleLatch()
	}

	for _, opt := range opts {
		opt(cpu)
	}

	cpu.Hazard = cpu.Config.Hazard.Resolver()
	cpu.Latency = latency.NewTableWithConfig(cpu.Config.Latency)

	return cpu
}

// fault finalizes a FatalFault with the instruction and PC that raised
// it, halts the CPU, and returns it for the caller to propagate.
func (cpu *CPU) fault(inst insts.Instruction, pc uint32, err error) error {
	var ff *FatalFault
	if errors.As(err, &ff) {
		ff.PC = pc
		ff.Inst = inst.Opcode.String()
	}
	cpu.Halted = true
	return err
}

// Tick advances the pipeline by one cycle, dispatching stages in
// reverse order (WB, MEM, EX, DRF, Fetch) so that every stage consumes
// the latch its upstream stage filled in the previous cycle before that
// upstream stage overwrites it, emulating a simultaneous flip-flop
// update with a single latch array rather than double-buffered
// pipeline registers.
func (cpu *CPU) Tick() error {
	if cpu.Halted {
		return nil
	}

	cpu.tickWriteback()
	cpu.tickMemory()

	if err := cpu.tickExecute(); err != nil {
		return err
	}
	if err := cpu.tickDecode(); err != nil {
		return err
	}

	cpu.tickFetch()

	cpu.Clock++

	if cpu.Config.TraceEnabled && cpu.Tracer != nil {
		cpu.Tracer.Cycle(cpu)
	}

	return nil
}

// Run executes Tick until the program halts, a FatalFault occurs, or
// (outside CountingMode) Config.CycleBudget is exhausted.
func (cpu *CPU) Run() error {
	for {
		if cpu.Halted {
			return nil
		}
		if !cpu.Config.CountingMode && cpu.Clock >= cpu.Config.CycleBudget {
			return nil
		}
		if err := cpu.Tick(); err != nil {
			return err
		}
	}
}

// RunCycles executes at most n more cycles, stopping early on halt or
// fault. It reports whether the CPU is still running afterward.
func (cpu *CPU) RunCycles(n uint64) (bool, error) {
	for i := uint64(0); i < n; i++ {
		if cpu.Halted {
			return false, nil
		}
		if err := cpu.Tick(); err != nil {
			return false, err
		}
	}
	return !cpu.Halted, nil
}

// Stats summarizes a completed or in-progress run.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Branches     uint64
	CPI          float64
}

// Stats returns the CPU's current performance statistics.
func (cpu *CPU) Stats() Stats {
	s := Stats{
		Cycles:       cpu.Clock,
		Instructions: cpu.InsCompleted,
		Branches:     cpu.BranchCount,
	}
	if s.Instructions > 0 {
		s.CPI = float64(s.Cycles) / float64(s.Instructions)
	}
	return s
}
