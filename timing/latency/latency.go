package latency

import "github.com/sarchlab/m2sim/insts"

// Table provides per-opcode EX-stage occupancy lookups.
type Table struct {
	config *Config
}

// NewTable creates a new latency table with the reference APEX timing.
func NewTable() *Table {
	return &Table{config: DefaultConfig()}
}

// NewTableWithConfig creates a new latency table with a custom Config.
func NewTableWithConfig(config *Config) *Table {
	return &Table{config: config}
}

// GetLatency returns the number of cycles op occupies the Execute
// stage.
func (t *Table) GetLatency(op insts.Opcode) uint64 {
	switch op {
	case insts.MOVC, insts.ADD, insts.SUB, insts.AND, insts.OR, insts.EXOR:
		return t.config.ALULatency

	case insts.BZ, insts.BNZ, insts.JUMP:
		return t.config.BranchLatency

	case insts.LOAD, insts.STORE:
		return t.config.MemLatency

	case insts.MUL:
		return t.config.MulLatency

	default:
		return 1
	}
}

// IsMemoryOp reports whether op accesses data memory.
func (t *Table) IsMemoryOp(op insts.Opcode) bool {
	return op == insts.LOAD || op == insts.STORE
}

// IsBranchOp reports whether op is a control-flow instruction.
func (t *Table) IsBranchOp(op insts.Opcode) bool {
	switch op {
	case insts.BZ, insts.BNZ, insts.JUMP:
		return true
	default:
		return false
	}
}

// Config returns the current latency configuration.
func (t *Table) Config() *Config {
	return t.config
}
