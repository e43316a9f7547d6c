// Package latency provides the EX-stage occupancy model: how many
// cycles each opcode holds the Execute stage before it may advance to
// Memory, configurable via Config the same way the rest of the
// pipeline's knobs are.
package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds EX-stage occupancy values, in cycles, per instruction
// class. Every APEX instruction occupies EX for exactly one cycle
// except MUL, which self-stalls for MulLatency-1 extra cycles before
// its result and any dependent branch/forward can be read.
type Config struct {
	// ALULatency is the EX occupancy for MOVC/ADD/SUB/AND/OR/EX-OR.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the EX occupancy for BZ/BNZ/JUMP. Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// MemLatency is the EX occupancy for LOAD/STORE address computation.
	// Default: 1 cycle.
	MemLatency uint64 `json:"mem_latency"`

	// MulLatency is the EX occupancy for MUL. Default: 2 cycles,
	// matching the reference implementation's one-cycle self-stall.
	MulLatency uint64 `json:"mul_latency"`
}

// DefaultConfig returns the reference APEX timing: every opcode
// occupies EX for one cycle except MUL, which takes two.
func DefaultConfig() *Config {
	return &Config{
		ALULatency:    1,
		BranchLatency: 1,
		MemLatency:    1,
		MulLatency:    2,
	}
}

// LoadConfig loads a Config from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read latency config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse latency config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize latency config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write latency config file: %w", err)
	}

	return nil
}

// Validate checks that every latency is at least 1 cycle.
func (c *Config) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.MemLatency == 0 {
		return fmt.Errorf("mem_latency must be > 0")
	}
	if c.MulLatency == 0 {
		return fmt.Errorf("mul_latency must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	return &Config{
		ALULatency:    c.ALULatency,
		BranchLatency: c.BranchLatency,
		MemLatency:    c.MemLatency,
		MulLatency:    c.MulLatency,
	}
}
