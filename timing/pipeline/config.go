package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/m2sim/timing/latency"
)

// Config holds the knobs that select and tune one simulated run: which
// hazard discipline to run, how many cycles to budget, and whether
// counting mode (run until HALT retires, ignoring CycleBudget) is
// active.
type Config struct {
	// Hazard selects Variant A (Scoreboard) or Variant B (Forwarding).
	Hazard Discipline `json:"hazard"`

	// CycleBudget is the maximum number of cycles Run will execute
	// before stopping, regardless of whether the program halted.
	// Ignored when CountingMode is true.
	CycleBudget uint64 `json:"cycle_budget"`

	// CountingMode makes Run ignore CycleBudget and keep ticking until
	// HALT retires at Writeback or a FatalFault occurs; a program that
	// never retires HALT does not stop on its own.
	CountingMode bool `json:"counting_mode"`

	// TraceEnabled turns on per-cycle Tracer callbacks.
	TraceEnabled bool `json:"trace_enabled"`

	// Latency is the EX-stage occupancy table, most notably MulLatency.
	Latency *latency.Config `json:"latency"`
}

// DefaultConfig returns the reference single-cycle-fetch, scoreboard-
// stall configuration with a generous cycle budget.
func DefaultConfig() *Config {
	return &Config{
		Hazard:      Scoreboard,
		CycleBudget: 10000,
		Latency:     latency.DefaultConfig(),
	}
}

// LoadConfig loads a Config from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize pipeline config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pipeline config file: %w", err)
	}

	return nil
}

// Validate reports a ConfigError for any out-of-bounds field.
func (c *Config) Validate() error {
	if c.Hazard != Scoreboard && c.Hazard != Forwarding {
		return &ConfigError{Field: "hazard", Reason: "must be scoreboard or forwarding"}
	}
	if c.CycleBudget == 0 && !c.CountingMode {
		return &ConfigError{Field: "cycle_budget", Reason: "must be > 0 unless counting_mode is set"}
	}
	if c.Latency == nil {
		return &ConfigError{Field: "latency", Reason: "must not be nil"}
	}
	if err := c.Latency.Validate(); err != nil {
		return &ConfigError{Field: "latency", Reason: err.Error()}
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Latency = c.Latency.Clone()
	return &clone
}
