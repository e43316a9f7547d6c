// Package main provides the entry point for apexsim, a cycle-accurate
// APEX five-stage pipeline simulator.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/m2sim/loader"
	"github.com/sarchlab/m2sim/timing/pipeline"
)

var (
	hazardFlag   string
	traceFlag    bool
	countingFlag bool
	configFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "apexsim <input-file> <function> <cycles>",
	Short: "Cycle-accurate APEX five-stage pipeline simulator",
	Long: `apexsim assembles and runs an APEX assembly program through the
five-stage pipeline (Fetch, Decode/RF, Execute, Memory, Writeback).

  <input-file>  path to an APEX assembly source file
  <function>    "simulate" runs silently and prints the final state;
                any other value additionally traces every cycle
  <cycles>      maximum number of cycles to run (the cycle budget)

Exit codes: 0 on normal retirement, 1 on a fatal pipeline fault, 2 on an
invalid configuration or argument.`,
	Args: cobra.ExactArgs(3),
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&hazardFlag, "hazard", "scoreboard", "hazard discipline: scoreboard or forwarding")
	rootCmd.Flags().BoolVar(&traceFlag, "trace", false, "force per-cycle tracing regardless of function")
	rootCmd.Flags().BoolVar(&countingFlag, "counting", false, "run until HALT retires or a fault occurs, ignoring cycles")
	rootCmd.Flags().StringVar(&configFlag, "config", "", "path to a pipeline config JSON file (overrides --hazard/--counting)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func run(cmd *cobra.Command, args []string) error {
	inputFile, function, cyclesArg := args[0], args[1], args[2]

	cycles, err := strconv.ParseUint(cyclesArg, 10, 64)
	if err != nil {
		return &pipeline.ConfigError{Field: "cycles", Reason: fmt.Sprintf("not a valid cycle count: %v", err)}
	}

	cfg, err := resolveConfig(cycles)
	if err != nil {
		return err
	}

	program, err := loader.Load(inputFile)
	if err != nil {
		return &pipeline.ConfigError{Field: "input-file", Reason: err.Error()}
	}

	trace := traceFlag || function != "simulate"
	opts := []pipeline.Option{pipeline.WithConfig(cfg)}
	if trace {
		cfg.TraceEnabled = true
		opts = append(opts, pipeline.WithTracer(pipeline.NewWriterTracer(os.Stderr)))
		pipeline.TraceCodeMemory(os.Stderr, program)
	}

	cpu := pipeline.NewCPU(program, opts...)
	runErr := cpu.Run()

	state := cpu.DumpState(100)
	if _, err := state.WriteTo(os.Stdout); err != nil {
		return fmt.Errorf("failed to write final state: %w", err)
	}

	return runErr
}

func resolveConfig(cycles uint64) (*pipeline.Config, error) {
	if configFlag != "" {
		cfg, err := pipeline.LoadConfig(configFlag)
		if err != nil {
			return nil, &pipeline.ConfigError{Field: "config", Reason: err.Error()}
		}
		cfg.CycleBudget = cycles
		return cfg, nil
	}

	cfg := pipeline.DefaultConfig()
	cfg.CycleBudget = cycles
	cfg.CountingMode = countingFlag

	switch hazardFlag {
	case "scoreboard":
		cfg.Hazard = pipeline.Scoreboard
	case "forwarding":
		cfg.Hazard = pipeline.Forwarding
	default:
		return nil, &pipeline.ConfigError{Field: "hazard", Reason: fmt.Sprintf("unknown discipline %q", hazardFlag)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitCodeFor maps a run error to the documented process exit status: 1
// for a pipeline fault, 2 for a configuration error, 1 for anything else
// cobra itself reports (bad flags, usage errors).
func exitCodeFor(err error) int {
	var fault *pipeline.FatalFault
	if errors.As(err, &fault) {
		fmt.Fprintf(os.Stderr, "apexsim: %v\n", err)
		return 1
	}

	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		fmt.Fprintf(os.Stderr, "apexsim: %v\n", err)
		return 2
	}

	fmt.Fprintf(os.Stderr, "apexsim: %v\n", err)
	return 1
}
