package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simopt/simopt/facade"
)

var (
	scenarioPath  string // Scenario file (YAML or TOML)
	until         int64  // Advance target in ticks; overrides the scenario's until
	steps         int    // Dispatch at most this many events per session instead
	maxConcurrent int    // Solver pool size; overrides the scenario's pool
	solverName    string // Solver backend for every session; empty keeps the scenario's
	logLevel      string // Log verbosity level
	dumpMetrics   bool   // Print solver pool metrics after the run

	// Preset workload, used when no scenario file is given
	presetName    string  // Built-in workload preset
	presetRate    float64 // Aggregate arrivals per tick
	presetSeed    int64   // Seed for demand generation
	presetHorizon int64   // No arrivals at or after this tick
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "simopt",
	Short: "Discrete-event simulation coupled to optimization solvers",
}

// runCmd loads a scenario and advances all of its sessions concurrently
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every session of a scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)

		sc, err := loadWithOverrides()
		if err != nil {
			return err
		}
		opts := runOptions{Until: sc.Until, Steps: steps, Metrics: dumpMetrics}
		if cmd.Flags().Changed("until") {
			opts.Until = until
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		logrus.Infof("Starting %d sessions, until=%d steps=%d max_concurrent_solves=%d",
			len(sc.Sessions), opts.Until, opts.Steps, sc.Pool.MaxConcurrent)
		start := time.Now()
		if err := runScenario(ctx, sc, opts, cmd.OutOrStdout()); err != nil {
			return err
		}
		logrus.Infof("Simulation complete in %v.", time.Since(start))
		return nil
	},
}

// validateCmd checks a scenario without advancing it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadWithOverrides()
		if err != nil {
			return err
		}
		if err := sc.Check(); err != nil {
			return err
		}
		source := scenarioPath
		if source == "" {
			source = "preset " + presetName
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d sessions OK\n", source, len(sc.Sessions))
		return err
	},
}

func loadWithOverrides() (*Scenario, error) {
	var sc *Scenario
	var err error
	switch {
	case scenarioPath != "":
		sc, err = LoadScenario(scenarioPath)
	case presetName != "":
		sc, err = PresetScenario(presetName, presetSeed, presetRate, presetHorizon)
	default:
		err = errors.New("one of --scenario or --preset is required")
	}
	if err != nil {
		return nil, err
	}
	if maxConcurrent > 0 {
		sc.Pool.MaxConcurrent = maxConcurrent
	}
	if solverName != "" {
		for i := range sc.Sessions {
			sc.Sessions[i].Solver = solverName
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

type runOptions struct {
	Until   int64
	Steps   int
	Metrics bool
}

// runScenario creates every session on one service, advances them in
// parallel and writes a summary per session to out.
func runScenario(ctx context.Context, sc *Scenario, opts runOptions, out io.Writer) error {
	if opts.Steps <= 0 && opts.Until <= 0 {
		return errors.New("nothing to run: set until in the scenario, --until or --steps")
	}
	svc, err := facade.NewService(facade.Options{Pool: sc.Pool})
	if err != nil {
		return err
	}
	defer svc.Close()

	reg := prometheus.NewRegistry()
	if err := reg.Register(svc.Collector("")); err != nil {
		return fmt.Errorf("registering pool metrics: %w", err)
	}

	ids := make([]string, len(sc.Sessions))
	for i, cfg := range sc.Sessions {
		id, err := svc.CreateSession(cfg)
		if err != nil {
			return fmt.Errorf("session %q: %w", cfg.Name, err)
		}
		ids[i] = id
	}

	results := make([]facade.AdvanceResult, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.AdvanceSimulation(ctx, id, facade.AdvanceRequest{Until: opts.Until, Steps: opts.Steps})
		}()
	}
	wg.Wait()

	for i, cfg := range sc.Sessions {
		if errs[i] != nil {
			errs[i] = fmt.Errorf("session %q: %w", cfg.Name, errs[i])
			continue
		}
		summary, err := svc.Summary(ids[i])
		if err != nil {
			errs[i] = fmt.Errorf("session %q: %w", cfg.Name, err)
			continue
		}
		printSessionSummary(out, cfg.Name, results[i], summary)
	}
	if opts.Metrics {
		if err := printMetrics(out, reg); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "Scenario file (.yaml or .toml)")
	rootCmd.PersistentFlags().IntVar(&maxConcurrent, "max-concurrent-solves", 0, "Solver pool size (0 keeps the scenario's)")
	rootCmd.PersistentFlags().StringVar(&solverName, "solver", "", "Solver backend for every session (simplex, greedy)")
	rootCmd.PersistentFlags().StringVar(&presetName, "preset", "", "Built-in workload preset to run when no scenario is given")
	rootCmd.PersistentFlags().Float64Var(&presetRate, "rate", 0.2, "Preset aggregate arrivals per tick")
	rootCmd.PersistentFlags().Int64Var(&presetSeed, "seed", 42, "Preset seed for demand generation")
	rootCmd.PersistentFlags().Int64Var(&presetHorizon, "horizon", 1000, "Preset arrival horizon (in ticks)")

	runCmd.Flags().Int64Var(&until, "until", 0, "Advance every session to this tick (inclusive)")
	runCmd.Flags().IntVar(&steps, "steps", 0, "Dispatch at most this many events per session instead of advancing to a tick")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "Print solver pool metrics in Prometheus text format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
