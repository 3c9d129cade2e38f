package cmd

import (
	"fmt"

	"github.com/simopt/simopt/facade"
	"github.com/simopt/simopt/internal/config"
	"github.com/simopt/simopt/sim"
	"github.com/simopt/simopt/sim/bridge"
	"github.com/simopt/simopt/sim/optimize"
	"github.com/simopt/simopt/sim/pool"
	"github.com/simopt/simopt/sim/workload"
)

// Scenario is a scenario file: the shared pool and the sessions to run on
// it. YAML and TOML are accepted; unknown keys are rejected.
type Scenario struct {
	// Until is the default advance target; --until overrides it.
	Until    int64                  `yaml:"until" toml:"until"`
	Pool     pool.Config            `yaml:"pool" toml:"pool"`
	Sessions []facade.SessionConfig `yaml:"sessions" toml:"sessions"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	var sc Scenario
	if err := config.DecodeFile(path, &sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

// PresetScenario wraps a built-in workload preset in a one-session
// scenario that replans on contention and every tenth of the horizon, and
// runs until the horizon plus one replan interval.
func PresetScenario(name string, seed int64, rate float64, horizon int64) (*Scenario, error) {
	spec, err := workload.Preset(name, seed, rate, horizon)
	if err != nil {
		return nil, err
	}
	interval := max(horizon/10, 1)
	sc := &Scenario{
		Until: horizon + interval,
		Pool:  pool.Config{MaxConcurrent: 1},
		Sessions: []facade.SessionConfig{{
			Name: name,
			Bridge: bridge.Config{
				TriggerTypes: []sim.EventType{sim.EventContention},
				Interval:     interval,
				SolveLatency: 1,
			},
			Workload: spec,
		}},
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the parts of a scenario that do not need a running
// service. Session configs are fully checked by Check.
func (sc *Scenario) Validate() error {
	if sc.Pool.MaxConcurrent == 0 {
		sc.Pool.MaxConcurrent = 1
	}
	if err := sc.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if sc.Until < 0 {
		return fmt.Errorf("until must be >= 0, got %d", sc.Until)
	}
	if len(sc.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}
	names := make(map[string]bool, len(sc.Sessions))
	for i, s := range sc.Sessions {
		if s.Name == "" {
			return fmt.Errorf("sessions[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sessions[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if !optimize.ValidSolvers[s.Solver] {
			return fmt.Errorf("sessions[%d]: unknown solver %q", i, s.Solver)
		}
	}
	return nil
}

// Check builds every session on a throwaway service so that world, bridge
// and workload errors surface without advancing anything.
func (sc *Scenario) Check() error {
	svc, err := facade.NewService(facade.Options{Pool: sc.Pool})
	if err != nil {
		return err
	}
	defer svc.Close()
	for _, s := range sc.Sessions {
		if _, err := svc.CreateSession(s); err != nil {
			return fmt.Errorf("session %q: %w", s.Name, err)
		}
	}
	return nil
}
