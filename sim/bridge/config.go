package bridge

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simopt/simopt/sim"
	"github.com/simopt/simopt/sim/optimize"
	"github.com/simopt/simopt/sim/trace"
)

// StalenessPolicy decides when a solved plan no longer matches the
// simulation it was computed for.
type StalenessPolicy struct {
	// Tolerance is the largest accepted gap in ticks between snapshot and
	// application. Unset means SolveLatency; an explicit 0 accepts only
	// plans applied at their snapshot tick.
	Tolerance *int64 `yaml:"tolerance" toml:"tolerance"`
	// IgnoreMutations skips the version check on the resources the plan and
	// the waiting demands touch.
	IgnoreMutations bool `yaml:"ignore_mutations" toml:"ignore_mutations"`
}

// MaxLag is the effective tolerance. Call it after WithDefaults.
func (p StalenessPolicy) MaxLag() int64 {
	if p.Tolerance == nil {
		return 0
	}
	return *p.Tolerance
}

// Ticks returns a pointer to n, for setting Tolerance in code.
func Ticks(n int64) *int64 { return &n }

// Config controls one session's replan cadence and solve handling.
type Config struct {
	// TriggerTypes are the dispatched event types that start a replan.
	TriggerTypes []sim.EventType `yaml:"trigger_types" toml:"trigger_types"`
	// Interval starts a replan every Interval ticks. Zero disables it.
	Interval int64 `yaml:"interval" toml:"interval"`
	// SolveBudget is the wall-clock limit of one solve attempt.
	SolveBudget time.Duration `yaml:"solve_budget" toml:"solve_budget"`
	// SolveLatency is the logical time a solve takes: the result is
	// consumed SolveLatency ticks after the snapshot.
	SolveLatency   int64            `yaml:"solve_latency" toml:"solve_latency"`
	Retry          RetryPolicy      `yaml:"retry" toml:"retry"`
	Staleness      StalenessPolicy  `yaml:"staleness" toml:"staleness"`
	Template       string           `yaml:"template" toml:"template"`
	Params         optimize.Params  `yaml:"params" toml:"params"`
	Priority       int              `yaml:"priority" toml:"priority"`
	MaxStaleRearms int              `yaml:"max_stale_rearms" toml:"max_stale_rearms"` // negative disables re-arming
	TraceLevel     trace.TraceLevel `yaml:"trace_level" toml:"trace_level"`
}

const (
	defaultSolveBudget    = 5 * time.Second
	defaultMaxStaleRearms = 8
)

// reservedTriggers are emitted by the session itself.
var reservedTriggers = map[sim.EventType]bool{
	sim.EventReplanHorizon: true,
	sim.EventReplanDue:     true,
	sim.EventReplanApplied: true,
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.SolveBudget == 0 {
		c.SolveBudget = defaultSolveBudget
	}
	c.Retry = c.Retry.WithDefaults()
	if c.Staleness.Tolerance == nil {
		c.Staleness.Tolerance = Ticks(c.SolveLatency)
	}
	if c.Template == "" {
		c.Template = optimize.TemplateAllocation
	}
	if c.MaxStaleRearms == 0 {
		c.MaxStaleRearms = defaultMaxStaleRearms
	}
	if c.TraceLevel == "" {
		c.TraceLevel = trace.TraceLevelReplans
	}
	return c
}

// Validate checks a config after WithDefaults. Every error wraps
// ErrConfigValidation.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if c.Staleness.MaxLag() < c.SolveLatency {
		logrus.Warnf("staleness tolerance %d is below solve latency %d: every result will be discarded",
			c.Staleness.MaxLag(), c.SolveLatency)
	}
	return nil
}

func (c Config) validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got %d", c.Interval)
	}
	if c.SolveLatency < 0 {
		return fmt.Errorf("solve_latency must be non-negative, got %d", c.SolveLatency)
	}
	if c.SolveBudget <= 0 {
		return fmt.Errorf("solve_budget must be positive, got %v", c.SolveBudget)
	}
	if c.Staleness.MaxLag() < 0 {
		return fmt.Errorf("staleness.tolerance must be non-negative, got %d", c.Staleness.MaxLag())
	}
	for i, t := range c.TriggerTypes {
		if t == "" {
			return fmt.Errorf("trigger_types[%d] is empty", i)
		}
		if reservedTriggers[t] {
			return fmt.Errorf("trigger_types[%d]: %q is emitted by the session and cannot trigger it", i, t)
		}
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	tmpl, err := optimize.NewTemplate(c.Template)
	if err != nil {
		return fmt.Errorf("%v; valid templates: %s", err, validTemplateList())
	}
	if err := validateParams(tmpl, c.Params); err != nil {
		return err
	}
	if !trace.IsValidTraceLevel(string(c.TraceLevel)) {
		return fmt.Errorf("unknown trace_level %q", c.TraceLevel)
	}
	return nil
}

func validateParams(tmpl optimize.Template, params optimize.Params) error {
	if v, ok := tmpl.(interface{ ValidateParams(optimize.Params) error }); ok {
		return v.ValidateParams(params)
	}
	return nil
}

func validTemplateList() string {
	names := make([]string, 0, len(optimize.ValidTemplates))
	for k := range optimize.ValidTemplates {
		if k != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return fmt.Sprint(names)
}
