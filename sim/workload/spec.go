// Package workload generates the demands a scenario injects into a world.
// Generation is deterministic: the same spec and seed always yield the same
// demand sequence.
package workload

import (
	"fmt"
	"math"

	"github.com/simopt/simopt/internal/config"
	"github.com/simopt/simopt/sim"
)

// Spec describes resources and the clients that compete for them.
type Spec struct {
	Seed      int64              `yaml:"seed" toml:"seed"`
	Horizon   int64              `yaml:"horizon" toml:"horizon"` // no arrivals at or after this tick
	Resources []sim.ResourceSpec `yaml:"resources" toml:"resources"`
	Clients   []ClientSpec       `yaml:"clients" toml:"clients"`
}

// ClientSpec is one stream of demands against a single resource.
type ClientSpec struct {
	ID       string         `yaml:"id" toml:"id"`
	Resource sim.ResourceID `yaml:"resource" toml:"resource"`
	Rate     float64        `yaml:"rate" toml:"rate"` // arrivals per tick
	Arrival  ArrivalSpec    `yaml:"arrival" toml:"arrival"`
	Amount   DistSpec       `yaml:"amount" toml:"amount"`
	Duration DistSpec       `yaml:"duration" toml:"duration"`
	Weight   float64        `yaml:"weight" toml:"weight"`
	Count    int            `yaml:"count,omitempty" toml:"count,omitempty"` // 0 = until horizon
	Start    int64          `yaml:"start,omitempty" toml:"start,omitempty"`
}

// ArrivalSpec selects the inter-arrival process.
type ArrivalSpec struct {
	Process string   `yaml:"process" toml:"process"`
	CV      *float64 `yaml:"cv,omitempty" toml:"cv,omitempty"`
}

// DistSpec parameterizes a value distribution.
type DistSpec struct {
	Type   string             `yaml:"type" toml:"type"`
	Params map[string]float64 `yaml:"params" toml:"params"`
}

const (
	ArrivalPoisson  = "poisson"
	ArrivalGamma    = "gamma"
	ArrivalWeibull  = "weibull"
	ArrivalConstant = "constant"
)

var (
	validArrivalProcesses = map[string]bool{
		ArrivalPoisson: true, ArrivalGamma: true, ArrivalWeibull: true, ArrivalConstant: true,
	}
	validDistTypes = map[string]bool{
		DistConstant: true, DistUniform: true, DistGaussian: true, DistExponential: true,
	}
)

// IsValidArrivalProcess reports whether name is a known arrival process.
func IsValidArrivalProcess(name string) bool { return validArrivalProcesses[name] }

// LoadSpec reads a YAML or TOML workload file. Unknown keys are rejected.
func LoadSpec(path string) (*Spec, error) {
	var spec Spec
	if err := config.DecodeFile(path, &spec); err != nil {
		return nil, fmt.Errorf("loading workload spec: %w", err)
	}
	return &spec, nil
}

// Validate checks every field of the spec.
func (s *Spec) Validate() error {
	if s.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", s.Horizon)
	}
	if len(s.Resources) == 0 {
		return fmt.Errorf("at least one resource required")
	}
	resources := make(map[sim.ResourceID]bool, len(s.Resources))
	for i, r := range s.Resources {
		if r.ID == "" {
			return fmt.Errorf("resource[%d]: id must be set", i)
		}
		if resources[r.ID] {
			return fmt.Errorf("resource[%d]: duplicate id %q", i, r.ID)
		}
		if err := validateFinitePositive(fmt.Sprintf("resource[%d].capacity", i), r.Capacity); err != nil {
			return err
		}
		resources[r.ID] = true
	}
	if len(s.Clients) == 0 {
		return fmt.Errorf("at least one client required")
	}
	clients := make(map[string]bool, len(s.Clients))
	for i := range s.Clients {
		c := &s.Clients[i]
		if clients[c.ID] {
			return fmt.Errorf("client[%d]: duplicate id %q", i, c.ID)
		}
		clients[c.ID] = true
		if err := validateClient(c, i, resources); err != nil {
			return err
		}
	}
	return nil
}

func validateClient(c *ClientSpec, idx int, resources map[sim.ResourceID]bool) error {
	prefix := fmt.Sprintf("client[%d]", idx)
	if c.ID == "" {
		return fmt.Errorf("%s: id must be set", prefix)
	}
	if !resources[c.Resource] {
		return fmt.Errorf("%s: unknown resource %q", prefix, c.Resource)
	}
	if err := validateFinitePositive(prefix+".rate", c.Rate); err != nil {
		return err
	}
	if !validArrivalProcesses[c.Arrival.Process] {
		return fmt.Errorf("%s: unknown arrival process %q; valid: poisson, gamma, weibull, constant", prefix, c.Arrival.Process)
	}
	if c.Arrival.CV != nil {
		if err := validateFinitePositive(prefix+".arrival.cv", *c.Arrival.CV); err != nil {
			return err
		}
		if c.Arrival.Process == ArrivalWeibull && (*c.Arrival.CV < 0.01 || *c.Arrival.CV > 10.4) {
			return fmt.Errorf("%s: weibull CV must be in [0.01, 10.4], got %f", prefix, *c.Arrival.CV)
		}
	}
	if _, err := NewSampler(c.Amount); err != nil {
		return fmt.Errorf("%s.amount: %w", prefix, err)
	}
	if _, err := NewSampler(c.Duration); err != nil {
		return fmt.Errorf("%s.duration: %w", prefix, err)
	}
	if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
		return fmt.Errorf("%s: weight must be a non-negative finite number, got %f", prefix, c.Weight)
	}
	if c.Count < 0 {
		return fmt.Errorf("%s: count must be non-negative, got %d", prefix, c.Count)
	}
	if c.Start < 0 {
		return fmt.Errorf("%s: start must be non-negative, got %d", prefix, c.Start)
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
