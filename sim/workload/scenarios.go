package workload

import (
	"fmt"
	"sort"

	"github.com/simopt/simopt/sim"
)

// Built-in workload presets for common contention patterns. Each returns a
// valid Spec over a single resource "pool" ready for use with Generate.
// rate is the aggregate arrival rate per tick.

// PresetResource is the resource every preset targets.
const PresetResource sim.ResourceID = "pool"

// PresetFunc builds a preset spec.
type PresetFunc func(seed int64, rate float64, horizon int64) *Spec

// Presets maps preset names to their builders.
var Presets = map[string]PresetFunc{
	"bursty":       ScenarioBurstyTraffic,
	"unfair":       ScenarioUnfairClients,
	"mixed":        ScenarioMixedPriority,
	"steady-batch": ScenarioSteadyBatch,
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset builds the named preset.
func Preset(name string, seed int64, rate float64, horizon int64) (*Spec, error) {
	f, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q; valid options: %v", name, PresetNames())
	}
	return f(seed, rate, horizon), nil
}

func presetResources() []sim.ResourceSpec {
	return []sim.ResourceSpec{{ID: PresetResource, Capacity: 10}}
}

// ScenarioBurstyTraffic creates a spec with Gamma-distributed bursty arrivals.
func ScenarioBurstyTraffic(seed int64, rate float64, horizon int64) *Spec {
	cv := 3.5
	return &Spec{
		Seed: seed, Horizon: horizon, Resources: presetResources(),
		Clients: []ClientSpec{{
			ID: "bursty-client", Resource: PresetResource, Rate: rate, Weight: 1,
			Arrival:  ArrivalSpec{Process: ArrivalGamma, CV: &cv},
			Amount:   DistSpec{Type: DistUniform, Params: map[string]float64{"min": 1, "max": 3}},
			Duration: DistSpec{Type: DistExponential, Params: map[string]float64{"mean": 20}},
		}},
	}
}

// ScenarioUnfairClients creates a spec with 90% low-weight bulk traffic and
// 10% high-weight interactive traffic.
func ScenarioUnfairClients(seed int64, rate float64, horizon int64) *Spec {
	return &Spec{
		Seed: seed, Horizon: horizon, Resources: presetResources(),
		Clients: []ClientSpec{
			{ID: "low-weight-bulk", Resource: PresetResource, Rate: 0.9 * rate, Weight: 1,
				Arrival:  ArrivalSpec{Process: ArrivalPoisson},
				Amount:   DistSpec{Type: DistConstant, Params: map[string]float64{"value": 2}},
				Duration: DistSpec{Type: DistExponential, Params: map[string]float64{"mean": 40}},
			},
			{ID: "high-weight-interactive", Resource: PresetResource, Rate: 0.1 * rate, Weight: 10,
				Arrival:  ArrivalSpec{Process: ArrivalPoisson},
				Amount:   DistSpec{Type: DistGaussian, Params: map[string]float64{"mean": 1, "std_dev": 0.5, "min": 0.5, "max": 3}},
				Duration: DistSpec{Type: DistExponential, Params: map[string]float64{"mean": 5}},
			},
		},
	}
}

// ScenarioMixedPriority creates a spec with an equal mix of three weight
// classes.
func ScenarioMixedPriority(seed int64, rate float64, horizon int64) *Spec {
	third := rate / 3
	return &Spec{
		Seed: seed, Horizon: horizon, Resources: presetResources(),
		Clients: []ClientSpec{
			{ID: "critical", Resource: PresetResource, Rate: third, Weight: 5,
				Arrival:  ArrivalSpec{Process: ArrivalPoisson},
				Amount:   DistSpec{Type: DistConstant, Params: map[string]float64{"value": 1}},
				Duration: DistSpec{Type: DistGaussian, Params: map[string]float64{"mean": 10, "std_dev": 3, "min": 2, "max": 30}},
			},
			{ID: "standard", Resource: PresetResource, Rate: third, Weight: 2,
				Arrival:  ArrivalSpec{Process: ArrivalPoisson},
				Amount:   DistSpec{Type: DistUniform, Params: map[string]float64{"min": 1, "max": 2}},
				Duration: DistSpec{Type: DistExponential, Params: map[string]float64{"mean": 20}},
			},
			{ID: "batch", Resource: PresetResource, Rate: third, Weight: 1,
				Arrival:  ArrivalSpec{Process: ArrivalPoisson},
				Amount:   DistSpec{Type: DistConstant, Params: map[string]float64{"value": 3}},
				Duration: DistSpec{Type: DistExponential, Params: map[string]float64{"mean": 60}},
			},
		},
	}
}

// ScenarioSteadyBatch creates a spec with evenly spaced identical jobs.
func ScenarioSteadyBatch(seed int64, rate float64, horizon int64) *Spec {
	return &Spec{
		Seed: seed, Horizon: horizon, Resources: presetResources(),
		Clients: []ClientSpec{{
			ID: "batch", Resource: PresetResource, Rate: rate, Weight: 1,
			Arrival:  ArrivalSpec{Process: ArrivalConstant},
			Amount:   DistSpec{Type: DistConstant, Params: map[string]float64{"value": 2}},
			Duration: DistSpec{Type: DistConstant, Params: map[string]float64{"value": 25}},
		}},
	}
}
