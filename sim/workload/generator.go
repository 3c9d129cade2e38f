package workload

import (
	"fmt"
	"math"
	"sort"

	"github.com/simopt/simopt/sim"
)

// Generate creates the demand sequence described by spec, sorted by arrival.
// Each client draws from its own RNG stream, so adding or editing one
// client never changes another client's demands.
func Generate(spec *Spec) ([]sim.Demand, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))

	var demands []sim.Demand
	for i := range spec.Clients {
		client := &spec.Clients[i]
		clientRNG := rng.ForSubsystem(sim.SubsystemClient(client.ID))

		arrivals := NewArrivalSampler(client.Arrival, client.Rate)
		amounts, err := NewSampler(client.Amount)
		if err != nil {
			return nil, fmt.Errorf("client %q amount: %w", client.ID, err)
		}
		durations, err := NewSampler(client.Duration)
		if err != nil {
			return nil, fmt.Errorf("client %q duration: %w", client.ID, err)
		}

		n := 0
		currentTime := client.Start
		for currentTime < spec.Horizon {
			currentTime += arrivals.SampleIAT(clientRNG)
			if currentTime >= spec.Horizon {
				break
			}
			duration := int64(math.Round(durations.Sample(clientRNG)))
			if duration < 1 {
				duration = 1
			}
			demands = append(demands, sim.Demand{
				ID:       fmt.Sprintf("%s-%04d", client.ID, n),
				Resource: client.Resource,
				Amount:   amounts.Sample(clientRNG),
				Weight:   client.Weight,
				Duration: duration,
				Arrival:  currentTime,
			})
			n++
			if client.Count > 0 && n >= client.Count {
				break
			}
		}
	}

	// Stable sort keeps client order for ties.
	sort.SliceStable(demands, func(i, j int) bool {
		return demands[i].Arrival < demands[j].Arrival
	})
	return demands, nil
}
