package sim

import "sort"

// PendingDemand is a waiting demand as seen by a snapshot.
type PendingDemand struct {
	ID       string
	Resource ResourceID
	Amount   float64
	Weight   float64
	Duration int64
	Since    int64 // arrival time
}

// Snapshot is an immutable copy of the state a model build needs, taken at
// a single logical instant. Accessors return copies.
type Snapshot struct {
	time      int64
	resources []ResourceState
	byID      map[ResourceID]int
	pending   []PendingDemand
}

func newSnapshot(time int64, resources []ResourceState, pending []PendingDemand) *Snapshot {
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	byID := make(map[ResourceID]int, len(resources))
	for i, r := range resources {
		byID[r.ID] = i
	}
	return &Snapshot{
		time:      time,
		resources: resources,
		byID:      byID,
		pending:   pending,
	}
}

// Time returns the logical time the snapshot was taken at.
func (s *Snapshot) Time() int64 { return s.time }

// Resources returns resource states sorted by ID.
func (s *Snapshot) Resources() []ResourceState {
	out := make([]ResourceState, len(s.resources))
	for i, r := range s.resources {
		out[i] = copyResourceState(r)
	}
	return out
}

// Resource returns one resource state.
func (s *Snapshot) Resource(id ResourceID) (ResourceState, bool) {
	i, ok := s.byID[id]
	if !ok {
		return ResourceState{}, false
	}
	return copyResourceState(s.resources[i]), true
}

// Pending returns waiting demands in arrival (FIFO) order.
func (s *Snapshot) Pending() []PendingDemand {
	out := make([]PendingDemand, len(s.pending))
	copy(out, s.pending)
	return out
}

// PendingDemand looks up a waiting demand by ID.
func (s *Snapshot) PendingDemand(id string) (PendingDemand, bool) {
	for _, d := range s.pending {
		if d.ID == id {
			return d, true
		}
	}
	return PendingDemand{}, false
}

func copyResourceState(r ResourceState) ResourceState {
	alloc := make(map[string]float64, len(r.Allocations))
	for h, a := range r.Allocations {
		alloc[h] = a
	}
	r.Allocations = alloc
	return r
}

// Grant assigns an amount of a resource to a waiting demand.
type Grant struct {
	Demand   string
	Resource ResourceID
	Amount   float64
}

// Plan is a set of grants decoded from an optimization result.
type Plan struct {
	Grants []Grant
}

// Empty reports whether the plan grants nothing.
func (p Plan) Empty() bool { return len(p.Grants) == 0 }

// Resources returns the sorted, de-duplicated resources the plan touches.
func (p Plan) Resources() []ResourceID {
	seen := make(map[ResourceID]bool)
	out := make([]ResourceID, 0)
	for _, g := range p.Grants {
		if !seen[g.Resource] {
			seen[g.Resource] = true
			out = append(out, g.Resource)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Total returns the sum of granted amounts.
func (p Plan) Total() float64 {
	total := 0.0
	for _, g := range p.Grants {
		total += g.Amount
	}
	return total
}
