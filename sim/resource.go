package sim

import (
	"fmt"
	"sort"
)

// capacityEpsilon absorbs floating-point drift when comparing sums of
// allocations against capacity.
const capacityEpsilon = 1e-9

// ResourceID identifies a resource within a world.
type ResourceID string

// ResourceSpec declares a resource and its capacity.
type ResourceSpec struct {
	ID       ResourceID `yaml:"id" toml:"id"`
	Capacity float64    `yaml:"capacity" toml:"capacity"`
}

// Resource is a divisible capacity shared by holders. The sum of all
// allocations never exceeds Capacity; every change bumps Version.
type Resource struct {
	id        ResourceID
	capacity  float64
	alloc     map[string]float64
	allocated float64
	version   uint64
}

// NewResource creates an empty resource. Panics on negative capacity.
func NewResource(id ResourceID, capacity float64) *Resource {
	if capacity < 0 {
		panic(fmt.Sprintf("NewResource: negative capacity %f for %q", capacity, id))
	}
	return &Resource{
		id:       id,
		capacity: capacity,
		alloc:    make(map[string]float64),
	}
}

func (r *Resource) ID() ResourceID     { return r.id }
func (r *Resource) Capacity() float64  { return r.capacity }
func (r *Resource) Allocated() float64 { return r.allocated }
func (r *Resource) Version() uint64    { return r.version }

// Free returns the unallocated capacity.
func (r *Resource) Free() float64 {
	return max(0, r.capacity-r.allocated)
}

// Allocation returns the amount held by holder.
func (r *Resource) Allocation(holder string) float64 {
	return r.alloc[holder]
}

// Holders returns holder IDs in sorted order.
func (r *Resource) Holders() []string {
	out := make([]string, 0, len(r.alloc))
	for h := range r.alloc {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Allocate adds amount to holder's allocation.
func (r *Resource) Allocate(holder string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("resource %q: allocation for %q must be positive, got %f", r.id, holder, amount)
	}
	if r.allocated+amount > r.capacity+capacityEpsilon {
		return fmt.Errorf("%w: resource %q has %f free, %q asked for %f", ErrCapacityExceeded, r.id, r.Free(), holder, amount)
	}
	r.alloc[holder] += amount
	r.allocated += amount
	r.version++
	return nil
}

// Release drops holder's allocation and returns the released amount.
func (r *Resource) Release(holder string) float64 {
	amount, ok := r.alloc[holder]
	if !ok {
		return 0
	}
	delete(r.alloc, holder)
	r.recompute()
	r.version++
	return amount
}

// CanSet reports whether SetAllocations(changes) would succeed.
func (r *Resource) CanSet(changes map[string]float64) error {
	total := r.allocated
	for holder, amount := range changes {
		if amount < 0 {
			return fmt.Errorf("resource %q: negative allocation %f for %q", r.id, amount, holder)
		}
		total += amount - r.alloc[holder]
	}
	if total > r.capacity+capacityEpsilon {
		return fmt.Errorf("%w: resource %q would hold %f of %f", ErrCapacityExceeded, r.id, total, r.capacity)
	}
	return nil
}

// SetAllocations replaces the allocations of the given holders in one step.
// A zero amount removes the holder. Either every change applies or none.
func (r *Resource) SetAllocations(changes map[string]float64) error {
	if len(changes) == 0 {
		return nil
	}
	if err := r.CanSet(changes); err != nil {
		return err
	}
	for holder, amount := range changes {
		if amount == 0 {
			delete(r.alloc, holder)
			continue
		}
		r.alloc[holder] = amount
	}
	r.recompute()
	r.version++
	return nil
}

// recompute sums allocations in holder order so the total is reproducible.
func (r *Resource) recompute() {
	total := 0.0
	for _, h := range r.Holders() {
		total += r.alloc[h]
	}
	r.allocated = total
}

// State returns an independent copy of the resource.
func (r *Resource) State() ResourceState {
	alloc := make(map[string]float64, len(r.alloc))
	for h, a := range r.alloc {
		alloc[h] = a
	}
	return ResourceState{
		ID:          r.id,
		Capacity:    r.capacity,
		Allocated:   r.allocated,
		Allocations: alloc,
		Version:     r.version,
	}
}

// ResourceState is a point-in-time copy of a Resource.
type ResourceState struct {
	ID          ResourceID
	Capacity    float64
	Allocated   float64
	Allocations map[string]float64
	Version     uint64
}

// Free returns the unallocated capacity at the time of the copy.
func (s ResourceState) Free() float64 {
	return max(0, s.Capacity-s.Allocated)
}
