package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// Demand is a simulated consumer: it arrives, asks for Amount of one
// resource, holds what it is granted for Duration ticks, then releases it.
type Demand struct {
	ID       string     `yaml:"id" toml:"id"`
	Resource ResourceID `yaml:"resource" toml:"resource"`
	Amount   float64    `yaml:"amount" toml:"amount"`
	Weight   float64    `yaml:"weight" toml:"weight"`
	Duration int64      `yaml:"duration" toml:"duration"`
	Arrival  int64      `yaml:"arrival" toml:"arrival"`
}

// Contention is the payload of EventContention.
type Contention struct {
	Demand    string
	Resource  ResourceID
	Requested float64
	Free      float64
}

// Release is the payload of EventReleased.
type Release struct {
	Demand   string
	Resource ResourceID
	Amount   float64
}

// WorldStats counts demand lifecycle transitions.
type WorldStats struct {
	Arrived       int
	GrantedFIFO   int
	GrantedByPlan int
	Completed     int
	Contentions   int
}

type demandPhase int

const (
	phaseScheduled demandPhase = iota
	phaseWaiting
	phaseHolding
	phaseDone
)

type demandState struct {
	Demand
	proc    *Process
	phase   demandPhase
	granted float64
}

// World is the simulated system: resources plus the demand processes that
// compete for them. Arriving demands are granted first-come-first-served
// when the head of the line fits; the rest wait for a plan.
type World struct {
	eng       *Engine
	resources map[ResourceID]*Resource
	order     []ResourceID
	demands   map[string]*demandState
	waiting   []*demandState
	stats     WorldStats
}

// NewWorld creates a world over eng with the given resources.
func NewWorld(eng *Engine, specs []ResourceSpec) (*World, error) {
	if eng == nil {
		panic("NewWorld: nil engine")
	}
	w := &World{
		eng:       eng,
		resources: make(map[ResourceID]*Resource, len(specs)),
		demands:   make(map[string]*demandState),
	}
	for i, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("resource[%d]: id must be set", i)
		}
		if _, dup := w.resources[s.ID]; dup {
			return nil, fmt.Errorf("resource[%d]: duplicate id %q", i, s.ID)
		}
		if math.IsNaN(s.Capacity) || math.IsInf(s.Capacity, 0) || s.Capacity <= 0 {
			return nil, fmt.Errorf("resource[%d] %q: capacity must be a positive finite number, got %f", i, s.ID, s.Capacity)
		}
		w.resources[s.ID] = NewResource(s.ID, s.Capacity)
		w.order = append(w.order, s.ID)
	}
	sort.Slice(w.order, func(i, j int) bool { return w.order[i] < w.order[j] })
	return w, nil
}

// Engine returns the engine the world runs on.
func (w *World) Engine() *Engine { return w.eng }

// Resource looks up a resource by ID.
func (w *World) Resource(id ResourceID) (*Resource, bool) {
	r, ok := w.resources[id]
	return r, ok
}

// ResourceIDs returns resource IDs in sorted order.
func (w *World) ResourceIDs() []ResourceID {
	out := make([]ResourceID, len(w.order))
	copy(out, w.order)
	return out
}

// Stats returns demand counters.
func (w *World) Stats() WorldStats { return w.stats }

// Waiting returns the number of demands waiting for a grant.
func (w *World) Waiting() int { return len(w.waiting) }

// Inject registers a demand; its process starts at d.Arrival.
func (w *World) Inject(d Demand) error {
	if d.ID == "" {
		return errors.New("demand id must be set")
	}
	if _, dup := w.demands[d.ID]; dup {
		return fmt.Errorf("duplicate demand id %q", d.ID)
	}
	if _, ok := w.resources[d.Resource]; !ok {
		return fmt.Errorf("demand %q: %w %q", d.ID, ErrUnknownResource, d.Resource)
	}
	if math.IsNaN(d.Amount) || math.IsInf(d.Amount, 0) || d.Amount <= 0 {
		return fmt.Errorf("demand %q: amount must be a positive finite number, got %f", d.ID, d.Amount)
	}
	if math.IsNaN(d.Weight) || math.IsInf(d.Weight, 0) || d.Weight < 0 {
		return fmt.Errorf("demand %q: weight must be a non-negative finite number, got %f", d.ID, d.Weight)
	}
	if d.Duration < 0 {
		return fmt.Errorf("demand %q: duration must be non-negative, got %d", d.ID, d.Duration)
	}
	ds := &demandState{Demand: d}
	proc, err := w.eng.Spawn(ProcessID("demand/"+d.ID), d.Arrival, w.arrive(ds))
	if err != nil {
		return fmt.Errorf("demand %q: %w", d.ID, err)
	}
	ds.proc = proc
	w.demands[d.ID] = ds
	return nil
}

func (w *World) arrive(ds *demandState) Handler {
	return func(p *Process, _ *Event) error {
		w.stats.Arrived++
		res := w.resources[ds.Resource]
		if !w.hasWaiting(ds.Resource) && res.Free()+capacityEpsilon >= ds.Amount {
			if err := res.Allocate(ds.ID, ds.Amount); err != nil {
				return err
			}
			w.stats.GrantedFIFO++
			return w.startHolding(ds, ds.Amount)
		}
		ds.phase = phaseWaiting
		w.waiting = append(w.waiting, ds)
		w.stats.Contentions++
		logrus.Debugf("[tick %07d] demand %s waits for %.3f of %s (free %.3f)", p.Now(), ds.ID, ds.Amount, ds.Resource, res.Free())
		_, err := p.Emit(EventContention, Contention{
			Demand:    ds.ID,
			Resource:  ds.Resource,
			Requested: ds.Amount,
			Free:      res.Free(),
		})
		return err
	}
}

func (w *World) startHolding(ds *demandState, amount float64) error {
	ds.phase = phaseHolding
	ds.granted = amount
	_, err := ds.proc.Hold(ds.Duration, w.release(ds))
	return err
}

func (w *World) release(ds *demandState) Handler {
	return func(p *Process, _ *Event) error {
		res := w.resources[ds.Resource]
		amount := res.Release(ds.ID)
		ds.phase = phaseDone
		w.stats.Completed++
		if _, err := p.Emit(EventReleased, Release{Demand: ds.ID, Resource: ds.Resource, Amount: amount}); err != nil {
			return err
		}
		p.Finish()
		return w.admitWaiting(ds.Resource)
	}
}

// admitWaiting grants waiting demands of a resource in FIFO order while the
// head of the line fits.
func (w *World) admitWaiting(id ResourceID) error {
	res := w.resources[id]
	for {
		idx := -1
		for i, ds := range w.waiting {
			if ds.Resource == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		head := w.waiting[idx]
		if res.Free()+capacityEpsilon < head.Amount {
			return nil
		}
		if err := res.Allocate(head.ID, head.Amount); err != nil {
			return err
		}
		w.waiting = append(w.waiting[:idx], w.waiting[idx+1:]...)
		w.stats.GrantedFIFO++
		head.phase = phaseHolding
		head.granted = head.Amount
		if _, err := head.proc.ScheduleAt(w.eng.Now(), EventGranted, head.Amount, w.resumeGranted(head)); err != nil {
			return err
		}
	}
}

func (w *World) resumeGranted(ds *demandState) Handler {
	return func(p *Process, _ *Event) error {
		_, err := p.Hold(ds.Duration, w.release(ds))
		return err
	}
}

func (w *World) hasWaiting(id ResourceID) bool {
	for _, ds := range w.waiting {
		if ds.Resource == id {
			return true
		}
	}
	return false
}

// Snapshot copies resource states and waiting demands at the current time.
func (w *World) Snapshot() *Snapshot {
	resources := make([]ResourceState, 0, len(w.order))
	for _, id := range w.order {
		resources = append(resources, w.resources[id].State())
	}
	pending := make([]PendingDemand, 0, len(w.waiting))
	for _, ds := range w.waiting {
		pending = append(pending, PendingDemand{
			ID:       ds.ID,
			Resource: ds.Resource,
			Amount:   ds.Amount,
			Weight:   ds.Weight,
			Duration: ds.Duration,
			Since:    ds.Arrival,
		})
	}
	return newSnapshot(w.eng.Now(), resources, pending)
}

// Changed reports whether any of the given resources was mutated since the
// snapshot was taken.
func (w *World) Changed(snap *Snapshot, ids []ResourceID) bool {
	for _, id := range ids {
		then, ok := snap.Resource(id)
		if !ok {
			return true
		}
		now, ok := w.resources[id]
		if !ok || now.Version() != then.Version {
			return true
		}
	}
	return false
}

// ApplyPlan grants the plan's allocations as one step: every grant is
// validated before any resource changes. Granted demands are resumed at the
// current time in plan order.
func (w *World) ApplyPlan(plan Plan) error {
	changes := make(map[ResourceID]map[string]float64)
	seen := make(map[string]bool, len(plan.Grants))
	for _, g := range plan.Grants {
		ds, ok := w.demands[g.Demand]
		if !ok {
			return fmt.Errorf("%w: unknown demand %q", ErrPlanConflict, g.Demand)
		}
		if ds.phase != phaseWaiting {
			return fmt.Errorf("%w: demand %q is not waiting", ErrPlanConflict, g.Demand)
		}
		if seen[g.Demand] {
			return fmt.Errorf("%w: demand %q granted twice", ErrPlanConflict, g.Demand)
		}
		seen[g.Demand] = true
		if g.Resource != ds.Resource {
			return fmt.Errorf("%w: demand %q wants %q, plan grants %q", ErrPlanConflict, g.Demand, ds.Resource, g.Resource)
		}
		if g.Amount <= 0 || g.Amount > ds.Amount+capacityEpsilon {
			return fmt.Errorf("%w: grant %f for demand %q outside (0, %f]", ErrPlanConflict, g.Amount, g.Demand, ds.Amount)
		}
		if changes[g.Resource] == nil {
			changes[g.Resource] = make(map[string]float64)
		}
		changes[g.Resource][g.Demand] = min(g.Amount, ds.Amount)
	}
	ids := plan.Resources()
	for _, id := range ids {
		res, ok := w.resources[id]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownResource, id)
		}
		if err := res.CanSet(changes[id]); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if err := w.resources[id].SetAllocations(changes[id]); err != nil {
			// CanSet passed for every resource above.
			panic(fmt.Sprintf("ApplyPlan: allocation failed after validation: %v", err))
		}
	}

	remaining := w.waiting[:0]
	for _, ds := range w.waiting {
		if !seen[ds.ID] {
			remaining = append(remaining, ds)
		}
	}
	w.waiting = remaining

	for _, g := range plan.Grants {
		ds := w.demands[g.Demand]
		ds.phase = phaseHolding
		ds.granted = changes[g.Resource][g.Demand]
		w.stats.GrantedByPlan++
		if _, err := ds.proc.ScheduleAt(w.eng.Now(), EventGranted, ds.granted, w.resumeGranted(ds)); err != nil {
			return err
		}
	}
	return nil
}

// CheckInvariants verifies that no resource is allocated past capacity.
func (w *World) CheckInvariants() error {
	for _, id := range w.order {
		r := w.resources[id]
		if r.Allocated() > r.Capacity()+capacityEpsilon {
			return fmt.Errorf("%w: resource %q holds %f of %f", ErrCapacityExceeded, id, r.Allocated(), r.Capacity())
		}
	}
	return nil
}
