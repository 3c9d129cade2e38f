// Package trace provides replan decision recording for bridge sessions.
// This package has no dependencies on sim/ or its other sub-packages; it
// stores pure data types.
package trace

import "time"

// Outcome is how a replan ended.
type Outcome string

const (
	// OutcomeApplied means the plan changed the simulation.
	OutcomeApplied Outcome = "applied"
	// OutcomeStale means the result was discarded because the state it was
	// computed against had moved on.
	OutcomeStale Outcome = "stale"
	// OutcomeFailed means the session moved to Failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled means the session was stopped mid-solve.
	OutcomeCancelled Outcome = "cancelled"
)

// Trigger kinds.
const (
	TriggerEvent   = "event"
	TriggerHorizon = "horizon"
	TriggerManual  = "manual"
	TriggerRearm   = "rearm"
)

// TriggerRecord captures one trigger observation.
type TriggerRecord struct {
	Clock     int64
	Kind      string
	EventType string // dispatched event type for event triggers
	Honored   bool   // started a replan
	Coalesced bool   // arrived while a replan was in flight
}

// GrantRecord is one allocation a plan made.
type GrantRecord struct {
	Demand   string
	Resource string
	Amount   float64
}

// ReplanRecord captures one replan from snapshot to outcome.
type ReplanRecord struct {
	Session       string
	Seq           int
	Trigger       string
	SnapshotTime  int64
	DueTime       int64 // logical time the result was consumed
	AppliedTime   int64 // -1 unless Outcome is applied
	Outcome       Outcome
	Status        string // classified solver status of the last attempt
	Objective     *float64
	Attempts      int
	SolveDuration time.Duration // wall-clock, summed over attempts
	Reason        string        // failure or discard reason
	Grants        []GrantRecord
}

// Granted returns the total amount granted by the replan.
func (r ReplanRecord) Granted() float64 {
	total := 0.0
	for _, g := range r.Grants {
		total += g.Amount
	}
	return total
}
