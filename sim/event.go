package sim

// EventType names what an event means to observers. The engine orders
// events by (Time, Priority, Seq) only; Type never influences ordering.
type EventType string

const (
	// EventProcessStart resumes a freshly spawned process.
	EventProcessStart EventType = "process-start"
	// EventProcessResume resumes a process that suspended itself with Hold.
	EventProcessResume EventType = "process-resume"
	// EventContention is emitted when a demand cannot be granted on arrival.
	EventContention EventType = "resource-contention"
	// EventGranted resumes a waiting demand whose allocation was granted.
	EventGranted EventType = "resource-granted"
	// EventReleased is emitted when a holder gives its allocation back.
	EventReleased EventType = "resource-released"
	// EventReplanHorizon marks a periodic replan boundary.
	EventReplanHorizon EventType = "replan-horizon"
	// EventReplanDue marks the logical instant a submitted solve resolves.
	EventReplanDue EventType = "replan-due"
	// EventReplanApplied notifies processes that a plan changed allocations.
	EventReplanApplied EventType = "replan-applied"
)

// Priorities for events sharing a timestamp. Lower values dispatch first.
const (
	PriorityUrgent = 0
	PriorityNormal = 10
	// PriorityLate runs after model events at the same tick, so bookkeeping
	// such as snapshots observes everything that happened at that instant.
	PriorityLate = 100
)

// ProcessID identifies a process within one engine.
type ProcessID string

// Event is a scheduled occurrence in logical time.
//
// Callers fill Time, Priority, Type, Payload and optionally Owner; the
// engine assigns the sequence number when the event is scheduled.
type Event struct {
	Time     int64
	Priority int
	Type     EventType
	Payload  any
	Owner    ProcessID

	seq       uint64
	cancelled bool
	consumed  bool
	resume    Handler // continuation of Owner; nil for notifications
}

// Seq returns the scheduling sequence number (FIFO tie-breaker).
func (e *Event) Seq() uint64 { return e.seq }

// Cancelled reports whether the event was tombstoned before dispatch.
func (e *Event) Cancelled() bool { return e.cancelled }

// Consumed reports whether the event has been dispatched.
func (e *Event) Consumed() bool { return e.consumed }

// EventHandle refers to a scheduled event, for cancellation and inspection.
// The zero value refers to no event.
type EventHandle struct {
	ev *Event
}

// Valid reports whether the handle refers to an event.
func (h EventHandle) Valid() bool { return h.ev != nil }

// Time returns the scheduled time of the event, or 0 for an invalid handle.
func (h EventHandle) Time() int64 {
	if h.ev == nil {
		return 0
	}
	return h.ev.Time
}

// Live reports whether the event is still waiting to be dispatched.
func (h EventHandle) Live() bool {
	return h.ev != nil && !h.ev.cancelled && !h.ev.consumed
}
