package bridge

import (
	"fmt"

	"github.com/simopt/simopt/sim/optimize"
)

// State is a session's position in its replan cycle.
type State string

const (
	StateIdle          State = "idle"
	StateSnapshotTaken State = "snapshot-taken"
	StateSolving       State = "solving"
	StateApplying      State = "applying"
	StateFailed        State = "failed"
	StateStopped       State = "stopped"
)

// transitions lists the legal successors of each state. A queued solve that
// never gets admitted, or a model that cannot be built, fails straight from
// SnapshotTaken; a stale result returns to Idle from Solving.
var transitions = map[State]map[State]bool{
	StateIdle:          {StateSnapshotTaken: true, StateStopped: true},
	StateSnapshotTaken: {StateSolving: true, StateFailed: true, StateIdle: true, StateStopped: true},
	StateSolving:       {StateApplying: true, StateFailed: true, StateIdle: true, StateStopped: true},
	StateApplying:      {StateIdle: true, StateFailed: true, StateStopped: true},
	StateFailed:        {StateSnapshotTaken: true, StateStopped: true},
	StateStopped:       {},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

func mustTransition(from, to State) {
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("bridge: illegal transition %s -> %s", from, to))
	}
}

// StateView is a read-only picture of a session, safe to read from any
// goroutine.
type StateView struct {
	Session       string
	State         State
	Clock         int64
	LastResult    *optimize.Result
	FailureReason string
	Replans       int // replans started
	Applied       int
	Discarded     int // stale results dropped
	Coalesced     int // triggers folded into an in-flight replan
	Ignored       int // triggers seen while Failed
}
