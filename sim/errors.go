package sim

import "errors"

var (
	// ErrInvalidTime is returned when an event or advance target lies
	// before the current clock.
	ErrInvalidTime = errors.New("invalid time")

	// ErrDuplicateProcess is returned by Spawn when the process ID is taken.
	ErrDuplicateProcess = errors.New("duplicate process")

	// ErrCapacityExceeded is returned when an allocation change would push a
	// resource past its capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrUnknownResource is returned for references to resources the world
	// does not contain.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrPlanConflict is returned by ApplyPlan when a plan no longer matches
	// the world, e.g. it grants a demand that is not waiting anymore.
	ErrPlanConflict = errors.New("plan conflicts with current state")
)
