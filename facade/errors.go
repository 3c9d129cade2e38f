package facade

import (
	"errors"

	"github.com/simopt/simopt/sim"
	"github.com/simopt/simopt/sim/bridge"
)

var (
	// ErrSessionNotFound is returned for unknown or stopped session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when another call is using the session, or
	// a replan is requested while one is in flight.
	ErrSessionBusy = bridge.ErrSessionBusy
	// ErrConfigValidation wraps every rejected session config.
	ErrConfigValidation = bridge.ErrConfigValidation
	// ErrInvalidTime is returned for advance targets behind the clock.
	ErrInvalidTime = sim.ErrInvalidTime
	// ErrServiceClosed is returned by every operation after Close.
	ErrServiceClosed = errors.New("service closed")
)
