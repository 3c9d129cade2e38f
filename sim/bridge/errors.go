package bridge

import "errors"

var (
	// ErrSessionBusy is returned when an operation needs the session to be
	// Idle or Failed and it is not.
	ErrSessionBusy = errors.New("session busy")
	// ErrConfigValidation wraps every configuration rejection.
	ErrConfigValidation = errors.New("invalid session config")
	// ErrSessionStopped is returned by operations on a stopped session.
	ErrSessionStopped = errors.New("session stopped")
)
