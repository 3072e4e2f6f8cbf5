package app

import "errors"

// Sentinel kinds for service errors. NotFound and transient store
// failures surface from the repository package; these cover the paths
// the service itself decides.
var (
	ErrValidation   = errors.New("invalid event")
	ErrExhausted    = errors.New("batch retries exhausted")
	ErrBackpressure = errors.New("event queue full")
	ErrNotStarted   = errors.New("service not started")
)
