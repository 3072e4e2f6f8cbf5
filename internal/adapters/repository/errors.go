package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("track not found")
	ErrTransient    = errors.New("transient store error")
	ErrInvalidLimit = errors.New("invalid query limit")
)
