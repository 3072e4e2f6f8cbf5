package repository

import "time"

// SQLiteOption applies a configuration option to SQLiteStores.
type SQLiteOption func(*SQLiteStores)

// WithPath sets the database file path. ":memory:" gives an ephemeral
// database, which the tests use.
func WithPath(path string) SQLiteOption {
	return func(s *SQLiteStores) {
		if path != "" {
			s.path = path
		}
	}
}

// WithBusyTimeout bounds how long a writer waits on a locked database
// before the operation fails as transient.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStores) {
		if d > 0 {
			s.busy = d
		}
	}
}
