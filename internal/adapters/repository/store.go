// Package repository defines the storage ports for the rating core and
// their SQLite and in-memory implementations.
//
// Three stores back the system: the track catalog (read/delta-update),
// the append-only rating ledger, and the monthly user play-history
// buckets. Stores obtained from the same Stores value share a database;
// WithinTx hands out transaction-scoped views so the single-event path
// and batch chunks commit all their writes together or not at all.
package repository

import (
	"context"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// Catalog provides access to track aggregates.
type Catalog interface {
	// Get returns one track. Returns ErrNotFound for unknown ids.
	Get(ctx context.Context, trackID string) (model.Track, error)

	// GetMany bulk-reads tracks; unknown ids are simply absent from the
	// result, the caller decides what missing means.
	GetMany(ctx context.Context, trackIDs []string) (map[string]model.Track, error)

	// Put inserts or replaces a track. New tracks get the baseline
	// rating when none is set.
	Put(ctx context.Context, t model.Track) error

	// ApplyDelta increments a track's mutable fields. Increments rather
	// than overwrites keep concurrently committing writers composable.
	// Returns ErrNotFound for unknown ids.
	ApplyDelta(ctx context.Context, d model.TrackDelta) error

	// ApplyDeltas applies several deltas; all-or-nothing when called
	// inside WithinTx.
	ApplyDeltas(ctx context.Context, ds []model.TrackDelta) error

	// List returns a snapshot of the whole catalog.
	List(ctx context.Context) ([]model.Track, error)

	// Search returns a page of tracks matching q (substring over title,
	// artists, album; empty q matches all) plus the total match count.
	Search(ctx context.Context, q string, offset, limit int) ([]model.Track, int, error)
}

// Ledger is the append-only rating event history.
type Ledger interface {
	Append(ctx context.Context, ev model.RatingEvent) error
	AppendMany(ctx context.Context, evs []model.RatingEvent) error

	// RecentByTrack returns up to limit rows for a track, newest first.
	RecentByTrack(ctx context.Context, trackID string, limit int) ([]model.RatingEvent, error)

	// StatsByTrack aggregates the full ledger for one track.
	StatsByTrack(ctx context.Context, trackID string) (LedgerStats, error)
}

// LedgerStats summarizes a track's rating history.
type LedgerStats struct {
	TotalChanges int
	BiggestGain  float64
	BiggestLoss  float64
	Plays        int
	Skips        int
	Downloads    int
}

// History stores monthly user play-history buckets.
type History interface {
	// AppendPlays finds or creates the (userID, yearMonth) bucket and
	// appends entries to it. Buckets are never mutated except by append.
	AppendPlays(ctx context.Context, userID, yearMonth string, entries []model.PlayEntry) error
}

// Stores bundles the three ports over one database.
type Stores interface {
	Catalog() Catalog
	Ledger() Ledger
	History() History

	// WithinTx runs fn with transaction-scoped stores. The transaction
	// commits iff fn returns nil. Timeouts and write conflicts surface
	// as ErrTransient.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error

	Close() error
}
