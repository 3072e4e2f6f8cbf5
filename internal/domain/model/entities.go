package model

import "time"

// Baseline rating constants shared by the rating engine and stores.
const (
	BaselineRating = 1500.0
)

// Track is the catalog aggregate the updaters mutate. Only the rating,
// confidence and counter fields change after ingestion; descriptive
// fields come from the catalog import.
type Track struct {
	ID         string    `json:"track_id"`
	Title      string    `json:"title"`
	Artists    []string  `json:"artists"`
	Album      string    `json:"album,omitempty"`
	Genres     []string  `json:"genres"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	AddedAt    time.Time `json:"added_at"`

	Rating        float64 `json:"rating"`
	Confidence    int     `json:"rating_confidence"`
	TotalPlays    int     `json:"total_plays"`
	SkipCount     int     `json:"skip_count"`
	DownloadCount int     `json:"download_count"`
}

// HasGenre reports whether the track carries the genre (case-sensitive,
// genres are normalized at import time).
func (t Track) HasGenre(genre string) bool {
	for _, g := range t.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// SharesGenreOrArtist reports whether two tracks overlap on any genre or
// artist. Used by the recommendation bias filters.
func (t Track) SharesGenreOrArtist(o Track) bool {
	for _, g := range t.Genres {
		if o.HasGenre(g) {
			return true
		}
	}
	for _, a := range t.Artists {
		for _, b := range o.Artists {
			if a == b {
				return true
			}
		}
	}
	return false
}

// SharesGenre reports whether two tracks overlap on any genre.
func (t Track) SharesGenre(o Track) bool {
	for _, g := range t.Genres {
		if o.HasGenre(g) {
			return true
		}
	}
	return false
}

// TrackDelta is an increment applied to a track's mutable fields.
// Deltas rather than absolute writes let concurrently committing chunks
// compose without locking.
type TrackDelta struct {
	TrackID       string
	RatingChange  float64
	Confidence    int
	TotalPlays    int
	SkipCount     int
	DownloadCount int
}

// AddKind folds one rating-affecting event kind into the delta counters.
func (d *TrackDelta) AddKind(kind EventKind) {
	d.Confidence++
	switch kind {
	case KindPlay:
		d.TotalPlays++
	case KindSkip:
		d.SkipCount++
	case KindDownload:
		d.DownloadCount++
	}
}

// RatingEvent is one immutable ledger row. Invariant:
// NewRating == OldRating + Change, always.
type RatingEvent struct {
	TrackID    string    `json:"track_id"`
	OldRating  float64   `json:"old_rating"`
	NewRating  float64   `json:"new_rating"`
	Kind       EventKind `json:"event_type"`
	Change     float64   `json:"rating_change"`
	Confidence int       `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// PlayEntry is one row inside a monthly user history bucket.
type PlayEntry struct {
	TrackID        string      `json:"track_id"`
	PlayedAt       time.Time   `json:"played_at"`
	Duration       int64       `json:"duration_ms"`
	CompletionRate float64     `json:"completion_rate"`
	Skipped        bool        `json:"skipped"`
	Context        PlayContext `json:"context"`
}

// BucketKey returns the "YYYY-MM" key for a play timestamp. Buckets are
// created lazily on the first event in a month and appended to after.
func BucketKey(ts time.Time) string {
	return ts.UTC().Format("2006-01")
}
