package loadgen

import (
	"fmt"
	"time"
)

// Generation vocabulary. Small on purpose so tracks collide on genres
// and artists, which gives the recommender something to bias on.
var (
	genres  = []string{"rock", "jazz", "electronic", "hip-hop", "classical", "ambient", "folk"}
	artists = []string{
		"The Midnight Sector", "Ada & The Loops", "Cobalt Drift", "Marla Voss",
		"Stack Overflow Quartet", "Neon Harvest", "Low Tide Collective",
	}
	kinds = []string{"play", "play", "play", "skip", "download", "pause", "resume"}
)

// trackSpec is one generated catalog entry.
type trackSpec struct {
	ID       string
	Title    string
	Artist   string
	Genre    string
	Duration int64
}

func (t trackSpec) body() map[string]any {
	return map[string]any{
		"track_id":    t.ID,
		"title":       t.Title,
		"artists":     []string{t.Artist},
		"album":       t.Title + " EP",
		"genres":      []string{t.Genre},
		"duration_ms": t.Duration,
	}
}

// eventSpec is one generated listening event.
type eventSpec struct {
	EventID        string
	TrackID        string
	UserID         string
	Kind           string
	TS             time.Time
	DurationMS     int64
	CompletionRate float64
}

func (e eventSpec) body() map[string]any {
	return map[string]any{
		"event_id":        e.EventID,
		"track_id":        e.TrackID,
		"user_id":         e.UserID,
		"event_type":      e.Kind,
		"ts":              e.TS.Format(time.RFC3339),
		"duration_ms":     e.DurationMS,
		"completion_rate": e.CompletionRate,
		"source":          "loadgen",
	}
}

func (r *Runner) generateTracks() []trackSpec {
	tracks := make([]trackSpec, r.cfg.NumTracks)
	for i := range tracks {
		tracks[i] = trackSpec{
			ID:       fmt.Sprintf("trk-%04d", i),
			Title:    fmt.Sprintf("Untitled %d", i),
			Artist:   artists[r.rng.Intn(len(artists))],
			Genre:    genres[r.rng.Intn(len(genres))],
			Duration: int64(120_000 + r.rng.Intn(240_000)),
		}
	}
	return tracks
}

func (r *Runner) generateEvents(tracks []trackSpec) []eventSpec {
	now := time.Now().UTC()
	events := make([]eventSpec, r.cfg.NumEvents)
	for i := range events {
		t := tracks[r.rng.Intn(len(tracks))]
		kind := kinds[r.rng.Intn(len(kinds))]
		completion := r.rng.Float64()
		if kind == "skip" {
			completion *= 0.3
		}
		events[i] = eventSpec{
			EventID:        r.eventID(),
			TrackID:        t.ID,
			UserID:         fmt.Sprintf("user-%03d", r.rng.Intn(50)),
			Kind:           kind,
			TS:             now.Add(-time.Duration(r.rng.Intn(3600)) * time.Second),
			DurationMS:     int64(float64(t.Duration) * completion),
			CompletionRate: completion,
		}
	}
	return events
}
