// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"strings"
	"time"
)

// EventKind is the closed set of listening events the system understands.
type EventKind string

// Listening event kinds. Play, Skip and Download affect the rating ledger;
// Pause and Resume are recorded in user history only.
const (
	KindPlay     EventKind = "play"
	KindSkip     EventKind = "skip"
	KindDownload EventKind = "download"
	KindPause    EventKind = "pause"
	KindResume   EventKind = "resume"
)

// ErrUnknownKind reports an event kind outside the closed enumeration.
var ErrUnknownKind = errors.New("unknown event kind")

// ParseEventKind converts a loose string into an EventKind.
// Conversion happens once, at the ingestion boundary; everything past it
// works with the typed kind.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPlay, KindSkip, KindDownload, KindPause, KindResume:
		return k, nil
	default:
		return "", ErrUnknownKind
	}
}

// AffectsRating reports whether the kind produces a ledger row and a
// rating change.
func (k EventKind) AffectsRating() bool {
	switch k {
	case KindPlay, KindSkip, KindDownload:
		return true
	default:
		return false
	}
}

// PlayContext records where a play originated (album page, playlist, radio).
type PlayContext struct {
	Source   string `json:"source,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// ListenEvent is one validated event descriptor inside a submission.
type ListenEvent struct {
	EventID        string        // client-assigned id for idempotency; may be empty
	TrackID        string        // subject track
	UserID         string        // optional; empty means no history entry
	Kind           EventKind     // closed enumeration, see ParseEventKind
	ClientTS       time.Time     // zero means server receive time
	Duration       time.Duration // listened duration
	CompletionRate float64       // 0..1 fraction of the track heard
	Context        PlayContext   // where the play came from
}

// Validate checks the fields every processing path requires.
func (e ListenEvent) Validate() error {
	if strings.TrimSpace(e.TrackID) == "" {
		return errors.New("missing track id")
	}
	if _, err := ParseEventKind(string(e.Kind)); err != nil {
		return err
	}
	return nil
}
