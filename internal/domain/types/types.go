// Package types contains common result shapes used across the application.
package types

import "github.com/harmonia-fm/harmonia/internal/domain/model"

// RatingUpdate is the outcome of one applied rating event.
type RatingUpdate struct {
	TrackID    string  `json:"track_id"`
	Rating     float64 `json:"rating"`
	Change     float64 `json:"rating_change"`
	Confidence int     `json:"rating_confidence"`
	Plays      int     `json:"total_plays"`
	Skips      int     `json:"skip_count"`
	Downloads  int     `json:"download_count"`
}

// ItemError itemizes one failed event inside a batch submission.
type ItemError struct {
	Index   int    `json:"index"`
	TrackID string `json:"track_id"`
	Kind    string `json:"event_type"`
	Code    string `json:"code"` // not_found | validation_error | transient_store_error
	Message string `json:"message"`
}

// BatchResult is the itemized outcome of a batch submission.
type BatchResult struct {
	SubmissionID  string      `json:"submission_id"`
	Processed     int         `json:"processed_count"`
	Failed        int         `json:"failed_count"`
	Errors        []ItemError `json:"errors,omitempty"`
	RatingUpdates int         `json:"rating_updates_applied_count"`
	Attempts      int         `json:"attempts"`
}

// Recommendation is one ranked candidate.
type Recommendation struct {
	Track model.Track `json:"track"`
	Score float64     `json:"score"`
}

// SeedInfo echoes the seed track a recommendation was based on.
type SeedInfo struct {
	TrackID    string   `json:"track_id"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Rating     float64  `json:"rating"`
	Confidence int      `json:"confidence"`
}

// RecommendationResult is the ranked response of the what-to-play-next
// query. Fallback reports that the biased/filtered candidate set was
// empty and the whole catalog was rescored.
type RecommendationResult struct {
	Tracks   []Recommendation `json:"tracks"`
	BasedOn  *SeedInfo        `json:"based_on,omitempty"`
	Fallback bool             `json:"fallback"`
}

// RatingStats summarizes a track's rating history.
type RatingStats struct {
	CurrentRating float64        `json:"current_rating"`
	Confidence    int            `json:"confidence"`
	TotalChanges  int            `json:"total_changes"`
	BiggestGain   float64        `json:"biggest_gain"`
	BiggestLoss   float64        `json:"biggest_loss"`
	Events        map[string]int `json:"events"`
}

// TrackPage is one page of catalog listing results.
type TrackPage struct {
	Tracks []model.Track `json:"tracks"`
	Total  int           `json:"total"`
	Page   int           `json:"page"`
	Pages  int           `json:"pages"`
	Limit  int           `json:"limit"`
}
