// Package rating computes Elo-derived rating deltas for listening events.
//
// The engine is a pure function: no I/O, no hidden state, identical output
// for identical input. Batch chunk snapshotting depends on that.
package rating

import (
	"math"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// K-factor and expectation constants.
const (
	kNew         = 32.0 // confidence below newTrackConfidence
	kHighRated   = 16.0 // rating above highRatingCutoff
	kEstablished = 24.0 // confidence above establishedConfidence
	kDefault     = 32.0

	newTrackConfidence    = 30
	establishedConfidence = 100
	highRatingCutoff      = 2100.0

	logisticScale = 400.0
)

// Outcome scores per event kind, relative to the 0.5 neutral expectation.
const (
	scorePlay     = 0.6
	scoreSkip     = 0.2
	scoreDownload = 0.8
	scoreNeutral  = 0.5
)

// KFactor selects the adjustment magnitude for a track. Order matters:
// uncertain tracks swing fast regardless of rating, then runaway high
// ratings are damped regardless of confidence.
func KFactor(currentRating float64, confidence int) float64 {
	switch {
	case confidence < newTrackConfidence:
		return kNew
	case currentRating > highRatingCutoff:
		return kHighRated
	case confidence > establishedConfidence:
		return kEstablished
	default:
		return kDefault
	}
}

// ExpectedScore is the logistic expectation of the track against the
// fixed 1500 baseline.
func ExpectedScore(currentRating float64) float64 {
	return 1 / (1 + math.Pow(10, (model.BaselineRating-currentRating)/logisticScale))
}

// ActualScore maps an event kind to its outcome value. Kinds outside the
// rating set come out neutral.
func ActualScore(kind model.EventKind) float64 {
	switch kind {
	case model.KindPlay:
		return scorePlay
	case model.KindSkip:
		return scoreSkip
	case model.KindDownload:
		return scoreDownload
	default:
		return scoreNeutral
	}
}

// Change returns the rating delta for one event. The result is applied
// without clamping; only the K damping above 2100 bounds movement.
func Change(currentRating float64, confidence int, kind model.EventKind) float64 {
	k := KFactor(currentRating, confidence)
	return k * (ActualScore(kind) - ExpectedScore(currentRating))
}
