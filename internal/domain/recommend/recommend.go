// Package recommend ranks candidate tracks for the "what to play next"
// query.
//
// Scoring blends the stored Elo rating, the play/skip ratio and a dominant
// random term, optionally biased by a seed track's recent event pattern.
// The package is read-only over snapshots handed to it; it holds no locks
// and tolerates stale rating/confidence values.
package recommend

import (
	"sort"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// Scoring weights. Randomness dominates so discovery outweighs pure
// popularity.
const (
	weightRating    = 0.2
	weightPlayRatio = 0.2
	weightRandom    = 0.6

	ratingScale        = 2000.0
	confidenceHalfLife = 50.0

	// Bias thresholds from the seed's recent history.
	playBiasThreshold = 0.7
	skipBiasThreshold = 0.3
	ratingWindow      = 300.0

	// How many recent ledger rows shape the seed profile.
	SeedHistoryWindow = 10
)

// Query describes one recommendation request.
type Query struct {
	Seed        *model.Track        // optional seed track
	SeedHistory []model.RatingEvent // seed's most recent ledger rows
	Genre       string              // optional genre filter (AND)
	Exclude     map[string]struct{} // track ids to drop (AND)
	Limit       int                 // max results
}

// Candidate is one scored track in the ranked result.
type Candidate struct {
	Track model.Track
	Score float64
}

// Scorer ranks catalog snapshots. The zero value is not usable; construct
// with New.
type Scorer struct {
	random func() float64
}

// New creates a Scorer with configuration options.
func New(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	if s.random == nil {
		s.random = defaultRandom
	}
	return s
}

// Profile summarizes the seed's recent interaction pattern.
type Profile struct {
	PlayRatio float64
	SkipRatio float64
}

// SeedProfile computes play/skip ratios over the seed's recent ledger
// rows. The denominator is the number of rows found, or 1 when the seed
// has no history yet.
func SeedProfile(history []model.RatingEvent) Profile {
	denom := float64(len(history))
	if denom == 0 {
		denom = 1
	}
	var plays, skips float64
	for _, h := range history {
		switch h.Kind {
		case model.KindPlay:
			plays++
		case model.KindSkip:
			skips++
		}
	}
	return Profile{PlayRatio: plays / denom, SkipRatio: skips / denom}
}

// Recommend scores and ranks catalog against q. The second return value
// reports a fallback: the biased/filtered candidate set came up empty and
// the whole catalog was rescored instead. The result is only empty when
// the catalog itself is.
func (s *Scorer) Recommend(catalog []model.Track, q Query) ([]Candidate, bool) {
	filtered := s.filter(catalog, q)
	if len(filtered) > 0 {
		return s.rank(filtered, q.Limit), false
	}

	// Nothing passed the filters; never return a hard empty result while
	// any track exists.
	return s.rank(catalog, q.Limit), len(catalog) > 0
}

// filter applies the seed bias plus the genre and exclusion AND-filters.
func (s *Scorer) filter(catalog []model.Track, q Query) []model.Track {
	bias := biasNone
	var profile Profile
	if q.Seed != nil {
		profile = SeedProfile(q.SeedHistory)
		switch {
		case profile.PlayRatio > playBiasThreshold:
			bias = biasSimilar
		case profile.SkipRatio > skipBiasThreshold:
			bias = biasExplore
		}
	}

	out := make([]model.Track, 0, len(catalog))
	for _, t := range catalog {
		if q.Seed != nil && t.ID == q.Seed.ID {
			continue
		}
		if _, excluded := q.Exclude[t.ID]; excluded {
			continue
		}
		if q.Genre != "" && !t.HasGenre(q.Genre) {
			continue
		}
		switch bias {
		case biasSimilar:
			if !t.SharesGenreOrArtist(*q.Seed) {
				continue
			}
		case biasExplore:
			if t.SharesGenre(*q.Seed) {
				continue
			}
			if t.Rating < q.Seed.Rating-ratingWindow || t.Rating > q.Seed.Rating+ratingWindow {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// rank scores every track, sorts descending and truncates to limit.
func (s *Scorer) rank(tracks []model.Track, limit int) []Candidate {
	ranked := make([]Candidate, len(tracks))
	for i, t := range tracks {
		ranked[i] = Candidate{Track: t, Score: s.score(t)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// score computes the blended score for one track. Missing fields fall
// back to neutral values so a track that has never been rated still
// competes on the random term.
func (s *Scorer) score(t model.Track) float64 {
	r := t.Rating
	if r == 0 {
		r = model.BaselineRating
	}
	conf := float64(t.Confidence)
	if conf <= 0 {
		conf = 1
	}
	plays := float64(t.TotalPlays)
	skips := float64(t.SkipCount)

	ratingTerm := (r / ratingScale) * (conf / (conf + confidenceHalfLife))
	playTerm := plays / (plays + skips + 1)

	return weightRating*ratingTerm + weightPlayRatio*playTerm + weightRandom*s.random()
}

// biasKind selects which bias filter applies to a query.
type biasKind int

const (
	biasNone biasKind = iota
	biasSimilar
	biasExplore
)
