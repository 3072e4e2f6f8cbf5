package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/internal/domain/model"
	"github.com/harmonia-fm/harmonia/internal/domain/rating"
	"github.com/harmonia-fm/harmonia/internal/domain/types"
	"github.com/harmonia-fm/harmonia/pkg/logger"
	"github.com/harmonia-fm/harmonia/pkg/metrics"
)

// Itemized error codes for batch results.
const (
	codeNotFound   = "not_found"
	codeValidation = "validation_error"
	codeTransient  = "transient_store_error"
)

// indexedEvent pins an event to its position in the submission so
// itemized results stay addressable after chunking.
type indexedEvent struct {
	idx int
	ev  model.ListenEvent
}

// attemptOutcome collects one whole-submission attempt.
type attemptOutcome struct {
	processed     int
	ratingUpdates int
	errs          []types.ItemError
}

// ProcessBatch applies an ordered event submission in fixed-size chunks,
// each committed as its own transaction. One bad chunk fails only its
// own events. Only a submission with zero successes is retried, up to
// the attempt budget with linear backoff; a submission with at least one
// success returns itemized results immediately and is never auto-retried.
func (s *Service) ProcessBatch(ctx context.Context, events []model.ListenEvent) (types.BatchResult, error) {
	submissionID := uuid.NewString()
	result := types.BatchResult{SubmissionID: submissionID}
	if len(events) == 0 {
		return result, nil
	}

	// Validation happens once, before chunking; malformed events never
	// consume a transaction.
	valid := make([]indexedEvent, 0, len(events))
	var invalid []types.ItemError
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			invalid = append(invalid, types.ItemError{
				Index:   i,
				TrackID: ev.TrackID,
				Kind:    string(ev.Kind),
				Code:    codeValidation,
				Message: err.Error(),
			})
			continue
		}
		valid = append(valid, indexedEvent{idx: i, ev: ev})
	}

	metrics.RecordBatchSubmission()

	var outcome attemptOutcome
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result.Attempts = attempt
		if attempt > 1 {
			metrics.RecordBatchRetry()
		}

		// Backoff before attempt n is (n-1) * base: 0s, 2s, 4s.
		delay := time.Duration(attempt-1) * s.backoffBase
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return result, fmt.Errorf("%w: %w", repository.ErrTransient, ctx.Err())
			}
		}

		outcome = s.runAttempt(ctx, valid)
		if outcome.processed > 0 || len(valid) == 0 {
			break
		}
		s.logger.Warn(ctx, "batch attempt yielded zero successes",
			logger.String("submissionID", submissionID),
			logger.Int("attempt", attempt),
			logger.Int("events", len(valid)),
		)
	}

	result.Processed = outcome.processed
	result.RatingUpdates = outcome.ratingUpdates
	result.Errors = append(invalid, outcome.errs...)
	result.Failed = len(result.Errors)

	if result.Processed == 0 && len(valid) > 0 {
		metrics.RecordBatchExhausted()
		return result, fmt.Errorf("%w: %d attempts, %d events", ErrExhausted, result.Attempts, len(events))
	}
	return result, nil
}

// runAttempt processes every chunk of one whole-submission attempt.
func (s *Service) runAttempt(ctx context.Context, events []indexedEvent) attemptOutcome {
	var out attemptOutcome
	for start := 0; start < len(events); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]

		processed, updates, errs := s.processChunk(ctx, chunk)
		out.processed += processed
		out.ratingUpdates += updates
		out.errs = append(out.errs, errs...)
	}
	return out
}

// processChunk applies one chunk in a single bounded transaction.
// Unknown tracks are itemized and excluded without aborting the chunk;
// a failed transaction fails every remaining event in the chunk and
// nothing else.
func (s *Service) processChunk(ctx context.Context, chunk []indexedEvent) (processed, ratingUpdates int, errs []types.ItemError) {
	ctx, cancel := context.WithTimeout(ctx, s.chunkTimeout)
	defer cancel()

	var (
		committed []indexedEvent
		notFound  map[int]struct{}
	)
	err := s.stores.WithinTx(ctx, func(ctx context.Context, tx repository.Stores) error {
		committed = committed[:0]
		errs = errs[:0]
		notFound = make(map[int]struct{})
		ratingUpdates = 0

		ids := make([]string, 0, len(chunk))
		for _, ie := range chunk {
			ids = append(ids, ie.ev.TrackID)
		}

		// One snapshot per chunk: every event computes its delta from
		// the state read here, not from intermediate in-chunk results.
		snapshot, err := tx.Catalog().GetMany(ctx, ids)
		if err != nil {
			return err
		}

		var (
			ledgerRows []model.RatingEvent
			deltas     = make(map[string]*model.TrackDelta)
			order      []string
			buckets    = make(map[string][]model.PlayEntry)
			bucketKeys [][2]string
		)
		for _, ie := range chunk {
			t, known := snapshot[ie.ev.TrackID]
			if !known {
				notFound[ie.idx] = struct{}{}
				errs = append(errs, types.ItemError{
					Index:   ie.idx,
					TrackID: ie.ev.TrackID,
					Kind:    string(ie.ev.Kind),
					Code:    codeNotFound,
					Message: "track not found",
				})
				continue
			}

			if ie.ev.Kind.AffectsRating() {
				change := rating.Change(t.Rating, t.Confidence, ie.ev.Kind)
				ledgerRows = append(ledgerRows, model.RatingEvent{
					TrackID:    t.ID,
					OldRating:  t.Rating,
					NewRating:  t.Rating + change,
					Kind:       ie.ev.Kind,
					Change:     change,
					Confidence: t.Confidence,
					CreatedAt:  eventTime(ie.ev),
				})
				d, ok := deltas[t.ID]
				if !ok {
					d = &model.TrackDelta{TrackID: t.ID}
					deltas[t.ID] = d
					order = append(order, t.ID)
				}
				d.RatingChange += change
				d.AddKind(ie.ev.Kind)
				ratingUpdates++
			}

			if entry, ok := historyEntry(ie.ev); ok {
				key := [2]string{ie.ev.UserID, model.BucketKey(entry.PlayedAt)}
				mapKey := key[0] + "/" + key[1]
				if _, seen := buckets[mapKey]; !seen {
					bucketKeys = append(bucketKeys, key)
				}
				buckets[mapKey] = append(buckets[mapKey], entry)
			}

			committed = append(committed, ie)
		}

		if err := tx.Ledger().AppendMany(ctx, ledgerRows); err != nil {
			return err
		}
		staged := make([]model.TrackDelta, 0, len(order))
		for _, id := range order {
			staged = append(staged, *deltas[id])
		}
		if err := tx.Catalog().ApplyDeltas(ctx, staged); err != nil {
			return err
		}
		// Each (user, month) bucket is fetched once, extended and written
		// back once per chunk.
		for _, key := range bucketKeys {
			if err := tx.History().AppendPlays(ctx, key[0], key[1], buckets[key[0]+"/"+key[1]]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordChunkFailure()
		s.logger.Warn(ctx, "chunk aborted",
			logger.Int("events", len(chunk)),
			logger.Error(err),
		)
		// The transaction rolled back: every event in the chunk fails.
		// Events already itemized as NotFound keep the more specific code.
		failed := errs
		for _, ie := range chunk {
			if _, skip := notFound[ie.idx]; skip {
				continue
			}
			failed = append(failed, types.ItemError{
				Index:   ie.idx,
				TrackID: ie.ev.TrackID,
				Kind:    string(ie.ev.Kind),
				Code:    chunkErrorCode(err),
				Message: err.Error(),
			})
		}
		return 0, 0, failed
	}

	metrics.RecordChunkCommitted()
	metrics.RecordRatingUpdates(ratingUpdates)
	return len(committed), ratingUpdates, errs
}

// chunkErrorCode classifies a failed chunk transaction.
func chunkErrorCode(err error) string {
	if errors.Is(err, repository.ErrTransient) {
		return codeTransient
	}
	if errors.Is(err, repository.ErrNotFound) {
		return codeNotFound
	}
	return codeTransient
}
