// Package app provides the core service that owns the stores and
// implements the single-event path, the batch processor and the
// recommendation query behind the HTTP API.
//
// There is exactly one Service per process, constructed at startup and
// passed explicitly into handlers; no package-level registries.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/harmonia-fm/harmonia/internal/adapters/mq/queue"
	workerpool "github.com/harmonia-fm/harmonia/internal/adapters/mq/worker"
	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/internal/domain/dedupe"
	"github.com/harmonia-fm/harmonia/internal/domain/model"
	"github.com/harmonia-fm/harmonia/internal/domain/rating"
	"github.com/harmonia-fm/harmonia/internal/domain/recommend"
	"github.com/harmonia-fm/harmonia/internal/domain/types"
	"github.com/harmonia-fm/harmonia/pkg/logger"
	"github.com/harmonia-fm/harmonia/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultChunkSize      = 10
	defaultChunkTimeout   = 5 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffBase    = 2 * time.Second
	defaultRecommendLimit = 20
	defaultHistoryLimit   = 50
	defaultDBPath         = "harmonia.db"
	defaultDedupeSize     = 50000
	defaultQueueSize      = 100000
)

// Service implements the listening-event rating core.
type Service struct {
	mu sync.RWMutex

	// Core components
	stores      repository.Stores
	recommender *recommend.Scorer
	deduper     dedupe.Deduper
	eventQueue  eventqueue.Queue
	workerPool  *workerpool.Pool

	// Configuration
	dbPath            string
	chunkSize         int
	chunkTimeout      time.Duration
	maxAttempts       int
	backoffBase       time.Duration
	maxRecommendLimit int
	historyLimit      int
	workerCount       int
	queueSize         int
	dedupeSize        int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:            defaultDBPath,
		chunkSize:         defaultChunkSize,
		chunkTimeout:      defaultChunkTimeout,
		maxAttempts:       defaultMaxAttempts,
		backoffBase:       defaultBackoffBase,
		maxRecommendLimit: defaultRecommendLimit,
		historyLimit:      defaultHistoryLimit,
		workerCount:       runtime.NumCPU() * 2,
		queueSize:         defaultQueueSize,
		dedupeSize:        defaultDedupeSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting rating service...")

	if s.stores == nil {
		stores, err := repository.NewSQLiteStores(ctx,
			repository.WithPath(s.dbPath),
			repository.WithBusyTimeout(s.chunkTimeout),
		)
		if err != nil {
			return fmt.Errorf("failed to open stores: %w", err)
		}
		s.stores = stores
		s.logger.Info(ctx, "using sqlite stores", logger.String("path", s.dbPath))
	}
	if s.recommender == nil {
		s.recommender = recommend.New()
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("chunkSize", s.chunkSize),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping rating service...")

	if s.workerPool != nil {
		s.workerPool.Stop()
	}
	if s.eventQueue != nil {
		_ = s.eventQueue.Close()
	}
	if s.stores != nil {
		_ = s.stores.Close()
	}

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// Apply is the single-event path: atomically compute the rating change
// for one event, append the ledger row, and bump the track's counters.
// Returns repository.ErrNotFound (wrapped) for unknown tracks, having
// written nothing.
func (s *Service) Apply(ctx context.Context, trackID string, kind model.EventKind) (types.RatingUpdate, error) {
	if !kind.AffectsRating() {
		return types.RatingUpdate{}, fmt.Errorf("%w: kind %q does not affect rating", ErrValidation, kind)
	}

	var out types.RatingUpdate
	err := s.stores.WithinTx(ctx, func(ctx context.Context, tx repository.Stores) error {
		t, err := tx.Catalog().Get(ctx, trackID)
		if err != nil {
			return err
		}

		change := rating.Change(t.Rating, t.Confidence, kind)
		ev := model.RatingEvent{
			TrackID:    t.ID,
			OldRating:  t.Rating,
			NewRating:  t.Rating + change,
			Kind:       kind,
			Change:     change,
			Confidence: t.Confidence,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tx.Ledger().Append(ctx, ev); err != nil {
			return err
		}

		d := model.TrackDelta{TrackID: t.ID, RatingChange: change}
		d.AddKind(kind)
		if err := tx.Catalog().ApplyDelta(ctx, d); err != nil {
			return err
		}

		out = types.RatingUpdate{
			TrackID:    t.ID,
			Rating:     t.Rating + change,
			Change:     change,
			Confidence: t.Confidence + 1,
			Plays:      t.TotalPlays + d.TotalPlays,
			Skips:      t.SkipCount + d.SkipCount,
			Downloads:  t.DownloadCount + d.DownloadCount,
		}
		return nil
	})
	if err != nil {
		metrics.RecordEventFailed()
		return types.RatingUpdate{}, err
	}

	metrics.RecordEventProcessed()
	metrics.RecordRatingUpdate()
	return out, nil
}

// Record processes one event from the async ingestion path: the rating
// update (for rating-affecting kinds) plus the user-history append when
// a user is attached, committed together.
func (s *Service) Record(ctx context.Context, e model.ListenEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return s.stores.WithinTx(ctx, func(ctx context.Context, tx repository.Stores) error {
		t, err := tx.Catalog().Get(ctx, e.TrackID)
		if err != nil {
			return err
		}

		if e.Kind.AffectsRating() {
			change := rating.Change(t.Rating, t.Confidence, e.Kind)
			ev := model.RatingEvent{
				TrackID:    t.ID,
				OldRating:  t.Rating,
				NewRating:  t.Rating + change,
				Kind:       e.Kind,
				Change:     change,
				Confidence: t.Confidence,
				CreatedAt:  eventTime(e),
			}
			if err := tx.Ledger().Append(ctx, ev); err != nil {
				return err
			}
			d := model.TrackDelta{TrackID: t.ID, RatingChange: change}
			d.AddKind(e.Kind)
			if err := tx.Catalog().ApplyDelta(ctx, d); err != nil {
				return err
			}
		}

		if entry, ok := historyEntry(e); ok {
			if err := tx.History().AppendPlays(ctx, e.UserID, model.BucketKey(entry.PlayedAt), []model.PlayEntry{entry}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Enqueue submits an event for asynchronous processing, deduplicating on
// the client event id. A duplicate is acknowledged without re-queueing.
// Returns ErrBackpressure when the queue is full.
func (s *Service) Enqueue(ctx context.Context, e model.ListenEvent) (duplicate bool, err error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		return true, nil // already processed or in flight
	}

	if ok := s.eventQueue.Enqueue(ctx, e); !ok {
		// Give the client a chance to retry the same event id.
		s.deduper.Unrecord(ctx, e.EventID)
		return false, ErrBackpressure
	}
	metrics.UpdateQueueSize(s.eventQueue.Len(ctx))
	return false, nil
}

// Recommend runs the what-to-play-next query.
func (s *Service) Recommend(ctx context.Context, seedID, genre string, excludeIDs []string, limit int) (types.RecommendationResult, error) {
	if limit <= 0 || limit > s.maxRecommendLimit {
		limit = s.maxRecommendLimit
	}

	catalog, err := s.stores.Catalog().List(ctx)
	if err != nil {
		return types.RecommendationResult{}, err
	}

	q := recommend.Query{Genre: genre, Limit: limit}
	if len(excludeIDs) > 0 {
		q.Exclude = make(map[string]struct{}, len(excludeIDs))
		for _, id := range excludeIDs {
			q.Exclude[id] = struct{}{}
		}
	}

	var basedOn *types.SeedInfo
	if seedID != "" {
		seed, err := s.stores.Catalog().Get(ctx, seedID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Unknown seed degrades to an unbiased query.
		case err != nil:
			return types.RecommendationResult{}, err
		default:
			hist, err := s.stores.Ledger().RecentByTrack(ctx, seed.ID, recommend.SeedHistoryWindow)
			if err != nil {
				return types.RecommendationResult{}, err
			}
			q.Seed = &seed
			q.SeedHistory = hist
			basedOn = &types.SeedInfo{
				TrackID:    seed.ID,
				Title:      seed.Title,
				Artists:    seed.Artists,
				Rating:     seed.Rating,
				Confidence: seed.Confidence,
			}
		}
	}

	ranked, fallback := s.recommender.Recommend(catalog, q)
	metrics.RecordRecommendationQuery()
	if fallback {
		metrics.RecordRecommendationFallback()
	}

	out := types.RecommendationResult{
		Tracks:   make([]types.Recommendation, len(ranked)),
		BasedOn:  basedOn,
		Fallback: fallback,
	}
	for i, c := range ranked {
		out.Tracks[i] = types.Recommendation{Track: c.Track, Score: c.Score}
	}
	return out, nil
}

// Track returns one catalog track.
func (s *Service) Track(ctx context.Context, trackID string) (model.Track, error) {
	return s.stores.Catalog().Get(ctx, trackID)
}

// PutTrack inserts or replaces a catalog track.
func (s *Service) PutTrack(ctx context.Context, t model.Track) error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing track id", ErrValidation)
	}
	return s.stores.Catalog().Put(ctx, t)
}

// Tracks returns one page of the catalog.
func (s *Service) Tracks(ctx context.Context, search string, page, limit int) (types.TrackPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	tracks, total, err := s.stores.Catalog().Search(ctx, search, (page-1)*limit, limit)
	if err != nil {
		return types.TrackPage{}, err
	}
	pages := (total + limit - 1) / limit
	return types.TrackPage{Tracks: tracks, Total: total, Page: page, Pages: pages, Limit: limit}, nil
}

// RatingHistory returns the most recent ledger rows for a track.
func (s *Service) RatingHistory(ctx context.Context, trackID string) ([]model.RatingEvent, error) {
	if _, err := s.stores.Catalog().Get(ctx, trackID); err != nil {
		return nil, err
	}
	return s.stores.Ledger().RecentByTrack(ctx, trackID, s.historyLimit)
}

// RatingStats aggregates a track's full rating history.
func (s *Service) RatingStats(ctx context.Context, trackID string) (types.RatingStats, error) {
	t, err := s.stores.Catalog().Get(ctx, trackID)
	if err != nil {
		return types.RatingStats{}, err
	}
	ls, err := s.stores.Ledger().StatsByTrack(ctx, trackID)
	if err != nil {
		return types.RatingStats{}, err
	}
	return types.RatingStats{
		CurrentRating: t.Rating,
		Confidence:    t.Confidence,
		TotalChanges:  ls.TotalChanges,
		BiggestGain:   ls.BiggestGain,
		BiggestLoss:   ls.BiggestLoss,
		Events: map[string]int{
			"plays":     ls.Plays,
			"skips":     ls.Skips,
			"downloads": ls.Downloads,
		},
	}, nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"chunkSize":   s.chunkSize,
	}
	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeSize"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// eventTime picks the ledger/history timestamp for an event: the client
// timestamp when given, otherwise server receive time.
func eventTime(e model.ListenEvent) time.Time {
	if !e.ClientTS.IsZero() {
		return e.ClientTS.UTC()
	}
	return time.Now().UTC()
}

// historyEntry converts an event into its user-history row. Downloads
// carry no listening position and stay out of play history; events
// without a user have nowhere to go.
func historyEntry(e model.ListenEvent) (model.PlayEntry, bool) {
	if e.UserID == "" || e.Kind == model.KindDownload {
		return model.PlayEntry{}, false
	}
	return model.PlayEntry{
		TrackID:        e.TrackID,
		PlayedAt:       eventTime(e),
		Duration:       e.Duration.Milliseconds(),
		CompletionRate: e.CompletionRate,
		Skipped:        e.Kind == model.KindSkip,
		Context:        e.Context,
	}, true
}
