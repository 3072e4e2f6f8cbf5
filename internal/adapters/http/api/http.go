// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/internal/app"
	"github.com/harmonia-fm/harmonia/internal/domain/model"
	"github.com/harmonia-fm/harmonia/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the application service.
type Dependencies interface {
	// Apply runs the synchronous single-event rating update.
	Apply(ctx context.Context, trackID string, kind model.EventKind) (types.RatingUpdate, error)

	// Enqueue pushes an event for async processing.
	Enqueue(ctx context.Context, e model.ListenEvent) (duplicate bool, err error)

	// ProcessBatch runs a chunked batch submission to completion.
	ProcessBatch(ctx context.Context, events []model.ListenEvent) (types.BatchResult, error)

	// Recommend answers the what-to-play-next query.
	Recommend(ctx context.Context, seedID, genre string, excludeIDs []string, limit int) (types.RecommendationResult, error)

	// Catalog reads and writes.
	Track(ctx context.Context, trackID string) (model.Track, error)
	PutTrack(ctx context.Context, t model.Track) error
	Tracks(ctx context.Context, search string, page, limit int) (types.TrackPage, error)

	// Ledger reads.
	RatingHistory(ctx context.Context, trackID string) ([]model.RatingEvent, error)
	RatingStats(ctx context.Context, trackID string) (types.RatingStats, error)

	// Stats exposes service-level counters for GET /stats.
	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	eventsHandler    *EventsHandler
	batchHandler     *BatchHandler
	recommendHandler *RecommendHandler
	tracksHandler    *TracksHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		eventsHandler:    NewEventsHandler(deps),
		batchHandler:     NewBatchHandler(deps),
		recommendHandler: NewRecommendHandler(deps),
		tracksHandler:    NewTracksHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("POST /events/batch", MetricsMiddleware(s.batchHandler.HandlePostBatch, "events_batch"))
	mux.HandleFunc("POST /tracks/{id}/play", MetricsMiddleware(s.eventsHandler.HandlePlay, "track_play"))
	mux.HandleFunc("POST /tracks/{id}/skip", MetricsMiddleware(s.eventsHandler.HandleSkip, "track_skip"))
	mux.HandleFunc("POST /tracks/{id}/download", MetricsMiddleware(s.eventsHandler.HandleDownload, "track_download"))

	mux.HandleFunc("GET /recommendations", MetricsMiddleware(s.recommendHandler.HandleGetRecommendations, "recommendations"))

	mux.HandleFunc("GET /tracks", MetricsMiddleware(s.tracksHandler.HandleListTracks, "tracks"))
	mux.HandleFunc("PUT /tracks/{id}", MetricsMiddleware(s.tracksHandler.HandlePutTrack, "track_put"))
	mux.HandleFunc("GET /tracks/{id}", MetricsMiddleware(s.tracksHandler.HandleGetTrack, "track_get"))
	mux.HandleFunc("GET /tracks/{id}/rating/history", MetricsMiddleware(s.tracksHandler.HandleRatingHistory, "rating_history"))
	mux.HandleFunc("GET /tracks/{id}/rating/stats", MetricsMiddleware(s.tracksHandler.HandleRatingStats, "rating_stats"))
}

// eventRequest mirrors the OpenAPI schema for POST /events and the items
// of POST /events/batch.
type eventRequest struct {
	EventID        string  `json:"event_id"`
	TrackID        string  `json:"track_id"`
	UserID         string  `json:"user_id"`
	EventType      string  `json:"event_type"`
	TS             string  `json:"ts"`
	DurationMS     int64   `json:"duration_ms"`
	CompletionRate float64 `json:"completion_rate"`
	Source         string  `json:"source"`
	SourceID       string  `json:"source_id"`
}

// toEvent converts the wire shape into the domain event. The event type
// and timestamp are parsed; validation of the rest happens downstream.
func (e eventRequest) toEvent() (model.ListenEvent, error) {
	kind, err := model.ParseEventKind(e.EventType)
	if err != nil {
		return model.ListenEvent{}, err
	}
	ev := model.ListenEvent{
		EventID:        strings.TrimSpace(e.EventID),
		TrackID:        strings.TrimSpace(e.TrackID),
		UserID:         strings.TrimSpace(e.UserID),
		Kind:           kind,
		Duration:       time.Duration(e.DurationMS) * time.Millisecond,
		CompletionRate: e.CompletionRate,
		Context:        model.PlayContext{Source: e.Source, SourceID: e.SourceID},
	}
	if e.TS != "" {
		ts, err := time.Parse(time.RFC3339, e.TS)
		if err != nil {
			return model.ListenEvent{}, errors.New("invalid ts; must be RFC3339")
		}
		ev.ClientTS = ts
	}
	return ev, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates application and repository sentinels into
// HTTP status codes. Anything unrecognized is a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, app.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, app.ErrExhausted), errors.Is(err, repository.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeJSON decodes the request body, rejecting unknown garbage early.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}
