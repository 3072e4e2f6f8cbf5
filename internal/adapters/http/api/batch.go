// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harmonia-fm/harmonia/internal/app"
	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// batchRequest mirrors the OpenAPI schema for POST /events/batch.
type batchRequest struct {
	Events []eventRequest `json:"events"`
}

// BatchHandler handles chunked batch submissions.
type BatchHandler struct {
	deps Dependencies
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(deps Dependencies) *BatchHandler {
	return &BatchHandler{deps: deps}
}

// HandlePostBatch handles POST /events/batch requests. The submission is
// processed synchronously chunk by chunk; per-item failures come back
// itemized in the result rather than failing the whole request.
func (h *BatchHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: empty events array", ErrBadRequest))
		return
	}

	// Items are converted leniently: a bad event_type or timestamp is
	// itemized per index by the processor instead of failing the request.
	events := make([]model.ListenEvent, len(req.Events))
	for i, item := range req.Events {
		events[i] = item.toEventLenient()
	}

	result, err := h.deps.ProcessBatch(r.Context(), events)
	if err != nil {
		if errors.Is(err, app.ErrExhausted) {
			// The itemized result still describes what failed.
			writeJSON(w, http.StatusServiceUnavailable, result)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// toEventLenient converts without rejecting: an unknown event type is kept
// raw so downstream validation can itemize it, and an unparsable timestamp
// falls back to server receive time.
func (e eventRequest) toEventLenient() model.ListenEvent {
	ev := model.ListenEvent{
		EventID:        strings.TrimSpace(e.EventID),
		TrackID:        strings.TrimSpace(e.TrackID),
		UserID:         strings.TrimSpace(e.UserID),
		Kind:           model.EventKind(strings.ToLower(strings.TrimSpace(e.EventType))),
		Duration:       time.Duration(e.DurationMS) * time.Millisecond,
		CompletionRate: e.CompletionRate,
		Context:        model.PlayContext{Source: e.Source, SourceID: e.SourceID},
	}
	if ts, err := time.Parse(time.RFC3339, e.TS); err == nil {
		ev.ClientTS = ts
	}
	return ev
}
