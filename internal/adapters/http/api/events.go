// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// EventsHandler handles listening-event submissions, both the
// fire-and-forget async path and the synchronous per-track endpoints.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests. Events are acknowledged
// and applied asynchronously; duplicates (by event_id) are acknowledged
// without reprocessing.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.Enqueue(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: ev.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ev.EventID, Duplicate: false})
}

// HandlePlay handles POST /tracks/{id}/play requests.
func (h *EventsHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, model.KindPlay)
}

// HandleSkip handles POST /tracks/{id}/skip requests.
func (h *EventsHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, model.KindSkip)
}

// HandleDownload handles POST /tracks/{id}/download requests.
func (h *EventsHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, model.KindDownload)
}

// apply runs the synchronous single-event path and returns the updated
// rating in the response body.
func (h *EventsHandler) apply(w http.ResponseWriter, r *http.Request, kind model.EventKind) {
	trackID := strings.TrimSpace(r.PathValue("id"))
	if trackID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing track id", ErrBadRequest))
		return
	}

	update, err := h.deps.Apply(r.Context(), trackID, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}
