// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// TracksHandler handles catalog reads and writes.
type TracksHandler struct {
	deps Dependencies
}

// NewTracksHandler creates a new tracks handler.
func NewTracksHandler(deps Dependencies) *TracksHandler {
	return &TracksHandler{deps: deps}
}

// HandleListTracks handles GET /tracks requests with optional search,
// page and limit query parameters.
func (h *TracksHandler) HandleListTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	limit, err := positiveInt(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := h.deps.Tracks(r.Context(), q.Get("search"), page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetTrack handles GET /tracks/{id} requests.
func (h *TracksHandler) HandleGetTrack(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Track(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandlePutTrack handles PUT /tracks/{id} requests. The path id wins over
// any id in the body.
func (h *TracksHandler) HandlePutTrack(w http.ResponseWriter, r *http.Request) {
	var t model.Track
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	t.ID = strings.TrimSpace(r.PathValue("id"))
	if t.ID == "" || strings.TrimSpace(t.Title) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing track id or title", ErrBadRequest))
		return
	}

	if err := h.deps.PutTrack(r.Context(), t); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "track_id": t.ID})
}

// HandleRatingHistory handles GET /tracks/{id}/rating/history requests.
func (h *TracksHandler) HandleRatingHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.RatingHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.RatingEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"track_id": r.PathValue("id"),
		"events":   events,
	})
}

// HandleRatingStats handles GET /tracks/{id}/rating/stats requests.
func (h *TracksHandler) HandleRatingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.RatingStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// positiveInt parses a query integer, falling back to def when absent.
func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid integer %q", ErrBadRequest, raw)
	}
	return n, nil
}
