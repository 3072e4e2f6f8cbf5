// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"
	"strings"
)

// RecommendHandler handles what-to-play-next queries.
type RecommendHandler struct {
	deps Dependencies
}

// NewRecommendHandler creates a new recommendations handler.
func NewRecommendHandler(deps Dependencies) *RecommendHandler {
	return &RecommendHandler{deps: deps}
}

// HandleGetRecommendations handles GET /recommendations requests.
//
// Query parameters:
//
//	seed    - track id to bias towards (optional)
//	genre   - genre filter (optional)
//	exclude - comma-separated track ids to leave out (optional)
//	limit   - max results, capped server-side (optional)
func (h *RecommendHandler) HandleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		limit = n
	}

	var exclude []string
	if raw := q.Get("exclude"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				exclude = append(exclude, id)
			}
		}
	}

	result, err := h.deps.Recommend(r.Context(), q.Get("seed"), q.Get("genre"), exclude, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
