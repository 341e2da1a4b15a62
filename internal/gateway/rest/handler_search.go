package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cliniscope/cliniscope/internal/fetch"
	"github.com/cliniscope/cliniscope/internal/metrics"
	"github.com/cliniscope/cliniscope/pkg/model"
)

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q model.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// Requests tagged with a session id are serialized last-request-wins
	// on that session; untagged ones go straight to the shared cache.
	fetchFn := h.cache.Fetch
	if sid := r.Header.Get(SessionHeader); sid != "" {
		fetchFn = h.sessions.get(sid).Fetch
	}

	resp, err := fetchFn(r.Context(), q)
	if errors.Is(err, fetch.ErrSuperseded) {
		writeError(w, http.StatusConflict, ErrCodeSuperseded, "Superseded by a newer query")
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	metrics.ObserveSearch(resp.FromCache)
	writeJSON(w, http.StatusOK, resp)
}
