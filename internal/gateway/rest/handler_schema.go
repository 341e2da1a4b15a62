package rest

import (
	"net/http"

	"github.com/gorilla/schema"

	catalog "github.com/cliniscope/cliniscope/internal/schema"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// schemaRequest is decoded from the query string.
type schemaRequest struct {
	Category string `schema:"category"`
}

// schemaResponse is the discoverable field catalog: descriptors grouped by
// UI label plus the global operator table.
type schemaResponse struct {
	Category  string                               `json:"category,omitempty"`
	Groups    map[string][]catalog.FieldDescriptor `json:"groups"`
	Operators map[model.FieldKind][]model.FilterOp `json:"operators"`
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&req, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}

	fields, err := h.catalog.Describe(r.Context(), req.Category)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	groups := make(map[string][]catalog.FieldDescriptor)
	for _, fd := range fields {
		groups[fd.Group] = append(groups[fd.Group], fd)
	}

	writeJSON(w, http.StatusOK, schemaResponse{
		Category:  req.Category,
		Groups:    groups,
		Operators: catalog.OperatorTable(),
	})
}
