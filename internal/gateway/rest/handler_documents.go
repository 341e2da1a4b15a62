package rest

import (
	"errors"
	"net/http"

	"github.com/cliniscope/cliniscope/internal/ingest"
	"github.com/cliniscope/cliniscope/internal/metrics"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// upsertRequest is one incoming document. Identity is (source, externalId);
// re-sending replaces the previous version atomically.
type upsertRequest struct {
	Source     string                 `json:"source" validate:"required,max=64"`
	ExternalID string                 `json:"externalId" validate:"required,max=128"`
	Category   string                 `json:"category" validate:"required,max=64"`
	Title      string                 `json:"title" validate:"required,max=2048"`
	Body       string                 `json:"body"`
	Score      float64                `json:"score" validate:"gte=0"`
	Attrs      map[string]interface{} `json:"attrs"`
}

func (req *upsertRequest) toDocument() *model.Document {
	return &model.Document{
		Source:     req.Source,
		ExternalID: req.ExternalID,
		Category:   req.Category,
		Title:      req.Title,
		Body:       req.Body,
		Score:      req.Score,
		Attrs:      req.Attrs,
	}
}

type upsertResponse struct {
	ID string `json:"id"`
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[upsertRequest](r)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}

	doc := req.toDocument()
	if err := h.ingest.Upsert(r.Context(), doc); err != nil {
		h.writeServiceError(w, err)
		return
	}

	metrics.ObserveIngest(doc.Category, 1)
	writeJSON(w, http.StatusOK, upsertResponse{ID: doc.ID})
}

type batchRequest struct {
	Documents []upsertRequest `json:"documents" validate:"required,min=1,dive"`
}

type batchResponse struct {
	Stored int                 `json:"stored"`
	Failed []ingest.BatchError `json:"failed,omitempty"`
}

func (h *Handler) handleUpsertBatch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[batchRequest](r)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}

	docs := make([]*model.Document, 0, len(req.Documents))
	perCategory := make(map[string]int)
	for i := range req.Documents {
		docs = append(docs, req.Documents[i].toDocument())
		perCategory[req.Documents[i].Category]++
	}

	stored, failed := h.ingest.UpsertBatch(r.Context(), docs)
	for category, n := range perCategory {
		metrics.ObserveIngest(category, n)
	}
	writeJSON(w, http.StatusOK, batchResponse{Stored: stored, Failed: failed})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	externalID := r.PathValue("externalId")

	doc, err := h.ingest.Get(r.Context(), source, externalID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// writeRequestError handles body decode and struct validation failures.
func (h *Handler) writeRequestError(w http.ResponseWriter, err error) {
	var ve ValidationErrors
	if errors.As(err, &ve) && len(ve.Errors) > 0 {
		writeJSON(w, http.StatusBadRequest, ve)
		return
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
}
