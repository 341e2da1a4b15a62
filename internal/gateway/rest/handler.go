// Package rest is the HTTP API: search, schema discovery and document
// ingestion. Callers are assumed already authenticated by the deployment's
// front door; no identity checks happen here.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cliniscope/cliniscope/internal/fetch"
	"github.com/cliniscope/cliniscope/internal/ingest"
	"github.com/cliniscope/cliniscope/internal/schema"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// Error codes returned in APIError bodies.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	ErrCodeStoreTimeout     = "STORE_TIMEOUT"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeSuperseded       = "SUPERSEDED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Body size limits.
const (
	defaultMaxBodySize = 1 << 20  // 1MB
	batchMaxBodySize   = 32 << 20 // 32MB for scraper batches
)

// APIError is the structured error body. No stack traces, no internals.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Handler wires the HTTP surface to the search and ingest services.
type Handler struct {
	cache    *fetch.Cache
	catalog  *schema.Service
	ingest   *ingest.Service
	sessions *sessionRegistry
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(cache *fetch.Cache, catalog *schema.Service, ingestSvc *ingest.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cache:    cache,
		catalog:  catalog,
		ingest:   ingestSvc,
		sessions: newSessionRegistry(cache),
		logger:   logger,
	}
}

// RegisterRoutes attaches the API routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/search", maxBodySize(h.handleSearch, defaultMaxBodySize))
	mux.HandleFunc("GET /v1/schema", h.handleSchema)
	mux.HandleFunc("PUT /v1/documents", maxBodySize(h.handleUpsert, defaultMaxBodySize))
	mux.HandleFunc("POST /v1/documents:batch", maxBodySize(h.handleUpsertBatch, batchMaxBodySize))
	mux.HandleFunc("GET /v1/documents/{source}/{externalId}", h.handleGet)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{Code: code, Message: message}); err != nil {
		slog.Warn("failed to encode error response", "error", err)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

// writeServiceError maps service errors onto the API taxonomy. Validation
// failures name the offending field; transient store failures signal
// retryability through the status code.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if encErr := json.NewEncoder(w).Encode(APIError{
			Code:    ErrCodeValidation,
			Message: ve.Message,
			Field:   ve.Field,
		}); encErr != nil {
			h.logger.Warn("failed to encode error response", "error", encErr)
		}
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
	case errors.Is(err, model.ErrStoreTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeStoreTimeout, "Store timed out, retry later")
	case errors.Is(err, model.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Store unavailable, retry later")
	case errors.Is(err, model.ErrCanceled):
		w.WriteHeader(499) // client closed request
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
	}
}

// maxBodySize limits the request body.
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}
