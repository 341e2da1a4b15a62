package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCapturesStatus(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareImplicitOK(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/search", normalizePath("/v1/search"))
	assert.Equal(t, "other", normalizePath("/v1/search/123"))
	assert.Equal(t, "other", normalizePath(""))
}

func TestHandlerServesScrape(t *testing.T) {
	httpRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cliniscope_http_requests_total")
}

func TestObserveHelpers(t *testing.T) {
	// Must not panic and must accept both outcomes.
	ObserveSearch(true)
	ObserveSearch(false)
	ObserveIngest("trial", 3)
}
