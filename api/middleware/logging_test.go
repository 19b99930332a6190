package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRequestIDPropagatesOrMints(t *testing.T) {
	handler := RequestID(logger.Nop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	require.Equal(t, "abc-123", serve(handler, req).Header().Get("X-Request-Id"))

	minted := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil)).Header().Get("X-Request-Id")
	require.Len(t, minted, 36)
}

func TestRecovererReturnsInternalError(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m), Logging(logger.Nop()))
	r.Get("/api/v1/clients/{clientId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clients/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clients/2", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		require.EqualValues(t, 2, mf.GetMetric()[0].GetCounter().GetValue())
		for _, label := range mf.GetMetric()[0].GetLabel() {
			if label.GetName() == "path" {
				require.Equal(t, "/api/v1/clients/{clientId}", label.GetValue())
			}
		}
	}
	require.True(t, found)
}
