package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/internal/bi"
	"github.com/imobcrm/crm-backend/internal/ingest"
	"github.com/imobcrm/crm-backend/internal/users"
	pkgAuth "github.com/imobcrm/crm-backend/pkg/auth"
	"github.com/imobcrm/crm-backend/pkg/auth/session"
	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubBI struct{}

func (stubBI) KPIs(context.Context, bi.Query) (*bi.KPIs, error)     { return &bi.KPIs{}, nil }
func (stubBI) Funnel(context.Context, bi.Query) (*bi.Funnel, error) { return &bi.Funnel{}, nil }
func (stubBI) ConversionSeries(context.Context, bi.Query) ([]bi.SeriesPoint, error) {
	return []bi.SeriesPoint{}, nil
}

type stubUsers struct{}

func (stubUsers) ListBrokers(_ context.Context, role enums.UserRole) ([]users.BrokerDTO, error) {
	if !role.IsSupervisor() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supervisors only")
	}
	return []users.BrokerDTO{}, nil
}

type stubIngest struct{}

func (stubIngest) CreateExternalLead(context.Context, ingest.ExternalLeadInput) (*ingest.LeadReceipt, error) {
	return &ingest.LeadReceipt{ID: uuid.New(), ExternalRef: "ext-1"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Env: "test", CORSOrigins: "*"},
		JWT:    config.JWTConfig{Secret: "secret", Issuer: "crm", ExpirationMinutes: 60},
		Ingest: config.IngestConfig{APIKey: "ingest-key"},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	return NewRouter(cfg, logger.Nop(), Dependencies{
		DB:            stubPinger{},
		Sessions:      stubSessions{},
		IngestService: stubIngest{},
		UserService:   stubUsers{},
		BIService:     stubBI{},
		HTTPMetrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:      reg,
	}), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func request(h http.Handler, method, target, auth string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(`{"nome":"Lead"}`))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h, _ := newTestRouter(t)
	require.Equal(t, http.StatusOK, request(h, http.MethodGet, "/health/live", "").Code)
	require.Equal(t, http.StatusOK, request(h, http.MethodGet, "/health/ready", "").Code)

	rec := request(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	h, _ := newTestRouter(t)
	for _, target := range []string{"/api/v1/clients", "/api/v1/leads/pool", "/api/v1/brokers", "/api/v1/bi/kpis"} {
		require.Equal(t, http.StatusUnauthorized, request(h, http.MethodGet, target, "").Code, target)
	}
}

func TestBrokersRequireSupervisor(t *testing.T) {
	h, cfg := newTestRouter(t)
	require.Equal(t, http.StatusForbidden, request(h, http.MethodGet, "/api/v1/brokers", bearer(t, cfg, enums.UserRoleUser)).Code)
	require.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/brokers", bearer(t, cfg, enums.UserRoleManager)).Code)
}

func TestAssignRequiresSupervisor(t *testing.T) {
	h, cfg := newTestRouter(t)
	target := "/api/v1/leads/" + uuid.NewString() + "/assign"
	require.Equal(t, http.StatusForbidden, request(h, http.MethodPost, target, bearer(t, cfg, enums.UserRoleUser)).Code)
}

func TestBIRoutes(t *testing.T) {
	h, cfg := newTestRouter(t)
	token := bearer(t, cfg, enums.UserRoleUser)
	for _, path := range []string{"kpis", "funnel", "conversion-series"} {
		require.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/bi/"+path+"?startDate=2025-03-01&endDate=2025-03-31", token).Code, path)
		require.Equal(t, http.StatusBadRequest, request(h, http.MethodGet, "/api/v1/bi/"+path, token).Code, path)
	}
}

func TestIngestRequiresAPIKey(t *testing.T) {
	h, _ := newTestRouter(t)
	require.Equal(t, http.StatusUnauthorized, request(h, http.MethodPost, "/api/v1/ingest/leads", "").Code)
	require.Equal(t, http.StatusCreated, request(h, http.MethodPost, "/api/v1/ingest/leads", "", "x-api-key", "ingest-key").Code)
}

func TestCORSWildcard(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := request(h, http.MethodGet, "/health/live", "", "Origin", "https://painel.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
