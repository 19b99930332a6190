package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/api/middleware"
	"github.com/imobcrm/crm-backend/internal/ingest"
	"github.com/imobcrm/crm-backend/internal/users"
	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]Pinger{"db": healthy, "redis": healthy})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", rec.Header().Get("X-CRM-Env"))

	rec = httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]Pinger{"db": healthy, "redis": down})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis")
}

type stubUsers struct{ role enums.UserRole }

func (s *stubUsers) ListBrokers(_ context.Context, role enums.UserRole) ([]users.BrokerDTO, error) {
	s.role = role
	if !role.IsSupervisor() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supervisors only")
	}
	return []users.BrokerDTO{{ID: uuid.New(), Name: "Ana"}}, nil
}

func TestListBrokers(t *testing.T) {
	svc := &stubUsers{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/brokers", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), uuid.NewString(), enums.UserRoleManager))
	rec := httptest.NewRecorder()
	ListBrokers(svc, logger.Nop())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.UserRoleManager, svc.role)
	require.Contains(t, rec.Body.String(), `"nome":"Ana"`)
}

type stubIngest struct{ input ingest.ExternalLeadInput }

func (s *stubIngest) CreateExternalLead(_ context.Context, input ingest.ExternalLeadInput) (*ingest.LeadReceipt, error) {
	s.input = input
	return &ingest.LeadReceipt{ID: uuid.New(), ExternalRef: "ext-1"}, nil
}

func TestIngestLeadIgnoresUnknownFields(t *testing.T) {
	svc := &stubIngest{}
	body := `{"nome":"Lead Facebook","telefone":"11988887777","fonte":"Facebook Ads","utm_campaign":"verao"}`
	rec := httptest.NewRecorder()
	IngestLead(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest/leads", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Facebook Ads", svc.input.Source)
	require.Contains(t, rec.Body.String(), `"idExterno":"ext-1"`)

	rec = httptest.NewRecorder()
	IngestLead(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest/leads", strings.NewReader(`{"email":"x@y.com"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
