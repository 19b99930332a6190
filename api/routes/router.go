package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imobcrm/crm-backend/api/controllers"
	authcontrollers "github.com/imobcrm/crm-backend/api/controllers/auth"
	bicontrollers "github.com/imobcrm/crm-backend/api/controllers/bi"
	clientcontrollers "github.com/imobcrm/crm-backend/api/controllers/clients"
	"github.com/imobcrm/crm-backend/api/middleware"
	"github.com/imobcrm/crm-backend/internal/auth"
	"github.com/imobcrm/crm-backend/internal/bi"
	"github.com/imobcrm/crm-backend/internal/clients"
	"github.com/imobcrm/crm-backend/internal/ingest"
	"github.com/imobcrm/crm-backend/internal/users"
	"github.com/imobcrm/crm-backend/pkg/auth/session"
	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/metrics"
	"github.com/imobcrm/crm-backend/pkg/redis"
)

// Dependencies is everything the router wires into handlers.
type Dependencies struct {
	DB              controllers.Pinger
	Redis           *redis.Client
	Sessions        session.AccessSessionChecker
	AuthService     auth.Service
	RegisterService auth.RegisterService
	ClientService   clients.Service
	IngestService   ingest.Service
	UserService     users.Service
	BIService       bi.Service
	HTTPMetrics     *metrics.HTTPMetrics
	Gatherer        prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	// A nil *redis.Client must not become a non-nil interface.
	var limiter middleware.WindowLimiter
	var redisPinger controllers.Pinger
	if deps.Redis != nil {
		limiter = deps.Redis
		redisPinger = deps.Redis
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	ingestPolicy := middleware.APIKeyPolicy{
		Key:    cfg.Ingest.APIKey,
		Limit:  cfg.Ingest.RateLimit,
		Window: cfg.Ingest.RateWindow,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": redisPinger,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", authcontrollers.AuthLogin(deps.AuthService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg)).Post("/register", authcontrollers.AuthRegister(deps.RegisterService, deps.AuthService, logg))
		r.Post("/refresh", authcontrollers.AuthRefresh(deps.AuthService, logg))
		r.Post("/logout", authcontrollers.AuthLogout(deps.AuthService, logg))
	})

	r.With(middleware.APIKey(ingestPolicy, limiter, logg)).
		Post("/api/v1/ingest/leads", controllers.IngestLead(deps.IngestService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", clientcontrollers.List(deps.ClientService, logg))
			r.Post("/", clientcontrollers.Create(deps.ClientService, logg))
			r.Post("/bulk-import", clientcontrollers.BulkImport(deps.ClientService, logg))
			r.Route("/{clientId}", func(r chi.Router) {
				r.Get("/", clientcontrollers.Get(deps.ClientService, logg))
				r.Put("/", clientcontrollers.Update(deps.ClientService, logg))
				r.Delete("/", clientcontrollers.Delete(deps.ClientService, logg))
				r.Post("/events", clientcontrollers.AppendEvent(deps.ClientService, logg))
				r.Patch("/status", clientcontrollers.ChangeStatus(deps.ClientService, logg))
			})
		})

		r.Route("/leads", func(r chi.Router) {
			r.Get("/pool", clientcontrollers.LeadPool(deps.ClientService, logg))
			r.With(middleware.RequireAnyRole(logg, enums.UserRoleAdmin, enums.UserRoleManager)).
				Post("/{clientId}/assign", clientcontrollers.AssignLead(deps.ClientService, logg))
			r.Post("/{clientId}/archive", clientcontrollers.ArchiveLead(deps.ClientService, logg))
		})

		r.With(middleware.RequireAnyRole(logg, enums.UserRoleAdmin, enums.UserRoleManager)).
			Get("/brokers", controllers.ListBrokers(deps.UserService, logg))

		r.Route("/bi", func(r chi.Router) {
			r.Get("/kpis", bicontrollers.KPIs(deps.BIService, logg))
			r.Get("/funnel", bicontrollers.Funnel(deps.BIService, logg))
			r.Get("/conversion-series", bicontrollers.ConversionSeries(deps.BIService, logg))
		})
	})

	return r
}
