package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/appmato/gestion/internal/audit/http"
	dashboardhttp "github.com/appmato/gestion/internal/dashboard/http"
	dossiershttp "github.com/appmato/gestion/internal/dossiers/http"
	calendarhttp "github.com/appmato/gestion/internal/fiscal/http"
	"github.com/appmato/gestion/internal/observability"
	obligationshttp "github.com/appmato/gestion/internal/obligations/http"
	"github.com/appmato/gestion/internal/platform/httpx"
	vathttp "github.com/appmato/gestion/internal/vat/http"
	"github.com/appmato/gestion/jobs"
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	DossierHandler    *dossiershttp.Handler
	ObligationHandler *obligationshttp.Handler
	VATHandler        *vathttp.Handler
	DashboardHandler  *dashboardhttp.Handler
	CalendarHandler   *calendarhttp.Handler
	AuditHandler      *audithttp.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	Checks            map[string]HealthChecker
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", healthz(params.Logger, params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/dossiers", func(r chi.Router) {
			if params.DossierHandler != nil {
				params.DossierHandler.MountRoutes(r)
			}
			if params.ObligationHandler != nil {
				params.ObligationHandler.MountRoutes(r)
			}
			if params.VATHandler != nil {
				params.VATHandler.MountRoutes(r)
			}
		})
		if params.DashboardHandler != nil {
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.CalendarHandler != nil {
			r.Route("/calendar", params.CalendarHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	return r
}

func healthz(logger *slog.Logger, checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
