package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appmato/gestion/internal/app"
	"github.com/appmato/gestion/internal/dashboard"
	dashboardhttp "github.com/appmato/gestion/internal/dashboard/http"
	"github.com/appmato/gestion/internal/dossiers"
	dossiershttp "github.com/appmato/gestion/internal/dossiers/http"
	"github.com/appmato/gestion/internal/fiscal"
	jobmetrics "github.com/appmato/gestion/internal/jobs"
	"github.com/appmato/gestion/internal/obligations"
	obligationshttp "github.com/appmato/gestion/internal/obligations/http"
	"github.com/appmato/gestion/internal/observability"
	"github.com/appmato/gestion/internal/platform/cache"
	"github.com/appmato/gestion/internal/shared"
	"github.com/appmato/gestion/jobs"
)

type stack struct {
	router      http.Handler
	redis       *redis.Client
	obligations *obligations.Service
	store       *obligationStore
	now         func() time.Time
	logger      *slog.Logger
}

func newStack(t *testing.T, today time.Time) *stack {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return today }

	dossierStore := newDossierStore()
	obligationStore := newObligationStore(dossierStore)
	dossierService := dossiers.NewService(dossierStore, shared.NopAudit{}, logger)
	obligationService := obligations.NewService(obligationStore, dossierService, shared.NopAudit{}, logger)
	dashboardService := dashboard.NewService(dossierService, obligationService, dashboard.NewCache(client, time.Hour), logger)
	dossierService.WithNow(now)
	dossierService.WithScheduler(obligationService)
	dossierService.WithInvalidator(dashboardService)
	obligationService.WithNow(now)
	obligationService.WithInvalidator(dashboardService)
	dashboardService.WithNow(now)

	metrics := observability.NewMetrics()
	dashboardService.WithObserver(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            &app.Config{AppEnv: "test", RateLimitPerMin: 1000},
		DossierHandler:    dossiershttp.NewHandler(logger, dossierService),
		ObligationHandler: obligationshttp.NewHandler(logger, obligationService, now),
		DashboardHandler:  dashboardhttp.NewHandler(logger, dashboardService),
		Metrics:           metrics,
	})
	return &stack{
		router:      router,
		redis:       client,
		obligations: obligationService,
		store:       obligationStore,
		now:         now,
		logger:      logger,
	}
}

func (s *stack) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(app.ActorHeader, "6f1c8c4e-3d2a-4f7e-9a43-0b1d2c3e4f50")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestDossierCreationFeedsDashboard(t *testing.T) {
	today := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)
	s := newStack(t, today)
	branch := uuid.New()

	var created fiscal.Dossier
	code := s.do(t, http.MethodPost, "/api/dossiers", map[string]any{
		"branch_id":   branch,
		"code":        "ATL",
		"name":        "Atelier Dupont",
		"legal_form":  "SAS",
		"regime":      "IS",
		"vat_mode":    "mensuel",
		"vat_due_day": 19,
	}, &created)
	require.Equal(t, http.StatusCreated, code)

	var detail struct {
		Obligations []json.RawMessage `json:"obligations"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/dossiers/"+created.ID.String()+"/obligations?year=2025", nil, &detail))
	assert.NotEmpty(t, detail.Obligations)

	var snap dashboard.Snapshot
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/dashboard", nil, &snap))
	assert.Equal(t, 1, snap.Stats.ActiveDossiers)
	require.Equal(t, 1, snap.Late.Total, "January VAT due February 19 is late")
	assert.Equal(t, fiscal.TypeVAT, snap.Late.Items[0].Type)
	assert.Equal(t, "Atelier Dupont", snap.Late.Items[0].DossierName)
	require.Equal(t, 1, snap.NearTerm.Total, "first corporate tax installment due March 15")
	assert.Equal(t, fiscal.TypeCorporateTax, snap.NearTerm.Items[0].Type)

	versionBefore, err := s.redis.Get(context.Background(), "dashboard:version:all").Int64()
	require.NoError(t, err)

	var updated fiscal.Obligation
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut,
		"/api/dossiers/"+created.ID.String()+"/obligations/TVA/2025-02", map[string]any{"status": "fait"}, &updated))
	assert.Equal(t, fiscal.StatusDone, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedBy.Valid)

	versionAfter, err := s.redis.Get(context.Background(), "dashboard:version:all").Int64()
	require.NoError(t, err)
	assert.Greater(t, versionAfter, versionBefore)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/dashboard?branch_id="+branch.String(), nil, &snap))
	assert.Zero(t, snap.Late.Total)
	assert.Zero(t, snap.Stats.Late)
	require.Len(t, snap.Portfolio, 1)
	assert.False(t, snap.Portfolio[0].HasLate)
}

func TestGenerateJobSeedsNextYearOnce(t *testing.T) {
	today := time.Date(2025, time.December, 1, 3, 0, 0, 0, time.UTC)
	s := newStack(t, today)

	var created fiscal.Dossier
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/dossiers", map[string]any{
		"branch_id":  uuid.New(),
		"name":       "Boulangerie Martin",
		"legal_form": "SARL",
		"regime":     "IR",
		"vat_mode":   "trimestriel",
	}, &created))

	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := jobs.NewGenerateJob(s.obligations, cache.NewLocker(s.redis), s.logger, metrics, s.now)
	task, err := jobs.NewGenerateTask(jobs.GeneratePayload{})
	require.NoError(t, err)

	// December creation already seeded next year, so the job only confirms it.
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1.0, counterSum(t, reg, "appmato_jobs_total"))
	assert.Zero(t, counterSum(t, reg, "appmato_obligations_generated_total"))

	rows, err := s.store.ListForYear(context.Background(), created.ID, 2026)
	require.NoError(t, err)
	assert.Len(t, rows, len(fiscal.Schedule(created, 2026)))
}

func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
