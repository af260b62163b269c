package obligationshttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/obligations"
	"github.com/appmato/gestion/internal/platform/httpx"
)

type obligationService interface {
	ListForDossier(ctx context.Context, dossierID uuid.UUID, year int) (obligations.Detail, error)
	Upsert(ctx context.Context, key fiscal.ObligationKey, changes fiscal.ObligationChanges) (fiscal.Obligation, error)
	GenerateYear(ctx context.Context, year int, dossierID uuid.NullUUID) (obligations.GenerateResult, error)
}

// Handler exposes dossier obligations as JSON.
type Handler struct {
	logger    *slog.Logger
	service   obligationService
	validator *httpx.Validator
	now       func() time.Time
}

// NewHandler constructs an obligation HTTP handler. now supplies the default
// year when none is requested.
func NewHandler(logger *slog.Logger, service obligationService, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator(), now: now}
}

// MountRoutes registers routes relative to /dossiers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/obligations", h.list)
	r.Post("/{id}/obligations/generate", h.generate)
	r.Put("/{id}/obligations/{type}/{period}", h.upsert)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := h.year(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.ListForDossier(r.Context(), id, year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := fiscal.ParseObligationType(chi.URLParam(r, "type"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := fiscal.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var in obligations.UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.validator.Check(w, in) {
		return
	}
	changes, err := in.Changes()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Upsert(r.Context(), fiscal.ObligationKey{DossierID: id, Type: t, Period: period}, changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := h.year(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.GenerateYear(r.Context(), year, uuid.NullUUID{UUID: id, Valid: true})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) year(r *http.Request) (int, error) {
	year, err := httpx.IntQuery(r, "year", h.now().Year())
	if err != nil {
		return 0, err
	}
	if year < 2000 || year > 2100 {
		return 0, httpx.ErrValidation
	}
	return year, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("obligation request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
