package vathttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/export"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/vat"
)

type vatService interface {
	Year(ctx context.Context, dossierID uuid.UUID, year int) (fiscal.Dossier, fiscal.VATYear, error)
	ToggleStep(ctx context.Context, dossierID uuid.UUID, period fiscal.Period, step fiscal.Step, value *bool) (fiscal.VATRecord, error)
	Upsert(ctx context.Context, dossierID uuid.UUID, period fiscal.Period, changes fiscal.VATChanges) (fiscal.VATRecord, error)
}

// Handler exposes the VAT workflow as JSON and XLSX.
type Handler struct {
	logger    *slog.Logger
	service   vatService
	validator *httpx.Validator
	now       func() time.Time
}

// NewHandler constructs a VAT HTTP handler.
func NewHandler(logger *slog.Logger, service vatService, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator(), now: now}
}

// MountRoutes registers routes relative to /dossiers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/vat", h.year)
	r.Get("/{id}/vat/export.xlsx", h.exportYear)
	r.Put("/{id}/vat/{period}", h.upsert)
	r.Post("/{id}/vat/{period}/steps/{step}", h.toggle)
}

func (h *Handler) year(w http.ResponseWriter, r *http.Request) {
	id, year, ok := h.yearParams(w, r)
	if !ok {
		return
	}
	_, worksheet, err := h.service.Year(r.Context(), id, year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, worksheet)
}

func (h *Handler) exportYear(w http.ResponseWriter, r *http.Request) {
	id, year, ok := h.yearParams(w, r)
	if !ok {
		return
	}
	d, worksheet, err := h.service.Year(r.Context(), id, year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tva-%s-%d.xlsx", d.ID, year))
	if err := export.WriteVATYearXLSX(w, d, worksheet); err != nil {
		h.logger.Error("vat export failed", slog.String("dossier_id", id.String()), slog.Any("error", err))
	}
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	id, period, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	var in vat.UpdateInput
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
	rec, err := h.service.Upsert(r.Context(), id, period, changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, period, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	step, err := fiscal.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var in vat.ToggleInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	rec, err := h.service.ToggleStep(r.Context(), id, period, step, in.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) yearParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, 0, false
	}
	year, err := httpx.IntQuery(r, "year", h.now().Year())
	if err != nil || year < 2000 || year > 2100 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year must be between 2000 and 2100")
		return uuid.Nil, 0, false
	}
	return id, year, true
}

func (h *Handler) periodParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, fiscal.Period, bool) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, fiscal.Period{}, false
	}
	period, err := fiscal.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return uuid.Nil, fiscal.Period{}, false
	}
	return id, period, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("vat request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
