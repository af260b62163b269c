package dossiershttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
)

type dossierService interface {
	List(ctx context.Context, filter dossiers.ListFilter, page, perPage int) (dossiers.ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (fiscal.Dossier, error)
	Create(ctx context.Context, in dossiers.CreateInput) (fiscal.Dossier, error)
	Update(ctx context.Context, id uuid.UUID, in dossiers.UpdateInput) (fiscal.Dossier, error)
}

// Handler exposes the dossier portfolio as JSON.
type Handler struct {
	logger    *slog.Logger
	service   dossierService
	validator *httpx.Validator
}

// NewHandler constructs a dossier HTTP handler.
func NewHandler(logger *slog.Logger, service dossierService) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers routes relative to /dossiers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, page, perPage, err := parseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func parseListQuery(r *http.Request) (dossiers.ListFilter, int, int, error) {
	var filter dossiers.ListFilter
	var err error
	if filter.BranchID, err = httpx.OptionalUUIDQuery(r, "branch_id"); err != nil {
		return filter, 0, 0, err
	}
	if filter.ManagerID, err = httpx.OptionalUUIDQuery(r, "manager_id"); err != nil {
		return filter, 0, 0, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		active, perr := strconv.ParseBool(raw)
		if perr != nil {
			return filter, 0, 0, httpx.ErrValidation
		}
		filter.Active = &active
	}
	filter.Search = strings.TrimSpace(r.URL.Query().Get("q"))
	page, err := httpx.IntQuery(r, "page", 1)
	if err != nil {
		return filter, 0, 0, err
	}
	perPage, err := httpx.IntQuery(r, "per_page", 50)
	if err != nil {
		return filter, 0, 0, err
	}
	if perPage > 200 {
		perPage = 200
	}
	return filter, page, perPage, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in dossiers.CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.validator.Check(w, in) {
		return
	}
	d, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/dossiers/"+d.ID.String())
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in dossiers.UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.validator.Check(w, in) {
		return
	}
	d, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("dossier request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
