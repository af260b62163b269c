package dashboardhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/appmato/gestion/internal/dashboard"
	"github.com/appmato/gestion/internal/export"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
)

type dashboardService interface {
	Snapshot(ctx context.Context, filter dashboard.Filter) (dashboard.Snapshot, error)
	Matrix(ctx context.Context, filter dashboard.Filter, t fiscal.ObligationType) (dashboard.MatrixView, error)
}

// Handler serves the firm dashboard and its exports.
type Handler struct {
	logger  *slog.Logger
	service dashboardService
}

// NewHandler constructs a dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service dashboardService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes relative to /dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.snapshot)
	r.Get("/late.csv", h.lateCSV)
	r.Get("/matrix", h.matrix)
	r.Get("/matrix.csv", h.matrixCSV)
	r.Get("/matrix.xlsx", h.matrixXLSX)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Snapshot(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) lateCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Snapshot(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeCSV)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=retards-%s.csv", snap.Today.Format("2006-01-02")))
	if err := export.WriteLateCSV(w, snap.Late.Items); err != nil {
		h.logger.Error("late export failed", slog.Any("error", err))
	}
}

func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadMatrix(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) matrixCSV(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadMatrix(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeCSV)
	w.Header().Set("Content-Disposition", "attachment; filename="+matrixFilename(view, "csv"))
	if err := export.WriteMatrixCSV(w, view.Matrix); err != nil {
		h.logger.Error("matrix export failed", slog.String("format", "csv"), slog.Any("error", err))
	}
}

func (h *Handler) matrixXLSX(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadMatrix(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", "attachment; filename="+matrixFilename(view, "xlsx"))
	if err := export.WriteMatrixXLSX(w, view.Matrix); err != nil {
		h.logger.Error("matrix export failed", slog.String("format", "xlsx"), slog.Any("error", err))
	}
}

func (h *Handler) loadMatrix(w http.ResponseWriter, r *http.Request) (dashboard.MatrixView, bool) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return dashboard.MatrixView{}, false
	}
	t := fiscal.TypeVAT
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err = fiscal.ParseObligationType(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return dashboard.MatrixView{}, false
		}
	}
	view, err := h.service.Matrix(r.Context(), filter, t)
	if err != nil {
		h.fail(w, r, err)
		return dashboard.MatrixView{}, false
	}
	return view, true
}

func parseFilter(r *http.Request) (dashboard.Filter, error) {
	branch, err := httpx.OptionalUUIDQuery(r, "branch_id")
	if err != nil {
		return dashboard.Filter{}, err
	}
	return dashboard.Filter{BranchID: branch}, nil
}

func matrixFilename(view dashboard.MatrixView, ext string) string {
	return fmt.Sprintf("echeancier-%s-%s.%s", strings.ToLower(string(view.Type)), view.Today.Format("2006-01-02"), ext)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("dashboard request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
