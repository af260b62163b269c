package audithttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/appmato/gestion/internal/audit"
	"github.com/appmato/gestion/internal/export"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/shared"
)

const (
	defaultRange = 7 * 24 * time.Hour
	maxRange     = 90 * 24 * time.Hour

	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

type timelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Entry, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service timelineService
	now     func() time.Time
}

// NewHandler constructs an audit timeline handler.
func NewHandler(logger *slog.Logger, service timelineService, now func() time.Time) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, service: service, now: now}
}

// MountRoutes registers routes relative to /audit. Exports are rate limited
// per actor, falling back to the client IP.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(exportRateLimit, exportRateWindow, httprate.WithKeyFuncs(rateLimitKey)))
		gr.Get("/export.csv", h.exportCSV)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor.Valid {
		return "actor:" + actor.UUID.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteAuditCSV(&buf, entries); err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeCSV)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+fiscal.FormatDate(filters.To.AddDate(0, 0, -1))+".csv"))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	to := fiscal.Day(h.now()).AddDate(0, 0, 1)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := fiscal.ParseDate(raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("%w: to: %w", httpx.ErrValidation, err)
		}
		to = d.AddDate(0, 0, 1)
	}
	from := to.Add(-defaultRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := fiscal.ParseDate(raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("%w: from: %w", httpx.ErrValidation, err)
		}
		from = d
	}
	if !from.Before(to) {
		return audit.TimelineFilters{}, fmt.Errorf("%w: from must precede to", httpx.ErrValidation)
	}
	if to.Sub(from) > maxRange {
		return audit.TimelineFilters{}, fmt.Errorf("%w: range exceeds 90 days", httpx.ErrValidation)
	}
	actor, err := httpx.OptionalUUIDQuery(r, "actor_id")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	page, err := httpx.IntQuery(r, "page", 1)
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	pageSize, err := httpx.IntQuery(r, "page_size", 0)
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	return audit.TimelineFilters{
		From:     from,
		To:       to,
		ActorID:  actor,
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}
