package calendarhttp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
)

// Handler exposes the filing calendar without touching stored dossiers.
type Handler struct {
	now func() time.Time
}

// NewHandler constructs a calendar HTTP handler.
func NewHandler(now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{now: now}
}

// MountRoutes registers routes relative to /calendar.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/due-date", h.dueDate)
	r.Get("/schedule", h.schedule)
}

// DueDateResponse answers a due-date query.
type DueDateResponse struct {
	Type        fiscal.ObligationType `json:"type"`
	Reporting   fiscal.Period         `json:"reporting_period"`
	Applicable  bool                  `json:"applicable"`
	DueDate     string                `json:"due_date,omitempty"`
	VisibleFrom string                `json:"visible_from,omitempty"`
	Installment fiscal.Installment    `json:"installment,omitempty"`
}

// ScheduleEntry is one obligation of a previewed schedule.
type ScheduleEntry struct {
	Type        fiscal.ObligationType `json:"type"`
	Period      fiscal.Period         `json:"period"`
	Reporting   fiscal.Period         `json:"reporting_period"`
	Installment fiscal.Installment    `json:"installment,omitempty"`
	DueDate     string                `json:"due_date"`
}

func (h *Handler) dueDate(w http.ResponseWriter, r *http.Request) {
	profile, err := parseProfile(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := fiscal.ParseObligationType(r.URL.Query().Get("type"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return
	}
	period, err := fiscal.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return
	}
	resp := DueDateResponse{Type: t, Reporting: period}
	if due, ok := fiscal.DueDate(profile, t, period); ok {
		resp.Applicable = true
		resp.DueDate = due.Format(time.DateOnly)
		resp.VisibleFrom = fiscal.VisibleFrom(t, due).Format(time.DateOnly)
		if t == fiscal.TypeCorporateTax {
			resp.Installment, _ = fiscal.InstallmentFor(period)
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	profile, err := parseProfile(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := httpx.IntQuery(r, "year", h.now().Year())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if year < 2000 || year > 2100 {
		httpx.RespondError(w, fmt.Errorf("%w: year out of range", httpx.ErrValidation))
		return
	}
	seeds := fiscal.Schedule(fiscal.Dossier{Regime: profile.Regime, VATMode: profile.VATMode, VATDueDay: profile.VATDueDay}, year)
	out := make([]ScheduleEntry, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, ScheduleEntry{
			Type:        s.Type,
			Period:      s.Period,
			Reporting:   s.Reporting,
			Installment: s.Installment,
			DueDate:     s.DueDate.Format(time.DateOnly),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "items": out})
}

func parseProfile(r *http.Request) (fiscal.Profile, error) {
	q := r.URL.Query()
	profile := fiscal.Profile{
		Regime:  fiscal.Regime(strings.ToUpper(strings.TrimSpace(q.Get("regime")))),
		VATMode: fiscal.VATMode(strings.ToLower(strings.TrimSpace(q.Get("vat_mode")))).Normalize(),
	}
	if profile.Regime != "" && !profile.Regime.Valid() {
		return fiscal.Profile{}, fmt.Errorf("%w: unknown regime %q", httpx.ErrValidation, profile.Regime)
	}
	day, err := httpx.IntQuery(r, "vat_due_day", fiscal.DefaultVATDueDay)
	if err != nil {
		return fiscal.Profile{}, err
	}
	profile.VATDueDay = day
	return profile, nil
}
