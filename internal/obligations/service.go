package obligations

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/shared"
)

// Store is the persistence required by the Service.
type Store interface {
	ListForYear(ctx context.Context, dossierID uuid.UUID, year int) ([]fiscal.Obligation, error)
	List(ctx context.Context, filter Filter) ([]fiscal.Obligation, error)
	GetByKey(ctx context.Context, key fiscal.ObligationKey) (fiscal.Obligation, error)
	Upsert(ctx context.Context, o fiscal.Obligation) (fiscal.Obligation, error)
	InsertMissing(ctx context.Context, seeds []fiscal.Seed, now time.Time) (int, error)
}

// DossierSource resolves the dossiers obligations belong to.
type DossierSource interface {
	Get(ctx context.Context, id uuid.UUID) (fiscal.Dossier, error)
	All(ctx context.Context, filter dossiers.ListFilter) ([]fiscal.Dossier, error)
}

// Service tracks obligation instances and their status.
type Service struct {
	store    Store
	dossiers DossierSource
	audit    shared.AuditRecorder
	cache    dossiers.Invalidator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, source DossierSource, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, dossiers: source, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithInvalidator registers the dashboard cache to bump after writes.
func (s *Service) WithInvalidator(cache dossiers.Invalidator) {
	s.cache = cache
}

// ListForDossier builds the detail view of a dossier's year: visible
// obligations classified with the detail threshold, the full worksheet and
// amount totals.
func (s *Service) ListForDossier(ctx context.Context, dossierID uuid.UUID, year int) (Detail, error) {
	d, err := s.dossiers.Get(ctx, dossierID)
	if err != nil {
		return Detail{}, err
	}
	all, err := s.store.ListForYear(ctx, dossierID, year)
	if err != nil {
		return Detail{}, err
	}
	today := fiscal.Day(s.now())
	visible, issues := fiscal.FilterVisible(all, today)
	s.logIssues(issues)

	annotated := fiscal.Annotate(visible, today, fiscal.DetailUrgentDays)
	for i := range annotated {
		annotated[i].DossierName = d.Name
	}
	return Detail{
		Dossier:     d,
		Year:        year,
		Today:       fiscal.FormatDate(today),
		Obligations: annotated,
		Totals:      fiscal.ObligationTotals(all),
		Worksheet:   BuildWorksheet(year, all, today),
		Issues:      issues,
	}, nil
}

// List returns obligations for aggregate views.
func (s *Service) List(ctx context.Context, filter Filter) ([]fiscal.Obligation, error) {
	return s.store.List(ctx, filter)
}

// Upsert merges changes into the obligation identified by key, creating it
// when absent. A new obligation without an explicit due date takes the one
// the calendar assigns to the key.
func (s *Service) Upsert(ctx context.Context, key fiscal.ObligationKey, changes fiscal.ObligationChanges) (fiscal.Obligation, error) {
	d, err := s.dossiers.Get(ctx, key.DossierID)
	if err != nil {
		return fiscal.Obligation{}, err
	}
	o, err := s.store.GetByKey(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		o, err = s.newObligation(d, key, changes)
		if err != nil {
			return fiscal.Obligation{}, err
		}
	case err != nil:
		return fiscal.Obligation{}, err
	}

	now := s.now().UTC()
	o.Apply(changes, shared.ActorFromContext(ctx), now)
	o.UpdatedAt = now
	saved, err := s.store.Upsert(ctx, o)
	if err != nil {
		return fiscal.Obligation{}, err
	}

	meta := map[string]any{"type": saved.Type, "period": saved.Key().Period.String(), "status": saved.Status}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "obligation.upsert",
		Entity:   "obligation",
		EntityID: saved.ID.String(),
		Meta:     meta,
		At:       now,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("obligation_id", saved.ID.String()), slog.Any("error", err))
	}
	s.invalidate(ctx, d.BranchID)
	return saved, nil
}

func (s *Service) newObligation(d fiscal.Dossier, key fiscal.ObligationKey, changes fiscal.ObligationChanges) (fiscal.Obligation, error) {
	o := fiscal.Obligation{
		DossierID: key.DossierID,
		Type:      key.Type,
		Period:    key.Period,
		Status:    fiscal.StatusTodo,
	}
	if key.Type == fiscal.TypeCorporateTax {
		o.Installment, _ = fiscal.InstallmentFor(fiscal.ReportingPeriod(key.Type, key.Period))
	}
	if changes.DueDate != nil {
		return o, nil
	}
	due, ok := fiscal.DueDateForKey(d.Profile(), key.Type, key.Period)
	if !ok {
		return fiscal.Obligation{}, ErrNotApplicable
	}
	o.DueDate = due
	return o, nil
}

// SeedDossier inserts the year's schedule of a dossier, keeping any
// obligation already tracked.
func (s *Service) SeedDossier(ctx context.Context, d fiscal.Dossier, year int) (int, error) {
	created, err := s.store.InsertMissing(ctx, fiscal.Schedule(d, year), s.now().UTC())
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.invalidate(ctx, d.BranchID)
	}
	return created, nil
}

// GenerateYear seeds the schedule of every active dossier, or of one dossier
// when dossierID is set. A failing dossier does not stop the run.
func (s *Service) GenerateYear(ctx context.Context, year int, dossierID uuid.NullUUID) (GenerateResult, error) {
	var targets []fiscal.Dossier
	if dossierID.Valid {
		d, err := s.dossiers.Get(ctx, dossierID.UUID)
		if err != nil {
			return GenerateResult{}, err
		}
		targets = []fiscal.Dossier{d}
	} else {
		active := true
		all, err := s.dossiers.All(ctx, dossiers.ListFilter{Active: &active})
		if err != nil {
			return GenerateResult{}, err
		}
		targets = all
	}

	res := GenerateResult{Year: year, Dossiers: len(targets)}
	for _, d := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		created, err := s.SeedDossier(ctx, d, year)
		if err != nil {
			res.Failed++
			s.logger.Error("generate obligations failed", slog.String("dossier_id", d.ID.String()), slog.Int("year", year), slog.Any("error", err))
			continue
		}
		res.Created += created
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "obligations.generate",
		Entity:   "schedule",
		EntityID: strconv.Itoa(year),
		Meta:     map[string]any{"dossiers": res.Dossiers, "created": res.Created, "failed": res.Failed},
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", "obligations.generate"), slog.Any("error", err))
	}
	return res, nil
}

func (s *Service) logIssues(issues []fiscal.DataIssue) {
	for _, issue := range issues {
		s.logger.Warn("obligation data issue",
			slog.String("obligation_id", issue.ObligationID.String()),
			slog.String("dossier_id", issue.DossierID.String()),
			slog.String("type", string(issue.Type)),
			slog.String("reason", issue.Reason))
	}
}

func (s *Service) invalidate(ctx context.Context, branchID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, branchID); err != nil {
		s.logger.Warn("dashboard invalidate failed", slog.String("branch_id", branchID.String()), slog.Any("error", err))
	}
}
