package vat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/shared"
)

// Store is the persistence required by the Service.
type Store interface {
	ListYear(ctx context.Context, dossierID uuid.UUID, year int) ([]fiscal.VATRecord, error)
	Get(ctx context.Context, dossierID uuid.UUID, period fiscal.Period) (fiscal.VATRecord, error)
	Upsert(ctx context.Context, rec fiscal.VATRecord) (fiscal.VATRecord, error)
}

// DossierSource resolves dossiers.
type DossierSource interface {
	Get(ctx context.Context, id uuid.UUID) (fiscal.Dossier, error)
}

// Service tracks the six-step VAT workflow of each dossier period.
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

// Year returns the VAT worksheet of a dossier.
func (s *Service) Year(ctx context.Context, dossierID uuid.UUID, year int) (fiscal.Dossier, fiscal.VATYear, error) {
	d, err := s.dossiers.Get(ctx, dossierID)
	if err != nil {
		return fiscal.Dossier{}, fiscal.VATYear{}, err
	}
	records, err := s.store.ListYear(ctx, dossierID, year)
	if err != nil {
		return fiscal.Dossier{}, fiscal.VATYear{}, err
	}
	return d, fiscal.BuildVATYear(d, year, records), nil
}

// ToggleStep sets one workflow step. A nil value flips the current flag.
func (s *Service) ToggleStep(ctx context.Context, dossierID uuid.UUID, period fiscal.Period, step fiscal.Step, value *bool) (fiscal.VATRecord, error) {
	if !step.Valid() {
		return fiscal.VATRecord{}, fmt.Errorf("vat: %w: %w", fiscal.ErrUnknownStep, httpx.ErrValidation)
	}
	return s.apply(ctx, dossierID, period, func(rec *fiscal.VATRecord) fiscal.VATChanges {
		next := !rec.Step(step)
		if value != nil {
			next = *value
		}
		return fiscal.VATChanges{Steps: map[fiscal.Step]bool{step: next}}
	})
}

// UpdateDetails merges amount, credit and note, leaving steps untouched.
func (s *Service) UpdateDetails(ctx context.Context, dossierID uuid.UUID, period fiscal.Period, details fiscal.VATDetails) (fiscal.VATRecord, error) {
	return s.Upsert(ctx, dossierID, period, fiscal.VATChanges{Details: details})
}

// Upsert merges step toggles and details into the period's record, creating
// it when absent.
func (s *Service) Upsert(ctx context.Context, dossierID uuid.UUID, period fiscal.Period, changes fiscal.VATChanges) (fiscal.VATRecord, error) {
	return s.apply(ctx, dossierID, period, func(*fiscal.VATRecord) fiscal.VATChanges { return changes })
}

func (s *Service) apply(ctx context.Context, dossierID uuid.UUID, period fiscal.Period, build func(*fiscal.VATRecord) fiscal.VATChanges) (fiscal.VATRecord, error) {
	d, err := s.dossiers.Get(ctx, dossierID)
	if err != nil {
		return fiscal.VATRecord{}, err
	}
	rec, err := s.store.Get(ctx, dossierID, period)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = fiscal.VATRecord{DossierID: dossierID, Period: period}
	case err != nil:
		return fiscal.VATRecord{}, err
	}

	changes := build(&rec)
	actor := shared.ActorFromContext(ctx)
	now := s.now().UTC()
	rec.Apply(changes, actor, now)
	rec.UpdatedAt = now
	saved, err := s.store.Upsert(ctx, rec)
	if err != nil {
		return fiscal.VATRecord{}, err
	}

	if !fiscal.IsApplicable(d.Profile(), fiscal.TypeVAT, period) {
		s.logger.Info("vat record written for inactive period", slog.String("dossier_id", dossierID.String()), slog.String("period", period.String()))
	}
	steps := make(map[string]bool, len(changes.Steps))
	for step, v := range changes.Steps {
		steps[step.Code()] = v
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   "vat.upsert",
		Entity:   "vat_record",
		EntityID: saved.ID.String(),
		Meta:     map[string]any{"period": period.String(), "steps": steps, "status": fiscal.VATStatusOf(&saved, true)},
		At:       now,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("vat_record_id", saved.ID.String()), slog.Any("error", err))
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, d.BranchID); err != nil {
			s.logger.Warn("dashboard invalidate failed", slog.String("branch_id", d.BranchID.String()), slog.Any("error", err))
		}
	}
	return saved, nil
}
