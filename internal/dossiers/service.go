package dossiers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/shared"
)

// Store is the persistence required by the Service.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]fiscal.Dossier, int, error)
	Get(ctx context.Context, id uuid.UUID) (fiscal.Dossier, error)
	Insert(ctx context.Context, d fiscal.Dossier) error
	Update(ctx context.Context, d fiscal.Dossier) error
	ListCollaborators(ctx context.Context, branchID uuid.NullUUID) ([]fiscal.Collaborator, error)
	ListBranches(ctx context.Context) ([]uuid.UUID, error)
}

// Scheduler seeds the obligation calendar of a dossier.
type Scheduler interface {
	SeedDossier(ctx context.Context, d fiscal.Dossier, year int) (int, error)
}

// Invalidator drops cached aggregates of a branch.
type Invalidator interface {
	Invalidate(ctx context.Context, branchID uuid.UUID) error
}

// ListResult is one page of dossiers.
type ListResult struct {
	Items      []fiscal.Dossier  `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service manages the dossier portfolio.
type Service struct {
	store     Store
	audit     shared.AuditRecorder
	scheduler Scheduler
	cache     Invalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithScheduler enables obligation seeding on create and schedule changes.
func (s *Service) WithScheduler(scheduler Scheduler) {
	s.scheduler = scheduler
}

// WithInvalidator registers the dashboard cache to bump after writes.
func (s *Service) WithInvalidator(cache Invalidator) {
	s.cache = cache
}

// List returns a page of dossiers.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) (ListResult, error) {
	pg := shared.NewPagination(page, perPage, 0)
	filter.Limit = pg.PerPage
	filter.Offset = pg.Offset()
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []fiscal.Dossier{}
	}
	return ListResult{Items: items, Pagination: shared.NewPagination(pg.Page, pg.PerPage, total)}, nil
}

// All returns every dossier matching the filter without paging.
func (s *Service) All(ctx context.Context, filter ListFilter) ([]fiscal.Dossier, error) {
	filter.Limit, filter.Offset = 0, 0
	items, _, err := s.store.List(ctx, filter)
	return items, err
}

// Get loads one dossier.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (fiscal.Dossier, error) {
	return s.store.Get(ctx, id)
}

// Collaborators lists the collaborators of a branch.
func (s *Service) Collaborators(ctx context.Context, branchID uuid.NullUUID) ([]fiscal.Collaborator, error) {
	return s.store.ListCollaborators(ctx, branchID)
}

// Branches lists the branches holding at least one active dossier.
func (s *Service) Branches(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListBranches(ctx)
}

// Create registers a dossier and seeds its obligations for the current year.
// In December the following year is seeded as well, since the yearly
// generation has already run.
func (s *Service) Create(ctx context.Context, in CreateInput) (fiscal.Dossier, error) {
	if err := in.Validate(); err != nil {
		return fiscal.Dossier{}, err
	}
	now := s.now().UTC()
	d := in.dossier(uuid.New(), now)
	if err := s.store.Insert(ctx, d); err != nil {
		return fiscal.Dossier{}, err
	}
	s.record(ctx, "dossier.create", d, map[string]any{"name": d.Name, "regime": d.Regime, "vat_mode": d.VATMode})
	s.seed(ctx, d, now)
	s.invalidate(ctx, d.BranchID)
	return d, nil
}

// Update applies a partial update. Schedule-relevant changes seed any newly
// applicable obligations; existing ones are kept.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (fiscal.Dossier, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return fiscal.Dossier{}, err
	}
	if err := in.Apply(&d); err != nil {
		return fiscal.Dossier{}, err
	}
	now := s.now().UTC()
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return fiscal.Dossier{}, err
	}
	s.record(ctx, "dossier.update", d, nil)
	if in.ScheduleChanged() && d.IsActive {
		s.seed(ctx, d, now)
	}
	s.invalidate(ctx, d.BranchID)
	return d, nil
}

// seed failures are logged only: generation is idempotent and the yearly job
// fills any gap.
func (s *Service) seed(ctx context.Context, d fiscal.Dossier, now time.Time) {
	if s.scheduler == nil {
		return
	}
	years := []int{now.Year()}
	if now.Month() == time.December {
		years = append(years, now.Year()+1)
	}
	for _, year := range years {
		created, err := s.scheduler.SeedDossier(ctx, d, year)
		if err != nil {
			s.logger.Warn("seed obligations failed", slog.String("dossier_id", d.ID.String()), slog.Int("year", year), slog.Any("error", err))
			continue
		}
		s.logger.Info("obligations seeded", slog.String("dossier_id", d.ID.String()), slog.Int("year", year), slog.Int("created", created))
	}
}

func (s *Service) record(ctx context.Context, action string, d fiscal.Dossier, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "dossier",
		EntityID: d.ID.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
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
