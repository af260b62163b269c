package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/obligations"
)

const (
	viewSnapshot = "snapshot"
	viewMatrix   = "matrix"
)

// DossierSource lists dossiers and the collaborators managing them.
type DossierSource interface {
	All(ctx context.Context, filter dossiers.ListFilter) ([]fiscal.Dossier, error)
	Collaborators(ctx context.Context, branchID uuid.NullUUID) ([]fiscal.Collaborator, error)
}

// ObligationSource lists obligations across dossiers.
type ObligationSource interface {
	List(ctx context.Context, filter obligations.Filter) ([]fiscal.Obligation, error)
}

// Observer receives cache and build measurements.
type Observer interface {
	ObserveCache(view string, hit bool)
	ObserveBuild(view string, elapsed time.Duration)
}

// Filter scopes a dashboard view to a branch; the zero value is firm-wide.
type Filter struct {
	BranchID uuid.NullUUID
}

// Snapshot is the dashboard for one day.
type Snapshot struct {
	Today     time.Time               `json:"today"`
	Stats     fiscal.Stats            `json:"stats"`
	Late      fiscal.Ranked           `json:"late"`
	NearTerm  fiscal.Ranked           `json:"near_term"`
	Progress  []fiscal.Progress       `json:"progress"`
	Portfolio []fiscal.PortfolioEntry `json:"portfolio"`
	Issues    []fiscal.DataIssue      `json:"issues"`
}

// MatrixView is the dossier by month grid of one obligation type.
type MatrixView struct {
	Today time.Time `json:"today"`
	fiscal.Matrix
}

// Service composes dashboard views from dossiers and obligations.
type Service struct {
	dossiers    DossierSource
	obligations ObligationSource
	cache       *Cache
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
	group       singleflight.Group
}

// NewService constructs a Service. A nil cache builds every view on demand.
func NewService(dossierSource DossierSource, obligationSource ObligationSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dossiers: dossierSource, obligations: obligationSource, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver registers cache and build metrics.
func (s *Service) WithObserver(observer Observer) {
	s.observer = observer
}

// Invalidate bumps the cached views of a branch and of the whole firm.
func (s *Service) Invalidate(ctx context.Context, branchID uuid.UUID) error {
	return s.cache.Invalidate(ctx, branchID)
}

// Listen drops in-flight builds when another instance invalidates a scope.
func (s *Service) Listen(ctx context.Context) error {
	return s.cache.Subscribe(ctx, func(scope string) {
		day := fiscal.Day(s.now()).Format(time.DateOnly)
		s.forget(scope, day)
		s.forget(scopeAll, day)
	})
}

func (s *Service) forget(scope, day string) {
	s.group.Forget(flightKey(viewSnapshot, scope, day))
	for _, t := range fiscal.ObligationTypes {
		s.group.Forget(flightKey(viewMatrix, scope, day, string(t)))
	}
}

// Snapshot returns today's dashboard for the filter.
func (s *Service) Snapshot(ctx context.Context, filter Filter) (Snapshot, error) {
	today := fiscal.Day(s.now())
	var out Snapshot
	err := s.cached(ctx, viewSnapshot, filter, today, nil, &out, func(ctx context.Context) (any, error) {
		return s.buildSnapshot(ctx, filter, today)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

// Matrix returns the dossier by month grid of one obligation type.
func (s *Service) Matrix(ctx context.Context, filter Filter, t fiscal.ObligationType) (MatrixView, error) {
	if !t.Valid() {
		return MatrixView{}, fmt.Errorf("dashboard: %w", fiscal.ErrUnknownType)
	}
	today := fiscal.Day(s.now())
	var out MatrixView
	err := s.cached(ctx, viewMatrix, filter, today, []string{string(t)}, &out, func(ctx context.Context) (any, error) {
		return s.buildMatrix(ctx, filter, t, today)
	})
	if err != nil {
		return MatrixView{}, err
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context, view string, filter Filter, today time.Time, extra []string, dest any, build func(context.Context) (any, error)) error {
	scope := Scope(filter.BranchID)
	day := today.Format(time.DateOnly)
	flightID := flightKey(append([]string{view, scope, day}, extra...)...)
	key, err := s.cache.BuildKey(ctx, scope, append([]string{view, day}, extra...)...)
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.String("view", view), slog.Any("error", err))
		value, err := s.flight(ctx, flightID, view, build)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	hit, err := s.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (any, error) {
		return s.flight(ctx, flightID, view, build)
	})
	if err != nil {
		return err
	}
	if s.observer != nil && s.cache.Enabled() {
		s.observer.ObserveCache(view, hit)
	}
	return nil
}

// flight deduplicates concurrent builds of the same view.
func (s *Service) flight(ctx context.Context, key, view string, build func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		start := time.Now()
		value, err := build(context.WithoutCancel(ctx))
		if s.observer != nil && err == nil {
			s.observer.ObserveBuild(view, time.Since(start))
		}
		return value, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func flightKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// window returns the obligation filter covering the matrix months; it also
// covers this month and every unresolved obligation.
func window(filter Filter, today time.Time) (obligations.Filter, []fiscal.Period) {
	months := fiscal.MatrixMonths(today)
	return obligations.Filter{
		BranchID:     filter.BranchID,
		ActiveOnly:   true,
		ResolvedFrom: months[0].Start(),
		DueTo:        months[len(months)-1].End(),
	}, months
}

func (s *Service) buildSnapshot(ctx context.Context, filter Filter, today time.Time) (Snapshot, error) {
	obligationFilter, _ := window(filter, today)
	var (
		dossierList   []fiscal.Dossier
		collaborators []fiscal.Collaborator
		all           []fiscal.Obligation
	)
	active := true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dossierList, err = s.dossiers.All(gctx, dossiers.ListFilter{BranchID: filter.BranchID, Active: &active})
		return err
	})
	g.Go(func() error {
		var err error
		collaborators, err = s.dossiers.Collaborators(gctx, filter.BranchID)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.obligations.List(gctx, obligationFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("dashboard: load: %w", err)
	}

	visible, issues := fiscal.FilterVisible(all, today)
	s.logIssues(issues)
	if issues == nil {
		issues = []fiscal.DataIssue{}
	}
	names := make(map[uuid.UUID]string, len(dossierList))
	for _, d := range dossierList {
		names[d.ID] = d.Name
	}
	return Snapshot{
		Today:     today,
		Stats:     fiscal.MonthStats(dossierList, visible, today),
		Late:      withNames(fiscal.LateList(visible, today, fiscal.LateListLimit), names),
		NearTerm:  withNames(fiscal.NearTermList(visible, today, fiscal.NearTermListLimit), names),
		Progress:  fiscal.CollaboratorProgress(collaborators, dossierList, visible, today),
		Portfolio: fiscal.SortPortfolio(dossierList, visible, today),
		Issues:    issues,
	}, nil
}

func withNames(r fiscal.Ranked, names map[uuid.UUID]string) fiscal.Ranked {
	for i := range r.Items {
		r.Items[i].DossierName = names[r.Items[i].DossierID]
	}
	return r
}

func (s *Service) buildMatrix(ctx context.Context, filter Filter, t fiscal.ObligationType, today time.Time) (MatrixView, error) {
	obligationFilter, months := window(filter, today)
	obligationFilter.Type = t
	var (
		dossierList []fiscal.Dossier
		all         []fiscal.Obligation
	)
	active := true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dossierList, err = s.dossiers.All(gctx, dossiers.ListFilter{BranchID: filter.BranchID, Active: &active})
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.obligations.List(gctx, obligationFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return MatrixView{}, fmt.Errorf("dashboard: load: %w", err)
	}
	return MatrixView{Today: today, Matrix: fiscal.BuildMatrix(dossierList, all, t, months, today)}, nil
}

func (s *Service) logIssues(issues []fiscal.DataIssue) {
	for _, issue := range issues {
		s.logger.Warn("obligation data issue",
			slog.String("obligation_id", issue.ObligationID.String()),
			slog.String("dossier_id", issue.DossierID.String()),
			slog.String("type", string(issue.Type)),
			slog.String("reason", issue.Reason),
		)
	}
}
