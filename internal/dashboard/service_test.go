package dashboard

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/obligations"
)

type stubDossiers struct {
	dossiers      []fiscal.Dossier
	collaborators []fiscal.Collaborator
	calls         atomic.Int32
	lastFilter    dossiers.ListFilter
	mu            sync.Mutex
}

func (s *stubDossiers) All(_ context.Context, filter dossiers.ListFilter) ([]fiscal.Dossier, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastFilter = filter
	s.mu.Unlock()
	return s.dossiers, nil
}

func (s *stubDossiers) Collaborators(context.Context, uuid.NullUUID) ([]fiscal.Collaborator, error) {
	return s.collaborators, nil
}

type stubObligations struct {
	listFn func(ctx context.Context, filter obligations.Filter) ([]fiscal.Obligation, error)
}

func (s stubObligations) List(ctx context.Context, filter obligations.Filter) ([]fiscal.Obligation, error) {
	return s.listFn(ctx, filter)
}

type recordingObserver struct {
	mu     sync.Mutex
	hits   map[bool]int
	builds int
}

func (r *recordingObserver) ObserveCache(_ string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = map[bool]int{}
	}
	r.hits[hit]++
}

func (r *recordingObserver) ObserveBuild(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds++
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	branch   uuid.UUID
	alice    fiscal.Collaborator
	atelier  fiscal.Dossier
	boulange fiscal.Dossier
	items    []fiscal.Obligation
}

func newFixture() fixture {
	branch := uuid.New()
	alice := fiscal.Collaborator{ID: uuid.New(), BranchID: branch, FullName: "Alice Martin"}
	manager := uuid.NullUUID{UUID: alice.ID, Valid: true}
	atelier := fiscal.Dossier{ID: uuid.New(), BranchID: branch, ManagerID: manager, Name: "Atelier", IsActive: true, Regime: fiscal.RegimeIS, VATMode: fiscal.VATMonthly, VATDueDay: 21}
	boulange := fiscal.Dossier{ID: uuid.New(), BranchID: branch, ManagerID: manager, Name: "Boulangerie", IsActive: true, Regime: fiscal.RegimeIR, VATMode: fiscal.VATMonthly, VATDueDay: 21}
	items := []fiscal.Obligation{
		{ID: uuid.New(), DossierID: atelier.ID, Type: fiscal.TypeVAT, Period: fiscal.Period{Year: 2025, Month: time.February}, DueDate: day(2025, time.February, 21), Status: fiscal.StatusTodo},
		{ID: uuid.New(), DossierID: atelier.ID, Type: fiscal.TypeVAT, Period: fiscal.Period{Year: 2025, Month: time.March}, DueDate: day(2025, time.March, 21), Status: fiscal.StatusDone},
		{ID: uuid.New(), DossierID: boulange.ID, Type: fiscal.TypeCorporateTax, Installment: fiscal.InstallmentFirst, Period: fiscal.Period{Year: 2025, Month: time.March}, DueDate: day(2025, time.March, 15), Status: fiscal.StatusTodo},
		{ID: uuid.New(), DossierID: boulange.ID, Type: fiscal.TypeCFE, Status: fiscal.StatusTodo},
	}
	return fixture{branch: branch, alice: alice, atelier: atelier, boulange: boulange, items: items}
}

func newTestService(t *testing.T, f fixture, cache *Cache, logs *bytes.Buffer) (*Service, *stubDossiers, *atomic.Int32) {
	t.Helper()
	ds := &stubDossiers{dossiers: []fiscal.Dossier{f.boulange, f.atelier}, collaborators: []fiscal.Collaborator{f.alice}}
	var listed atomic.Int32
	obs := stubObligations{listFn: func(_ context.Context, filter obligations.Filter) ([]fiscal.Obligation, error) {
		listed.Add(1)
		out := make([]fiscal.Obligation, 0, len(f.items))
		for _, o := range f.items {
			if filter.Type == "" || filter.Type == o.Type {
				out = append(out, o)
			}
		}
		return out, nil
	}}
	if logs == nil {
		logs = &bytes.Buffer{}
	}
	svc := NewService(ds, obs, cache, slog.New(slog.NewTextHandler(logs, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC) })
	return svc, ds, &listed
}

func TestSnapshotComposesViews(t *testing.T) {
	f := newFixture()
	var logs bytes.Buffer
	svc, ds, _ := newTestService(t, f, nil, &logs)

	snap, err := svc.Snapshot(context.Background(), Filter{BranchID: uuid.NullUUID{UUID: f.branch, Valid: true}})
	require.NoError(t, err)

	assert.Equal(t, day(2025, time.March, 12), snap.Today)
	assert.Equal(t, 2, snap.Stats.ActiveDossiers)
	assert.Equal(t, 2, snap.Stats.MonthTotal)
	assert.Equal(t, 1, snap.Stats.MonthDone)
	assert.Equal(t, 1, snap.Stats.Late)

	require.Len(t, snap.Late.Items, 1)
	assert.Equal(t, fiscal.TypeVAT, snap.Late.Items[0].Type)
	assert.Equal(t, 19, snap.Late.Items[0].DaysLate())
	assert.Equal(t, "Atelier", snap.Late.Items[0].DossierName)
	require.Len(t, snap.NearTerm.Items, 1)
	assert.Equal(t, fiscal.InstallmentFirst, snap.NearTerm.Items[0].Installment)

	require.Len(t, snap.Progress, 1)
	assert.Equal(t, f.alice.ID, snap.Progress[0].Collaborator.ID)
	assert.Equal(t, 50, snap.Progress[0].Percentage)

	require.Len(t, snap.Portfolio, 2)
	assert.Equal(t, "Atelier", snap.Portfolio[0].Dossier.Name, "dossiers with late obligations come first")
	assert.True(t, snap.Portfolio[0].HasLate)

	require.Len(t, snap.Issues, 1)
	assert.Equal(t, fiscal.TypeCFE, snap.Issues[0].Type)
	assert.Contains(t, logs.String(), "obligation data issue")

	require.NotNil(t, ds.lastFilter.Active)
	assert.True(t, *ds.lastFilter.Active)
	assert.Equal(t, f.branch, ds.lastFilter.BranchID.UUID)
}

func TestSnapshotIsCachedUntilInvalidated(t *testing.T) {
	f := newFixture()
	cache, _ := newTestCache(t)
	svc, _, listed := newTestService(t, f, cache, nil)
	observer := &recordingObserver{}
	svc.WithObserver(observer)
	ctx := context.Background()
	filter := Filter{BranchID: uuid.NullUUID{UUID: f.branch, Valid: true}}

	first, err := svc.Snapshot(ctx, filter)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 1, listed.Load())
	assert.Equal(t, first.Stats, second.Stats)
	require.Len(t, second.Late.Items, 1)
	assert.Equal(t, first.Late.Items[0].ID, second.Late.Items[0].ID)

	_, err = svc.Snapshot(ctx, Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, listed.Load(), "firm-wide view has its own entry")

	require.NoError(t, svc.Invalidate(ctx, f.branch))
	_, err = svc.Snapshot(ctx, filter)
	require.NoError(t, err)
	_, err = svc.Snapshot(ctx, Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, listed.Load())

	assert.Equal(t, 1, observer.hits[true])
	assert.Equal(t, 4, observer.hits[false])
	assert.Equal(t, 4, observer.builds)
}

func TestSnapshotLoadFailure(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(&stubDossiers{}, stubObligations{listFn: func(context.Context, obligations.Filter) ([]fiscal.Obligation, error) {
		return nil, boom
	}}, nil, nil)

	_, err := svc.Snapshot(context.Background(), Filter{})
	assert.ErrorIs(t, err, boom)
}

func TestMatrixFiltersByType(t *testing.T) {
	f := newFixture()
	cache, _ := newTestCache(t)
	svc, _, listed := newTestService(t, f, cache, nil)
	ctx := context.Background()

	m, err := svc.Matrix(ctx, Filter{}, fiscal.TypeVAT)
	require.NoError(t, err)
	assert.Equal(t, fiscal.TypeVAT, m.Type)
	require.Len(t, m.Months, fiscal.MatrixMonthCount)
	assert.Equal(t, "2025-01", m.Months[0].String())
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "Atelier", m.Rows[0].DossierName)
	require.NotNil(t, m.Rows[0].Cells[1].Obligation)
	assert.Equal(t, fiscal.UrgencyLate, m.Rows[0].Cells[1].Obligation.Urgency)
	require.NotNil(t, m.Rows[0].Cells[2].Obligation)
	assert.Equal(t, fiscal.StatusDone, m.Rows[0].Cells[2].Obligation.Status)

	_, err = svc.Matrix(ctx, Filter{}, fiscal.TypeVAT)
	require.NoError(t, err)
	_, err = svc.Matrix(ctx, Filter{}, fiscal.TypeCorporateTax)
	require.NoError(t, err)
	assert.EqualValues(t, 2, listed.Load())

	_, err = svc.Matrix(ctx, Filter{}, fiscal.ObligationType("XYZ"))
	assert.ErrorIs(t, err, fiscal.ErrUnknownType)
}

func TestWindowCoversMatrixMonths(t *testing.T) {
	filter, months := window(Filter{}, day(2025, time.March, 12))
	assert.True(t, filter.ActiveOnly)
	assert.Equal(t, day(2025, time.January, 1), filter.ResolvedFrom)
	assert.Equal(t, day(2026, time.February, 28), filter.DueTo)
	assert.Len(t, months, fiscal.MatrixMonthCount)
}
