package vat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/shared"
)

type recordKey struct {
	dossier uuid.UUID
	period  fiscal.Period
}

type memoryStore struct {
	records map[recordKey]fiscal.VATRecord
	writes  int
}

func (m *memoryStore) ListYear(_ context.Context, dossierID uuid.UUID, year int) ([]fiscal.VATRecord, error) {
	var out []fiscal.VATRecord
	for k, rec := range m.records {
		if k.dossier == dossierID && k.period.Year == year {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryStore) Get(_ context.Context, dossierID uuid.UUID, period fiscal.Period) (fiscal.VATRecord, error) {
	rec, ok := m.records[recordKey{dossierID, period}]
	if !ok {
		return fiscal.VATRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) Upsert(_ context.Context, rec fiscal.VATRecord) (fiscal.VATRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.records[recordKey{rec.DossierID, rec.Period}] = rec
	m.writes++
	return rec, nil
}

type dossierSource map[uuid.UUID]fiscal.Dossier

func (d dossierSource) Get(_ context.Context, id uuid.UUID) (fiscal.Dossier, error) {
	item, ok := d[id]
	if !ok {
		return fiscal.Dossier{}, dossiers.ErrNotFound
	}
	return item, nil
}

func fixture() (*Service, *memoryStore, fiscal.Dossier) {
	d := fiscal.Dossier{ID: uuid.New(), BranchID: uuid.New(), Name: "Atelier", VATMode: fiscal.VATMonthly, VATDueDay: 21}
	store := &memoryStore{records: map[recordKey]fiscal.VATRecord{}}
	svc := NewService(store, dossierSource{d.ID: d}, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, time.February, 18, 17, 0, 0, 0, time.UTC) })
	return svc, store, d
}

func TestToggleStepFlipsAndCreatesRecord(t *testing.T) {
	svc, store, d := fixture()
	jan := fiscal.NewPeriod(2025, time.January)

	rec, err := svc.ToggleStep(context.Background(), d.ID, jan, fiscal.StepDocumentsReceived, nil)
	require.NoError(t, err)
	assert.True(t, rec.Step(fiscal.StepDocumentsReceived))

	rec, err = svc.ToggleStep(context.Background(), d.ID, jan, fiscal.StepDocumentsReceived, nil)
	require.NoError(t, err)
	assert.False(t, rec.Step(fiscal.StepDocumentsReceived))
	assert.Equal(t, 2, store.writes)
	assert.Len(t, store.records, 1)
}

func TestValidateStepRecordsActor(t *testing.T) {
	svc, _, d := fixture()
	actor := uuid.New()
	ctx := shared.ContextWithActor(context.Background(), actor)
	yes := true

	rec, err := svc.ToggleStep(ctx, d.ID, fiscal.NewPeriod(2025, time.January), fiscal.StepValidated, &yes)
	require.NoError(t, err)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, actor, rec.CompletedBy.UUID)
	assert.Equal(t, fiscal.VATStatusDone, fiscal.VATStatusOf(&rec, true))

	no := false
	rec, err = svc.ToggleStep(ctx, d.ID, fiscal.NewPeriod(2025, time.January), fiscal.StepValidated, &no)
	require.NoError(t, err)
	assert.Nil(t, rec.CompletedAt)
}

func TestUpdateDetailsKeepsSteps(t *testing.T) {
	svc, _, d := fixture()
	period := fiscal.NewPeriod(2025, time.January)
	yes := true
	_, err := svc.ToggleStep(context.Background(), d.ID, period, fiscal.StepEntryPosted, &yes)
	require.NoError(t, err)

	amount := decimal.RequireFromString("980.10")
	rec, err := svc.UpdateDetails(context.Background(), d.ID, period, fiscal.VATDetails{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, rec.Step(fiscal.StepEntryPosted))
	assert.True(t, rec.Amount.Equal(amount))

	_, year, err := svc.Year(context.Background(), d.ID, 2025)
	require.NoError(t, err)
	assert.Equal(t, fiscal.VATStatusProgress, year.Rows[0].Status)
	assert.Equal(t, 12, year.Totals.Active)
	assert.True(t, year.Totals.Amount.Equal(amount))
}

func TestUnknownDossierAndStep(t *testing.T) {
	svc, _, d := fixture()
	_, err := svc.ToggleStep(context.Background(), uuid.New(), fiscal.NewPeriod(2025, time.January), fiscal.StepValidated, nil)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.ToggleStep(context.Background(), d.ID, fiscal.NewPeriod(2025, time.January), fiscal.Step(42), nil)
	assert.ErrorIs(t, err, fiscal.ErrUnknownStep)
}

func TestUpdateInputChanges(t *testing.T) {
	note := "  relancer le client "
	amount := decimal.RequireFromString("100.456")
	ch, err := UpdateInput{Steps: map[string]bool{"teletransmis": true, "step_valide": false}, Amount: &amount, Note: &note}.Changes()
	require.NoError(t, err)
	assert.Equal(t, map[fiscal.Step]bool{fiscal.StepFiledElectronically: true, fiscal.StepValidated: false}, ch.Steps)
	assert.Equal(t, "relancer le client", *ch.Details.Note)
	assert.True(t, ch.Details.Amount.Equal(decimal.RequireFromString("100.46")))

	_, err = UpdateInput{Steps: map[string]bool{"archive": true}}.Changes()
	assert.ErrorIs(t, err, httpx.ErrValidation)

	negative := decimal.NewFromInt(-1)
	_, err = UpdateInput{Credit: &negative}.Changes()
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = UpdateInput{}.Changes()
	assert.ErrorIs(t, err, httpx.ErrValidation)
}
