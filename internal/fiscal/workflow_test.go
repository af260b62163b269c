package fiscal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVATStatusDerivation(t *testing.T) {
	assert.Equal(t, VATStatusNA, VATStatusOf(&VATRecord{Steps: [StepCount]bool{true, true, true, true, true, true}}, false))
	assert.Equal(t, VATStatusTodo, VATStatusOf(nil, true))
	assert.Equal(t, VATStatusTodo, VATStatusOf(&VATRecord{}, true))

	r := &VATRecord{}
	r.SetStep(StepDocumentsReceived, true, uuid.NullUUID{}, time.Now())
	assert.Equal(t, VATStatusProgress, VATStatusOf(r, true))

	only := &VATRecord{}
	only.Steps[StepValidated] = true
	assert.Equal(t, VATStatusDone, VATStatusOf(only, true))
}

func TestValidateStepStampsAndClearsCompletion(t *testing.T) {
	actor := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	now := time.Date(2025, time.February, 20, 16, 0, 0, 0, time.UTC)
	r := &VATRecord{}
	r.SetStep(StepEntryPosted, true, actor, now)
	assert.Nil(t, r.CompletedAt, "non-final steps carry no completion metadata")

	r.SetStep(StepValidated, true, actor, now)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, now, *r.CompletedAt)
	assert.Equal(t, actor, r.CompletedBy)
	assert.Equal(t, VATStatusDone, VATStatusOf(r, true))

	r.SetStep(StepValidated, false, actor, now.Add(time.Hour))
	assert.Nil(t, r.CompletedAt)
	assert.False(t, r.CompletedBy.Valid)
	assert.True(t, r.Step(StepEntryPosted), "other steps are untouched")
	assert.Equal(t, VATStatusProgress, VATStatusOf(r, true))
}

func TestStepsAreIndependent(t *testing.T) {
	r := &VATRecord{}
	r.SetStep(StepFiledElectronically, true, uuid.NullUUID{}, time.Now())
	assert.Equal(t, 1, r.CompletedSteps())

	next, ok := r.NextStep()
	require.True(t, ok)
	assert.Equal(t, StepDocumentsReceived, next)

	for _, s := range Steps() {
		r.SetStep(s, true, uuid.NullUUID{}, time.Now())
	}
	_, ok = r.NextStep()
	assert.False(t, ok)
	assert.Equal(t, StepCount, r.CompletedSteps())
}

func TestApplyDetailsMergesOnlyProvidedFields(t *testing.T) {
	r := &VATRecord{Amount: decimal.NewFromInt(100), Credit: decimal.NewFromInt(10), Note: "initial"}
	r.Steps[StepEntryPosted] = true

	amount := decimal.RequireFromString("250.40")
	r.ApplyDetails(VATDetails{Amount: &amount})

	assert.True(t, r.Amount.Equal(amount))
	assert.True(t, r.Credit.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "initial", r.Note)
	assert.True(t, r.Steps[StepEntryPosted])
	assert.True(t, r.Net().Equal(decimal.RequireFromString("240.40")))
}

func TestVATChangesApplyStepsThenDetails(t *testing.T) {
	actor := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	note := "télétransmis le 18"
	changes := VATChanges{
		Steps:   map[Step]bool{StepFiledElectronically: true, StepValidated: true},
		Details: VATDetails{Note: &note},
	}
	require.False(t, changes.Empty())
	assert.True(t, VATChanges{}.Empty())

	r := &VATRecord{}
	r.Apply(changes, actor, time.Now())
	assert.True(t, r.Step(StepFiledElectronically))
	assert.NotNil(t, r.CompletedAt)
	assert.Equal(t, note, r.Note)
}

func TestParseStep(t *testing.T) {
	s, err := ParseStep("step_valide")
	require.NoError(t, err)
	assert.Equal(t, StepValidated, s)

	s, err = ParseStep("Compta_Recue")
	require.NoError(t, err)
	assert.Equal(t, StepDocumentsReceived, s)
	assert.Equal(t, "Compta reçue", s.Label())

	_, err = ParseStep("archived")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestBuildVATYearTotalsCoverActivePeriodsOnly(t *testing.T) {
	d := Dossier{ID: uuid.New(), Regime: RegimeIR, VATMode: VATQuarterly, VATDueDay: 21}
	jan := VATRecord{DossierID: d.ID, Period: Period{Year: 2025, Month: time.January}, Amount: decimal.NewFromInt(1200), Credit: decimal.NewFromInt(200)}
	jan.Steps[StepValidated] = true
	apr := VATRecord{DossierID: d.ID, Period: Period{Year: 2025, Month: time.April}, Amount: decimal.NewFromInt(800)}
	apr.Steps[StepEntryPosted] = true
	// February is not a quarterly period: its record must not count.
	feb := VATRecord{DossierID: d.ID, Period: Period{Year: 2025, Month: time.February}, Amount: decimal.NewFromInt(9999)}

	year := BuildVATYear(d, 2025, []VATRecord{jan, apr, feb})

	require.Len(t, year.Rows, 12)
	assert.Equal(t, VATStatusDone, year.Rows[0].Status)
	assert.Equal(t, VATStatusNA, year.Rows[1].Status)
	assert.Equal(t, VATStatusProgress, year.Rows[3].Status)
	assert.Equal(t, VATStatusTodo, year.Rows[6].Status)

	totals := year.Totals
	assert.Equal(t, 4, totals.Active)
	assert.Equal(t, 1, totals.Done)
	assert.Equal(t, 1, totals.InProgress)
	assert.Equal(t, 2, totals.Todo)
	assert.True(t, totals.Amount.Equal(decimal.NewFromInt(2000)), totals.Amount.String())
	assert.True(t, totals.Credit.Equal(decimal.NewFromInt(200)))
	assert.True(t, totals.Net.Equal(decimal.NewFromInt(1800)))
}
