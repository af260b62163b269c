package fiscal

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLateListCapsAndReportsRemainder(t *testing.T) {
	today := date(2025, time.April, 20)
	var obligations []Obligation
	for i := 0; i < 12; i++ {
		obligations = append(obligations, Obligation{
			ID:      uuid.New(),
			Type:    TypeCFE,
			DueDate: date(2025, time.April, 19-i),
			Status:  StatusTodo,
		})
	}
	obligations = append(obligations,
		Obligation{ID: uuid.New(), Type: TypeCFE, DueDate: date(2025, time.January, 1), Status: StatusDone},
		Obligation{ID: uuid.New(), Type: TypeCFE, DueDate: date(2025, time.January, 1), Status: StatusNone},
		Obligation{ID: uuid.New(), Type: TypeCFE, Status: StatusTodo},
	)

	late := LateList(obligations, today, LateListLimit)

	require.Len(t, late.Items, 10)
	assert.Equal(t, 12, late.Total)
	assert.Equal(t, 2, late.Remaining)
	assert.Equal(t, date(2025, time.April, 8), late.Items[0].DueDate, "earliest due first")
	assert.Equal(t, 12, late.Items[0].DaysLate())
	for i := 1; i < len(late.Items); i++ {
		assert.False(t, late.Items[i].DueDate.Before(late.Items[i-1].DueDate))
	}
}

func TestNearTermListUsesDashboardThreshold(t *testing.T) {
	today := date(2025, time.April, 10)
	obligations := []Obligation{
		{Type: TypeVAT, DueDate: date(2025, time.April, 15), Status: StatusTodo},
		{Type: TypeVAT, DueDate: date(2025, time.April, 16), Status: StatusTodo},
		{Type: TypeVAT, DueDate: date(2025, time.April, 10), Status: StatusTodo},
		{Type: TypeVAT, DueDate: date(2025, time.April, 9), Status: StatusTodo},
	}

	near := NearTermList(obligations, today, NearTermListLimit)
	require.Len(t, near.Items, 2)
	assert.Equal(t, date(2025, time.April, 10), near.Items[0].DueDate)
	assert.Equal(t, date(2025, time.April, 15), near.Items[1].DueDate)
	assert.Zero(t, near.Remaining)
}

func TestCollaboratorProgress(t *testing.T) {
	today := date(2025, time.March, 20)
	alice := Collaborator{ID: uuid.New(), FullName: "Alice Martin"}
	bruno := Collaborator{ID: uuid.New(), FullName: "Bruno Petit"}
	idle := Collaborator{ID: uuid.New(), FullName: "Chloé Idle"}
	dA := Dossier{ID: uuid.New(), Name: "A", ManagerID: uuid.NullUUID{UUID: alice.ID, Valid: true}}
	dB := Dossier{ID: uuid.New(), Name: "B", ManagerID: uuid.NullUUID{UUID: bruno.ID, Valid: true}}

	obligations := []Obligation{
		{DossierID: dA.ID, DueDate: date(2025, time.March, 5), Status: StatusDone},
		{DossierID: dA.ID, DueDate: date(2025, time.March, 10), Status: StatusDone},
		{DossierID: dA.ID, DueDate: date(2025, time.March, 15), Status: StatusDone},
		{DossierID: dA.ID, DueDate: date(2025, time.March, 18), Status: StatusTodo},
		{DossierID: dA.ID, DueDate: date(2025, time.March, 18), Status: StatusNone},
		{DossierID: dA.ID, DueDate: date(2025, time.April, 18), Status: StatusTodo},
		{DossierID: dB.ID, DueDate: date(2025, time.March, 25), Status: StatusDone},
		{DossierID: dB.ID, DueDate: date(2025, time.March, 28), Status: StatusTodo},
	}

	progress := CollaboratorProgress([]Collaborator{bruno, idle, alice}, []Dossier{dA, dB}, obligations, today)

	require.Len(t, progress, 2)
	assert.Equal(t, alice.ID, progress[0].Collaborator.ID)
	assert.Equal(t, 4, progress[0].Total)
	assert.Equal(t, 3, progress[0].Done)
	assert.Equal(t, 1, progress[0].Late)
	assert.Equal(t, 75, progress[0].Percentage)
	assert.Equal(t, SeverityUrgent, progress[0].Severity, "late obligations override the percentage")

	assert.Equal(t, bruno.ID, progress[1].Collaborator.ID)
	assert.Equal(t, 50, progress[1].Percentage)
	assert.Equal(t, SeverityWarning, progress[1].Severity)
}

func TestSeverityBands(t *testing.T) {
	assert.Equal(t, SeverityGood, severityOf(80, 0))
	assert.Equal(t, SeverityWarning, severityOf(79, 0))
	assert.Equal(t, SeverityTodo, severityOf(49, 0))
	assert.Equal(t, SeverityUrgent, severityOf(100, 1))
}

func TestSortPortfolioLateFirstThenFrenchCollation(t *testing.T) {
	today := date(2025, time.May, 2)
	zebre := Dossier{ID: uuid.New(), Name: "Zèbre Immobilier"}
	eclair := Dossier{ID: uuid.New(), Name: "Éclair Conseil"}
	eau := Dossier{ID: uuid.New(), Name: "Eau Vive"}
	abeille := Dossier{ID: uuid.New(), Name: "abeille & co"}

	obligations := []Obligation{
		{DossierID: zebre.ID, DueDate: date(2025, time.April, 21), Status: StatusTodo},
		{DossierID: eclair.ID, DueDate: date(2025, time.May, 21), Status: StatusTodo},
		{DossierID: eau.ID, DueDate: date(2025, time.April, 21), Status: StatusNone},
		{DossierID: abeille.ID, DueDate: date(2025, time.April, 21), Status: StatusDone},
	}

	entries := SortPortfolio([]Dossier{zebre, eclair, eau, abeille}, obligations, today)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Dossier.Name)
	}
	assert.Equal(t, []string{"Zèbre Immobilier", "abeille & co", "Eau Vive", "Éclair Conseil"}, names)
	assert.True(t, entries[0].HasLate)
	assert.Equal(t, 1, entries[0].Late)
	assert.Equal(t, 0, entries[2].Total, "néant is excluded from aggregates")
}

func TestMonthStats(t *testing.T) {
	today := date(2025, time.March, 12)
	dossiers := []Dossier{{IsActive: true}, {IsActive: true}, {IsActive: false}}
	obligations := []Obligation{
		{DueDate: date(2025, time.March, 5), Status: StatusDone},
		{DueDate: date(2025, time.March, 21), Status: StatusTodo},
		{DueDate: date(2025, time.March, 10), Status: StatusTodo},
		{DueDate: date(2025, time.February, 10), Status: StatusLate},
		{DueDate: date(2025, time.April, 10), Status: StatusTodo},
	}

	stats := MonthStats(dossiers, obligations, today)
	assert.Equal(t, 2, stats.ActiveDossiers)
	assert.Equal(t, 3, stats.MonthTotal)
	assert.Equal(t, 1, stats.MonthDone)
	assert.Equal(t, 2, stats.MonthTodo)
	assert.Equal(t, 2, stats.Late)
	assert.Equal(t, "2025-03", stats.Month.String())
}

func TestMonthStatsSkipsCreditAndNone(t *testing.T) {
	today := date(2025, time.March, 12)
	obligations := []Obligation{
		{DueDate: date(2025, time.March, 5), Status: StatusDone},
		{DueDate: date(2025, time.March, 15), Status: StatusNone},
		{DueDate: date(2025, time.March, 20), Status: StatusCredit},
	}

	stats := MonthStats(nil, obligations, today)
	assert.Equal(t, 1, stats.MonthTotal)
	assert.Equal(t, 1, stats.MonthDone)
	assert.Zero(t, stats.MonthTodo)
	assert.Zero(t, stats.Late)
}

func TestLateListIgnoresStoredStatusWhenNotYetDue(t *testing.T) {
	today := date(2025, time.March, 12)
	obligations := []Obligation{
		{Type: TypeVAT, DueDate: date(2025, time.March, 22), Status: StatusLate},
		{Type: TypeCFE, DueDate: today, Status: StatusLate},
		{Type: TypeVAT, DueDate: date(2025, time.March, 1), Status: StatusTodo},
	}

	late := LateList(obligations, today, LateListLimit)
	require.Equal(t, 1, late.Total)
	assert.Equal(t, 11, late.Items[0].DaysLate())

	near := NearTermList(obligations, today, NearTermListLimit)
	require.Equal(t, 1, near.Total)
	assert.Equal(t, TypeCFE, near.Items[0].Type)
}

func TestObligationTotalsTreatsNegativeAmountsAsCredit(t *testing.T) {
	amount := func(v string) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
	}
	totals := ObligationTotals([]Obligation{
		{Amount: amount("1500.00")},
		{Amount: amount("-300.25")},
		{Amount: amount("200")},
		{},
	})
	assert.True(t, totals.Payable.Equal(decimal.RequireFromString("1700")))
	assert.True(t, totals.Credit.Equal(decimal.RequireFromString("300.25")))
	assert.True(t, totals.Net.Equal(decimal.RequireFromString("1399.75")))
}

func TestBuildMatrixPlacesObligationsByDueMonth(t *testing.T) {
	today := date(2025, time.March, 12)
	months := MatrixMonths(today)
	require.Len(t, months, MatrixMonthCount)
	assert.Equal(t, "2025-01", months[0].String())
	assert.Equal(t, "2026-02", months[len(months)-1].String())

	b := Dossier{ID: uuid.New(), Name: "Boulangerie"}
	a := Dossier{ID: uuid.New(), Name: "Atelier"}
	obligations := []Obligation{
		{DossierID: b.ID, Type: TypeVAT, Period: Period{Year: 2025, Month: time.February}, DueDate: date(2025, time.February, 21), Status: StatusDone},
		{DossierID: b.ID, Type: TypeCFE, DueDate: date(2025, time.December, 15), Status: StatusTodo},
		{DossierID: a.ID, Type: TypeVAT, DueDate: date(2025, time.March, 21), Status: StatusTodo},
	}

	m := BuildMatrix([]Dossier{b, a}, obligations, TypeVAT, months, today)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "Atelier", m.Rows[0].DossierName)
	require.NotNil(t, m.Rows[0].Cells[2].Obligation)
	assert.Equal(t, UrgencySoon, m.Rows[0].Cells[2].Obligation.Urgency)
	assert.Nil(t, m.Rows[0].Cells[1].Obligation)

	require.NotNil(t, m.Rows[1].Cells[1].Obligation)
	assert.Equal(t, StatusDone, m.Rows[1].Cells[1].Obligation.Status)
	for _, cell := range m.Rows[1].Cells {
		if cell.Obligation != nil {
			assert.Equal(t, TypeVAT, cell.Obligation.Type, fmt.Sprint(cell.Period))
		}
	}
}
