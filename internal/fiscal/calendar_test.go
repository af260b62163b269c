package fiscal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthlyVATDueOnConfiguredDayOfFollowingMonth(t *testing.T) {
	profile := Profile{Regime: RegimeIS, VATMode: VATMonthly, VATDueDay: 21}

	due, ok := DueDate(profile, TypeVAT, Period{Year: 2025, Month: time.January})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.February, 21), due)

	due, ok = DueDate(profile, TypeVAT, Period{Year: 2025, Month: time.December})
	require.True(t, ok)
	assert.Equal(t, date(2026, time.January, 21), due)
}

func TestQuarterlyVATApplicability(t *testing.T) {
	profile := Profile{Regime: RegimeIR, VATMode: VATQuarterly, VATDueDay: 19}

	assert.False(t, IsApplicable(profile, TypeVAT, Period{Year: 2025, Month: time.February}))
	for _, m := range []time.Month{time.January, time.April, time.July, time.October} {
		assert.True(t, IsApplicable(profile, TypeVAT, Period{Year: 2025, Month: m}), "month %s", m)
	}

	_, ok := DueDate(profile, TypeVAT, Period{Year: 2025, Month: time.February})
	assert.False(t, ok)
	due, ok := DueDate(profile, TypeVAT, Period{Year: 2025, Month: time.April})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.May, 19), due)
}

func TestVATModeFallbacks(t *testing.T) {
	exempt := Profile{Regime: RegimeMicro, VATMode: VATExempt}
	for _, p := range YearPeriods(2025) {
		assert.False(t, IsApplicable(exempt, TypeVAT, p))
	}

	annual := Profile{VATMode: VATAnnual}
	assert.True(t, IsApplicable(annual, TypeVAT, Period{Year: 2025, Month: time.May}))
	assert.False(t, IsApplicable(annual, TypeVAT, Period{Year: 2025, Month: time.June}))

	unknown := Profile{Regime: Regime("???"), VATMode: VATMode("weekly")}
	assert.True(t, IsApplicable(unknown, TypeVAT, Period{Year: 2025, Month: time.August}))
	due, ok := DueDate(unknown, TypeVAT, Period{Year: 2025, Month: time.August})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.September, DefaultVATDueDay), due)
	assert.False(t, IsApplicable(unknown, TypeCorporateTax, Period{Year: 2025, Month: time.March}))
}

func TestVATDueDayIsClamped(t *testing.T) {
	due, ok := DueDate(Profile{VATMode: VATMonthly, VATDueDay: 3}, TypeVAT, Period{Year: 2025, Month: time.March})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.April, MinVATDueDay), due)

	due, ok = DueDate(Profile{VATMode: VATMonthly, VATDueDay: 31}, TypeVAT, Period{Year: 2025, Month: time.March})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.April, MaxVATDueDay), due)
}

func TestCorporateTaxInstallments(t *testing.T) {
	profile := Profile{Regime: RegimeIS, VATMode: VATMonthly}

	cases := []struct {
		month       time.Month
		installment Installment
	}{
		{time.March, InstallmentFirst},
		{time.May, InstallmentBalance},
		{time.June, InstallmentSecond},
		{time.September, InstallmentThird},
		{time.December, InstallmentFourth},
	}
	for _, tc := range cases {
		period := Period{Year: 2025, Month: tc.month}
		inst, ok := InstallmentFor(period)
		require.True(t, ok)
		assert.Equal(t, tc.installment, inst)

		due, ok := DueDate(profile, TypeCorporateTax, period)
		require.True(t, ok)
		assert.Equal(t, date(2025, tc.month, 15), due)

		byID, ok := InstallmentDueDate(2025, tc.installment)
		require.True(t, ok)
		assert.Equal(t, due, byID)
	}

	assert.False(t, IsApplicable(profile, TypeCorporateTax, Period{Year: 2025, Month: time.April}))
	assert.False(t, IsApplicable(Profile{Regime: RegimeIR}, TypeCorporateTax, Period{Year: 2025, Month: time.March}))
	_, ok := InstallmentDueDate(2025, Installment("acompte_9"))
	assert.False(t, ok)
}

func TestAnnualObligationsUseFixedMonths(t *testing.T) {
	profile := Profile{Regime: RegimeReelNormal, VATMode: VATQuarterly}

	due, ok := DueDate(profile, TypeCFE, Period{Year: 2025, Month: time.December})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.December, 15), due)
	assert.False(t, IsApplicable(profile, TypeCFE, Period{Year: 2025, Month: time.May}))

	due, ok = DueDate(profile, TypeLiasse, Period{Year: 2025, Month: time.May})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.May, 15), due)

	micro := Profile{Regime: RegimeMicro}
	assert.False(t, IsApplicable(micro, TypeLiasse, Period{Year: 2025, Month: time.May}))
	assert.False(t, IsApplicable(micro, TypeCVAE, Period{Year: 2025, Month: time.May}))
	assert.True(t, IsApplicable(micro, TypeCFE, Period{Year: 2025, Month: time.December}))
}

func TestDuePeriodMapping(t *testing.T) {
	jan := Period{Year: 2025, Month: time.January}
	assert.Equal(t, Period{Year: 2025, Month: time.February}, DuePeriod(TypeVAT, jan))
	assert.Equal(t, jan, ReportingPeriod(TypeVAT, Period{Year: 2025, Month: time.February}))
	assert.Equal(t, jan, DuePeriod(TypeOther, jan))

	due, ok := DueDateForKey(Profile{VATMode: VATMonthly, VATDueDay: 20}, TypeVAT, Period{Year: 2025, Month: time.February})
	require.True(t, ok)
	assert.Equal(t, date(2025, time.February, 20), due)
}

func TestScheduleForCorporateTaxDossier(t *testing.T) {
	d := Dossier{ID: uuid.New(), Regime: RegimeIS, VATMode: VATQuarterly, VATDueDay: 24}

	seeds := Schedule(d, 2025)
	counts := map[ObligationType]int{}
	for _, s := range seeds {
		counts[s.Type]++
		assert.Equal(t, d.ID, s.DossierID)
		assert.Equal(t, PeriodOf(s.DueDate), s.Period)
	}
	assert.Equal(t, 4, counts[TypeVAT])
	assert.Equal(t, 5, counts[TypeCorporateTax])
	assert.Equal(t, 1, counts[TypeCFE])
	assert.Equal(t, 1, counts[TypeCVAE])
	assert.Equal(t, 1, counts[TypeLiasse])

	for i := 1; i < len(seeds); i++ {
		assert.False(t, seeds[i].DueDate.Before(seeds[i-1].DueDate), "seeds must be ordered by due date")
	}

	keys := map[ObligationKey]bool{}
	for _, s := range seeds {
		require.False(t, keys[s.Key()], "duplicate key %+v", s.Key())
		keys[s.Key()] = true
	}

	first := seeds[0]
	assert.Equal(t, TypeVAT, first.Type)
	assert.Equal(t, date(2025, time.February, 24), first.DueDate)
	assert.Equal(t, StatusTodo, first.Obligation().Status)

	for _, s := range seeds {
		if s.Type == TypeCorporateTax && s.Period.Month == time.May {
			assert.Equal(t, InstallmentBalance, s.Installment)
		}
	}
}

func TestScheduleForExemptMicroDossier(t *testing.T) {
	d := Dossier{ID: uuid.New(), Regime: RegimeMicro, VATMode: VATExempt}
	seeds := Schedule(d, 2025)
	require.Len(t, seeds, 1)
	assert.Equal(t, TypeCFE, seeds[0].Type)
}
