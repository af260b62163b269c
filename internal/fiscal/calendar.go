package fiscal

import "time"

// defaultDueDay is the day of month used for every non-VAT deadline.
const defaultDueDay = 15

// Installment identifies one corporate-tax payment within a fiscal year.
type Installment string

const (
	InstallmentFirst   Installment = "acompte_1"
	InstallmentSecond  Installment = "acompte_2"
	InstallmentThird   Installment = "acompte_3"
	InstallmentFourth  Installment = "acompte_4"
	InstallmentBalance Installment = "solde"
)

type installmentRule struct {
	installment Installment
	month       time.Month
	label       string
}

var corporateTaxInstallments = []installmentRule{
	{InstallmentFirst, time.March, "1er acompte IS"},
	{InstallmentBalance, time.May, "Solde IS"},
	{InstallmentSecond, time.June, "2e acompte IS"},
	{InstallmentThird, time.September, "3e acompte IS"},
	{InstallmentFourth, time.December, "4e acompte IS"},
}

var annualDueMonths = map[ObligationType]time.Month{
	TypeCFE:    time.December,
	TypeCVAE:   time.May,
	TypeLiasse: time.May,
}

var quarterlyVATMonths = map[time.Month]bool{
	time.January: true,
	time.April:   true,
	time.July:    true,
	time.October: true,
}

const annualVATMonth = time.May

// Valid reports whether the installment is one of the five known payments.
func (i Installment) Valid() bool {
	_, ok := installmentRuleOf(i)
	return ok
}

// Label returns the French display label.
func (i Installment) Label() string {
	rule, ok := installmentRuleOf(i)
	if !ok {
		return ""
	}
	return rule.label
}

func installmentRuleOf(i Installment) (installmentRule, bool) {
	for _, rule := range corporateTaxInstallments {
		if rule.installment == i {
			return rule, true
		}
	}
	return installmentRule{}, false
}

// InstallmentFor returns the corporate-tax installment due in the period, if any.
func InstallmentFor(period Period) (Installment, bool) {
	for _, rule := range corporateTaxInstallments {
		if rule.month == period.Month {
			return rule.installment, true
		}
	}
	return "", false
}

// InstallmentDueDate returns the due date of an installment for a fiscal year.
func InstallmentDueDate(year int, installment Installment) (time.Time, bool) {
	rule, ok := installmentRuleOf(installment)
	if !ok {
		return time.Time{}, false
	}
	return Period{Year: year, Month: rule.month}.Day(defaultDueDay), true
}

// IsApplicable reports whether an obligation type applies to a reporting period.
// Unknown VAT modes behave as monthly filing.
func IsApplicable(profile Profile, t ObligationType, period Period) bool {
	switch t {
	case TypeVAT:
		return vatApplicable(profile.VATMode, period.Month)
	case TypeCorporateTax:
		if profile.Regime != RegimeIS {
			return false
		}
		_, ok := InstallmentFor(period)
		return ok
	case TypeCFE:
		return period.Month == annualDueMonths[TypeCFE]
	case TypeCVAE, TypeLiasse:
		if profile.Regime == RegimeMicro {
			return false
		}
		return period.Month == annualDueMonths[t]
	case TypeOther:
		return true
	}
	return false
}

func vatApplicable(mode VATMode, month time.Month) bool {
	switch mode.Normalize() {
	case VATExempt:
		return false
	case VATQuarterly:
		return quarterlyVATMonths[month]
	case VATAnnual:
		return month == annualVATMonth
	default:
		return true
	}
}

// DueDate returns the deadline of an obligation for a reporting period. The
// boolean is false when the type does not apply to the period.
func DueDate(profile Profile, t ObligationType, period Period) (time.Time, bool) {
	if !IsApplicable(profile, t, period) {
		return time.Time{}, false
	}
	if t == TypeVAT {
		return period.Next().Day(profile.dueDay()), true
	}
	return period.Day(defaultDueDay), true
}

// DuePeriod maps a reporting period to the month holding its deadline.
func DuePeriod(t ObligationType, reporting Period) Period {
	if t == TypeVAT {
		return reporting.Next()
	}
	return reporting
}

// ReportingPeriod maps a due month back to the reporting period it settles.
func ReportingPeriod(t ObligationType, due Period) Period {
	if t == TypeVAT {
		return due.Prev()
	}
	return due
}

// DueDateForKey derives the deadline of an obligation identified by its due month.
func DueDateForKey(profile Profile, t ObligationType, due Period) (time.Time, bool) {
	return DueDate(profile, t, ReportingPeriod(t, due))
}
