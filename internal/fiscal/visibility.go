package fiscal

import "time"

// VisibilityWindowDays is how long before its deadline a non-VAT obligation surfaces.
const VisibilityWindowDays = 30

// IsVisible reports whether an obligation should be surfaced on the given day.
// Resolved obligations always are; obligations without a due date never are.
func IsVisible(o Obligation, today time.Time) bool {
	if o.Status.Resolved() {
		return true
	}
	if !o.HasDueDate() {
		return false
	}
	return !Day(today).Before(VisibleFrom(o.Type, o.DueDate))
}

// VisibleFrom returns the first day an unresolved obligation due on due is surfaced.
func VisibleFrom(t ObligationType, due time.Time) time.Time {
	if t == TypeVAT {
		// The reporting period has elapsed once the due month starts.
		return PeriodOf(due).Start()
	}
	return Day(due).AddDate(0, 0, -VisibilityWindowDays)
}

// FilterVisible keeps the visible obligations and reports those skipped for
// missing data.
func FilterVisible(obligations []Obligation, today time.Time) ([]Obligation, []DataIssue) {
	visible := make([]Obligation, 0, len(obligations))
	var issues []DataIssue
	for _, o := range obligations {
		if !o.Status.Resolved() && !o.HasDueDate() {
			issues = append(issues, missingDueDate(o))
			continue
		}
		if IsVisible(o, today) {
			visible = append(visible, o)
		}
	}
	return visible, issues
}
