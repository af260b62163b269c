package fiscal

import (
	"fmt"
	"time"
)

// Urgency is the derived state of an obligation relative to today.
type Urgency string

const (
	UrgencyLate    Urgency = "late"
	UrgencyUrgent  Urgency = "urgent"
	UrgencySoon    Urgency = "soon"
	UrgencyDone    Urgency = "done"
	UrgencyUnknown Urgency = "unknown"
)

const (
	// DashboardUrgentDays is the urgent threshold of portfolio-wide views.
	DashboardUrgentDays = 5
	// DetailUrgentDays is the urgent threshold of the single-dossier view.
	DetailUrgentDays = 7
)

// DaysUntilDue counts civil days from today to the due date; negative when past.
func DaysUntilDue(due, today time.Time) int {
	return DaysBetween(today, due)
}

// Classify derives the urgency of an obligation. The threshold is inclusive.
// Credit and néant report done; a missing due date reports unknown. A stored
// retard status does not override the date.
func Classify(o Obligation, today time.Time, thresholdDays int) Urgency {
	if o.Status.Resolved() {
		return UrgencyDone
	}
	if !o.HasDueDate() {
		return UrgencyUnknown
	}
	days := DaysUntilDue(o.DueDate, today)
	switch {
	case days < 0:
		return UrgencyLate
	case days <= thresholdDays:
		return UrgencyUrgent
	default:
		return UrgencySoon
	}
}

// ClassifyDashboard classifies with the portfolio threshold.
func ClassifyDashboard(o Obligation, today time.Time) Urgency {
	return Classify(o, today, DashboardUrgentDays)
}

// ClassifyDetail classifies with the single-dossier threshold.
func ClassifyDetail(o Obligation, today time.Time) Urgency {
	return Classify(o, today, DetailUrgentDays)
}

// Annotated pairs an obligation with its derived urgency.
type Annotated struct {
	Obligation
	Urgency      Urgency `json:"urgency"`
	DaysUntilDue int     `json:"days_until_due"`
	DueLabel     string  `json:"due_label"`
	DossierName  string  `json:"dossier_name,omitempty"`
}

// DaysLate is the number of days past due, zero when not late.
func (a Annotated) DaysLate() int {
	if a.DaysUntilDue < 0 {
		return -a.DaysUntilDue
	}
	return 0
}

// Annotate classifies each obligation against the threshold.
func Annotate(obligations []Obligation, today time.Time, thresholdDays int) []Annotated {
	out := make([]Annotated, 0, len(obligations))
	for _, o := range obligations {
		out = append(out, annotate(o, today, thresholdDays))
	}
	return out
}

func annotate(o Obligation, today time.Time, thresholdDays int) Annotated {
	a := Annotated{Obligation: o, Urgency: Classify(o, today, thresholdDays)}
	if o.HasDueDate() {
		a.DaysUntilDue = DaysUntilDue(o.DueDate, today)
	}
	a.DueLabel = DueLabel(a.Urgency, a.DaysUntilDue)
	return a
}

// DueLabel renders the French relative-deadline label.
func DueLabel(u Urgency, daysUntilDue int) string {
	switch {
	case u == UrgencyDone:
		return "Terminé"
	case u == UrgencyUnknown:
		return "Échéance inconnue"
	case daysUntilDue < -1:
		return fmt.Sprintf("%d jours de retard", -daysUntilDue)
	case daysUntilDue == -1:
		return "1 jour de retard"
	case daysUntilDue == 0:
		return "Aujourd'hui"
	case daysUntilDue == 1:
		return "Demain"
	default:
		return fmt.Sprintf("Dans %d jours", daysUntilDue)
	}
}
