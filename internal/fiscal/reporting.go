package fiscal

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	// LateListLimit caps the dashboard late list.
	LateListLimit = 10
	// NearTermListLimit caps the dashboard near-term list.
	NearTermListLimit = 6
	// MatrixMonthsBefore and MatrixMonthCount frame the dashboard matrix around today.
	MatrixMonthsBefore = 2
	MatrixMonthCount   = 14
)

// Ranked is a capped, ordered selection of obligations.
type Ranked struct {
	Items     []Annotated `json:"items"`
	Total     int         `json:"total"`
	Remaining int         `json:"remaining"`
}

// LateList returns late obligations, earliest due first, capped at limit.
// Resolved obligations and those without a due date never appear.
func LateList(obligations []Obligation, today time.Time, limit int) Ranked {
	return rankBy(obligations, today, UrgencyLate, limit)
}

// NearTermList returns obligations due within the dashboard threshold.
func NearTermList(obligations []Obligation, today time.Time, limit int) Ranked {
	return rankBy(obligations, today, UrgencyUrgent, limit)
}

func rankBy(obligations []Obligation, today time.Time, want Urgency, limit int) Ranked {
	matched := make([]Annotated, 0)
	for _, o := range obligations {
		a := annotate(o, today, DashboardUrgentDays)
		if a.Urgency == want {
			matched = append(matched, a)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].DueDate.Before(matched[j].DueDate)
	})
	out := Ranked{Total: len(matched), Items: matched}
	if limit > 0 && len(matched) > limit {
		out.Items = matched[:limit]
		out.Remaining = len(matched) - limit
	}
	return out
}

// ProgressSeverity colours a collaborator's monthly progress.
type ProgressSeverity string

const (
	SeverityUrgent  ProgressSeverity = "urgent"
	SeverityGood    ProgressSeverity = "good"
	SeverityWarning ProgressSeverity = "warning"
	SeverityTodo    ProgressSeverity = "todo"
)

// Progress is one collaborator's completion for the current month.
type Progress struct {
	Collaborator Collaborator     `json:"collaborator"`
	Total        int              `json:"total"`
	Done         int              `json:"done"`
	Late         int              `json:"late"`
	Percentage   int              `json:"percentage"`
	Severity     ProgressSeverity `json:"severity"`
}

func severityOf(percentage, late int) ProgressSeverity {
	switch {
	case late > 0:
		return SeverityUrgent
	case percentage >= 80:
		return SeverityGood
	case percentage >= 50:
		return SeverityWarning
	default:
		return SeverityTodo
	}
}

// CollaboratorProgress computes, for each collaborator, the share of this
// month's obligations done on the dossiers they manage. Collaborators with no
// obligations this month are left out. Sorted by percentage, highest first.
func CollaboratorProgress(collaborators []Collaborator, dossiers []Dossier, obligations []Obligation, today time.Time) []Progress {
	managerOf := make(map[uuid.UUID]uuid.UUID, len(dossiers))
	for _, d := range dossiers {
		if d.ManagerID.Valid {
			managerOf[d.ID] = d.ManagerID.UUID
		}
	}
	month := PeriodOf(today)
	type counter struct{ total, done, late int }
	counts := make(map[uuid.UUID]*counter)
	for _, o := range obligations {
		if !o.Status.Actionable() || !o.HasDueDate() || !month.Contains(o.DueDate) {
			continue
		}
		manager, ok := managerOf[o.DossierID]
		if !ok {
			continue
		}
		c := counts[manager]
		if c == nil {
			c = &counter{}
			counts[manager] = c
		}
		c.total++
		if o.Status == StatusDone {
			c.done++
		} else if ClassifyDashboard(o, today) == UrgencyLate {
			c.late++
		}
	}

	out := make([]Progress, 0, len(collaborators))
	for _, collab := range collaborators {
		c := counts[collab.ID]
		if c == nil || c.total == 0 {
			continue
		}
		pct := int(math.Round(100 * float64(c.done) / float64(c.total)))
		out = append(out, Progress{
			Collaborator: collab,
			Total:        c.total,
			Done:         c.done,
			Late:         c.late,
			Percentage:   pct,
			Severity:     severityOf(pct, c.late),
		})
	}
	col := newCollator()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		return col.CompareString(out[i].Collaborator.FullName, out[j].Collaborator.FullName) < 0
	})
	return out
}

// PortfolioEntry summarises one dossier for the portfolio list.
type PortfolioEntry struct {
	Dossier Dossier `json:"dossier"`
	Total   int     `json:"total"`
	Pending int     `json:"pending"`
	Done    int     `json:"done"`
	Late    int     `json:"late"`
	HasLate bool    `json:"has_late"`
}

// SortPortfolio orders dossiers with late obligations first, then by name
// using French collation.
func SortPortfolio(dossiers []Dossier, obligations []Obligation, today time.Time) []PortfolioEntry {
	entries := make([]PortfolioEntry, len(dossiers))
	index := make(map[uuid.UUID]int, len(dossiers))
	for i, d := range dossiers {
		entries[i] = PortfolioEntry{Dossier: d}
		index[d.ID] = i
	}
	for _, o := range obligations {
		i, ok := index[o.DossierID]
		if !ok || !o.Status.Actionable() {
			continue
		}
		e := &entries[i]
		e.Total++
		switch {
		case o.Status == StatusDone:
			e.Done++
		case ClassifyDashboard(o, today) == UrgencyLate:
			e.Late++
			e.Pending++
		default:
			e.Pending++
		}
	}
	for i := range entries {
		entries[i].HasLate = entries[i].Late > 0
	}
	col := newCollator()
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].HasLate != entries[j].HasLate {
			return entries[i].HasLate
		}
		return col.CompareString(entries[i].Dossier.Name, entries[j].Dossier.Name) < 0
	})
	return entries
}

// Stats are the headline counters of the dashboard.
type Stats struct {
	Month          Period `json:"month"`
	ActiveDossiers int    `json:"active_dossiers"`
	MonthTotal     int    `json:"month_total"`
	MonthDone      int    `json:"month_done"`
	MonthTodo      int    `json:"month_todo"`
	Late           int    `json:"late"`
}

// MonthStats counts active dossiers, this month's obligations and late ones.
// Credit and néant obligations are left out of the month counts.
func MonthStats(dossiers []Dossier, obligations []Obligation, today time.Time) Stats {
	stats := Stats{Month: PeriodOf(today)}
	for _, d := range dossiers {
		if d.IsActive {
			stats.ActiveDossiers++
		}
	}
	for _, o := range obligations {
		if ClassifyDashboard(o, today) == UrgencyLate {
			stats.Late++
		}
		if !o.Status.Actionable() || !o.HasDueDate() || !stats.Month.Contains(o.DueDate) {
			continue
		}
		stats.MonthTotal++
		switch o.Status {
		case StatusDone:
			stats.MonthDone++
		case StatusTodo:
			stats.MonthTodo++
		}
	}
	return stats
}

// AmountTotals sums obligation amounts. Negative amounts are credits.
type AmountTotals struct {
	Payable decimal.Decimal `json:"payable"`
	Credit  decimal.Decimal `json:"credit"`
	Net     decimal.Decimal `json:"net"`
}

// ObligationTotals sums payable amounts and credits; net is payable minus credit.
func ObligationTotals(obligations []Obligation) AmountTotals {
	totals := AmountTotals{Payable: decimal.Zero, Credit: decimal.Zero}
	for _, o := range obligations {
		if !o.Amount.Valid {
			continue
		}
		if o.Amount.Decimal.IsNegative() {
			totals.Credit = totals.Credit.Add(o.Amount.Decimal.Neg())
			continue
		}
		totals.Payable = totals.Payable.Add(o.Amount.Decimal)
	}
	totals.Net = totals.Payable.Sub(totals.Credit)
	return totals
}

// MatrixMonths returns the dashboard month window around today.
func MatrixMonths(today time.Time) []Period {
	return PeriodRange(PeriodOf(today).AddMonths(-MatrixMonthsBefore), MatrixMonthCount)
}

// MatrixCell is one dossier-month of the matrix; Obligation is nil when absent.
type MatrixCell struct {
	Period     Period     `json:"period"`
	Obligation *Annotated `json:"obligation,omitempty"`
}

// MatrixRow is one dossier of the matrix.
type MatrixRow struct {
	DossierID   uuid.UUID    `json:"dossier_id"`
	DossierCode string       `json:"dossier_code,omitempty"`
	DossierName string       `json:"dossier_name"`
	Cells       []MatrixCell `json:"cells"`
}

// Matrix is the dossier by month grid for one obligation type.
type Matrix struct {
	Type   ObligationType `json:"type"`
	Months []Period       `json:"months"`
	Rows   []MatrixRow    `json:"rows"`
}

// BuildMatrix places each obligation of the type in its due month. Dossiers are
// ordered by name using French collation.
func BuildMatrix(dossiers []Dossier, obligations []Obligation, t ObligationType, months []Period, today time.Time) Matrix {
	type cellKey struct {
		dossier uuid.UUID
		period  Period
	}
	cells := make(map[cellKey]Annotated)
	for _, o := range obligations {
		if o.Type != t {
			continue
		}
		key := o.Key()
		if key.Period.IsZero() {
			continue
		}
		cells[cellKey{o.DossierID, key.Period}] = annotate(o, today, DashboardUrgentDays)
	}

	sorted := append([]Dossier(nil), dossiers...)
	col := newCollator()
	sort.SliceStable(sorted, func(i, j int) bool {
		return col.CompareString(sorted[i].Name, sorted[j].Name) < 0
	})

	m := Matrix{Type: t, Months: months, Rows: make([]MatrixRow, 0, len(sorted))}
	for _, d := range sorted {
		row := MatrixRow{DossierID: d.ID, DossierCode: d.Code, DossierName: d.Name, Cells: make([]MatrixCell, 0, len(months))}
		for _, p := range months {
			cell := MatrixCell{Period: p}
			if a, ok := cells[cellKey{d.ID, p}]; ok {
				cell.Obligation = &a
			}
			row.Cells = append(row.Cells, cell)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// collate.Collator keeps internal buffers, so each call builds its own.
func newCollator() *collate.Collator {
	return collate.New(language.French)
}
