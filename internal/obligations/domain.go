package obligations

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/shared"
)

var (
	// ErrNotFound is returned when an obligation does not exist.
	ErrNotFound = fmt.Errorf("obligations: obligation %w", httpx.ErrNotFound)
	// ErrKeyTaken is returned when a due date change moves an obligation onto
	// an existing natural key.
	ErrKeyTaken = fmt.Errorf("obligations: period already tracked: %w", httpx.ErrDuplicate)
	// ErrNotApplicable is returned when the calendar yields no due date for a
	// new obligation and none was supplied.
	ErrNotApplicable = fmt.Errorf("obligations: no due date for this type and period: %w", httpx.ErrValidation)
)

// Filter selects obligations for aggregate views. Unresolved obligations are
// always returned up to DueTo; resolved ones only from ResolvedFrom.
type Filter struct {
	BranchID     uuid.NullUUID
	DossierID    uuid.NullUUID
	Type         fiscal.ObligationType
	ActiveOnly   bool
	ResolvedFrom time.Time
	DueTo        time.Time
}

// UpdateInput is the JSON body of an obligation upsert.
type UpdateInput struct {
	Status      *string          `json:"status" validate:"omitempty,oneof=a_faire fait retard credit neant"`
	DueDate     *string          `json:"due_date"`
	Amount      *decimal.Decimal `json:"amount"`
	ClearAmount bool             `json:"clear_amount"`
	Comment     *string          `json:"comment" validate:"omitempty,max=2000"`
}

// Changes converts the input into engine changes.
func (in UpdateInput) Changes() (fiscal.ObligationChanges, error) {
	var ch fiscal.ObligationChanges
	if in.Status != nil {
		status, err := fiscal.ParseStatus(*in.Status)
		if err != nil {
			return ch, fmt.Errorf("obligations: %v: %w", err, httpx.ErrValidation)
		}
		ch.Status = &status
	}
	if in.DueDate != nil && strings.TrimSpace(*in.DueDate) != "" {
		due, err := fiscal.ParseDate(*in.DueDate)
		if err != nil {
			return ch, fmt.Errorf("obligations: due date: %w", httpx.ErrValidation)
		}
		ch.DueDate = &due
	}
	if in.Amount != nil {
		amount := in.Amount.Round(2)
		ch.Amount = &amount
	}
	ch.ClearAmount = in.ClearAmount
	if in.Comment != nil {
		comment := shared.SanitizeText(*in.Comment)
		ch.Comment = &comment
	}
	return ch, nil
}

// Detail is the single-dossier obligation view for a year.
type Detail struct {
	Dossier     fiscal.Dossier      `json:"dossier"`
	Year        int                 `json:"year"`
	Today       string              `json:"today"`
	Obligations []fiscal.Annotated  `json:"obligations"`
	Totals      fiscal.AmountTotals `json:"totals"`
	Worksheet   Worksheet           `json:"worksheet"`
	Issues      []fiscal.DataIssue  `json:"issues,omitempty"`
}

// Worksheet is the type by month grid of one dossier's year.
type Worksheet struct {
	Months []fiscal.Period `json:"months"`
	Rows   []WorksheetRow  `json:"rows"`
}

// WorksheetRow holds one obligation type across the months of the year.
type WorksheetRow struct {
	Type  fiscal.ObligationType `json:"type"`
	Cells []fiscal.MatrixCell   `json:"cells"`
}

// BuildWorksheet places every dated obligation in its due month.
func BuildWorksheet(year int, obligations []fiscal.Obligation, today time.Time) Worksheet {
	months := fiscal.YearPeriods(year)
	index := make(map[fiscal.ObligationType]map[fiscal.Period]fiscal.Annotated)
	for _, a := range fiscal.Annotate(obligations, today, fiscal.DetailUrgentDays) {
		if !a.HasDueDate() {
			continue
		}
		byPeriod := index[a.Type]
		if byPeriod == nil {
			byPeriod = make(map[fiscal.Period]fiscal.Annotated)
			index[a.Type] = byPeriod
		}
		byPeriod[a.Key().Period] = a
	}
	ws := Worksheet{Months: months}
	for _, t := range fiscal.ObligationTypes {
		byPeriod, ok := index[t]
		if !ok {
			continue
		}
		row := WorksheetRow{Type: t, Cells: make([]fiscal.MatrixCell, 0, len(months))}
		for _, p := range months {
			cell := fiscal.MatrixCell{Period: p}
			if a, ok := byPeriod[p]; ok {
				cell.Obligation = &a
			}
			row.Cells = append(row.Cells, cell)
		}
		ws.Rows = append(ws.Rows, row)
	}
	return ws
}

// GenerateResult summarises a schedule generation run.
type GenerateResult struct {
	Year     int `json:"year"`
	Dossiers int `json:"dossiers"`
	Created  int `json:"created"`
	Failed   int `json:"failed"`
}
