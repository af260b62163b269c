package fiscal

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Step is one of the six VAT workflow checkpoints.
type Step int

const (
	StepDocumentsReceived Step = iota
	StepEntryPosted
	StepFileReviewed
	StepComputationSent
	StepFiledElectronically
	StepValidated
)

// StepCount is the number of workflow steps.
const StepCount = 6

var stepDefs = [StepCount]struct {
	code  string
	label string
}{
	{"compta_recue", "Compta reçue"},
	{"saisie_faite", "Saisie faite"},
	{"dossier_revise", "Dossier révisé"},
	{"calcul_envoye", "Calcul envoyé"},
	{"teletransmis", "Télétransmis"},
	{"valide", "Validé"},
}

// Steps returns the workflow steps in display order.
func Steps() []Step {
	steps := make([]Step, StepCount)
	for i := range steps {
		steps[i] = Step(i)
	}
	return steps
}

// Valid reports whether the step is one of the six.
func (s Step) Valid() bool {
	return s >= 0 && int(s) < StepCount
}

// Code returns the wire code of the step.
func (s Step) Code() string {
	if !s.Valid() {
		return ""
	}
	return stepDefs[s].code
}

// Label returns the French display label.
func (s Step) Label() string {
	if !s.Valid() {
		return ""
	}
	return stepDefs[s].label
}

// ParseStep accepts a step code, with or without the "step_" prefix.
func ParseStep(raw string) (Step, error) {
	code := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "step_")
	for i, def := range stepDefs {
		if def.code == code {
			return Step(i), nil
		}
	}
	return 0, ErrUnknownStep
}

// VATStatus is the derived state of a VAT period.
type VATStatus string

const (
	VATStatusDone     VATStatus = "done"
	VATStatusProgress VATStatus = "progress"
	VATStatusTodo     VATStatus = "todo"
	VATStatusNA       VATStatus = "na"
)

// Label returns the French display label.
func (s VATStatus) Label() string {
	switch s {
	case VATStatusDone:
		return "Validé"
	case VATStatusProgress:
		return "En cours"
	case VATStatusNA:
		return "N/A"
	default:
		return "À faire"
	}
}

// VATRecord holds the workflow progress of one dossier for one VAT period.
type VATRecord struct {
	ID          uuid.UUID       `json:"id"`
	DossierID   uuid.UUID       `json:"dossier_id"`
	Period      Period          `json:"period"`
	Steps       [StepCount]bool `json:"steps"`
	Amount      decimal.Decimal `json:"amount"`
	Credit      decimal.Decimal `json:"credit"`
	Note        string          `json:"note,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CompletedBy uuid.NullUUID   `json:"completed_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Step reports whether a step is checked.
func (r *VATRecord) Step(s Step) bool {
	if r == nil || !s.Valid() {
		return false
	}
	return r.Steps[s]
}

// SetStep sets one flag. Only the validation step stamps or clears completion.
// Steps are independent; no ordering is enforced.
func (r *VATRecord) SetStep(s Step, value bool, actor uuid.NullUUID, now time.Time) {
	if !s.Valid() {
		return
	}
	r.Steps[s] = value
	if s != StepValidated {
		return
	}
	if value {
		stamp := now
		r.CompletedAt = &stamp
		r.CompletedBy = actor
		return
	}
	r.CompletedAt = nil
	r.CompletedBy = uuid.NullUUID{}
}

// CompletedSteps counts checked steps.
func (r *VATRecord) CompletedSteps() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, done := range r.Steps {
		if done {
			n++
		}
	}
	return n
}

// NextStep returns the first unchecked step.
func (r *VATRecord) NextStep() (Step, bool) {
	for _, s := range Steps() {
		if !r.Step(s) {
			return s, true
		}
	}
	return 0, false
}

// Net returns amount minus credit.
func (r *VATRecord) Net() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return r.Amount.Sub(r.Credit)
}

// VATDetails is a partial update of the monetary fields and note.
type VATDetails struct {
	Amount *decimal.Decimal
	Credit *decimal.Decimal
	Note   *string
}

// ApplyDetails merges the provided fields, leaving steps untouched.
func (r *VATRecord) ApplyDetails(d VATDetails) {
	if d.Amount != nil {
		r.Amount = *d.Amount
	}
	if d.Credit != nil {
		r.Credit = *d.Credit
	}
	if d.Note != nil {
		r.Note = *d.Note
	}
}

// VATChanges combines step toggles and detail updates for one upsert.
type VATChanges struct {
	Steps   map[Step]bool
	Details VATDetails
}

// Empty reports whether the changes carry nothing to apply.
func (c VATChanges) Empty() bool {
	return len(c.Steps) == 0 && c.Details.Amount == nil && c.Details.Credit == nil && c.Details.Note == nil
}

// Apply merges step toggles in step order, then details.
func (r *VATRecord) Apply(c VATChanges, actor uuid.NullUUID, now time.Time) {
	for _, s := range Steps() {
		if value, ok := c.Steps[s]; ok {
			r.SetStep(s, value, actor, now)
		}
	}
	r.ApplyDetails(c.Details)
}

// VATStatusOf derives the status of a period. A missing record is to-do.
func VATStatusOf(r *VATRecord, applicable bool) VATStatus {
	if !applicable {
		return VATStatusNA
	}
	if r == nil {
		return VATStatusTodo
	}
	if r.Steps[StepValidated] {
		return VATStatusDone
	}
	for _, s := range Steps()[:StepValidated] {
		if r.Steps[s] {
			return VATStatusProgress
		}
	}
	return VATStatusTodo
}

// VATRow is one month of the VAT worksheet.
type VATRow struct {
	Period         Period     `json:"period"`
	Applicable     bool       `json:"applicable"`
	Status         VATStatus  `json:"status"`
	CompletedSteps int        `json:"completed_steps"`
	Record         *VATRecord `json:"record,omitempty"`
}

// VATTotals aggregates the applicable periods of a year.
type VATTotals struct {
	Amount     decimal.Decimal `json:"amount"`
	Credit     decimal.Decimal `json:"credit"`
	Net        decimal.Decimal `json:"net"`
	Active     int             `json:"active"`
	Done       int             `json:"done"`
	InProgress int             `json:"in_progress"`
	Todo       int             `json:"todo"`
}

// VATYear is the VAT worksheet of a dossier for one year.
type VATYear struct {
	DossierID uuid.UUID `json:"dossier_id"`
	Year      int       `json:"year"`
	Mode      VATMode   `json:"mode"`
	Rows      []VATRow  `json:"rows"`
	Totals    VATTotals `json:"totals"`
}

// BuildVATYear lays out the twelve periods of the year with their status and
// totals over applicable periods only.
func BuildVATYear(d Dossier, year int, records []VATRecord) VATYear {
	byPeriod := make(map[Period]*VATRecord, len(records))
	for i := range records {
		if records[i].DossierID == d.ID || d.ID == uuid.Nil {
			byPeriod[records[i].Period] = &records[i]
		}
	}
	out := VATYear{DossierID: d.ID, Year: year, Mode: d.VATMode.Normalize()}
	totals := VATTotals{Amount: decimal.Zero, Credit: decimal.Zero}
	profile := d.Profile()
	for _, period := range YearPeriods(year) {
		record := byPeriod[period]
		applicable := IsApplicable(profile, TypeVAT, period)
		row := VATRow{
			Period:         period,
			Applicable:     applicable,
			Status:         VATStatusOf(record, applicable),
			CompletedSteps: record.CompletedSteps(),
			Record:         record,
		}
		out.Rows = append(out.Rows, row)
		if !applicable {
			continue
		}
		totals.Active++
		switch row.Status {
		case VATStatusDone:
			totals.Done++
		case VATStatusProgress:
			totals.InProgress++
		default:
			totals.Todo++
		}
		if record != nil {
			totals.Amount = totals.Amount.Add(record.Amount)
			totals.Credit = totals.Credit.Add(record.Credit)
		}
	}
	totals.Net = totals.Amount.Sub(totals.Credit)
	out.Totals = totals
	return out
}
