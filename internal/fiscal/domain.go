// Package fiscal holds the obligation scheduling and status rules for client dossiers.
// Every function is pure: callers capture "today" once and pass it down.
package fiscal

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPeriod indicates a period string that is not YYYY-MM.
	ErrInvalidPeriod = errors.New("fiscal: invalid period")
	// ErrInvalidDate indicates a date string that cannot be parsed.
	ErrInvalidDate = errors.New("fiscal: invalid date")
	// ErrUnknownStep indicates a workflow step code outside the six known steps.
	ErrUnknownStep = errors.New("fiscal: unknown workflow step")
	// ErrUnknownType indicates an obligation type outside the closed set.
	ErrUnknownType = errors.New("fiscal: unknown obligation type")
	// ErrUnknownStatus indicates an obligation status outside the closed set.
	ErrUnknownStatus = errors.New("fiscal: unknown obligation status")
)

// Regime is the tax regime of a dossier.
type Regime string

const (
	RegimeIS            Regime = "IS"
	RegimeIR            Regime = "IR"
	RegimeMicro         Regime = "MICRO"
	RegimeReelSimplifie Regime = "REEL_SIMPLIFIE"
	RegimeReelNormal    Regime = "REEL_NORMAL"
)

// Valid reports whether the regime belongs to the closed set.
func (r Regime) Valid() bool {
	switch r {
	case RegimeIS, RegimeIR, RegimeMicro, RegimeReelSimplifie, RegimeReelNormal:
		return true
	}
	return false
}

// VATMode is the VAT filing cadence of a dossier.
type VATMode string

const (
	VATMonthly   VATMode = "mensuel"
	VATQuarterly VATMode = "trimestriel"
	VATAnnual    VATMode = "annuel"
	VATExempt    VATMode = "non_assujetti"
)

// Valid reports whether the mode belongs to the closed set.
func (m VATMode) Valid() bool {
	switch m {
	case VATMonthly, VATQuarterly, VATAnnual, VATExempt:
		return true
	}
	return false
}

// Normalize maps unknown or empty modes to monthly filing.
func (m VATMode) Normalize() VATMode {
	if m.Valid() {
		return m
	}
	return VATMonthly
}

// Label returns the French display label.
func (m VATMode) Label() string {
	switch m.Normalize() {
	case VATQuarterly:
		return "Trimestriel"
	case VATAnnual:
		return "Annuel"
	case VATExempt:
		return "Non-assujetti"
	default:
		return "Mensuel"
	}
}

// ObligationType identifies a kind of statutory filing.
type ObligationType string

const (
	TypeVAT          ObligationType = "TVA"
	TypeCorporateTax ObligationType = "IS"
	TypeCVAE         ObligationType = "CVAE"
	TypeCFE          ObligationType = "CFE"
	TypeLiasse       ObligationType = "LIASSE"
	TypeOther        ObligationType = "AUTRE"
)

// ObligationTypes lists the closed set in display order.
var ObligationTypes = []ObligationType{TypeVAT, TypeCorporateTax, TypeCVAE, TypeCFE, TypeLiasse, TypeOther}

// Valid reports whether the type belongs to the closed set.
func (t ObligationType) Valid() bool {
	for _, known := range ObligationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseObligationType accepts a type code in any letter case.
func ParseObligationType(raw string) (ObligationType, error) {
	t := ObligationType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrUnknownType
	}
	return t, nil
}

// Status is the explicit status flag stored on an obligation.
type Status string

const (
	StatusTodo   Status = "a_faire"
	StatusDone   Status = "fait"
	StatusLate   Status = "retard"
	StatusCredit Status = "credit"
	StatusNone   Status = "neant"
)

// Valid reports whether the status belongs to the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDone, StatusLate, StatusCredit, StatusNone:
		return true
	}
	return false
}

// ParseStatus accepts a status code in any letter case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

// Resolved reports statuses that need no further work.
func (s Status) Resolved() bool {
	return s == StatusDone || s == StatusCredit || s == StatusNone
}

// Actionable reports statuses that take part in aggregate reporting.
func (s Status) Actionable() bool {
	return s != StatusCredit && s != StatusNone
}

// Label returns the French display label.
func (s Status) Label() string {
	switch s {
	case StatusDone:
		return "Fait"
	case StatusLate:
		return "Retard"
	case StatusCredit:
		return "Crédit"
	case StatusNone:
		return "Néant"
	default:
		return "À faire"
	}
}

// LegalForm is the legal structure of the client company.
type LegalForm string

const (
	LegalFormSAS   LegalForm = "SAS"
	LegalFormSARL  LegalForm = "SARL"
	LegalFormEURL  LegalForm = "EURL"
	LegalFormSA    LegalForm = "SA"
	LegalFormSCI   LegalForm = "SCI"
	LegalFormEI    LegalForm = "EI"
	LegalFormSASU  LegalForm = "SASU"
	LegalFormSNC   LegalForm = "SNC"
	LegalFormOther LegalForm = "AUTRE"
)

// Valid reports whether the legal form belongs to the closed set.
func (f LegalForm) Valid() bool {
	switch f {
	case LegalFormSAS, LegalFormSARL, LegalFormEURL, LegalFormSA, LegalFormSCI,
		LegalFormEI, LegalFormSASU, LegalFormSNC, LegalFormOther:
		return true
	}
	return false
}

const (
	// DefaultVATDueDay applies when a dossier has no configured due day.
	DefaultVATDueDay = 21
	MinVATDueDay     = 15
	MaxVATDueDay     = 25
)

// Profile carries the dossier attributes the calendar depends on.
type Profile struct {
	Regime    Regime
	VATMode   VATMode
	VATDueDay int
}

func (p Profile) dueDay() int {
	switch {
	case p.VATDueDay == 0:
		return DefaultVATDueDay
	case p.VATDueDay < MinVATDueDay:
		return MinVATDueDay
	case p.VATDueDay > MaxVATDueDay:
		return MaxVATDueDay
	}
	return p.VATDueDay
}

// Dossier is a client company record managed by the firm.
type Dossier struct {
	ID          uuid.UUID     `json:"id"`
	BranchID    uuid.UUID     `json:"branch_id"`
	ManagerID   uuid.NullUUID `json:"manager_id"`
	Code        string        `json:"code,omitempty"`
	Name        string        `json:"name"`
	SIREN       string        `json:"siren,omitempty"`
	LegalForm   LegalForm     `json:"legal_form"`
	Regime      Regime        `json:"regime"`
	VATMode     VATMode       `json:"vat_mode"`
	VATDueDay   int           `json:"vat_due_day"`
	ClosingDate *time.Time    `json:"closing_date,omitempty"`
	IsActive    bool          `json:"is_active"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Profile extracts the calendar inputs of the dossier.
func (d Dossier) Profile() Profile {
	return Profile{Regime: d.Regime, VATMode: d.VATMode, VATDueDay: d.VATDueDay}
}

// ObligationKey is the natural key of an obligation instance.
// Period is the year-month of the due date.
type ObligationKey struct {
	DossierID uuid.UUID
	Type      ObligationType
	Period    Period
}

// Obligation is one dated instance of a statutory filing for a dossier.
type Obligation struct {
	ID          uuid.UUID           `json:"id"`
	DossierID   uuid.UUID           `json:"dossier_id"`
	Type        ObligationType      `json:"type"`
	Period      Period              `json:"period"`
	Installment Installment         `json:"installment,omitempty"`
	DueDate     time.Time           `json:"due_date"`
	Status      Status              `json:"status"`
	Amount      decimal.NullDecimal `json:"amount"`
	Comment     string              `json:"comment,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	CompletedBy uuid.NullUUID       `json:"completed_by"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Key returns the natural key of the obligation.
func (o Obligation) Key() ObligationKey {
	period := o.Period
	if period.IsZero() && o.HasDueDate() {
		period = PeriodOf(o.DueDate)
	}
	return ObligationKey{DossierID: o.DossierID, Type: o.Type, Period: period}
}

// HasDueDate reports whether the due date is present.
func (o Obligation) HasDueDate() bool {
	return !o.DueDate.IsZero()
}

// IsCredit reports a negative amount, which records a tax credit.
func (o Obligation) IsCredit() bool {
	return o.Amount.Valid && o.Amount.Decimal.IsNegative()
}

// ObligationChanges is a partial update merged into an obligation.
type ObligationChanges struct {
	Status      *Status
	DueDate     *time.Time
	Amount      *decimal.Decimal
	ClearAmount bool
	Comment     *string
}

// Apply merges changes into the obligation. Completion metadata is stamped when
// the status becomes done and cleared when it leaves done.
func (o *Obligation) Apply(ch ObligationChanges, actor uuid.NullUUID, now time.Time) {
	if ch.DueDate != nil {
		o.DueDate = Day(*ch.DueDate)
		o.Period = PeriodOf(o.DueDate)
	}
	if ch.ClearAmount {
		o.Amount = decimal.NullDecimal{}
	} else if ch.Amount != nil {
		o.Amount = decimal.NullDecimal{Decimal: *ch.Amount, Valid: true}
	}
	if ch.Comment != nil {
		o.Comment = *ch.Comment
	}
	if ch.Status != nil && *ch.Status != o.Status {
		o.Status = *ch.Status
		if o.Status == StatusDone {
			stamp := now
			o.CompletedAt = &stamp
			o.CompletedBy = actor
		} else {
			o.CompletedAt = nil
			o.CompletedBy = uuid.NullUUID{}
		}
	}
	if o.Status == "" {
		o.Status = StatusTodo
	}
}

// Collaborator is a firm employee who manages dossiers.
type Collaborator struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email,omitempty"`
}

// DataIssue reports an obligation skipped because its data is unusable.
type DataIssue struct {
	ObligationID uuid.UUID      `json:"obligation_id"`
	DossierID    uuid.UUID      `json:"dossier_id"`
	Type         ObligationType `json:"type"`
	Reason       string         `json:"reason"`
}

const issueMissingDueDate = "missing due date"

func missingDueDate(o Obligation) DataIssue {
	return DataIssue{ObligationID: o.ID, DossierID: o.DossierID, Type: o.Type, Reason: issueMissingDueDate}
}
