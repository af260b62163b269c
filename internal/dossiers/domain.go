package dossiers

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/shared"
)

var (
	// ErrNotFound is returned when a dossier does not exist.
	ErrNotFound = fmt.Errorf("dossiers: dossier %w", httpx.ErrNotFound)
	// ErrDuplicateCode is returned when the code is already used in the branch.
	ErrDuplicateCode = fmt.Errorf("dossiers: code %w", httpx.ErrDuplicate)
)

// ListFilter narrows dossier listings. Limit zero returns every match.
type ListFilter struct {
	BranchID  uuid.NullUUID
	ManagerID uuid.NullUUID
	Active    *bool
	Search    string
	Limit     int
	Offset    int
}

// CreateInput carries the attributes of a new dossier.
type CreateInput struct {
	BranchID    uuid.UUID        `json:"branch_id" validate:"required"`
	ManagerID   uuid.NullUUID    `json:"manager_id"`
	Code        string           `json:"code" validate:"max=50"`
	Name        string           `json:"name" validate:"required,max=200"`
	SIREN       string           `json:"siren" validate:"max=14"`
	LegalForm   fiscal.LegalForm `json:"legal_form" validate:"required"`
	Regime      fiscal.Regime    `json:"regime" validate:"required"`
	VATMode     fiscal.VATMode   `json:"vat_mode"`
	VATDueDay   int              `json:"vat_due_day" validate:"omitempty,min=15,max=25"`
	ClosingDate string           `json:"closing_date"`
	Notes       string           `json:"notes" validate:"max=2000"`
}

// Validate checks enumerations and normalises free text.
func (in *CreateInput) Validate() error {
	in.Name = shared.SanitizeText(in.Name)
	in.Code = shared.SanitizeText(in.Code)
	in.Notes = shared.SanitizeText(in.Notes)
	in.SIREN = strings.ReplaceAll(strings.TrimSpace(in.SIREN), " ", "")
	if in.BranchID == uuid.Nil {
		return fmt.Errorf("dossiers: branch %w", httpx.ErrValidation)
	}
	if in.Name == "" || len([]rune(in.Name)) > 200 {
		return fmt.Errorf("dossiers: name %w", httpx.ErrValidation)
	}
	if in.SIREN != "" && !isDigits(in.SIREN, 9) {
		return fmt.Errorf("dossiers: siren must be 9 digits: %w", httpx.ErrValidation)
	}
	if !in.LegalForm.Valid() {
		return fmt.Errorf("dossiers: legal form %q: %w", in.LegalForm, httpx.ErrValidation)
	}
	if !in.Regime.Valid() {
		return fmt.Errorf("dossiers: regime %q: %w", in.Regime, httpx.ErrValidation)
	}
	if in.VATMode == "" {
		in.VATMode = fiscal.VATMonthly
	}
	if !in.VATMode.Valid() {
		return fmt.Errorf("dossiers: vat mode %q: %w", in.VATMode, httpx.ErrValidation)
	}
	if in.VATDueDay == 0 {
		in.VATDueDay = fiscal.DefaultVATDueDay
	}
	if in.VATDueDay < fiscal.MinVATDueDay || in.VATDueDay > fiscal.MaxVATDueDay {
		return fmt.Errorf("dossiers: vat due day %d: %w", in.VATDueDay, httpx.ErrValidation)
	}
	if _, err := parseClosingDate(in.ClosingDate); err != nil {
		return err
	}
	return nil
}

func (in CreateInput) dossier(id uuid.UUID, now time.Time) fiscal.Dossier {
	closing, _ := parseClosingDate(in.ClosingDate)
	return fiscal.Dossier{
		ID:          id,
		BranchID:    in.BranchID,
		ManagerID:   in.ManagerID,
		Code:        in.Code,
		Name:        in.Name,
		SIREN:       in.SIREN,
		LegalForm:   in.LegalForm,
		Regime:      in.Regime,
		VATMode:     in.VATMode,
		VATDueDay:   in.VATDueDay,
		ClosingDate: closing,
		IsActive:    true,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	ManagerID   *uuid.NullUUID    `json:"manager_id"`
	Code        *string           `json:"code" validate:"omitempty,max=50"`
	Name        *string           `json:"name" validate:"omitempty,max=200"`
	SIREN       *string           `json:"siren" validate:"omitempty,max=14"`
	LegalForm   *fiscal.LegalForm `json:"legal_form"`
	Regime      *fiscal.Regime    `json:"regime"`
	VATMode     *fiscal.VATMode   `json:"vat_mode"`
	VATDueDay   *int              `json:"vat_due_day" validate:"omitempty,min=15,max=25"`
	ClosingDate *string           `json:"closing_date"`
	IsActive    *bool             `json:"is_active"`
	Notes       *string           `json:"notes" validate:"omitempty,max=2000"`
}

// ScheduleChanged reports whether the update touches calendar inputs.
func (in UpdateInput) ScheduleChanged() bool {
	return in.Regime != nil || in.VATMode != nil || in.VATDueDay != nil
}

// Apply merges the update into the dossier after validating it.
func (in UpdateInput) Apply(d *fiscal.Dossier) error {
	if in.ManagerID != nil {
		d.ManagerID = *in.ManagerID
	}
	if in.Code != nil {
		d.Code = shared.SanitizeText(*in.Code)
	}
	if in.Name != nil {
		name := shared.SanitizeText(*in.Name)
		if name == "" || len([]rune(name)) > 200 {
			return fmt.Errorf("dossiers: name %w", httpx.ErrValidation)
		}
		d.Name = name
	}
	if in.SIREN != nil {
		siren := strings.ReplaceAll(strings.TrimSpace(*in.SIREN), " ", "")
		if siren != "" && !isDigits(siren, 9) {
			return fmt.Errorf("dossiers: siren must be 9 digits: %w", httpx.ErrValidation)
		}
		d.SIREN = siren
	}
	if in.LegalForm != nil {
		if !in.LegalForm.Valid() {
			return fmt.Errorf("dossiers: legal form %q: %w", *in.LegalForm, httpx.ErrValidation)
		}
		d.LegalForm = *in.LegalForm
	}
	if in.Regime != nil {
		if !in.Regime.Valid() {
			return fmt.Errorf("dossiers: regime %q: %w", *in.Regime, httpx.ErrValidation)
		}
		d.Regime = *in.Regime
	}
	if in.VATMode != nil {
		if !in.VATMode.Valid() {
			return fmt.Errorf("dossiers: vat mode %q: %w", *in.VATMode, httpx.ErrValidation)
		}
		d.VATMode = *in.VATMode
	}
	if in.VATDueDay != nil {
		if *in.VATDueDay < fiscal.MinVATDueDay || *in.VATDueDay > fiscal.MaxVATDueDay {
			return fmt.Errorf("dossiers: vat due day %d: %w", *in.VATDueDay, httpx.ErrValidation)
		}
		d.VATDueDay = *in.VATDueDay
	}
	if in.ClosingDate != nil {
		closing, err := parseClosingDate(*in.ClosingDate)
		if err != nil {
			return err
		}
		d.ClosingDate = closing
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if in.Notes != nil {
		d.Notes = shared.SanitizeText(*in.Notes)
	}
	return nil
}

func parseClosingDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := fiscal.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("dossiers: closing date: %w", httpx.ErrValidation)
	}
	return &t, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
