package vat

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/httpx"
	"github.com/appmato/gestion/internal/shared"
)

// ErrNotFound is returned when no VAT record exists for the period.
var ErrNotFound = fmt.Errorf("vat: record %w", httpx.ErrNotFound)

// UpdateInput is the JSON body of a VAT record upsert. Steps are keyed by
// step code.
type UpdateInput struct {
	Steps  map[string]bool  `json:"steps"`
	Amount *decimal.Decimal `json:"amount"`
	Credit *decimal.Decimal `json:"credit"`
	Note   *string          `json:"note" validate:"omitempty,max=2000"`
}

// Changes converts the input into workflow changes.
func (in UpdateInput) Changes() (fiscal.VATChanges, error) {
	var ch fiscal.VATChanges
	if len(in.Steps) > 0 {
		ch.Steps = make(map[fiscal.Step]bool, len(in.Steps))
		for code, value := range in.Steps {
			step, err := fiscal.ParseStep(code)
			if err != nil {
				return ch, fmt.Errorf("vat: step %q: %w", code, httpx.ErrValidation)
			}
			ch.Steps[step] = value
		}
	}
	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return ch, fmt.Errorf("vat: amount must not be negative: %w", httpx.ErrValidation)
		}
		amount := in.Amount.Round(2)
		ch.Details.Amount = &amount
	}
	if in.Credit != nil {
		if in.Credit.IsNegative() {
			return ch, fmt.Errorf("vat: credit must not be negative: %w", httpx.ErrValidation)
		}
		credit := in.Credit.Round(2)
		ch.Details.Credit = &credit
	}
	if in.Note != nil {
		note := shared.SanitizeText(*in.Note)
		ch.Details.Note = &note
	}
	if ch.Empty() {
		return ch, fmt.Errorf("vat: nothing to update: %w", httpx.ErrValidation)
	}
	return ch, nil
}

// ToggleInput sets a step explicitly; a nil value flips it.
type ToggleInput struct {
	Value *bool `json:"value"`
}
