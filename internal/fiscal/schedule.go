package fiscal

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// scheduledTypes are the obligation types generated automatically for a dossier.
var scheduledTypes = []ObligationType{TypeVAT, TypeCorporateTax, TypeCVAE, TypeCFE, TypeLiasse}

// Seed is an obligation instance produced by the calendar for a fiscal year.
type Seed struct {
	DossierID   uuid.UUID
	Type        ObligationType
	Period      Period
	Reporting   Period
	Installment Installment
	DueDate     time.Time
}

// Key returns the natural key of the seeded obligation.
func (s Seed) Key() ObligationKey {
	return ObligationKey{DossierID: s.DossierID, Type: s.Type, Period: s.Period}
}

// Obligation materialises the seed as a to-do obligation.
func (s Seed) Obligation() Obligation {
	return Obligation{
		DossierID:   s.DossierID,
		Type:        s.Type,
		Period:      s.Period,
		Installment: s.Installment,
		DueDate:     s.DueDate,
		Status:      StatusTodo,
	}
}

// Schedule lists every obligation of the dossier whose reporting period falls in
// the year, ordered by due date then type.
func Schedule(d Dossier, year int) []Seed {
	profile := d.Profile()
	seeds := make([]Seed, 0, 24)
	for _, t := range scheduledTypes {
		for _, reporting := range YearPeriods(year) {
			due, ok := DueDate(profile, t, reporting)
			if !ok {
				continue
			}
			seed := Seed{
				DossierID: d.ID,
				Type:      t,
				Period:    PeriodOf(due),
				Reporting: reporting,
				DueDate:   due,
			}
			if t == TypeCorporateTax {
				seed.Installment, _ = InstallmentFor(reporting)
			}
			seeds = append(seeds, seed)
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		if !seeds[i].DueDate.Equal(seeds[j].DueDate) {
			return seeds[i].DueDate.Before(seeds[j].DueDate)
		}
		return typeOrder(seeds[i].Type) < typeOrder(seeds[j].Type)
	})
	return seeds
}

func typeOrder(t ObligationType) int {
	for i, known := range ObligationTypes {
		if known == t {
			return i
		}
	}
	return len(ObligationTypes)
}
