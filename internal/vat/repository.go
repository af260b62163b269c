package vat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/db"
)

const recordColumns = `id, dossier_id, period, compta_recue, saisie_faite, dossier_revise, calcul_envoye,
teletransmis, valide, amount, credit, note, completed_at, completed_by, created_at, updated_at`

// Repository persists VAT workflow records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListYear returns the records of a dossier for the year's periods.
func (r *Repository) ListYear(ctx context.Context, dossierID uuid.UUID, year int) ([]fiscal.VATRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM vat_records
WHERE dossier_id = $1 AND period LIKE $2 ORDER BY period`, dossierID, fmt.Sprintf("%04d-%%", year))
	if err != nil {
		return nil, fmt.Errorf("vat: list year: %w", err)
	}
	defer rows.Close()
	var out []fiscal.VATRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get loads the record of a dossier period.
func (r *Repository) Get(ctx context.Context, dossierID uuid.UUID, period fiscal.Period) (fiscal.VATRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM vat_records WHERE dossier_id = $1 AND period = $2`,
		dossierID, period.String())
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fiscal.VATRecord{}, ErrNotFound
	}
	return rec, err
}

// Upsert writes the record, merging on (dossier, period). Last write wins.
func (r *Repository) Upsert(ctx context.Context, rec fiscal.VATRecord) (fiscal.VATRecord, error) {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	s := rec.Steps
	row := r.pool.QueryRow(ctx, `INSERT INTO vat_records (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
ON CONFLICT (dossier_id, period) DO UPDATE SET
  compta_recue = EXCLUDED.compta_recue, saisie_faite = EXCLUDED.saisie_faite,
  dossier_revise = EXCLUDED.dossier_revise, calcul_envoye = EXCLUDED.calcul_envoye,
  teletransmis = EXCLUDED.teletransmis, valide = EXCLUDED.valide,
  amount = EXCLUDED.amount, credit = EXCLUDED.credit, note = EXCLUDED.note,
  completed_at = EXCLUDED.completed_at, completed_by = EXCLUDED.completed_by,
  updated_at = EXCLUDED.updated_at
RETURNING id, created_at`,
		id, rec.DossierID, rec.Period.String(),
		s[fiscal.StepDocumentsReceived], s[fiscal.StepEntryPosted], s[fiscal.StepFileReviewed],
		s[fiscal.StepComputationSent], s[fiscal.StepFiledElectronically], s[fiscal.StepValidated],
		rec.Amount, rec.Credit, rec.Note, rec.CompletedAt, rec.CompletedBy, rec.UpdatedAt)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		if db.IsForeignKeyViolation(err) {
			return fiscal.VATRecord{}, fmt.Errorf("vat: unknown dossier: %w", ErrNotFound)
		}
		return fiscal.VATRecord{}, fmt.Errorf("vat: upsert: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (fiscal.VATRecord, error) {
	var (
		rec    fiscal.VATRecord
		period string
	)
	s := &rec.Steps
	err := row.Scan(&rec.ID, &rec.DossierID, &period,
		&s[fiscal.StepDocumentsReceived], &s[fiscal.StepEntryPosted], &s[fiscal.StepFileReviewed],
		&s[fiscal.StepComputationSent], &s[fiscal.StepFiledElectronically], &s[fiscal.StepValidated],
		&rec.Amount, &rec.Credit, &rec.Note, &rec.CompletedAt, &rec.CompletedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fiscal.VATRecord{}, err
	}
	if rec.Period, err = fiscal.ParsePeriod(period); err != nil {
		return fiscal.VATRecord{}, fmt.Errorf("vat: stored period %q: %w", period, err)
	}
	return rec, nil
}
