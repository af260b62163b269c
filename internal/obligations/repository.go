package obligations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/db"
)

const obligationColumns = `o.id, o.dossier_id, o.type, o.period, o.installment, o.due_date, o.status, o.amount,
o.comment, o.completed_at, o.completed_by, o.created_at, o.updated_at`

// Repository persists obligations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForYear returns the obligations of a dossier due in the year, plus
// undated ones recorded for that year's periods.
func (r *Repository) ListForYear(ctx context.Context, dossierID uuid.UUID, year int) ([]fiscal.Obligation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+obligationColumns+` FROM obligations o
WHERE o.dossier_id = $1
  AND ((o.due_date >= $2 AND o.due_date < $3) OR (o.due_date IS NULL AND o.period LIKE $4))
ORDER BY o.due_date NULLS LAST, o.type`,
		dossierID, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC), fmt.Sprintf("%04d-%%", year))
	if err != nil {
		return nil, fmt.Errorf("obligations: list for year: %w", err)
	}
	return collect(rows)
}

// List returns obligations matching the filter.
func (r *Repository) List(ctx context.Context, filter Filter) ([]fiscal.Obligation, error) {
	var (
		conds []string
		args  []any
	)
	if filter.BranchID.Valid {
		args = append(args, filter.BranchID.UUID)
		conds = append(conds, fmt.Sprintf("d.branch_id = $%d", len(args)))
	}
	if filter.DossierID.Valid {
		args = append(args, filter.DossierID.UUID)
		conds = append(conds, fmt.Sprintf("o.dossier_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("o.type = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "d.is_active")
	}
	if !filter.ResolvedFrom.IsZero() {
		args = append(args, filter.ResolvedFrom)
		conds = append(conds, fmt.Sprintf("(o.status IN ('a_faire', 'retard') OR o.due_date >= $%d)", len(args)))
	}
	if !filter.DueTo.IsZero() {
		args = append(args, filter.DueTo)
		conds = append(conds, fmt.Sprintf("(o.due_date IS NULL OR o.due_date <= $%d)", len(args)))
	}
	query := `SELECT ` + obligationColumns + ` FROM obligations o JOIN dossiers d ON d.id = o.dossier_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY o.due_date NULLS LAST, o.dossier_id, o.type"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("obligations: list: %w", err)
	}
	return collect(rows)
}

// GetByKey loads an obligation by its natural key.
func (r *Repository) GetByKey(ctx context.Context, key fiscal.ObligationKey) (fiscal.Obligation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+obligationColumns+` FROM obligations o
WHERE o.dossier_id = $1 AND o.type = $2 AND o.period = $3`, key.DossierID, key.Type, key.Period.String())
	o, err := scanObligation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fiscal.Obligation{}, ErrNotFound
	}
	return o, err
}

// Upsert writes the obligation. Existing rows are updated by id; new rows are
// inserted and merged on the natural key so concurrent creators converge.
func (r *Repository) Upsert(ctx context.Context, o fiscal.Obligation) (fiscal.Obligation, error) {
	if o.ID != uuid.Nil {
		tag, err := r.pool.Exec(ctx, `UPDATE obligations SET period = $2, due_date = $3, status = $4, amount = $5,
comment = $6, completed_at = $7, completed_by = $8, updated_at = $9 WHERE id = $1`,
			o.ID, o.Key().Period.String(), nullableDate(o.DueDate), o.Status, o.Amount, o.Comment,
			o.CompletedAt, o.CompletedBy, o.UpdatedAt)
		if db.IsUniqueViolation(err) {
			return fiscal.Obligation{}, ErrKeyTaken
		}
		if err != nil {
			return fiscal.Obligation{}, fmt.Errorf("obligations: update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fiscal.Obligation{}, ErrNotFound
		}
		return o, nil
	}

	row := r.pool.QueryRow(ctx, `INSERT INTO obligations (id, dossier_id, type, period, installment, due_date, status,
amount, comment, completed_at, completed_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
ON CONFLICT (dossier_id, type, period) DO UPDATE SET
  due_date = EXCLUDED.due_date, status = EXCLUDED.status, amount = EXCLUDED.amount,
  comment = EXCLUDED.comment, completed_at = EXCLUDED.completed_at,
  completed_by = EXCLUDED.completed_by, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`,
		uuid.New(), o.DossierID, o.Type, o.Key().Period.String(), o.Installment, nullableDate(o.DueDate), o.Status,
		o.Amount, o.Comment, o.CompletedAt, o.CompletedBy, o.UpdatedAt)
	if err := row.Scan(&o.ID, &o.CreatedAt); err != nil {
		if db.IsForeignKeyViolation(err) {
			return fiscal.Obligation{}, fmt.Errorf("obligations: unknown dossier: %w", ErrNotFound)
		}
		return fiscal.Obligation{}, fmt.Errorf("obligations: insert: %w", err)
	}
	return o, nil
}

// InsertMissing stores the seeds whose natural key is not tracked yet and
// reports how many were created. Existing obligations are left untouched.
func (r *Repository) InsertMissing(ctx context.Context, seeds []fiscal.Seed, now time.Time) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, s := range seeds {
		batch.Queue(`INSERT INTO obligations (id, dossier_id, type, period, installment, due_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (dossier_id, type, period) DO NOTHING`,
			uuid.New(), s.DossierID, s.Type, s.Period.String(), s.Installment, s.DueDate, fiscal.StatusTodo, now)
	}
	created := 0
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range seeds {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("obligations: seed: %w", err)
			}
			created += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func collect(rows pgx.Rows) ([]fiscal.Obligation, error) {
	defer rows.Close()
	var out []fiscal.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanObligation(row pgx.Row) (fiscal.Obligation, error) {
	var (
		o      fiscal.Obligation
		period string
		due    *time.Time
	)
	err := row.Scan(&o.ID, &o.DossierID, &o.Type, &period, &o.Installment, &due, &o.Status, &o.Amount,
		&o.Comment, &o.CompletedAt, &o.CompletedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fiscal.Obligation{}, err
	}
	if due != nil {
		o.DueDate = fiscal.Day(*due)
	}
	if p, perr := fiscal.ParsePeriod(period); perr == nil {
		o.Period = p
	}
	return o, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
