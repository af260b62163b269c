package dossiers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/platform/db"
)

const dossierColumns = `id, branch_id, manager_id, code, name, siren, legal_form, regime, vat_mode,
vat_due_day, closing_date, is_active, notes, created_at, updated_at`

// Repository persists dossiers and collaborators.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns dossiers matching the filter and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]fiscal.Dossier, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dossiers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dossiers: count: %w", err)
	}

	query := `SELECT ` + dossierColumns + ` FROM dossiers` + where + ` ORDER BY name, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("dossiers: list: %w", err)
	}
	defer rows.Close()

	var out []fiscal.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func filterClause(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.BranchID.Valid {
		args = append(args, filter.BranchID.UUID)
		conds = append(conds, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if filter.ManagerID.Valid {
		args = append(args, filter.ManagerID.UUID)
		conds = append(conds, fmt.Sprintf("manager_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d OR siren ILIKE $%d)", len(args), len(args), len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Get loads a dossier by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (fiscal.Dossier, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE id = $1`, id)
	d, err := scanDossier(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fiscal.Dossier{}, ErrNotFound
	}
	return d, err
}

// Insert stores a new dossier.
func (r *Repository) Insert(ctx context.Context, d fiscal.Dossier) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO dossiers (`+dossierColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.BranchID, d.ManagerID, d.Code, d.Name, d.SIREN, d.LegalForm, d.Regime, d.VATMode,
		d.VATDueDay, d.ClosingDate, d.IsActive, d.Notes, d.CreatedAt, d.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("dossiers: insert: %w", err)
	}
	return nil
}

// Update overwrites the mutable attributes of a dossier.
func (r *Repository) Update(ctx context.Context, d fiscal.Dossier) error {
	tag, err := r.pool.Exec(ctx, `UPDATE dossiers SET manager_id = $2, code = $3, name = $4, siren = $5,
legal_form = $6, regime = $7, vat_mode = $8, vat_due_day = $9, closing_date = $10, is_active = $11,
notes = $12, updated_at = $13 WHERE id = $1`,
		d.ID, d.ManagerID, d.Code, d.Name, d.SIREN, d.LegalForm, d.Regime, d.VATMode, d.VATDueDay,
		d.ClosingDate, d.IsActive, d.Notes, d.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("dossiers: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCollaborators returns the collaborators of a branch, or all when the
// branch is not set.
func (r *Repository) ListCollaborators(ctx context.Context, branchID uuid.NullUUID) ([]fiscal.Collaborator, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, branch_id, full_name, email FROM collaborators
WHERE ($1::uuid IS NULL OR branch_id = $1) ORDER BY full_name`, branchID)
	if err != nil {
		return nil, fmt.Errorf("dossiers: list collaborators: %w", err)
	}
	defer rows.Close()
	var out []fiscal.Collaborator
	for rows.Next() {
		var c fiscal.Collaborator
		if err := rows.Scan(&c.ID, &c.BranchID, &c.FullName, &c.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListBranches returns the distinct branches of active dossiers.
func (r *Repository) ListBranches(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT branch_id FROM dossiers WHERE is_active ORDER BY branch_id`)
	if err != nil {
		return nil, fmt.Errorf("dossiers: list branches: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanDossier(row pgx.Row) (fiscal.Dossier, error) {
	var d fiscal.Dossier
	err := row.Scan(&d.ID, &d.BranchID, &d.ManagerID, &d.Code, &d.Name, &d.SIREN, &d.LegalForm, &d.Regime,
		&d.VATMode, &d.VATDueDay, &d.ClosingDate, &d.IsActive, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fiscal.Dossier{}, err
	}
	return d, nil
}
