package e2e

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appmato/gestion/internal/dossiers"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/obligations"
)

type dossierStore struct {
	mu            sync.RWMutex
	dossiers      map[uuid.UUID]fiscal.Dossier
	collaborators []fiscal.Collaborator
}

func newDossierStore(collaborators ...fiscal.Collaborator) *dossierStore {
	return &dossierStore{dossiers: map[uuid.UUID]fiscal.Dossier{}, collaborators: collaborators}
}

func (s *dossierStore) List(_ context.Context, filter dossiers.ListFilter) ([]fiscal.Dossier, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fiscal.Dossier, 0, len(s.dossiers))
	for _, d := range s.dossiers {
		if filter.BranchID.Valid && d.BranchID != filter.BranchID.UUID {
			continue
		}
		if filter.Active != nil && d.IsActive != *filter.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (s *dossierStore) Get(_ context.Context, id uuid.UUID) (fiscal.Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dossiers[id]
	if !ok {
		return fiscal.Dossier{}, dossiers.ErrNotFound
	}
	return d, nil
}

func (s *dossierStore) Insert(_ context.Context, d fiscal.Dossier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dossiers[d.ID] = d
	return nil
}

func (s *dossierStore) Update(_ context.Context, d fiscal.Dossier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dossiers[d.ID]; !ok {
		return dossiers.ErrNotFound
	}
	s.dossiers[d.ID] = d
	return nil
}

func (s *dossierStore) ListCollaborators(_ context.Context, branchID uuid.NullUUID) ([]fiscal.Collaborator, error) {
	out := make([]fiscal.Collaborator, 0, len(s.collaborators))
	for _, c := range s.collaborators {
		if !branchID.Valid || c.BranchID == branchID.UUID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *dossierStore) ListBranches(context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, d := range s.dossiers {
		if d.IsActive && !seen[d.BranchID] {
			seen[d.BranchID] = true
			out = append(out, d.BranchID)
		}
	}
	return out, nil
}

type obligationStore struct {
	mu       sync.RWMutex
	dossiers *dossierStore
	rows     map[fiscal.ObligationKey]fiscal.Obligation
}

func newObligationStore(d *dossierStore) *obligationStore {
	return &obligationStore{dossiers: d, rows: map[fiscal.ObligationKey]fiscal.Obligation{}}
}

func (s *obligationStore) ListForYear(_ context.Context, dossierID uuid.UUID, year int) ([]fiscal.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fiscal.Obligation
	for key, o := range s.rows {
		if key.DossierID == dossierID && key.Period.Year == year {
			out = append(out, o)
		}
	}
	sortByDue(out)
	return out, nil
}

func (s *obligationStore) List(ctx context.Context, filter obligations.Filter) ([]fiscal.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fiscal.Obligation
	for _, o := range s.rows {
		d, err := s.dossiers.Get(ctx, o.DossierID)
		if err != nil {
			continue
		}
		switch {
		case filter.BranchID.Valid && d.BranchID != filter.BranchID.UUID,
			filter.DossierID.Valid && o.DossierID != filter.DossierID.UUID,
			filter.Type != "" && o.Type != filter.Type,
			filter.ActiveOnly && !d.IsActive,
			!filter.ResolvedFrom.IsZero() && o.Status.Resolved() && o.DueDate.Before(filter.ResolvedFrom),
			!filter.DueTo.IsZero() && o.HasDueDate() && o.DueDate.After(filter.DueTo):
			continue
		}
		out = append(out, o)
	}
	sortByDue(out)
	return out, nil
}

func (s *obligationStore) GetByKey(_ context.Context, key fiscal.ObligationKey) (fiscal.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.rows[key]
	if !ok {
		return fiscal.Obligation{}, obligations.ErrNotFound
	}
	return o, nil
}

func (s *obligationStore) Upsert(_ context.Context, o fiscal.Obligation) (fiscal.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
		o.CreatedAt = o.UpdatedAt
	}
	for key, existing := range s.rows {
		if existing.ID == o.ID {
			delete(s.rows, key)
		}
	}
	s.rows[o.Key()] = o
	return o, nil
}

func (s *obligationStore) InsertMissing(_ context.Context, seeds []fiscal.Seed, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, seed := range seeds {
		if _, ok := s.rows[seed.Key()]; ok {
			continue
		}
		o := seed.Obligation()
		o.ID = uuid.New()
		o.CreatedAt, o.UpdatedAt = now, now
		s.rows[seed.Key()] = o
		created++
	}
	return created, nil
}

func sortByDue(out []fiscal.Obligation) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].Type < out[j].Type
	})
}
