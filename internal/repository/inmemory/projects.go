package inmemory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type projectStore struct {
	s *Store
}

func (ps *projectStore) Create(ctx context.Context, p *models.Project) error {
	defer ps.s.lock()()

	for _, existing := range ps.s.d.projects {
		if existing.Name == p.Name {
			return repository.ErrDuplicate
		}
	}
	ps.s.d.projects[p.ID] = *p
	return nil
}

func (ps *projectStore) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	defer ps.s.rlock()()

	p, ok := ps.s.d.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (ps *projectStore) GetByName(ctx context.Context, name string) (*models.Project, error) {
	defer ps.s.rlock()()

	for _, p := range ps.s.d.projects {
		if p.Name == name {
			found := p
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (ps *projectStore) List(ctx context.Context) ([]models.Project, error) {
	defer ps.s.rlock()()

	out := make([]models.Project, 0, len(ps.s.d.projects))
	for _, p := range ps.s.d.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (ps *projectStore) Delete(ctx context.Context, id uuid.UUID) error {
	defer ps.s.lock()()

	if _, ok := ps.s.d.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(ps.s.d.projects, id)
	return nil
}
