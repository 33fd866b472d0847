package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type projectStore struct {
	s *Store
}

func (ps *projectStore) Create(ctx context.Context, p *models.Project) error {
	start := time.Now()
	defer warnSlow("project.create", start)

	query := `INSERT INTO projects (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := ps.s.db.Exec(ctx, query, p.ID, p.Name, p.Description, p.CreatedAt)
	if err != nil {
		logger.Error("Repository: failed to insert project", err)
		return mapErr(err)
	}
	return nil
}

func (ps *projectStore) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	start := time.Now()
	defer warnSlow("project.get", start)

	p := &models.Project{}
	err := ps.s.db.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (ps *projectStore) GetByName(ctx context.Context, name string) (*models.Project, error) {
	start := time.Now()
	defer warnSlow("project.get_by_name", start)

	p := &models.Project{}
	err := ps.s.db.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM projects WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (ps *projectStore) List(ctx context.Context) ([]models.Project, error) {
	start := time.Now()
	defer warnSlow("project.list", start)

	rows, err := ps.s.db.Query(ctx,
		`SELECT id, name, description, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (ps *projectStore) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer warnSlow("project.delete", start)

	tag, err := ps.s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: failed to delete project", err)
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
