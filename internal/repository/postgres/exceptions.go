package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type exceptionStore struct {
	s *Store
}

func (es *exceptionStore) Add(ctx context.Context, exc *models.SeriesException) error {
	start := time.Now()
	defer warnSlow("exception.add", start)

	query := `INSERT INTO series_exceptions
			(series_id, occurrence_dt, exception_type, exception_task_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := es.s.db.Exec(ctx, query,
		exc.SeriesID,
		exc.OccurrenceDT.UTC(),
		exc.Type,
		exc.ExceptionTaskID,
		exc.Notes,
		exc.CreatedAt,
	)
	if err != nil {
		logger.Error("Repository: failed to insert exception", err)
		return mapErr(err)
	}
	return nil
}

func (es *exceptionStore) Remove(ctx context.Context, seriesID uuid.UUID, occurrence time.Time) error {
	start := time.Now()
	defer warnSlow("exception.remove", start)

	tag, err := es.s.db.Exec(ctx,
		`DELETE FROM series_exceptions WHERE series_id = $1 AND occurrence_dt = $2`,
		seriesID, occurrence.UTC())
	if err != nil {
		logger.Error("Repository: failed to delete exception", err)
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (es *exceptionStore) Get(ctx context.Context, seriesID uuid.UUID, occurrence time.Time) (*models.SeriesException, error) {
	start := time.Now()
	defer warnSlow("exception.get", start)

	exc := &models.SeriesException{}
	err := es.s.db.QueryRow(ctx,
		`SELECT series_id, occurrence_dt, exception_type, exception_task_id, notes, created_at
		FROM series_exceptions WHERE series_id = $1 AND occurrence_dt = $2`,
		seriesID, occurrence.UTC()).
		Scan(&exc.SeriesID, &exc.OccurrenceDT, &exc.Type, &exc.ExceptionTaskID, &exc.Notes, &exc.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return exc, nil
}

func (es *exceptionStore) ListForSeries(ctx context.Context, seriesID uuid.UUID) ([]models.SeriesException, error) {
	start := time.Now()
	defer warnSlow("exception.list", start)

	rows, err := es.s.db.Query(ctx,
		`SELECT series_id, occurrence_dt, exception_type, exception_task_id, notes, created_at
		FROM series_exceptions WHERE series_id = $1 ORDER BY occurrence_dt`, seriesID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.SeriesException
	for rows.Next() {
		var exc models.SeriesException
		err := rows.Scan(&exc.SeriesID, &exc.OccurrenceDT, &exc.Type,
			&exc.ExceptionTaskID, &exc.Notes, &exc.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, exc)
	}
	return out, rows.Err()
}
