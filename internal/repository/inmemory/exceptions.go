package inmemory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type exceptionStore struct {
	s *Store
}

func (es *exceptionStore) Add(ctx context.Context, exc *models.SeriesException) error {
	defer es.s.lock()()

	if _, ok := es.s.d.series[exc.SeriesID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range es.s.d.exceptions[exc.SeriesID] {
		if existing.OccurrenceDT.UTC().Equal(exc.OccurrenceDT.UTC()) {
			return repository.ErrDuplicate
		}
	}
	es.s.d.exceptions[exc.SeriesID] = append(es.s.d.exceptions[exc.SeriesID], *exc)
	return nil
}

func (es *exceptionStore) Remove(ctx context.Context, seriesID uuid.UUID, occurrence time.Time) error {
	defer es.s.lock()()

	excs := es.s.d.exceptions[seriesID]
	for i, exc := range excs {
		if exc.OccurrenceDT.UTC().Equal(occurrence.UTC()) {
			es.s.d.exceptions[seriesID] = append(excs[:i], excs[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (es *exceptionStore) Get(ctx context.Context, seriesID uuid.UUID, occurrence time.Time) (*models.SeriesException, error) {
	defer es.s.rlock()()

	for _, exc := range es.s.d.exceptions[seriesID] {
		if exc.OccurrenceDT.UTC().Equal(occurrence.UTC()) {
			found := exc
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (es *exceptionStore) ListForSeries(ctx context.Context, seriesID uuid.UUID) ([]models.SeriesException, error) {
	defer es.s.rlock()()

	out := append([]models.SeriesException(nil), es.s.d.exceptions[seriesID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].OccurrenceDT.Before(out[j].OccurrenceDT) })
	return out, nil
}
