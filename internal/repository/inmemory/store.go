// Package inmemory is a map-based Store used by unit tests and as a
// lightweight backend when no database is configured. Transactions are
// simulated with a global lock plus a snapshot that is restored on
// rollback, which gives the same serializable semantics the postgres
// backend provides per connection.
package inmemory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type data struct {
	tasks      map[uuid.UUID]models.Task
	taskOrder  []uuid.UUID
	projects   map[uuid.UUID]models.Project
	series     map[uuid.UUID]models.TaskSeries
	exceptions map[uuid.UUID][]models.SeriesException // keyed by series id
	tags       map[uuid.UUID]map[string]bool
	deps       map[uuid.UUID]map[uuid.UUID]bool // task id -> depends-on set
}

func newData() *data {
	return &data{
		tasks:      make(map[uuid.UUID]models.Task),
		projects:   make(map[uuid.UUID]models.Project),
		series:     make(map[uuid.UUID]models.TaskSeries),
		exceptions: make(map[uuid.UUID][]models.SeriesException),
		tags:       make(map[uuid.UUID]map[string]bool),
		deps:       make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (d *data) clone() *data {
	c := newData()
	for id, t := range d.tasks {
		c.tasks[id] = t
	}
	c.taskOrder = append([]uuid.UUID(nil), d.taskOrder...)
	for id, p := range d.projects {
		c.projects[id] = p
	}
	for id, s := range d.series {
		c.series[id] = s
	}
	for id, excs := range d.exceptions {
		c.exceptions[id] = append([]models.SeriesException(nil), excs...)
	}
	for id, set := range d.tags {
		cp := make(map[string]bool, len(set))
		for k := range set {
			cp[k] = true
		}
		c.tags[id] = cp
	}
	for id, set := range d.deps {
		cp := make(map[uuid.UUID]bool, len(set))
		for k := range set {
			cp[k] = true
		}
		c.deps[id] = cp
	}
	return c
}

type Store struct {
	mu *sync.RWMutex
	d  *data
	tx bool
}

func NewStore() *Store {
	return &Store{
		mu: &sync.RWMutex{},
		d:  newData(),
	}
}

func (s *Store) Tasks() repository.TaskStore           { return &taskStore{s} }
func (s *Store) Projects() repository.ProjectStore     { return &projectStore{s} }
func (s *Store) Series() repository.SeriesStore        { return &seriesStore{s} }
func (s *Store) Exceptions() repository.ExceptionStore { return &exceptionStore{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

// WithTx takes the write lock for the whole transaction and restores a
// snapshot when fn fails, so a failed operation leaves no partial
// state. A nested call joins the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.tx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	txStore := &Store{mu: s.mu, d: s.d, tx: true}
	if err := fn(txStore); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}
