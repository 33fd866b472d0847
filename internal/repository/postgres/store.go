// Package postgres is the pgx-backed Store. All statements run either
// on the pool or, inside WithTx, on a single serializable transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/repository"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool // nil inside a transaction
	db   dbtx
}

type Options struct {
	MaxConns    int
	MinConns    int
	IdleTimeout time.Duration
}

func New(ctx context.Context, connString string, opts Options) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: failed to parse connection config", err)
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if opts.MaxConns == 0 {
		opts.MaxConns = 5
	}
	if opts.MinConns == 0 {
		opts.MinConns = 1
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	config.MaxConns = int32(opts.MaxConns)
	config.MinConns = int32(opts.MinConns)
	config.MaxConnIdleTime = opts.IdleTimeout

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: failed to create pool", err)
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Error("Repository: ping failed", err)
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("Repository: connected to PostgreSQL", zap.Int("max_conns", opts.MaxConns))
	return &Store{pool: pool, db: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		logger.Info("Repository: closed all PostgreSQL connections")
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: ping failed", err)
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *Store) Tasks() repository.TaskStore           { return &taskStore{s} }
func (s *Store) Projects() repository.ProjectStore     { return &projectStore{s} }
func (s *Store) Series() repository.SeriesStore        { return &seriesStore{s} }
func (s *Store) Exceptions() repository.ExceptionStore { return &exceptionStore{s} }

// WithTx runs fn on a serializable transaction. A nested call joins the
// enclosing transaction. Rollback uses a detached context so a canceled
// caller still leaves no partial state behind.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		logger.Error("Repository: failed to begin transaction", err)
		return fmt.Errorf("begin tx: %w", err)
	}

	txStore := &Store{db: tx}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && rbErr != pgx.ErrTxClosed {
			logger.Warn("Repository: rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: commit failed", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapErr translates driver errors into the repository sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}

// warnSlow mirrors the latency instrumentation used across the store.
func warnSlow(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		logger.Warn("Repository: slow statement", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
