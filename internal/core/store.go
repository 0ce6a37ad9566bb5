package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the pool and runs every mutating operation in one transaction.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewStore returns a Store that re-runs a transaction up to maxTxRetries extra
// times when Postgres aborts it with a serialization failure or deadlock.
func NewStore(pool *pgxpool.Pool, maxTxRetries int) *Store {
	if maxTxRetries < 0 {
		maxTxRetries = 0
	}
	return &Store{pool: pool, maxRetries: maxTxRetries}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// WithTx runs fn inside a transaction and commits when fn returns nil. fn may
// run more than once, so it must not keep state across attempts.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= s.maxRetries || ctx.Err() != nil {
			return err
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
