package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool abstracts the pgx connection pool to make testing easier.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// Querier is the statement surface shared by pooled connections and transactions.
// Repository and relationship code accept a Querier so the caller decides which
// transaction a statement belongs to.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner executes a unit of work inside a single database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// PostgresTxRunner opens one transaction per call on a pooled connection.
// Transactions that fail with a serialization failure or deadlock, including at
// COMMIT, are rolled back and run again from the start; fn must therefore only
// touch the database through the provided Querier.
type PostgresTxRunner struct {
	pool    Pool
	options pgx.TxOptions
}

// NewTxRunner constructs a TxRunner backed by the provided pool. Transactions run
// SERIALIZABLE so check-then-write sequences, such as looking for a reverse friend
// request before inserting one, cannot interleave.
func NewTxRunner(pool Pool) *PostgresTxRunner {
	return &PostgresTxRunner{pool: pool, options: pgx.TxOptions{IsoLevel: pgx.Serializable}}
}

// InTx runs fn in a transaction, committing when it returns nil and rolling back
// otherwise. A failed COMMIT is reported as an error.
func (r *PostgresTxRunner) InTx(ctx context.Context, fn func(q Querier) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return executeTx(ctx, conn, r.options, fn)
}

const (
	txMaxAttempts = 5
	txBaseBackoff = 10 * time.Millisecond
)

var retryableTxCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
}

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

func executeTx(ctx context.Context, conn txBeginner, options pgx.TxOptions, fn func(q Querier) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, conn, options, func(tx pgx.Tx) error {
			return fn(tx)
		})
		if err == nil || !retryableTx(err) {
			return err
		}
		if attempt == txMaxAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * txBaseBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("transaction retries exhausted (%d attempts): %w", txMaxAttempts, err)
}

func retryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := retryableTxCodes[pgErr.Code]
	return ok
}

// Connect initialises a PostgreSQL connection pool using the provided database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

var _ TxRunner = (*PostgresTxRunner)(nil)
