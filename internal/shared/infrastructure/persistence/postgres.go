package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTxKey struct{}

// PgTxInfo holds a pgx transaction in context together with whether the
// current unit of work owns it. Nested units join the outer transaction
// instead of opening their own.
type PgTxInfo struct {
	Tx    pgx.Tx
	Owned bool
}

// WithPgTx stores transaction info in the context.
func WithPgTx(ctx context.Context, tx pgx.Tx, owned bool) context.Context {
	return context.WithValue(ctx, pgTxKey{}, PgTxInfo{Tx: tx, Owned: owned})
}

// PgTxInfoFromContext extracts transaction info from the context.
func PgTxInfoFromContext(ctx context.Context) (PgTxInfo, bool) {
	info, ok := ctx.Value(pgTxKey{}).(PgTxInfo)
	if !ok || info.Tx == nil {
		return PgTxInfo{}, false
	}
	return info, true
}

// PgExecutor abstracts pgxpool.Pool and pgx.Tx for shared query execution.
type PgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor returns the context transaction when present, otherwise the pool.
// Repositories route every query through this so they transparently take
// part in whatever transaction the caller opened.
func Executor(ctx context.Context, pool *pgxpool.Pool) PgExecutor {
	if info, ok := PgTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return pool
}

// PostgresUnitOfWork provides transactional support for PostgreSQL.
type PostgresUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewPostgresUnitOfWork creates a new PostgresUnitOfWork.
func NewPostgresUnitOfWork(pool *pgxpool.Pool) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{pool: pool}
}

// Begin starts a transaction and stores it in the context. Joining an
// existing transaction marks the unit as not owning it, so Commit and
// Rollback become no-ops for the inner scope.
func (u *PostgresUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := PgTxInfoFromContext(ctx); ok {
		return WithPgTx(ctx, info.Tx, false), nil
	}

	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return WithPgTx(ctx, tx, true), nil
}

// Commit commits the transaction if this unit owns it.
func (u *PostgresUnitOfWork) Commit(ctx context.Context) error {
	info, ok := PgTxInfoFromContext(ctx)
	if !ok {
		return errors.New("no transaction in context")
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Commit(ctx)
}

// Rollback rolls back the transaction if this unit owns it.
func (u *PostgresUnitOfWork) Rollback(ctx context.Context) error {
	info, ok := PgTxInfoFromContext(ctx)
	if !ok {
		return errors.New("no transaction in context")
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Rollback(ctx)
}
