package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

// PostgreSQL SQLSTATE codes the services react to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// TxProvider begins transactions; *sqlx.DB satisfies it.
type TxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Begin opens a transaction and bounds how long it may wait on row locks.
func Begin(ctx context.Context, provider TxProvider, lockTimeout time.Duration) (*sqlx.Tx, error) {
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}
	return tx, nil
}

// WithTx runs fn inside a transaction opened by Begin. The transaction commits
// when fn returns nil and rolls back otherwise; store errors are translated.
func WithTx(ctx context.Context, provider TxProvider, lockTimeout time.Duration, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := Begin(ctx, provider, lockTimeout)
	if err != nil {
		return Translate(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return Translate(err, "transaction failed")
	}
	if err = tx.Commit(); err != nil {
		return Translate(err, "failed to commit transaction")
	}
	return nil
}

// WithSavepoint runs fn inside a named savepoint. A failing fn rolls back to
// the savepoint and its error is returned as itemErr so the surrounding
// transaction stays usable; err is set only when the savepoint plumbing fails.
func WithSavepoint(ctx context.Context, tx *sqlx.Tx, name string, fn func() error) (itemErr error, err error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("create savepoint %s: %w", name, err)
	}
	if fnErr := fn(); fnErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return fnErr, fmt.Errorf("rollback to savepoint %s: %w", name, err)
		}
		return fnErr, nil
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil, nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation reports a duplicate key error.
func IsUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports a dangling reference error.
func IsForeignKeyViolation(err error) bool {
	return pqCode(err) == codeForeignKeyViolation
}

// IsRetryable reports lock timeouts, deadlocks, serialization failures and
// cancelled statements.
func IsRetryable(err error) bool {
	switch pqCode(err) {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
		return true
	}
	return false
}

// Translate maps store errors onto the domain taxonomy. Domain errors pass
// through untouched.
func Translate(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if IsRetryable(err) {
		return appErrors.Wrap(err, appErrors.ErrRetryableConflict.Code, appErrors.ErrRetryableConflict.Status, appErrors.ErrRetryableConflict.Message)
	}
	if IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
	}
	return appErrors.Internal(err, message)
}
