package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTimeout is returned when a store call exceeds its bounded timeout.
// Callers may retry with backoff.
var ErrTimeout = errors.New("store: operation timed out")

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an optimistic version check fails because the
// row changed since it was read.
var ErrConflict = errors.New("store: version conflict")

const uniqueViolation = "23505"

// UniqueViolation reports whether err is a Postgres unique constraint violation
// and, if so, the name of the violated constraint or index.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// Do runs fn with a context bounded by timeout. A deadline hit inside fn is
// reported as ErrTimeout so callers can tell it apart from other failures.
func Do[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := fn(cctx)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, errors.Join(ErrTimeout, err)
	}
	return res, err
}

// Exec is Do for calls that only return an error.
func Exec(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := Do(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
