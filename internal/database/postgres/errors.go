package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/koustreak/rowsource/internal/errs"
)

// PostgreSQL SQLSTATE codes that need a kind other than their class default.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrQueryCanceled         = "57014"
	pgErrInsufficientPrivilege = "42501"
	pgErrUndefinedTable        = "42P01"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapPQError is mapError for lib/pq.
func mapPQError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errs.Wrap(classifySQLState(string(pqErr.Code)), fmt.Sprintf("%s: %s", msg, pqErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLState maps a SQLSTATE code to an ErrKind.
func classifySQLState(code string) errs.ErrKind {
	switch code {
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case pgErrInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case pgErrUndefinedTable:
		return errs.ErrKindNotFound
	}
	if len(code) < 2 {
		return errs.ErrKindQueryFailed
	}
	switch code[:2] {
	case "08", "53", "57":
		return errs.ErrKindConnectionFailed
	case "28":
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
