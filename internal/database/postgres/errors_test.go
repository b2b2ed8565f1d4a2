package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/koustreak/rowsource/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"canceled wrapped", fmt.Errorf("read: %w", context.Canceled), errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, errs.ErrKindNotFound},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, errs.ErrKindQueryFailed},
		{"connection class", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"auth class", &pgconn.PgError{Code: "28P01"}, errs.ErrKindPermissionDenied},
		{"privilege", &pgconn.PgError{Code: "42501"}, errs.ErrKindPermissionDenied},
		{"canceled by server", &pgconn.PgError{Code: "57014"}, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op")
			assert.Equal(t, tt.want, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, mapError(nil, "op"))
}

func TestMapError_IncludesServerMessage(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42601", Message: "syntax error at or near \"FORM\""}, "query failed")
	assert.Contains(t, err.Error(), "query failed: syntax error")
}

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"undefined table", &pq.Error{Code: "42P01", Message: "relation does not exist"}, errs.ErrKindNotFound},
		{"connection class", &pq.Error{Code: "08001"}, errs.ErrKindConnectionFailed},
		{"too many connections", &pq.Error{Code: "53300"}, errs.ErrKindConnectionFailed},
		{"data exception", &pq.Error{Code: "22P02"}, errs.ErrKindQueryFailed},
		{"other", errors.New("bad connection"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errs.KindOf(mapPQError(tt.err, "op")))
		})
	}
}

func TestNoticeLog(t *testing.T) {
	l := newNoticeLog()
	watched, other := &pgconn.PgConn{}, &pgconn.PgConn{}

	l.record(watched, &pgconn.Notice{Severity: "NOTICE", Code: "00000", Message: "dropped"})
	l.watch(watched)
	l.record(watched, &pgconn.Notice{Severity: "WARNING", Code: "01000", Message: "value truncated"})
	l.record(other, &pgconn.Notice{Severity: "NOTICE", Code: "00000", Message: "ignored"})

	assert.Equal(t, []string{"WARNING 01000: value truncated"}, l.collected(watched))
	assert.Empty(t, l.collected(other))

	l.forget(watched)
	assert.Empty(t, l.collected(watched))
}
