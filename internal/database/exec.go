package database

import (
	"context"

	"github.com/koustreak/rowsource/internal/errs"
)

// UpdateResult reports the outcome of ExecuteUpdate.
type UpdateResult struct {
	RowsAffected int64
	Err          error
}

// OK reports whether the update ran and committed.
func (r UpdateResult) OK() bool { return r.Err == nil }

// ExecuteUpdate runs stmt in its own transaction and commits it. Failures are
// logged and returned inside the result, never as a separate error; the
// transaction is rolled back when the statement or the commit fails.
func (m *Materializer) ExecuteUpdate(ctx context.Context, db Beginner, stmt string) UpdateResult {
	m.log.Debugf("sql->%s", stmt)
	if stmt == "" || db == nil {
		return UpdateResult{Err: errs.New(errs.ErrKindInvalidInput, "nothing to execute")}
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		m.log.ErrorWith("failed to begin update", err, map[string]any{"sql": stmt})
		return UpdateResult{Err: err}
	}

	n, err := tx.Exec(ctx, stmt)
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		m.log.ErrorWith("update failed", err, map[string]any{"sql": stmt})
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			m.log.WarnWith("rollback failed", rbErr, nil)
		}
		return UpdateResult{Err: err}
	}
	return UpdateResult{RowsAffected: n}
}
