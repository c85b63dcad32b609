// CLAUDE:SUMMARY RecordExecution: transactional audit-log append plus atomic per-key stats upsert.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordExecution appends the outcome to the audit log and folds it into
// the aggregate row for its (site, task, algorithm, selector) key. Both
// writes happen in one transaction: an outcome is recorded exactly once or
// not at all. Duplicate rows would corrupt the running means.
//
// The upsert is a single statement; SQLite evaluates the SET expressions
// against the pre-update row, so the running means use the old attempt
// count as n while the counters increment in the same statement.
func (s *Store) RecordExecution(ctx context.Context, o *Outcome) error {
	if o.Timestamp == 0 {
		o.Timestamp = time.Now().UnixMilli()
	}
	if o.ItemsExtracted < 0 {
		o.ItemsExtracted = 0
	}
	if o.DurationMs < 0 {
		o.DurationMs = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	succeeded := 0
	if o.Succeeded {
		succeeded = 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (id, target, site, task, algorithm, selector,
		succeeded, items_extracted, duration_ms, error_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), o.Target, o.Site, o.Task, o.Algorithm, o.Selector,
		succeeded, o.ItemsExtracted, o.DurationMs, o.ErrorSummary, o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: append execution: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO strategy_stats (site, task, algorithm, selector,
		success_count, failure_count, avg_items, avg_time_ms, last_used_at, source_doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, task, algorithm, selector) DO UPDATE SET
		    success_count = success_count + excluded.success_count,
		    failure_count = failure_count + excluded.failure_count,
		    avg_items = (avg_items * (success_count + failure_count) + excluded.avg_items)
		                / (success_count + failure_count + 1),
		    avg_time_ms = (avg_time_ms * (success_count + failure_count) + excluded.avg_time_ms)
		                  / (success_count + failure_count + 1),
		    last_used_at = excluded.last_used_at,
		    source_doc = CASE WHEN excluded.source_doc != ''
		                      THEN excluded.source_doc ELSE source_doc END`,
		o.Site, o.Task, o.Algorithm, o.Selector,
		succeeded, 1-succeeded, float64(o.ItemsExtracted), float64(o.DurationMs),
		o.Timestamp, o.SourceDoc,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert stats: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// History returns the most recent audit-log entries for a site, newest
// first. A diagnostics query; it never mutates the log.
func (s *Store) History(ctx context.Context, site string, limit int) ([]*Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target, site, task, algorithm, selector, succeeded,
		items_extracted, duration_ms, error_summary, created_at
		FROM executions WHERE site = ?
		ORDER BY created_at DESC LIMIT ?`, site, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*Outcome
	for rows.Next() {
		var o Outcome
		var succeeded int
		if err := rows.Scan(&o.Target, &o.Site, &o.Task, &o.Algorithm, &o.Selector,
			&succeeded, &o.ItemsExtracted, &o.DurationMs, &o.ErrorSummary, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", ErrUnavailable, err)
		}
		o.Succeeded = succeeded != 0
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Reset deletes the aggregate rows for a site, narrowed to one task when
// task is non-empty. The audit log is append-only and stays intact.
// Explicit operator action only; the engine never calls this.
func (s *Store) Reset(ctx context.Context, site, task string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM strategy_stats WHERE site = ? AND (task = ? OR ? = '')`,
		site, task, task)
	if err != nil {
		return fmt.Errorf("%w: reset: %v", ErrUnavailable, err)
	}
	return nil
}
