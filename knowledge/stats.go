// CLAUDE:SUMMARY Aggregate store summary: key count, audit entries, distinct sites, overall rate.
package knowledge

import (
	"context"
	"fmt"
)

// Summary holds store-wide counters.
type Summary struct {
	Keys               int     `json:"keys"`
	Executions         int     `json:"executions"`
	Sites              int     `json:"sites"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
}

// Statistics returns total distinct keys, total audit-log entries, distinct
// sites, and the overall success rate across all rows (0 with no rows).
func (s *Store) Statistics(ctx context.Context) (*Summary, error) {
	var sum Summary
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM strategy_stats`).Scan(&sum.Keys); err != nil {
		return nil, fmt.Errorf("%w: count keys: %v", ErrUnavailable, err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions`).Scan(&sum.Executions); err != nil {
		return nil, fmt.Errorf("%w: count executions: %v", ErrUnavailable, err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT site) FROM strategy_stats`).Scan(&sum.Sites); err != nil {
		return nil, fmt.Errorf("%w: count sites: %v", ErrUnavailable, err)
	}

	var success, total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(success_count), 0),
		COALESCE(SUM(success_count + failure_count), 0)
		FROM strategy_stats`).Scan(&success, &total)
	if err != nil {
		return nil, fmt.Errorf("%w: sum counts: %v", ErrUnavailable, err)
	}
	if total > 0 {
		sum.OverallSuccessRate = float64(success) / float64(total)
	}
	return &sum, nil
}
