// CLAUDE:SUMMARY Ranking queries: best strategy per site/task, algorithm rankings, suggested order.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Tie-break for every ranking query: higher success rate, then higher
// success count, then most recently used.
const rankOrder = `ORDER BY CAST(success_count AS REAL) / (success_count + failure_count) DESC,
	success_count DESC, last_used_at DESC`

// BestStrategyFor returns the aggregate row with the highest success rate
// for (site, task) among rows with at least one recorded execution, or nil
// when no row exists or the best rate is below minSuccessRate.
func (s *Store) BestStrategyFor(ctx context.Context, site, task string, minSuccessRate float64) (*AggregateStat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT site, task, algorithm, selector, success_count, failure_count,
		avg_items, avg_time_ms, last_used_at, source_doc
		FROM strategy_stats
		WHERE site = ? AND task = ? AND success_count + failure_count > 0 `+
			rankOrder+` LIMIT 1`, site, task)

	stat, err := scanStat(row)
	if err != nil {
		return nil, err
	}
	if stat == nil || stat.SuccessRate() < minSuccessRate {
		return nil, nil
	}
	return stat, nil
}

// Ranking is per-algorithm statistics aggregated across selectors.
type Ranking struct {
	Algorithm    string  `json:"algorithm"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	AvgItems     float64 `json:"avg_items"`
	LastUsedAt   int64   `json:"last_used_at"`
}

// SuccessRate of the aggregated algorithm.
func (r *Ranking) SuccessRate() float64 {
	n := r.SuccessCount + r.FailureCount
	if n == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(n)
}

// AlgorithmRankings aggregates stats per algorithm, optionally filtered by
// site and/or task (empty string = no filter), ordered by the standard
// tie-break.
func (s *Store) AlgorithmRankings(ctx context.Context, site, task string) ([]*Ranking, error) {
	var where []string
	var args []any
	if site != "" {
		where = append(where, "site = ?")
		args = append(args, site)
	}
	if task != "" {
		where = append(where, "task = ?")
		args = append(args, task)
	}
	q := `SELECT algorithm, SUM(success_count), SUM(failure_count),
		SUM(avg_items * (success_count + failure_count)), MAX(last_used_at)
		FROM strategy_stats`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` GROUP BY algorithm
		HAVING SUM(success_count) + SUM(failure_count) > 0
		ORDER BY CAST(SUM(success_count) AS REAL) / (SUM(success_count) + SUM(failure_count)) DESC,
		SUM(success_count) DESC, MAX(last_used_at) DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: rankings: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*Ranking
	for rows.Next() {
		var r Ranking
		var weightedItems float64
		if err := rows.Scan(&r.Algorithm, &r.SuccessCount, &r.FailureCount,
			&weightedItems, &r.LastUsedAt); err != nil {
			return nil, fmt.Errorf("%w: scan ranking: %v", ErrUnavailable, err)
		}
		if n := r.SuccessCount + r.FailureCount; n > 0 {
			r.AvgItems = weightedItems / float64(n)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SuggestAlgorithmOrder concatenates, de-duplicating by first occurrence:
// site-specific rankings, global per-task rankings, then the built-in
// default order. Every default algorithm appears exactly once even with no
// history. A store failing mid-run degrades to the defaults with a warning
// rather than aborting the resolution.
func (s *Store) SuggestAlgorithmOrder(ctx context.Context, site, task string) []string {
	var order []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}

	siteRanked, err := s.AlgorithmRankings(ctx, site, task)
	if err != nil {
		s.logger.Warn("knowledge: site rankings unavailable, using defaults",
			"site", site, "task", task, "error", err)
		return append([]string(nil), DefaultAlgorithmOrder...)
	}
	for _, r := range siteRanked {
		add(r.Algorithm)
	}

	globalRanked, err := s.AlgorithmRankings(ctx, "", task)
	if err != nil {
		s.logger.Warn("knowledge: global rankings unavailable",
			"task", task, "error", err)
	} else {
		for _, r := range globalRanked {
			add(r.Algorithm)
		}
	}

	for _, name := range DefaultAlgorithmOrder {
		add(name)
	}
	return order
}

// StatFor returns the aggregate row for an exact key, or nil when absent.
func (s *Store) StatFor(ctx context.Context, site, task, algorithm, selector string) (*AggregateStat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT site, task, algorithm, selector, success_count, failure_count,
		avg_items, avg_time_ms, last_used_at, source_doc
		FROM strategy_stats
		WHERE site = ? AND task = ? AND algorithm = ? AND selector = ?`,
		site, task, algorithm, selector)
	return scanStat(row)
}

func scanStat(row *sql.Row) (*AggregateStat, error) {
	var st AggregateStat
	err := row.Scan(&st.Site, &st.Task, &st.Algorithm, &st.Selector,
		&st.SuccessCount, &st.FailureCount, &st.AvgItems, &st.AvgTimeMs,
		&st.LastUsedAt, &st.SourceDoc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: scan stat: %v", ErrUnavailable, err)
	}
	return &st, nil
}
