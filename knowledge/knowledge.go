// CLAUDE:SUMMARY Knowledge store types: execution outcomes, aggregate stats, sentinel errors.
// Package knowledge persists what worked: an append-only audit log of
// extraction attempts and aggregate success statistics keyed by
// (site, task, algorithm, selector), with ranking queries the resolution
// engine uses to order algorithm attempts.
//
// All mutation goes through RecordExecution; the per-key read-modify-write
// is a single transactional upsert, so concurrent outcomes for the same key
// never lose an increment. The raw row map is never exposed.
package knowledge

import (
	"database/sql"
	"errors"
	"log/slog"
)

// ErrUnavailable wraps store I/O failures. It is distinct from extraction
// failures: it means the learning loop itself is broken.
var ErrUnavailable = errors.New("knowledge: store unavailable")

// DefaultAlgorithmOrder is the built-in fallback order appended by
// SuggestAlgorithmOrder. Every name appears in a suggestion exactly once,
// even with no recorded history.
var DefaultAlgorithmOrder = []string{"density", "pattern", "table", "links"}

// Outcome is one extraction attempt, appended to the audit log and folded
// into the aggregate stats. Append-only: never mutated or deleted.
type Outcome struct {
	Target         string `json:"target"`
	Site           string `json:"site"`
	Task           string `json:"task"`
	Algorithm      string `json:"algorithm"`
	Selector       string `json:"selector,omitempty"`
	Succeeded      bool   `json:"succeeded"`
	ItemsExtracted int    `json:"items_extracted"`
	DurationMs     int64  `json:"duration_ms"`
	ErrorSummary   string `json:"error_summary,omitempty"`
	Timestamp      int64  `json:"timestamp"` // unix millis
	SourceDoc      string `json:"source_doc,omitempty"` // strategy document the attempt was learned from, optional
}

// AggregateStat is one row of learned statistics for a
// (site, task, algorithm, selector) key.
type AggregateStat struct {
	Site         string  `json:"site"`
	Task         string  `json:"task"`
	Algorithm    string  `json:"algorithm"`
	Selector     string  `json:"selector,omitempty"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	AvgItems     float64 `json:"avg_items"`
	AvgTimeMs    float64 `json:"avg_time_ms"`
	LastUsedAt   int64   `json:"last_used_at"`
	SourceDoc    string  `json:"source_doc,omitempty"`
}

// Attempts is the total number of recorded executions for the key.
func (s *AggregateStat) Attempts() int {
	return s.SuccessCount + s.FailureCount
}

// SuccessRate is successCount/(successCount+failureCount). Zero attempts
// means no data; callers must check Attempts before trusting the rate.
func (s *AggregateStat) SuccessRate() float64 {
	n := s.Attempts()
	if n == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(n)
}

// Store wraps the knowledge database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a Store from an already-opened database. The caller is
// expected to have applied the schema (Open does both).
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}
