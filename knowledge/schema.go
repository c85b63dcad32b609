// CLAUDE:SUMMARY Knowledge store SQL schema: executions audit log and strategy_stats aggregate rows.
package knowledge

import "database/sql"

// Schema is the complete knowledge store schema.
const Schema = `
-- Append-only audit log: one row per extraction attempt
CREATE TABLE IF NOT EXISTS executions (
    id              TEXT PRIMARY KEY,
    target          TEXT NOT NULL,
    site            TEXT NOT NULL,
    task            TEXT NOT NULL,
    algorithm       TEXT NOT NULL,
    selector        TEXT NOT NULL DEFAULT '',
    succeeded       INTEGER NOT NULL,
    items_extracted INTEGER NOT NULL DEFAULT 0,
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    error_summary   TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_site ON executions(site, task, created_at DESC);

-- Aggregate statistics: one row per (site, task, algorithm, selector)
CREATE TABLE IF NOT EXISTS strategy_stats (
    site          TEXT NOT NULL,
    task          TEXT NOT NULL,
    algorithm     TEXT NOT NULL,
    selector      TEXT NOT NULL DEFAULT '',
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    avg_items     REAL NOT NULL DEFAULT 0,
    avg_time_ms   REAL NOT NULL DEFAULT 0,
    last_used_at  INTEGER NOT NULL DEFAULT 0,
    source_doc    TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (site, task, algorithm, selector)
);
CREATE INDEX IF NOT EXISTS idx_stats_site_task ON strategy_stats(site, task);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
