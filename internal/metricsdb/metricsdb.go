// Package metricsdb persists run reports to a sqlite database so stage
// outcomes and cache behavior can be compared across runs.
package metricsdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/fastpdi/dpp/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	cache_hits   INTEGER NOT NULL,
	cache_misses INTEGER NOT NULL,
	products     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stage_summaries (
	run_id    TEXT NOT NULL REFERENCES runs(run_id),
	stage     TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	failed    INTEGER NOT NULL,
	skipped   INTEGER NOT NULL,
	PRIMARY KEY (run_id, stage)
);
CREATE TABLE IF NOT EXISTS file_outcomes (
	run_id  TEXT NOT NULL REFERENCES runs(run_id),
	file    TEXT NOT NULL,
	stage   TEXT NOT NULL,
	status  TEXT NOT NULL,
	reason  TEXT,
	PRIMARY KEY (run_id, file, stage)
);
CREATE TABLE IF NOT EXISTS epoch_outcomes (
	run_id            TEXT NOT NULL REFERENCES runs(run_id),
	epoch             INTEGER NOT NULL,
	status            TEXT NOT NULL,
	reason            TEXT,
	product           TEXT,
	reduced_precision INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, epoch)
);
`

// DB records run reports in sqlite. Safe for use by one process at a time;
// the busy timeout covers transient CLI overlap.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics db busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics db schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordRun stores one run report transactionally.
func (d *DB) RecordRun(report *domain.RunReport) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	const timeLayout = "2006-01-02T15:04:05.000Z07:00"
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO runs (run_id, name, started_at, finished_at, cache_hits, cache_misses, products)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Name,
		report.StartedAt.Format(timeLayout), report.FinishedAt.Format(timeLayout),
		report.CacheHits, report.CacheMisses, len(report.Products),
	); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for _, s := range report.Summaries {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO stage_summaries (run_id, stage, succeeded, failed, skipped)
			 VALUES (?, ?, ?, ?, ?)`,
			report.RunID, string(s.Stage), s.Succeeded, s.Failed, s.Skipped,
		); err != nil {
			return fmt.Errorf("record stage summary: %w", err)
		}
	}
	for _, o := range report.Outcomes {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO file_outcomes (run_id, file, stage, status, reason)
			 VALUES (?, ?, ?, ?, ?)`,
			report.RunID, o.File, string(o.Stage), string(o.Status), o.Reason,
		); err != nil {
			return fmt.Errorf("record file outcome: %w", err)
		}
	}
	for _, e := range report.Epochs {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO epoch_outcomes (run_id, epoch, status, reason, product, reduced_precision)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			report.RunID, e.Epoch, string(e.Status), e.Reason, e.Product, boolToInt(e.ReducedPrecision),
		); err != nil {
			return fmt.Errorf("record epoch outcome: %w", err)
		}
	}
	return tx.Commit()
}

// RunSummary is one row of the cross-run listing.
type RunSummary struct {
	RunID       string
	Name        string
	Products    int
	CacheHits   int
	CacheMisses int
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := d.db.Query(
		`SELECT run_id, name, products, cache_hits, cache_misses
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Name, &r.Products, &r.CacheHits, &r.CacheMisses); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
