// Package migrations owns the results database schema. Run applies every
// pending migration in order and records it in schema_migrations, so
// calling it on every startup is safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version    int
	name       string
	statements []string
}

var all = []migration{
	{
		version: 1,
		name:    "create_test_runs",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS test_runs (
				id VARCHAR PRIMARY KEY,
				name VARCHAR NOT NULL,
				status VARCHAR NOT NULL,
				message VARCHAR NOT NULL DEFAULT '',
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP
			)`,
		},
	},
	{
		version: 2,
		name:    "create_test_results",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS test_results (
				id VARCHAR PRIMARY KEY,
				run_id VARCHAR NOT NULL,
				plan_name VARCHAR NOT NULL,
				case_name VARCHAR NOT NULL,
				unit_name VARCHAR NOT NULL,
				unit_kind VARCHAR NOT NULL,
				status VARCHAR NOT NULL,
				message VARCHAR NOT NULL DEFAULT '',
				results_path VARCHAR NOT NULL DEFAULT '',
				recorded_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_test_results_run_id ON test_results (run_id)`,
		},
	},
}

// Run applies every migration that has not been applied yet.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return err
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range all {
		if applied[m.version] {
			continue
		}
		for _, statement := range m.statements {
			if _, err := db.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("applying migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}

	return nil
}
