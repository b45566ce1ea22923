package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// FileName is the conventional name of the tracking database inside a work directory.
const FileName = "tracking.db"

// InitDB opens the SQLite database at path and creates the tracking table if it doesn't exist.
func InitDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Workers record rows concurrently; one connection serialises the writes.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		file_role TEXT NOT NULL,
		local_path TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		expected_checksum TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create tracking table: %w", err)
	}

	return db, nil
}
