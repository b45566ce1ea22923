package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/enadl/internal/storage"
)

// WriteRepository stores tracking rows in SQLite.
type WriteRepository struct {
	db *sql.DB
}

func NewWriteRepository(db *sql.DB) *WriteRepository {
	return &WriteRepository{db: db}
}

// Record upserts by local_path. An updated row keeps its id, and with it its position.
func (r *WriteRepository) Record(ctx context.Context, row storage.Row) error {
	updated := row.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := r.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO tracking (run_id, file_role, local_path, status, detail, url, expected_checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_path) DO UPDATE SET
			run_id = excluded.run_id,
			file_role = excluded.file_role,
			status = excluded.status,
			detail = excluded.detail,
			url = excluded.url,
			expected_checksum = excluded.expected_checksum,
			updated_at = excluded.updated_at
	`, row.RunID, string(row.Role), row.LocalPath, string(row.Status), row.Detail, row.URL, row.ExpectedChecksum, updated.UTC())

	return err
}
