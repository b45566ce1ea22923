package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

const selectColumns = `run_id, file_role, local_path, status, detail, url, expected_checksum, updated_at`

type ReadRepository struct {
	db *sql.DB
}

func NewReadRepository(dbConn *sql.DB) *ReadRepository {
	return &ReadRepository{db: dbConn}
}

// Load returns every row in insertion order.
func (r *ReadRepository) Load(ctx context.Context) (*storage.Table, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM tracking ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := storage.NewTable()

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}

		table.Upsert(row)
	}

	return table, rows.Err()
}

func (r *ReadRepository) Get(ctx context.Context, localPath string) (storage.Row, error) {
	row, err := scanRow(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tracking WHERE local_path = ?`, localPath))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Row{}, storage.ErrNotFound
	}

	return row, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (storage.Row, error) {
	var (
		row          storage.Row
		role, status string
	)

	if err := s.Scan(&row.RunID, &role, &row.LocalPath, &status, &row.Detail, &row.URL, &row.ExpectedChecksum, &row.UpdatedAt); err != nil {
		return storage.Row{}, err
	}

	parsed, ok := transfer.ParseStatus(status)
	if !ok {
		return storage.Row{}, fmt.Errorf("unknown status %q for %s", status, row.LocalPath)
	}

	row.Status = parsed
	row.Role = transfer.ParseRole(role)
	row.UpdatedAt = row.UpdatedAt.UTC()

	return row, nil
}
