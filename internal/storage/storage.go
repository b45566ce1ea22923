package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/enadl/internal/transfer"
)

var ErrNotFound = errors.New("tracking row not found")

// Row is the persisted outcome of one FileEntry. LocalPath identifies the row.
type Row struct {
	RunID            string
	Role             transfer.Role
	LocalPath        string
	Status           transfer.Status
	Detail           string
	URL              string
	ExpectedChecksum string
	UpdatedAt        time.Time
}

// NewRow builds the row recording status for entry.
func NewRow(e transfer.FileEntry, status transfer.Status, detail string) Row {
	return Row{
		RunID:            e.RunID,
		Role:             e.Role,
		LocalPath:        e.LocalPath,
		Status:           status,
		Detail:           detail,
		URL:              e.URL,
		ExpectedChecksum: e.ExpectedChecksum,
		UpdatedAt:        time.Now().UTC(),
	}
}

// Entry rebuilds the FileEntry a row was recorded for, so failed rows can be retried
// without going back to the metadata provider.
func (r Row) Entry() transfer.FileEntry {
	return transfer.FileEntry{
		RunID:            r.RunID,
		Role:             r.Role,
		URL:              r.URL,
		ExpectedChecksum: r.ExpectedChecksum,
		LocalPath:        r.LocalPath,
	}
}

// Store persists the tracking table. Record must be durable when it returns, so a crash
// after it keeps that row. Implementations are safe for concurrent use.
type Store interface {
	// Load returns the persisted table, or an empty one when nothing was recorded yet.
	Load(ctx context.Context) (*Table, error)
	// Get returns the row for localPath or ErrNotFound.
	Get(ctx context.Context, localPath string) (Row, error)
	// Record inserts the row or replaces the row with the same LocalPath.
	Record(ctx context.Context, row Row) error
	Close() error
}
