package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/italolelis/enadl/internal/storage"
)

// Store is the SQLite-backed tracking store. It mirrors the TSV store for users who
// query download state with SQL or share it with other tools.
type Store struct {
	*ReadRepository
	*WriteRepository

	db *sql.DB
}

// Open creates or opens the tracking database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := InitDB(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracking database: %w", err)
	}

	return &Store{
		ReadRepository:  NewReadRepository(db),
		WriteRepository: NewWriteRepository(db),
		db:              db,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.Store = (*Store)(nil)
