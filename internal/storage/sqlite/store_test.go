package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestStore_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	row := storage.Row{
		RunID:            "ERR10",
		Role:             transfer.RoleForward,
		LocalPath:        "/w/raw_reads/ERR10/ERR10_1.fastq.gz",
		Status:           transfer.StatusOK,
		URL:              "https://host/ERR10_1.fastq.gz",
		ExpectedChecksum: "abc",
		UpdatedAt:        time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.Record(ctx, row))

	got, err := s.Get(ctx, row.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, row.RunID, got.RunID)
	assert.Equal(t, row.Role, got.Role)
	assert.Equal(t, row.Status, got.Status)
	assert.Equal(t, row.URL, got.URL)
	assert.True(t, row.UpdatedAt.Equal(got.UpdatedAt))

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStore_UpsertKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)

	require.NoError(t, s.Record(ctx, storage.Row{RunID: "A", LocalPath: "a", Status: transfer.StatusError, Detail: "checksum mismatch"}))
	require.NoError(t, s.Record(ctx, storage.Row{RunID: "B", LocalPath: "b", Status: transfer.StatusExists}))
	require.NoError(t, s.Record(ctx, storage.Row{RunID: "A", LocalPath: "a", Status: transfer.StatusOK}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	tbl, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())

	rows := tbl.Rows()
	assert.Equal(t, "a", rows[0].LocalPath)
	assert.Equal(t, transfer.StatusOK, rows[0].Status)
	assert.Empty(t, rows[0].Detail)
	assert.Equal(t, transfer.StatusExists, rows[1].Status)
}

func TestStore_ConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			assert.NoError(t, s.Record(ctx, storage.Row{RunID: "R", LocalPath: string(rune('a' + i)), Status: transfer.StatusOK}))
		}(i)
	}

	wg.Wait()

	tbl, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, tbl.Len())
}
