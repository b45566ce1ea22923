package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

func writeFile(t *testing.T, path string, age time.Duration) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	mod := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestRemoveStale(t *testing.T) {
	raw := t.TempDir()

	oldPart := filepath.Join(raw, "R1", "R1.fastq.gz.part")
	newPart := filepath.Join(raw, "R2", "R2.fastq.gz.part")
	okFile := filepath.Join(raw, "R3", "R3.fastq.gz")
	oldFailed := filepath.Join(raw, "R4", "R4_1.fastq.gz")
	newFailed := filepath.Join(raw, "R4", "R4_2.fastq.gz")
	noStamp := filepath.Join(raw, "R5", "R5.fastq.gz")

	writeFile(t, oldPart, 48*time.Hour)
	writeFile(t, newPart, time.Minute)
	writeFile(t, okFile, 48*time.Hour)
	writeFile(t, oldFailed, time.Minute)
	writeFile(t, newFailed, time.Minute)
	writeFile(t, noStamp, 48*time.Hour)

	rows := []storage.Row{
		{RunID: "R3", LocalPath: okFile, Status: transfer.StatusOK, UpdatedAt: time.Now().Add(-72 * time.Hour)},
		{RunID: "R4", LocalPath: oldFailed, Status: transfer.StatusError, UpdatedAt: time.Now().Add(-72 * time.Hour)},
		{RunID: "R4", LocalPath: newFailed, Status: transfer.StatusError, UpdatedAt: time.Now()},
		{RunID: "R5", LocalPath: noStamp, Status: transfer.StatusError},
		{RunID: "R6", LocalPath: filepath.Join(raw, "R6", "gone"), Status: transfer.StatusError},
	}

	res, err := RemoveStale(context.Background(), rows, raw, 24*time.Hour)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{oldPart, oldFailed, noStamp}, res.Removed)
	assert.EqualValues(t, 12, res.Bytes)

	assert.FileExists(t, newPart)
	assert.FileExists(t, okFile)
	assert.FileExists(t, newFailed)
	assert.NoFileExists(t, oldPart)
	assert.NoFileExists(t, oldFailed)
}

func TestRemoveStaleMissingDir(t *testing.T) {
	res, err := RemoveStale(context.Background(), nil, filepath.Join(t.TempDir(), "absent"), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
}
