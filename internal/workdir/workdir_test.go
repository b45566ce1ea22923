package workdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := New("/data/out", "PRJEB1")

	assert.Equal(t, "/data/out/PRJEB1.csv", l.MetadataPath())
	assert.Equal(t, "/data/out/project.toml", l.ManifestPath())
	assert.Equal(t, "/data/out/.enadl.lock", l.LockPath())
	assert.Equal(t, "/data/out/raw_reads", l.RawDir())
	assert.Equal(t, "/data/out/tracking.db", l.TrackingPath("tracking.db"))
}

func TestEnsure(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "a", "b"), "P")
	require.NoError(t, l.Ensure())
	assert.DirExists(t, l.RawDir())
}

func TestLock(t *testing.T) {
	l := New(t.TempDir(), "P")

	lock, err := l.Acquire()
	require.NoError(t, err)

	content, err := os.ReadFile(l.LockPath())
	require.NoError(t, err)
	assert.Equal(t, lock.ID(), strings.TrimSpace(string(content)))

	_, err = l.Acquire()
	require.ErrorIs(t, err, ErrLocked)

	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, lock.ID(), locked.Holder)

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, l.LockPath())
	require.NoError(t, lock.Release())

	again, err := l.Acquire()
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestLockReleaseRefusesForeignHolder(t *testing.T) {
	l := New(t.TempDir(), "P")

	lock, err := l.Acquire()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(l.LockPath(), []byte("other\n"), 0o644))
	require.Error(t, lock.Release())
	assert.FileExists(t, l.LockPath())
}

func TestGenerateInstanceID(t *testing.T) {
	a, b := GenerateInstanceID(), GenerateInstanceID()
	assert.NotEqual(t, a, b)
	assert.Len(t, strings.Split(a, "-")[len(strings.Split(a, "-"))-1], 8)
}

func TestManifest(t *testing.T) {
	l := New(t.TempDir(), "PRJ1")

	m, err := l.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, "PRJ1", m.Project)
	assert.True(t, m.CreatedAt.IsZero())

	m.Provider = "ena"
	m.LastBatch = Batch{
		ID:        "b-1",
		Command:   "download",
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Summary:   BatchSummary{OK: 2, Error: 1},
	}
	require.NoError(t, l.SaveManifest(m))

	back, err := l.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, "ena", back.Provider)
	assert.Equal(t, "b-1", back.LastBatch.ID)
	assert.Equal(t, BatchSummary{OK: 2, Error: 1}, back.LastBatch.Summary)
	assert.True(t, back.LastBatch.StartedAt.Equal(m.LastBatch.StartedAt))
	assert.False(t, back.CreatedAt.IsZero())

	_, err = New(l.Root, "OTHER").LoadManifest()
	require.Error(t, err)
}
