package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/enadl/internal/fetch"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

// Result reports what a cleanup removed.
type Result struct {
	Removed []string
	Bytes   int64
}

// RemoveStale deletes partial downloads under rawDir and files kept for Error rows when
// they are older than keepDuration. Rows for removed files stay in the tracking table so a
// later rerun-failed fetches them again.
func RemoveStale(ctx context.Context, rows []storage.Row, rawDir string, keepDuration time.Duration) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	var res Result

	remove := func(path string, info fs.FileInfo) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.ErrorContext(ctx, "failed to delete stale file", "file", path, "err", err)

			return err
		}

		res.Removed = append(res.Removed, path)
		res.Bytes += info.Size()

		logger.InfoContext(ctx, "deleted stale file", "file", path, "size", humanize.IBytes(uint64(info.Size())))

		return nil
	}

	err := filepath.WalkDir(rawDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == rawDir {
				return filepath.SkipDir
			}

			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, fetch.PartSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if now.Sub(info.ModTime()) <= keepDuration {
			return nil
		}

		return remove(path, info)
	})
	if err != nil {
		return res, err
	}

	for _, row := range rows {
		if row.Status != transfer.StatusError {
			continue
		}

		info, err := os.Stat(row.LocalPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // already deleted
			}

			logger.ErrorContext(ctx, "failed to stat file", "file", row.LocalPath, "err", err)

			return res, err
		}

		failedAt := row.UpdatedAt
		if failedAt.IsZero() {
			logger.WarnContext(ctx, "row has no timestamp, using file mod time", "file", row.LocalPath)

			failedAt = info.ModTime()
		}

		if now.Sub(failedAt) <= keepDuration {
			continue
		}

		if err := remove(row.LocalPath, info); err != nil {
			return res, err
		}
	}

	return res, nil
}
