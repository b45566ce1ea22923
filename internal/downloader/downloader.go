package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/enadl/internal/fetch"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/telemetry"
	"github.com/italolelis/enadl/internal/transfer"
)

const defaultConcurrency = 4

// Fetcher retrieves one remote file to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, localPath string) (fetch.Outcome, error)
}

// Verifier checks a local file against an expected digest. An empty digest passes.
type Verifier interface {
	Verify(path, expected string) (bool, error)
}

// Options configures a Manager.
type Options struct {
	// Concurrency is the number of runs processed at once. Default: 4
	Concurrency int

	// KeepFailed leaves files that failed verification, and partial transfers, on disk.
	KeepFailed bool

	// Force fetches files again even when they already exist.
	Force bool

	// VerifyExisting checksums files that already exist instead of trusting their presence.
	VerifyExisting bool

	// OnRunComplete is called once every file of a run has been recorded. It is not called
	// for runs cut short by cancellation. Calls may come from several goroutines.
	OnRunComplete func(runID string, rows []storage.Row)
}

// Manager downloads and verifies batches of files, recording one tracking row per file.
type Manager struct {
	fetcher   Fetcher
	verifier  Verifier
	store     storage.Store
	opts      Options
	telemetry *telemetry.Telemetry

	mu sync.Mutex // serialises store writes
}

func NewManager(f Fetcher, v Verifier, s storage.Store, opts Options, tel *telemetry.Telemetry) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Manager{
		fetcher:   f,
		verifier:  v,
		store:     s,
		opts:      opts,
		telemetry: tel,
	}
}

// Run processes every entry of batch and returns their rows in batch order. Per-file
// failures become Error rows. The returned error is reserved for invalid batches and
// tracking store failures; the table holds whatever was recorded before it.
//
// Cancelling ctx stops new fetches. Fetches already in flight run to completion and are
// recorded; entries never attempted are absent from the table.
func (m *Manager) Run(ctx context.Context, batch transfer.Batch) (*storage.Table, error) {
	return m.run(ctx, batch, m.opts.Force)
}

// RerunFailed re-attempts the Error rows of table and returns table with their new
// outcomes merged in. Other rows are returned unchanged.
func (m *Manager) RerunFailed(ctx context.Context, table *storage.Table) (*storage.Table, error) {
	logger := logctx.LoggerFromContext(ctx)

	var batch transfer.Batch

	for _, r := range table.WithStatus(transfer.StatusError) {
		if r.URL == "" {
			logger.WarnContext(ctx, "failed row has no source url, skipping", "run_id", r.RunID, "local_path", r.LocalPath)

			continue
		}

		batch = append(batch, r.Entry())
	}

	if len(batch) == 0 {
		logger.InfoContext(ctx, "no failed files to retry")

		return storage.NewTable(table.Rows()...), nil
	}

	logger.InfoContext(ctx, "retrying failed files", "files", len(batch))

	result, err := m.run(ctx, batch, true)

	return table.Merge(result), err
}

func (m *Manager) run(ctx context.Context, batch transfer.Batch, force bool) (*storage.Table, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	logger := logctx.LoggerFromContext(ctx)

	// the batch still returns a table when ctx is already done
	prior, err := m.store.Load(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to load tracking table: %w", err)
	}

	position := make(map[string]int, len(batch))
	for i, e := range batch {
		position[e.LocalPath] = i
	}

	var (
		slots      = make([]*storage.Row, len(batch))
		persistErr error
		errOnce    sync.Once
	)

	dispatchCtx, stop := context.WithCancel(ctx)
	defer stop()

	fail := func(err error) {
		errOnce.Do(func() {
			persistErr = err
			stop()
		})
	}

	runs := batch.Runs()

	logger.InfoContext(ctx, "processing batch", "files", len(batch), "runs", len(runs), "concurrency", m.opts.Concurrency)

	g := new(errgroup.Group)
	g.SetLimit(m.opts.Concurrency)

	for _, run := range runs {
		if dispatchCtx.Err() != nil {
			break
		}

		g.Go(func() error {
			runCtx := logctx.WithRunID(ctx, run[0].RunID)
			rows := make([]storage.Row, 0, len(run))

			for _, e := range run {
				if dispatchCtx.Err() != nil {
					return nil
				}

				prev, hasPrev := prior.Get(e.LocalPath)
				row := m.processEntry(runCtx, e, force, hasPrev && prev.Status == transfer.StatusError)

				if err := m.record(runCtx, row); err != nil {
					fail(err)

					return nil
				}

				slots[position[e.LocalPath]] = &row
				rows = append(rows, row)
			}

			m.completeRun(runCtx, run[0].RunID, rows)

			return nil
		})
	}

	_ = g.Wait()

	result := storage.NewTable()

	for _, r := range slots {
		if r != nil {
			result.Upsert(*r)
		}
	}

	if ctx.Err() != nil {
		logger.WarnContext(ctx, "batch cancelled", "processed", result.Len(), "files", len(batch))
	}

	return result, persistErr
}

func (m *Manager) record(ctx context.Context, row storage.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Record(context.WithoutCancel(ctx), row); err != nil {
		m.telemetry.RecordSystemError("storage", "record")

		return fmt.Errorf("failed to record %s: %w", row.LocalPath, err)
	}

	return nil
}

func (m *Manager) completeRun(ctx context.Context, runID string, rows []storage.Row) {
	failed := false

	for _, r := range rows {
		if r.Status == transfer.StatusError {
			failed = true
		}
	}

	m.telemetry.RecordRunComplete(failed)

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "run complete", "files", len(rows), "failed", failed)

	if m.opts.OnRunComplete != nil {
		m.opts.OnRunComplete(runID, rows)
	}
}

// processEntry drives one file to its terminal status:
// existing → Exists, or fetch → verify → OK / Error.
func (m *Manager) processEntry(ctx context.Context, e transfer.FileEntry, force, failedBefore bool) storage.Row {
	var row storage.Row

	m.telemetry.InstrumentFile(ctx, func(ctx context.Context) string {
		row = m.processFile(ctx, e, force, failedBefore)

		return string(row.Status)
	})

	return row
}

func (m *Manager) processFile(ctx context.Context, e transfer.FileEntry, force, failedBefore bool) storage.Row {
	logger := logctx.LoggerFromContext(ctx).With("local_path", e.LocalPath)

	if !force && !failedBefore && nonEmptyFile(e.LocalPath) {
		if !m.opts.VerifyExisting || !e.HasChecksum() {
			logger.DebugContext(ctx, "file already exists, skipping")

			return storage.NewRow(e, transfer.StatusExists, "")
		}

		ok, err := m.verifier.Verify(e.LocalPath, e.ExpectedChecksum)

		switch {
		case err != nil:
			m.telemetry.RecordChecksum("error")
			logger.ErrorContext(ctx, "failed to verify existing file", "err", err)

			return storage.NewRow(e, transfer.StatusError, transfer.Detail(err))
		case ok:
			m.telemetry.RecordChecksum("pass")
			logger.DebugContext(ctx, "existing file verified")

			return storage.NewRow(e, transfer.StatusExists, "")
		case m.opts.KeepFailed:
			m.telemetry.RecordChecksum("fail")
			logger.WarnContext(ctx, "existing file failed verification, keeping it")

			return storage.NewRow(e, transfer.StatusError, "existing file checksum mismatch")
		}

		m.telemetry.RecordChecksum("fail")
		logger.WarnContext(ctx, "existing file failed verification, fetching again")

		if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return storage.NewRow(e, transfer.StatusError, fmt.Sprintf("failed to remove corrupt file: %v", err))
		}
	} else if failedBefore && nonEmptyFile(e.LocalPath) {
		logger.InfoContext(ctx, "previous attempt failed, fetching again")
	}

	return m.fetchAndVerify(ctx, e)
}

func (m *Manager) fetchAndVerify(ctx context.Context, e transfer.FileEntry) storage.Row {
	logger := logctx.LoggerFromContext(ctx).With("local_path", e.LocalPath)
	part := fetch.PartPath(e.LocalPath)

	logger.InfoContext(ctx, "downloading file", "url", e.URL)

	// In-flight fetches finish even when the batch is cancelled.
	out, err := m.fetcher.Fetch(context.WithoutCancel(ctx), e.URL, part)
	m.telemetry.RecordBytes(out.BytesWritten)

	if err != nil {
		logger.ErrorContext(ctx, "failed to download file", "bytes_written", out.BytesWritten, "err", err)
		m.discard(ctx, part)

		return storage.NewRow(e, transfer.StatusError, transfer.Detail(err))
	}

	ok, err := m.verifier.Verify(part, e.ExpectedChecksum)
	if err != nil {
		m.telemetry.RecordChecksum("error")
		logger.ErrorContext(ctx, "failed to verify file", "err", err)
		m.discard(ctx, part)

		return storage.NewRow(e, transfer.StatusError, transfer.Detail(err))
	}

	if !ok {
		m.telemetry.RecordChecksum("fail")
		mismatch := &transfer.ChecksumMismatchError{Path: e.LocalPath, Expected: e.ExpectedChecksum}
		logger.WarnContext(ctx, "checksum mismatch", "expected", e.ExpectedChecksum, "keep_failed", m.opts.KeepFailed)

		if m.opts.KeepFailed {
			if err := os.Rename(part, e.LocalPath); err != nil {
				logger.ErrorContext(ctx, "failed to keep mismatched file", "err", err)
			}
		} else {
			m.discard(ctx, part)
			// a forced refetch replaces whatever sat at the final path
			m.discard(ctx, e.LocalPath)
		}

		return storage.NewRow(e, transfer.StatusError, transfer.Detail(mismatch))
	}

	if e.HasChecksum() {
		m.telemetry.RecordChecksum("pass")
	} else {
		m.telemetry.RecordChecksum("skipped")
	}

	if err := os.Rename(part, e.LocalPath); err != nil {
		m.discard(ctx, part)

		return storage.NewRow(e, transfer.StatusError, fmt.Sprintf("failed to move file into place: %v", err))
	}

	logger.InfoContext(ctx, "downloaded and verified file", "size", humanize.Bytes(uint64(out.BytesWritten)))

	return storage.NewRow(e, transfer.StatusOK, "")
}

// discard removes a partial or failed download unless KeepFailed is set.
func (m *Manager) discard(ctx context.Context, path string) {
	if m.opts.KeepFailed {
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to remove file", "path", path, "err", err)
	}
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
