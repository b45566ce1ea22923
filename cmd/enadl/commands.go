package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/italolelis/enadl/internal/cleanup"
	"github.com/italolelis/enadl/internal/downloader"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/metadata"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
	"github.com/italolelis/enadl/internal/workdir"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <project>",
		Short: "Retrieve run metadata and save it as <project>.csv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.layout(args[0])

			lock, err := l.Acquire()
			if err != nil {
				return err
			}
			defer releaseLock(ctx, lock)

			table, err := a.fetchMetadata(ctx, l)
			if err != nil {
				return err
			}

			printOverview(a.stdout, table, nil)

			return nil
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <project>",
		Short: "Retrieve metadata, then download and verify every run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.layout(args[0])

			lock, err := l.Acquire()
			if err != nil {
				return err
			}
			defer releaseLock(ctx, lock)

			table, err := a.fetchMetadata(ctx, l)
			if err != nil {
				return err
			}

			return a.downloadTable(ctx, cmd.Name(), l, table)
		},
	}

	addBatchFlags(cmd, a)

	return cmd
}

func newDownloadFilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download-files <project>",
		Short: "Download the runs listed in an existing <project>.csv",
		Long: `Download the runs listed in <output>/<project>.csv, as written by fetch.
Rows may be removed from the file beforehand to download a subset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.layout(args[0])

			lock, err := l.Acquire()
			if err != nil {
				return err
			}
			defer releaseLock(ctx, lock)

			table, err := metadata.LoadFile(l.MetadataPath())
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no metadata at %s, run fetch first: %w", l.MetadataPath(), err)
			}

			if err != nil {
				return err
			}

			return a.downloadTable(ctx, cmd.Name(), l, table)
		},
	}

	addBatchFlags(cmd, a)

	return cmd
}

func newRerunFailedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rerun-failed <project>",
		Short: "Retry the files recorded as Error in the tracking table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.layout(args[0])

			lock, err := l.Acquire()
			if err != nil {
				return err
			}
			defer releaseLock(ctx, lock)

			store, err := a.openStore(ctx, l)
			if err != nil {
				return err
			}
			defer store.Close()

			prior, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load tracking table: %w", err)
			}

			expected := 0

			if meta, err := metadata.LoadFile(l.MetadataPath()); err == nil {
				batch, _ := meta.FileEntries(l.RawDir())
				prior = fillSources(prior, batch)
				expected = len(batch)
			}

			return a.runBatch(ctx, cmd.Name(), l, store, expected, func(ctx context.Context, m *downloader.Manager) (*storage.Table, error) {
				return m.RerunFailed(ctx, prior)
			}, len(prior.WithStatus(transfer.StatusError)))
		},
	}

	addBatchFlags(cmd, a)

	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <project>",
		Short: "Show the metadata overview and download status of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.layout(args[0])

			meta, err := metadata.LoadFile(l.MetadataPath())
			if err != nil {
				return err
			}

			store, err := a.openStore(ctx, l)
			if err != nil {
				return err
			}
			defer store.Close()

			tracked, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load tracking table: %w", err)
			}

			batch, _ := meta.FileEntries(l.RawDir())
			s := downloader.Summarize(tracked, len(batch))

			printOverview(a.stdout, meta, &s)

			return nil
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean <project>",
		Short: "Remove partial downloads and kept failed files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.layout(args[0])

			lock, err := l.Acquire()
			if err != nil {
				return err
			}
			defer releaseLock(ctx, lock)

			store, err := a.openStore(ctx, l)
			if err != nil {
				return err
			}
			defer store.Close()

			tracked, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load tracking table: %w", err)
			}

			res, err := cleanup.RemoveStale(ctx, tracked.Rows(), l.RawDir(), olderThan)
			if err != nil {
				return fmt.Errorf("failed to clean %s: %w", l.RawDir(), err)
			}

			printCleanup(a.stdout, res)

			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "only remove files older than this")

	return cmd
}

// fetchMetadata asks the providers for the run table, saves it and records the provider in the manifest.
func (a *app) fetchMetadata(ctx context.Context, l workdir.Layout) (*metadata.Table, error) {
	table, err := a.metadataSource().Runs(ctx, l.Project)
	if err != nil {
		return nil, err
	}

	if err := table.SaveFile(l.MetadataPath()); err != nil {
		return nil, err
	}

	m, err := l.LoadManifest()
	if err != nil {
		return nil, err
	}

	m.Provider = table.Provider
	if err := l.SaveManifest(m); err != nil {
		return nil, err
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "metadata saved", "path", l.MetadataPath(), "runs", len(table.Runs))

	return table, nil
}

// downloadTable derives the batch from table and processes it.
func (a *app) downloadTable(ctx context.Context, command string, l workdir.Layout, table *metadata.Table) error {
	logger := logctx.LoggerFromContext(ctx)

	batch, missing := table.FileEntries(l.RawDir())
	if len(missing) > 0 {
		logger.WarnContext(ctx, "runs without files will not be downloaded", "runs", len(missing))
	}

	if len(batch) == 0 {
		return transfer.ErrNoFiles
	}

	if err := l.Ensure(); err != nil {
		return err
	}

	store, err := a.openStore(ctx, l)
	if err != nil {
		return err
	}
	defer store.Close()

	return a.runBatch(ctx, command, l, store, len(batch), func(ctx context.Context, m *downloader.Manager) (*storage.Table, error) {
		return m.Run(ctx, batch)
	}, len(batch))
}

// runBatch runs one manager invocation and reports it. It returns an exitError when the
// batch recorded failures or was interrupted.
func (a *app) runBatch(
	ctx context.Context,
	command string,
	l workdir.Layout,
	store storage.Store,
	expected int,
	do func(context.Context, *downloader.Manager) (*storage.Table, error),
	files int,
) error {
	batchID := uuid.NewString()
	ctx = logctx.WithBatchID(ctx, batchID)
	logger := logctx.LoggerFromContext(ctx)

	printBanner(a.stdout, command, l, a.cfg)

	sink, bar := a.progressSink(ctx, files)

	manager, err := a.newManager(store, sink, onRunComplete(ctx, bar))
	if err != nil {
		return err
	}

	started := time.Now().UTC()

	result, err := do(ctx, manager)

	if bar != nil {
		bar.Finish()
	}

	if err != nil {
		var invalid *transfer.InvalidEntryError
		if errors.As(err, &invalid) {
			return err
		}

		logger.ErrorContext(ctx, "batch aborted", "err", err)

		if result == nil {
			return err
		}
	}

	// The printed summary describes the whole tracking table. The exit code only
	// reflects the files of this batch.
	batchSummary := downloader.Summarize(result, files)

	tracked, lerr := store.Load(context.WithoutCancel(ctx))
	if lerr != nil {
		return errors.Join(err, fmt.Errorf("failed to load tracking table: %w", lerr))
	}

	summary := downloader.Summarize(tracked, expected)
	failed := failedRuns(tracked)

	printSummary(a.stdout, summary, failed)
	fmt.Fprintf(a.stdout, "This batch:        %s\n", batchSummary)

	m, merr := l.LoadManifest()
	if merr == nil {
		m.LastBatch = workdir.Batch{
			ID:         batchID,
			Command:    command,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Summary: workdir.BatchSummary{
				OK:           summary.OK,
				Exists:       summary.Exists,
				Error:        summary.Error,
				NotAttempted: summary.NotAttempted,
			},
		}
		merr = l.SaveManifest(m)
	}

	if merr != nil {
		logger.WarnContext(ctx, "failed to update manifest", "err", merr)
	}

	a.notify(context.WithoutCancel(ctx), l.Project, command, summary, failed)

	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		logger.WarnContext(ctx, "batch interrupted before every file was processed")

		return &exitError{code: downloader.ExitHadFailure}
	}

	if code := batchSummary.ExitCode(); code != downloader.ExitOK {
		return &exitError{code: code}
	}

	return nil
}

// fillSources restores URLs of failed rows recorded without one, using the entries derived from metadata.
func fillSources(table *storage.Table, batch transfer.Batch) *storage.Table {
	byPath := make(map[string]transfer.FileEntry, len(batch))
	for _, e := range batch {
		byPath[e.LocalPath] = e
	}

	out := storage.NewTable(table.Rows()...)

	for _, r := range table.WithStatus(transfer.StatusError) {
		e, ok := byPath[r.LocalPath]
		if r.URL != "" || !ok {
			continue
		}

		r.URL = e.URL
		r.ExpectedChecksum = e.ExpectedChecksum
		out.Upsert(r)
	}

	return out
}

// failedRuns lists the distinct run ids with an Error row, in table order.
func failedRuns(table *storage.Table) []string {
	seen := make(map[string]bool)

	var out []string

	for _, r := range table.WithStatus(transfer.StatusError) {
		if !seen[r.RunID] {
			seen[r.RunID] = true
			out = append(out, r.RunID)
		}
	}

	return out
}

func releaseLock(ctx context.Context, lock *workdir.Lock) {
	if err := lock.Release(); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to release lock", "err", err)
	}
}
