package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"

	"github.com/italolelis/enadl/internal/checksum"
	"github.com/italolelis/enadl/internal/config"
	"github.com/italolelis/enadl/internal/downloader"
	"github.com/italolelis/enadl/internal/downloader/progress"
	"github.com/italolelis/enadl/internal/fetch"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/metadata"
	"github.com/italolelis/enadl/internal/notifier"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/storage/sqlite"
	"github.com/italolelis/enadl/internal/storage/tsv"
	"github.com/italolelis/enadl/internal/telemetry"
	"github.com/italolelis/enadl/internal/transfer"
	"github.com/italolelis/enadl/internal/workdir"
)

// exitError carries a process exit code out of a command. A nil err means the reason
// was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}

	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// app holds what every command shares after the root command set it up.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	stdout io.Writer
	stderr io.Writer

	outputDir string
	verbose   bool
	noBar     bool
}

// newLogger builds the context-aware logger. Records also go to export when it is non-nil.
func newLogger(cfg *config.Config, w io.Writer, verbose bool, export slog.Handler) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	}

	if export != nil {
		h = slogmulti.Fanout(h, export)
	}

	return slog.New(logctx.NewContextHandler(h))
}

func (a *app) layout(project string) workdir.Layout {
	return workdir.New(a.outputDir, project)
}

// openStore opens the configured tracking backend for the layout.
func (a *app) openStore(ctx context.Context, l workdir.Layout) (storage.Store, error) {
	var (
		s   storage.Store
		err error
	)

	switch a.cfg.TrackingBackend {
	case "sqlite":
		s, err = sqlite.Open(ctx, l.TrackingPath(sqlite.FileName))
	default:
		s, err = tsv.Open(ctx, l.TrackingPath(tsv.FileName))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open tracking table: %w", err)
	}

	return storage.NewInstrumentedStore(s, a.cfg.TrackingBackend, a.tel), nil
}

func (a *app) metadataSource() metadata.Source {
	client := metadata.NewHTTPClient(a.cfg.MetadataTimeout)

	return &metadata.Fallback{
		Primary:   metadata.NewENAPortal(a.cfg.ENAPortalURL, client),
		Secondary: metadata.NewSRARunInfo(a.cfg.NCBIRunInfoURL, client),
		Telemetry: a.tel,
	}
}

// progressSink returns a no-op sink when the bar is disabled. Otherwise it feeds the
// terminal bar and debug log lines; the bar is nil in the first case.
func (a *app) progressSink(ctx context.Context, files int) (progress.Sink, *progress.Bar) {
	if !a.cfg.ProgressEnabled || a.noBar {
		return progress.Nop{}, nil
	}

	bar := progress.NewBar(a.stderr, files)

	return progress.Multi{bar, progress.NewLogSink(ctx)}, bar
}

// onRunComplete logs each finished run and advances the bar's file count.
func onRunComplete(ctx context.Context, bar *progress.Bar) func(string, []storage.Row) {
	logger := logctx.LoggerFromContext(ctx)

	return func(runID string, rows []storage.Row) {
		failed := 0

		for _, r := range rows {
			if r.Status == transfer.StatusError {
				failed++
			}
		}

		logger.InfoContext(ctx, "run finished", "run_id", runID, "files", len(rows), "failed", failed)

		if bar != nil {
			bar.FilesDone(len(rows))
		}
	}
}

func (a *app) newManager(store storage.Store, sink progress.Sink, onRun func(string, []storage.Row)) (*downloader.Manager, error) {
	verifier, err := checksum.New(checksum.Algorithm(a.cfg.ChecksumAlgorithm))
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		FirstByteTimeout: a.cfg.FirstByteTimeout,
		StallTimeout:     a.cfg.StallTimeout,
		Sink:             sink,
		UserAgent:        "enadl/" + version,
	})

	return downloader.NewManager(fetcher, verifier, store, downloader.Options{
		Concurrency:    a.cfg.MaxParallel,
		KeepFailed:     a.cfg.KeepFailed,
		Force:          a.cfg.ForceRedownload,
		VerifyExisting: a.cfg.VerifyExisting,
		OnRunComplete:  onRun,
	}, a.tel), nil
}

func (a *app) notify(ctx context.Context, project, command string, s downloader.Summary, failed []string) {
	if a.cfg.DiscordWebhookURL == "" {
		return
	}

	var notif notifier.Notifier = &notifier.DiscordNotifier{WebhookURL: a.cfg.DiscordWebhookURL}

	if err := notif.Notify(ctx, notifier.BatchMessage(project, command, s.String(), failed)); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to send notification", "err", err)
	}
}

// exitCode maps a command error onto the process exit code.
func exitCode(err error) int {
	if err == nil {
		return downloader.ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	return downloader.ExitFatal
}
