package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/italolelis/enadl/internal/config"
	"github.com/italolelis/enadl/internal/downloader"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/telemetry"
)

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	if a.tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if serr := a.tel.Shutdown(shutdownCtx); serr != nil {
			slog.Error("failed to shutdown telemetry", "err", serr)
		}
	}

	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintln(stderr, "error:", err)
	}

	return exitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "enadl",
		Short:         "Download and verify sequencing runs of an ENA project",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.outputDir, "output", "o", ".", "project output directory")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newFetchCmd(a),
		newDownloadCmd(a),
		newDownloadFilesCmd(a),
		newRerunFailedCmd(a),
		newInfoCmd(a),
		newCleanCmd(a),
		newServeCmd(a),
	)

	return cmd
}

// addBatchFlags registers the switches that override the environment for one batch.
func addBatchFlags(cmd *cobra.Command, a *app) {
	f := cmd.Flags()
	f.Bool("keep-failed", false, "keep files that fail checksum verification")
	f.Bool("force", false, "download files again even if they exist")
	f.Bool("verify-existing", false, "checksum files that already exist")
	f.BoolVar(&a.noBar, "no-progress-bar", false, "disable the progress bar")
	f.Int("parallel", 0, "number of runs downloaded at once")
}

// setup loads configuration, then builds the logger and telemetry every command uses.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	a.cfg = cfg

	logger := newLogger(cfg, a.stderr, a.verbose, nil)

	ctx := logctx.WithLogger(cmd.Context(), logger)

	a.tel, err = telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled || cmd.Name() == "serve",
		ServiceName:    "enadl",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if export := a.tel.LogHandler("enadl"); export != nil {
		logger = newLogger(cfg, a.stderr, a.verbose, export)
		ctx = logctx.WithLogger(cmd.Context(), logger)
	}

	slog.SetDefault(logger)

	cmd.SetContext(ctx)

	logger.DebugContext(ctx, "enadl starting", "command", cmd.Name(), "log_level", cfg.LogLevel, "output", a.outputDir)

	return nil
}

// applyFlags copies explicitly set batch flags over the environment configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	for name, dst := range map[string]*bool{
		"keep-failed":     &cfg.KeepFailed,
		"force":           &cfg.ForceRedownload,
		"verify-existing": &cfg.VerifyExisting,
	} {
		if f.Lookup(name) == nil || !f.Changed(name) {
			continue
		}

		v, err := f.GetBool(name)
		if err != nil {
			return err
		}

		*dst = v
	}

	if f.Lookup("parallel") != nil && f.Changed("parallel") {
		n, err := f.GetInt("parallel")
		if err != nil {
			return err
		}

		cfg.MaxParallel = n
	}

	if err := cfg.Validate(); err != nil {
		return &exitError{code: downloader.ExitFatal, err: fmt.Errorf("invalid flags: %w", err)}
	}

	return nil
}
