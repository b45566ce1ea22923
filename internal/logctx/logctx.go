package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	batchKey  contextKey = "batch_id"
	runKey    contextKey = "run_id"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithBatchID tags every record logged with ctx through a ContextHandler with the batch id.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchKey, id)
}

// WithRunID tags every record logged with ctx through a ContextHandler with the run accession.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey, id)
}

// BatchID returns the batch id stored in ctx, if any.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchKey).(string)

	return id
}

// RunID returns the run accession stored in ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runKey).(string)

	return id
}
