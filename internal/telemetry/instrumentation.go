package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes stay low-cardinality: run ids, paths and URLs go to logs, not to spans.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.String("component", component),
	))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// InstrumentStoreOperation instruments tracking store operations.
func (t *Telemetry) InstrumentStoreOperation(ctx context.Context, backend, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "store_"+operation, "storage", fn)

	t.RecordStoreOperation(backend, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentMetadataRequest instruments one metadata provider call.
func (t *Telemetry) InstrumentMetadataRequest(ctx context.Context, provider string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "metadata_"+provider, "metadata", fn)

	t.RecordMetadataRequest(provider, statusOf(err))

	return err
}

// InstrumentFile wraps the processing of one file. fn returns the terminal status it recorded.
func (t *Telemetry) InstrumentFile(ctx context.Context, fn func(ctx context.Context) string) string {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveFiles()
	defer t.DecrementActiveFiles()

	ctx, span := t.tracer.Start(ctx, "file")
	defer span.End()

	status := fn(ctx)

	span.SetAttributes(attribute.String("status", status))

	if status == "Error" {
		span.SetStatus(codes.Error, "file failed")
	}

	t.RecordFile(status, time.Since(start))

	return status
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
