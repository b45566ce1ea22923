package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
// A nil *Telemetry or one built with Enabled=false is valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *prom.Registry

	// RED Metrics for the status API
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Download metrics
	filesTotal        metric.Int64Counter
	filesActive       metric.Int64UpDownCounter
	fileDuration      metric.Float64Histogram
	bytesDownloaded   metric.Int64Counter
	checksumsTotal    metric.Int64Counter
	metadataRequests  metric.Int64Counter
	storeOperations   metric.Int64Counter
	storeOpDuration   metric.Float64Histogram
	runsCompleted     metric.Int64Counter
	systemErrorsTotal metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // optional gRPC collector, metrics and logs are pushed there in addition to /metrics
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	registry := prom.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	var loggerProvider *sdklog.LoggerProvider

	if cfg.OTLPEndpoint != "" {
		otlp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlp)))

		logExporter, err := otlploggrpc.New(ctx,
			otlploggrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlploggrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp log exporter: %w", err)
		}

		loggerProvider = sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider()

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		loggerProvider: loggerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:          meterProvider.Meter(cfg.ServiceName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		registry:       registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("enadl")
	}

	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	if t == nil || t.meter == nil {
		return otel.Meter("enadl")
	}

	return t.meter
}

// LogHandler returns a slog handler exporting records over OTLP, or nil when no
// collector is configured.
func (t *Telemetry) LogHandler(serviceName string) slog.Handler {
	if t == nil || t.loggerProvider == nil {
		return nil
	}

	return otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(t.loggerProvider))
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordFile records the terminal status of one file and how long it took to reach it.
func (t *Telemetry) RecordFile(status string, duration time.Duration) {
	if t == nil || t.filesTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.filesTotal.Add(context.Background(), 1, attrs)
	t.fileDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordBytes adds n transferred bytes.
func (t *Telemetry) RecordBytes(n int64) {
	if t != nil && t.bytesDownloaded != nil && n > 0 {
		t.bytesDownloaded.Add(context.Background(), n)
	}
}

// RecordChecksum records a verification result: "pass", "fail", "skipped" or "error".
func (t *Telemetry) RecordChecksum(result string) {
	if t != nil && t.checksumsTotal != nil {
		t.checksumsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// RecordMetadataRequest records one metadata provider call.
func (t *Telemetry) RecordMetadataRequest(provider, status string) {
	if t != nil && t.metadataRequests != nil {
		t.metadataRequests.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		))
	}
}

// RecordStoreOperation records tracking store operation metrics.
func (t *Telemetry) RecordStoreOperation(backend, operation, status string, duration time.Duration) {
	if t == nil || t.storeOperations == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.storeOperations.Add(context.Background(), 1, attrs)
	t.storeOpDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordRunComplete counts a sequencing run whose files have all been recorded.
func (t *Telemetry) RecordRunComplete(failed bool) {
	if t != nil && t.runsCompleted != nil {
		t.runsCompleted.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("failed", failed)))
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t != nil && t.systemErrorsTotal != nil {
		t.systemErrorsTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		))
	}
}

// IncrementActiveFiles increments the number of files being processed.
func (t *Telemetry) IncrementActiveFiles() {
	if t != nil && t.filesActive != nil {
		t.filesActive.Add(context.Background(), 1)
	}
}

// DecrementActiveFiles decrements the number of files being processed.
func (t *Telemetry) DecrementActiveFiles() {
	if t != nil && t.filesActive != nil {
		t.filesActive.Add(context.Background(), -1)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter and tracer providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}

	errs := []error{t.meterProvider.Shutdown(ctx), t.tracerProvider.Shutdown(ctx)}
	if t.loggerProvider != nil {
		errs = append(errs, t.loggerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeHTTPMetrics(); err != nil {
		return err
	}

	return t.initializeDownloadMetrics()
}

func (t *Telemetry) initializeHTTPMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeDownloadMetrics() error {
	var err error

	t.filesTotal, err = t.meter.Int64Counter(
		"files_total",
		metric.WithDescription("Files processed, by terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create files_total counter: %w", err)
	}

	t.filesActive, err = t.meter.Int64UpDownCounter(
		"files_active",
		metric.WithDescription("Files currently being fetched or verified"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create files_active counter: %w", err)
	}

	t.fileDuration, err = t.meter.Float64Histogram(
		"file_duration_seconds",
		metric.WithDescription("Time to fetch and verify one file"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create file_duration histogram: %w", err)
	}

	t.bytesDownloaded, err = t.meter.Int64Counter(
		"bytes_downloaded_total",
		metric.WithDescription("Bytes written to disk by the fetcher"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bytes_downloaded counter: %w", err)
	}

	t.checksumsTotal, err = t.meter.Int64Counter(
		"checksum_verifications_total",
		metric.WithDescription("Checksum verifications, by result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create checksum_verifications counter: %w", err)
	}

	t.metadataRequests, err = t.meter.Int64Counter(
		"metadata_requests_total",
		metric.WithDescription("Metadata provider requests, by provider and status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create metadata_requests counter: %w", err)
	}

	t.storeOperations, err = t.meter.Int64Counter(
		"store_operations_total",
		metric.WithDescription("Tracking store operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store_operations counter: %w", err)
	}

	t.storeOpDuration, err = t.meter.Float64Histogram(
		"store_operation_duration_seconds",
		metric.WithDescription("Tracking store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store_operation_duration histogram: %w", err)
	}

	t.runsCompleted, err = t.meter.Int64Counter(
		"runs_completed_total",
		metric.WithDescription("Sequencing runs with every file recorded"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create runs_completed counter: %w", err)
	}

	t.systemErrorsTotal, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	return nil
}
