package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/telemetry"
	"github.com/italolelis/enadl/internal/transfer"
)

// ErrNoRuns is returned by a provider that answered but listed no runs for the project.
var ErrNoRuns = errors.New("provider returned no runs")

// Source supplies the run table of a project.
type Source interface {
	Name() string
	Runs(ctx context.Context, project string) (*Table, error)
}

// NewHTTPClient returns a traced client bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// get performs a GET and returns the body for a 200 response.
func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, body)
	}

	return resp.Body, nil
}

// Fallback asks Primary first and Secondary when Primary fails or lists no runs.
type Fallback struct {
	Primary   Source
	Secondary Source
	Telemetry *telemetry.Telemetry
}

// Runs returns the first non-empty table. When no provider produced one the error is a
// *transfer.MetadataUnavailableError.
func (f *Fallback) Runs(ctx context.Context, project string) (*Table, error) {
	logger := logctx.LoggerFromContext(ctx).With("project", project)

	var errs []error

	for _, src := range []Source{f.Primary, f.Secondary} {
		if src == nil {
			continue
		}

		var table *Table

		err := f.Telemetry.InstrumentMetadataRequest(ctx, src.Name(), func(ctx context.Context) error {
			t, err := src.Runs(ctx, project)
			if err != nil {
				return err
			}

			if len(t.Runs) == 0 {
				return ErrNoRuns
			}

			table = t

			return nil
		})
		if err != nil {
			logger.WarnContext(ctx, "metadata provider failed", "provider", src.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))

			continue
		}

		table.Project = project
		table.Provider = src.Name()

		logger.InfoContext(ctx, "metadata retrieved", "provider", src.Name(), "runs", len(table.Runs))

		return table, nil
	}

	return nil, &transfer.MetadataUnavailableError{Project: project, Errs: errs}
}
