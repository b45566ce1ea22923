// Package fetch streams single remote files to disk.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/enadl/internal/downloader/progress"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/transfer"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// PartSuffix marks a file that is still being written.
	PartSuffix = ".part"

	defaultFirstByteTimeout = 60 * time.Second
	defaultStallTimeout     = 2 * time.Minute
)

var (
	errFirstByteTimeout = errors.New("first byte timeout")
	errStalled          = errors.New("transfer stalled")
)

// PartPath returns the temporary path used while downloading to path.
func PartPath(path string) string {
	return path + PartSuffix
}

// Options configures a Fetcher.
type Options struct {
	// FirstByteTimeout bounds the wait for response headers. Default: 60s
	FirstByteTimeout time.Duration

	// StallTimeout bounds the gap between two reads of the body. Default: 2m
	StallTimeout time.Duration

	// Sink receives progress reports. Nil disables progress.
	Sink progress.Sink

	// ProgressInterval is the number of bytes between reports. Default: 8 MiB
	ProgressInterval int64

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper

	UserAgent string
}

// Outcome describes what a fetch left on disk.
type Outcome struct {
	BytesWritten int64
	Completed    bool
}

// Fetcher retrieves one remote resource to a local path. It never retries and never
// removes what it wrote; callers decide what to do with partial files.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New creates a Fetcher with defaults applied to zero options.
func New(opts Options) *Fetcher {
	if opts.FirstByteTimeout <= 0 {
		opts.FirstByteTimeout = defaultFirstByteTimeout
	}

	if opts.StallTimeout <= 0 {
		opts.StallTimeout = defaultStallTimeout
	}

	if opts.Sink == nil {
		opts.Sink = progress.Nop{}
	}

	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = progress.DefaultInterval
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "enadl"
	}

	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ResponseHeaderTimeout: opts.FirstByteTimeout,
			TLSHandshakeTimeout:   30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
			DisableCompression:    true, // fastq.gz must be stored byte-for-byte for checksums
		}
	}

	return &Fetcher{
		client: &http.Client{Transport: otelhttp.NewTransport(base)},
		opts:   opts,
	}
}

// Fetch streams rawURL into localPath, truncating any previous content. Failures are
// returned as *transfer.TransportError together with the bytes already written.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, localPath string) (Outcome, error) {
	logger := logctx.LoggerFromContext(ctx)
	target := NormalizeURL(rawURL)

	if err := os.MkdirAll(filepath.Dir(localPath), dirPerm); err != nil {
		return Outcome{}, fmt.Errorf("failed to create target directory: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var streaming atomic.Bool

	watchdog := time.AfterFunc(f.opts.FirstByteTimeout, func() {
		if streaming.Load() {
			cancel(errStalled)

			return
		}

		cancel(errFirstByteTimeout)
	})
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{}, &transfer.TransportError{URL: target, Reason: "invalid url", Err: err}
	}

	req.Header.Set("User-Agent", f.opts.UserAgent)

	logger.DebugContext(ctx, "requesting file", "url", target, "local_path", localPath)

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{}, f.transportError(ctx, target, err, false)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return Outcome{}, &transfer.TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	streaming.Store(true)
	watchdog.Reset(f.opts.StallTimeout)

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create target file: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(localPath), PartSuffix)
	body := &stallReader{r: resp.Body, watchdog: watchdog, timeout: f.opts.StallTimeout}
	pr := progress.NewReader(body, resp.ContentLength, f.opts.ProgressInterval, func(written, total int64) {
		f.opts.Sink.Progress(name, written, total)
	})

	written, copyErr := io.Copy(out, pr)
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		return Outcome{BytesWritten: written}, f.transportError(ctx, target, copyErr, true)
	case closeErr != nil:
		return Outcome{BytesWritten: written}, fmt.Errorf("failed to close target file: %w", closeErr)
	case resp.ContentLength >= 0 && written != resp.ContentLength:
		return Outcome{BytesWritten: written}, &transfer.TransportError{
			URL:    target,
			Reason: fmt.Sprintf("short body: got %d of %d bytes", written, resp.ContentLength),
		}
	}

	return Outcome{BytesWritten: written, Completed: true}, nil
}

func (f *Fetcher) transportError(ctx context.Context, target string, err error, streaming bool) error {
	reason := err.Error()

	var netErr net.Error

	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errFirstByteTimeout):
		reason = fmt.Sprintf("no response within %s", f.opts.FirstByteTimeout)
		err = errors.Join(cause, err)
	case errors.Is(cause, errStalled):
		reason = fmt.Sprintf("stalled: no data for %s", f.opts.StallTimeout)
		err = errors.Join(cause, err)
	case errors.Is(cause, context.Canceled):
		reason = "canceled"
	case !streaming && errors.As(err, &netErr) && netErr.Timeout():
		reason = fmt.Sprintf("no response within %s", f.opts.FirstByteTimeout)
	}

	return &transfer.TransportError{URL: target, Reason: reason, Err: err}
}

// stallReader pushes the watchdog deadline forward on every successful read.
// When the deadline passes, the watchdog cancels the request and the next read fails.
type stallReader struct {
	r        io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.watchdog.Reset(s.timeout)
	}

	return n, err
}

// NormalizeURL turns a provider file reference into a fetchable URL. ENA reports bare
// host paths and ftp:// references; both are served over HTTPS by the archive mirrors.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)

	switch {
	case strings.HasPrefix(lower, "ftp://"):
		return "https://" + raw[len("ftp://"):]
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return raw
	case strings.Contains(raw, "://"):
		return raw
	default:
		return "https://" + raw
	}
}
