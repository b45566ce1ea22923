package progress

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/enadl/internal/logctx"
)

// Sink receives transfer progress for a named file. total is -1 when the size is unknown.
// Implementations must be safe for concurrent use.
type Sink interface {
	Progress(name string, written, total int64)
}

// Nop discards progress. It is used when progress display is disabled.
type Nop struct{}

func (Nop) Progress(string, int64, int64) {}

// LogSink writes progress reports to the context logger at debug level.
type LogSink struct {
	ctx context.Context
}

func NewLogSink(ctx context.Context) *LogSink {
	return &LogSink{ctx: ctx}
}

func (s *LogSink) Progress(name string, written, total int64) {
	logger := logctx.LoggerFromContext(s.ctx)

	if total > 0 {
		logger.DebugContext(s.ctx, "download progress",
			"file", name,
			"written", humanize.Bytes(uint64(written)),
			"total", humanize.Bytes(uint64(total)),
			"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2),
		)

		return
	}

	logger.DebugContext(s.ctx, "download progress", "file", name, "written", humanize.Bytes(uint64(written)))
}

// Multi fans progress out to several sinks.
type Multi []Sink

func (m Multi) Progress(name string, written, total int64) {
	for _, s := range m {
		s.Progress(name, written, total)
	}
}
