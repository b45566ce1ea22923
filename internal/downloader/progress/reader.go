package progress

import "io"

// DefaultInterval is how many bytes pass between two progress reports.
const DefaultInterval int64 = 8 << 20

// Reader wraps an io.Reader and reports cumulative progress via a callback every interval
// bytes and once more when the underlying reader returns io.EOF.
type Reader struct {
	Reader     io.Reader
	Total      int64 // -1 when unknown
	OnProgress func(written int64, total int64)

	totalRead      int64
	lastReport     int64
	reportInterval int64
	done           bool
}

func NewReader(r io.Reader, total int64, interval int64, cb func(written int64, total int64)) *Reader {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.lastReport += int64(n)

		if pr.lastReport >= pr.reportInterval {
			pr.report()
		}
	}

	if err == io.EOF && !pr.done {
		pr.done = true
		pr.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.totalRead
}

func (pr *Reader) report() {
	pr.lastReport = 0

	if pr.OnProgress != nil {
		pr.OnProgress(pr.totalRead, pr.Total)
	}
}
