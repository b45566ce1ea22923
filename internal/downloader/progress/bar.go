package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar renders one terminal byte counter for the whole batch. Concurrent files feed it
// deltas, so the bar shows aggregate throughput rather than one file at a time.
type Bar struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	last     map[string]int64
	files    int
	finished int
}

// NewBar creates a batch bar writing to w. files is the number of entries expected in the batch.
func NewBar(w io.Writer, files int) *Bar {
	b := &Bar{last: make(map[string]int64), files: files}
	b.bar = progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(b.description()),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)

	return b
}

func (b *Bar) Progress(name string, written, _ int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delta := written - b.last[name]
	if delta < 0 {
		delta = written
	}

	b.last[name] = written

	if delta > 0 {
		_ = b.bar.Add64(delta)
	}
}

// FilesDone advances the file count by n, whether the files were fetched or already present.
func (b *Bar) FilesDone(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.finished += n
	b.bar.Describe(b.description())
}

// Finish completes the bar.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.bar.Finish()
}

func (b *Bar) description() string {
	return fmt.Sprintf("downloading (%d/%d files)", b.finished, b.files)
}
