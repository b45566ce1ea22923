package downloader

import (
	"fmt"

	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

// Exit codes reported by the command line.
const (
	ExitOK         = 0
	ExitFatal      = 1
	ExitHadFailure = 2
)

// Summary counts tracking rows per status. NotAttempted covers expected files without a row.
type Summary struct {
	OK           int `json:"ok"`
	Exists       int `json:"exists"`
	Error        int `json:"error"`
	NotAttempted int `json:"not_attempted"`
}

// Summarize counts the rows of table. expected is the number of files the caller wanted
// processed; pass 0 when unknown.
func Summarize(table *storage.Table, expected int) Summary {
	counts := table.Counts()

	s := Summary{
		OK:     counts[transfer.StatusOK],
		Exists: counts[transfer.StatusExists],
		Error:  counts[transfer.StatusError],
	}

	if missing := expected - table.Len(); missing > 0 {
		s.NotAttempted = missing
	}

	return s
}

func (s Summary) Total() int {
	return s.OK + s.Exists + s.Error + s.NotAttempted
}

// ExitCode is ExitHadFailure when any file ended in Error, ExitOK otherwise.
func (s Summary) ExitCode() int {
	if s.Error > 0 {
		return ExitHadFailure
	}

	return ExitOK
}

func (s Summary) String() string {
	return fmt.Sprintf("OK: %d, Exists: %d, Error: %d, not attempted: %d (total %d)",
		s.OK, s.Exists, s.Error, s.NotAttempted, s.Total())
}
