package transfer

import (
	"errors"
	"strings"
)

// ErrNoFiles is returned when a batch is built from metadata that references no files at all.
var ErrNoFiles = errors.New("no files to download")

// Role identifies which mate of a run a file holds.
type Role string

const (
	RoleForward  Role = "forward"
	RoleReverse  Role = "reverse"
	RoleUnpaired Role = "unpaired"
)

// ParseRole maps the tracking table spelling back to a Role. Unknown values are unpaired.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleForward:
		return RoleForward
	case RoleReverse:
		return RoleReverse
	default:
		return RoleUnpaired
	}
}

// Status is the terminal outcome recorded for a FileEntry.
type Status string

const (
	StatusOK     Status = "OK"
	StatusExists Status = "Exists"
	StatusError  Status = "Error"
)

// ParseStatus accepts the tracking table spelling in any case. It returns false for unknown values.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok":
		return StatusOK, true
	case "exists":
		return StatusExists, true
	case "error":
		return StatusError, true
	}

	return "", false
}

// FileEntry is one expected remote file of a sequencing run.
type FileEntry struct {
	RunID            string
	SampleID         string
	Role             Role
	URL              string
	ExpectedChecksum string
	LocalPath        string
}

// HasChecksum reports whether the provider supplied a digest for the file.
func (e FileEntry) HasChecksum() bool {
	return strings.TrimSpace(e.ExpectedChecksum) != ""
}

// Batch is the ordered set of entries processed by one manager invocation.
type Batch []FileEntry

// Runs groups the batch by run id, keeping the order in which each run first appears.
func (b Batch) Runs() [][]FileEntry {
	index := make(map[string]int)

	var runs [][]FileEntry

	for _, e := range b {
		i, ok := index[e.RunID]
		if !ok {
			i = len(runs)
			index[e.RunID] = i

			runs = append(runs, nil)
		}

		runs[i] = append(runs[i], e)
	}

	return runs
}

// Validate checks that every entry has a run id, a URL and a local path unique within the batch.
func (b Batch) Validate() error {
	seen := make(map[string]string, len(b))

	for _, e := range b {
		if e.RunID == "" {
			return &InvalidEntryError{LocalPath: e.LocalPath, Reason: "missing run id"}
		}

		if e.URL == "" {
			return &InvalidEntryError{RunID: e.RunID, LocalPath: e.LocalPath, Reason: "missing url"}
		}

		if e.LocalPath == "" {
			return &InvalidEntryError{RunID: e.RunID, Reason: "missing local path"}
		}

		if other, dup := seen[e.LocalPath]; dup {
			return &InvalidEntryError{
				RunID:     e.RunID,
				LocalPath: e.LocalPath,
				Reason:    "local path already used by run " + other,
			}
		}

		seen[e.LocalPath] = e.RunID
	}

	return nil
}
