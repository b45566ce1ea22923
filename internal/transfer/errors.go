package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError represents a network or transfer failure for one file, including
// non-2xx responses, first-byte timeouts and stalled streams.
type TransportError struct {
	URL        string // Source URL of the failed transfer
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Reason     string // Human-readable explanation
	Err        error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error for %s (HTTP %d): %s", e.URL, e.StatusCode, e.Reason)
	}

	return fmt.Sprintf("transport error for %s: %s", e.URL, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ChecksumMismatchError represents a digest disagreement between the provider and the local file.
type ChecksumMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// ReadError represents a local file that could not be read during verification.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// MetadataUnavailableError is returned when no provider could supply run metadata for a project.
// It is fatal for the whole invocation.
type MetadataUnavailableError struct {
	Project string
	Errs    []error // One error per provider tried, in order
}

func (e *MetadataUnavailableError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("metadata unavailable for %s: %s", e.Project, strings.Join(msgs, "; "))
}

func (e *MetadataUnavailableError) Unwrap() []error {
	return e.Errs
}

// InvalidEntryError represents a FileEntry that cannot be processed as given.
type InvalidEntryError struct {
	RunID     string
	LocalPath string
	Reason    string
}

func (e *InvalidEntryError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("invalid file entry %q: %s", e.LocalPath, e.Reason)
	}

	return fmt.Sprintf("invalid file entry for run %s: %s", e.RunID, e.Reason)
}

// Detail renders an error as the short cause stored in the tracking table.
func Detail(err error) string {
	if err == nil {
		return ""
	}

	var mismatch *ChecksumMismatchError
	if errors.As(err, &mismatch) {
		return "checksum mismatch"
	}

	var readErr *ReadError
	if errors.As(err, &readErr) {
		return "read error: " + readErr.Err.Error()
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.StatusCode > 0 {
			return fmt.Sprintf("transport error: HTTP %d %s", transportErr.StatusCode, transportErr.Reason)
		}

		return "transport error: " + transportErr.Reason
	}

	return err.Error()
}
