package transfer

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "checksum mismatch",
			err:  &ChecksumMismatchError{Path: "a", Expected: "x", Actual: "y"},
			want: "checksum mismatch",
		},
		{
			name: "wrapped read error",
			err:  fmt.Errorf("verify: %w", &ReadError{Path: "a", Err: fs.ErrPermission}),
			want: "read error: permission denied",
		},
		{
			name: "http status",
			err:  &TransportError{URL: "u", StatusCode: 404, Reason: "Not Found"},
			want: "transport error: HTTP 404 Not Found",
		},
		{
			name: "timeout",
			err:  &TransportError{URL: "u", Reason: "no response within 1s"},
			want: "transport error: no response within 1s",
		},
		{name: "other", err: errors.New("disk full"), want: "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detail(tt.err))
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset")

	err := fmt.Errorf("fetch: %w", &TransportError{URL: "u", Reason: "reset", Err: cause})
	assert.ErrorIs(t, err, cause)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "u", te.URL)

	assert.ErrorIs(t, &ReadError{Path: "p", Err: fs.ErrNotExist}, fs.ErrNotExist)

	unavailable := &MetadataUnavailableError{Project: "PRJ", Errs: []error{cause, fs.ErrClosed}}
	assert.ErrorIs(t, unavailable, fs.ErrClosed)
	assert.Equal(t, "metadata unavailable for PRJ: connection reset; file already closed", unavailable.Error())
}

func TestBatchValidate(t *testing.T) {
	ok := FileEntry{RunID: "R1", URL: "u", LocalPath: "p1"}

	tests := []struct {
		name   string
		batch  Batch
		reason string
	}{
		{name: "valid", batch: Batch{ok, {RunID: "R2", URL: "u", LocalPath: "p2"}}},
		{name: "missing run", batch: Batch{{URL: "u", LocalPath: "p"}}, reason: "missing run id"},
		{name: "missing url", batch: Batch{{RunID: "R", LocalPath: "p"}}, reason: "missing url"},
		{name: "missing path", batch: Batch{{RunID: "R", URL: "u"}}, reason: "missing local path"},
		{name: "duplicate path", batch: Batch{ok, {RunID: "R2", URL: "u", LocalPath: "p1"}}, reason: "local path already used by run R1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch.Validate()
			if tt.reason == "" {
				assert.NoError(t, err)

				return
			}

			var invalid *InvalidEntryError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.reason, invalid.Reason)
		})
	}
}

func TestBatchRuns(t *testing.T) {
	b := Batch{
		{RunID: "B", LocalPath: "b1"},
		{RunID: "A", LocalPath: "a"},
		{RunID: "B", LocalPath: "b2"},
	}

	runs := b.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "B", runs[0][0].RunID)
	assert.Len(t, runs[0], 2)
	assert.Equal(t, "A", runs[1][0].RunID)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus(" error ")
	assert.True(t, ok)
	assert.Equal(t, StatusError, s)

	_, ok = ParseStatus("pending")
	assert.False(t, ok)

	assert.Equal(t, RoleReverse, ParseRole("Reverse"))
	assert.Equal(t, RoleUnpaired, ParseRole("?"))
}
