package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/transfer"
)

const (
	helloMD5    = "5d41402abc4b2a76b9719d911017c592"
	helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "reads.fastq.gz")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestVerify(t *testing.T) {
	path := writeFile(t, "hello")

	tests := []struct {
		name      string
		algorithm Algorithm
		expected  string
		want      bool
	}{
		{name: "md5 match", algorithm: MD5, expected: helloMD5, want: true},
		{name: "md5 match upper case", algorithm: MD5, expected: strings.ToUpper(helloMD5), want: true},
		{name: "md5 mismatch", algorithm: MD5, expected: "00000000000000000000000000000000", want: false},
		{name: "sha256 match", algorithm: SHA256, expected: helloSHA256, want: true},
		{name: "default algorithm is md5", algorithm: "", expected: helloMD5, want: true},
		{name: "empty expected passes", algorithm: MD5, expected: "", want: true},
		{name: "blank expected passes", algorithm: MD5, expected: "  ", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New(tt.algorithm)
			require.NoError(t, err)

			ok, err := v.Verify(path, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerify_DoesNotTouchFile(t *testing.T) {
	path := writeFile(t, "hello")
	v, err := New(MD5)
	require.NoError(t, err)

	ok, err := v.Verify(path, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestVerify_MissingFileIsReadError(t *testing.T) {
	v, err := New(MD5)
	require.NoError(t, err)

	_, err = v.Verify(filepath.Join(t.TempDir(), "absent"), helloMD5)

	var readErr *transfer.ReadError
	require.True(t, errors.As(err, &readErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestVerify_MissingFileWithoutChecksumIsNotRead(t *testing.T) {
	v, err := New(MD5)
	require.NoError(t, err)

	ok, err := v.Verify(filepath.Join(t.TempDir(), "absent"), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := New("crc32")
	assert.Error(t, err)
}
