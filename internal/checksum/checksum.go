// Package checksum verifies downloaded files against provider digests.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/italolelis/enadl/internal/transfer"
)

// Algorithm names a digest family reported by a metadata provider.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
)

const bufferSize = 1 << 20

// Verifier computes file digests and compares them with expected values. It never modifies the file.
type Verifier struct {
	algorithm Algorithm
}

// New returns a Verifier for the given algorithm. An empty algorithm means MD5, which is what ENA reports.
func New(algorithm Algorithm) (*Verifier, error) {
	switch Algorithm(strings.ToLower(string(algorithm))) {
	case "", MD5:
		return &Verifier{algorithm: MD5}, nil
	case SHA256:
		return &Verifier{algorithm: SHA256}, nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// Algorithm returns the digest family this verifier computes.
func (v *Verifier) Algorithm() Algorithm {
	return v.algorithm
}

// Verify reports whether the digest of the file at path equals expected, compared as
// case-insensitive hex. An empty expected value skips verification and passes, since
// some providers publish no checksums. Read failures are returned as *transfer.ReadError.
func (v *Verifier) Verify(path, expected string) (bool, error) {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return true, nil
	}

	actual, err := v.Sum(path)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(actual, expected), nil
}

// Sum returns the lowercase hex digest of the file at path.
func (v *Verifier) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &transfer.ReadError{Path: path, Err: err}
	}
	defer f.Close()

	h := v.newHash()

	if _, err := io.CopyBuffer(h, f, make([]byte, bufferSize)); err != nil {
		return "", &transfer.ReadError{Path: path, Err: err}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (v *Verifier) newHash() hash.Hash {
	if v.algorithm == SHA256 {
		return sha256.New()
	}

	return md5.New() //nolint:gosec // ENA publishes MD5 digests.
}
