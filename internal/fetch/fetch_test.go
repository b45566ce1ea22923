package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/transfer"
)

type progressCall struct {
	name           string
	written, total int64
}

type recordingSink struct {
	mu    sync.Mutex
	calls []progressCall
}

func (s *recordingSink) Progress(name string, written, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, progressCall{name, written, total})
}

func (s *recordingSink) last() progressCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[len(s.calls)-1]
}

func TestFetch_WritesFileAndReportsProgress(t *testing.T) {
	payload := strings.Repeat("ACGT", 1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	sink := &recordingSink{}
	f := New(Options{Sink: sink, ProgressInterval: 1024})
	path := filepath.Join(t.TempDir(), "SRR1", "SRR1_1.fastq.gz.part")

	out, err := f.Fetch(context.Background(), srv.URL+"/SRR1_1.fastq.gz", path)
	require.NoError(t, err)

	assert.True(t, out.Completed)
	assert.Equal(t, int64(len(payload)), out.BytesWritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	assert.Equal(t, progressCall{"SRR1_1.fastq.gz", int64(len(payload)), int64(len(payload))}, sink.last())
}

func TestFetch_UnknownLengthReportsMinusOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("part one "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("part two"))
	}))
	t.Cleanup(srv.Close)

	sink := &recordingSink{}
	f := New(Options{Sink: sink})

	out, err := f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "reads.fastq"))
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, int64(-1), sink.last().total)
	assert.Equal(t, int64(17), sink.last().written)
}

func TestFetch_Non2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "missing.fastq.gz")
	out, err := New(Options{}).Fetch(context.Background(), srv.URL, path)

	var te *transfer.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.False(t, out.Completed)
	assert.NoFileExists(t, path)
}

func TestFetch_FirstByteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(Options{FirstByteTimeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "slow.fastq.gz"))

	var te *transfer.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Reason, "no response within")
}

func TestFetch_StallLeavesPartialFile(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte(strings.Repeat("N", 10)))
		w.(http.Flusher).Flush()

		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	path := filepath.Join(t.TempDir(), "stall.fastq.gz")
	f := New(Options{StallTimeout: 100 * time.Millisecond})

	out, err := f.Fetch(context.Background(), srv.URL, path)

	var te *transfer.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Reason, "stalled")
	assert.False(t, out.Completed)
	assert.Equal(t, int64(10), out.BytesWritten)

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, int64(10), info.Size())
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "x"))

	var te *transfer.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "canceled", te.Reason)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ftp.sra.ebi.ac.uk/vol1/fastq/SRR000/SRR000001/SRR000001_1.fastq.gz", "https://ftp.sra.ebi.ac.uk/vol1/fastq/SRR000/SRR000001/SRR000001_1.fastq.gz"},
		{"ftp://ftp.sra.ebi.ac.uk/vol1/x.fastq.gz", "https://ftp.sra.ebi.ac.uk/vol1/x.fastq.gz"},
		{"FTP://host/x", "https://host/x"},
		{"http://127.0.0.1:8080/x", "http://127.0.0.1:8080/x"},
		{"https://host/x", "https://host/x"},
		{"  host/x  ", "https://host/x"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestPartPath(t *testing.T) {
	assert.Equal(t, "/w/raw_reads/SRR1/SRR1.fastq.gz.part", PartPath("/w/raw_reads/SRR1/SRR1.fastq.gz"))
}
