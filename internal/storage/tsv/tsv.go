// Package tsv keeps the tracking table in a tab-separated file next to the downloads.
package tsv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

// FileName is the conventional name of the tracking table inside a work directory.
const FileName = "download_info_table.tsv"

const filePerm = 0o644

var header = []string{"run_id", "file_role", "local_path", "status", "detail", "url", "expected_checksum", "updated_at"}

// Store rewrites the whole file after every change. Tables hold one row per file of a
// project, so the rewrite stays small, and a temp-file rename keeps the file whole on crash.
type Store struct {
	mu    sync.Mutex
	path  string
	table *storage.Table
}

// Open reads the tracking table at path. A missing file yields an empty store.
func Open(ctx context.Context, path string) (*Store, error) {
	s := &Store{path: filepath.Clean(path)}

	table, err := readFile(s.path)
	if err != nil {
		return nil, err
	}

	s.table = table

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "tracking table loaded", "path", s.path, "rows", table.Len())

	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(ctx context.Context) (*storage.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return storage.NewTable(s.table.Rows()...), nil
}

func (s *Store) Get(ctx context.Context, localPath string) (storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.table.Get(localPath)
	if !ok {
		return storage.Row{}, storage.ErrNotFound
	}

	return r, nil
}

// Record is not interrupted by ctx cancellation: a finished file must be persisted.
func (s *Store) Record(ctx context.Context, row storage.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.Upsert(row)

	if err := s.persist(); err != nil {
		return fmt.Errorf("failed to persist tracking table: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) persist() error {
	var buf bytes.Buffer
	if err := Write(&buf, s.table); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := s.path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open temporary file: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()

		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

func readFile(path string) (*storage.Table, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.NewTable(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open tracking table: %w", err)
	}
	defer f.Close()

	table, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking table %s: %w", path, err)
	}

	return table, nil
}

// Write encodes table as TSV with a header line.
func Write(w io.Writer, table *storage.Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range table.Rows() {
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.UTC().Format(time.RFC3339)
		}

		rec := []string{r.RunID, string(r.Role), r.LocalPath, string(r.Status), r.Detail, r.URL, r.ExpectedChecksum, updated}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// Read decodes a TSV tracking table. Columns are matched by header name, so files with
// only the five core columns (run_id, file_role, local_path, status, detail) still load.
func Read(r io.Reader) (*storage.Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return storage.NewTable(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[name] = i
	}

	for _, required := range []string{"run_id", "local_path", "status"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}

		return rec[i]
	}

	table := storage.NewTable()

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		status, ok := transfer.ParseStatus(field(rec, "status"))
		if !ok {
			return nil, fmt.Errorf("line %d: unknown status %q", line, field(rec, "status"))
		}

		row := storage.Row{
			RunID:            field(rec, "run_id"),
			Role:             transfer.ParseRole(field(rec, "file_role")),
			LocalPath:        field(rec, "local_path"),
			Status:           status,
			Detail:           field(rec, "detail"),
			URL:              field(rec, "url"),
			ExpectedChecksum: field(rec, "expected_checksum"),
		}

		if ts := field(rec, "updated_at"); ts != "" {
			if row.UpdatedAt, err = time.Parse(time.RFC3339, ts); err != nil {
				return nil, fmt.Errorf("line %d: bad updated_at: %w", line, err)
			}
		}

		table.Upsert(row)
	}

	return table, nil
}
