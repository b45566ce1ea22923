// Package metadata fetches and stores the run table of an archive project.
package metadata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/italolelis/enadl/internal/transfer"
)

// Run is one sequencing run as reported by a provider. Columns the tool does not use are kept in Extra.
type Run struct {
	StudyAccession      string
	SampleAccession     string
	ExperimentAccession string
	RunAccession        string
	ScientificName      string
	InstrumentPlatform  string
	InstrumentModel     string
	LibraryLayout       string
	LibraryStrategy     string
	LibrarySource       string
	FastqBytes          string
	FastqMD5            string
	FastqFTP            string
	Extra               map[string]string
}

// Table is the run table of one project.
type Table struct {
	Project  string
	Provider string
	Runs     []Run

	extraColumns []string
}

var knownColumns = []string{
	"study_accession",
	"sample_accession",
	"experiment_accession",
	"run_accession",
	"scientific_name",
	"instrument_platform",
	"instrument_model",
	"library_layout",
	"library_strategy",
	"library_source",
	"fastq_bytes",
	"fastq_md5",
	"fastq_ftp",
}

func (r *Run) field(name string) *string {
	switch name {
	case "study_accession":
		return &r.StudyAccession
	case "sample_accession":
		return &r.SampleAccession
	case "experiment_accession":
		return &r.ExperimentAccession
	case "run_accession":
		return &r.RunAccession
	case "scientific_name":
		return &r.ScientificName
	case "instrument_platform":
		return &r.InstrumentPlatform
	case "instrument_model":
		return &r.InstrumentModel
	case "library_layout":
		return &r.LibraryLayout
	case "library_strategy":
		return &r.LibraryStrategy
	case "library_source":
		return &r.LibrarySource
	case "fastq_bytes":
		return &r.FastqBytes
	case "fastq_md5":
		return &r.FastqMD5
	case "fastq_ftp":
		return &r.FastqFTP
	}

	return nil
}

// set assigns a column value, keeping unknown columns in Extra.
func (r *Run) set(name, value string) {
	if p := r.field(name); p != nil {
		*p = value

		return
	}

	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}

	r.Extra[name] = value
}

func (r *Run) get(name string) string {
	if p := r.field(name); p != nil {
		return *p
	}

	return r.Extra[name]
}

// decode reads a delimited table with a header line into runs. Unknown columns are kept.
func decode(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	for i := range head {
		head[i] = strings.TrimSpace(strings.TrimPrefix(head[i], "﻿"))
	}

	t := &Table{}

	known := make(map[string]bool, len(knownColumns))
	for _, c := range knownColumns {
		known[c] = true
	}

	for _, c := range head {
		if !known[c] {
			t.extraColumns = append(t.extraColumns, c)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var run Run

		for i, c := range head {
			if i < len(rec) {
				run.set(c, rec[i])
			}
		}

		t.Runs = append(t.Runs, run)
	}

	return t, nil
}

// ReadCSV parses a table written by WriteCSV, or one a user edited to select runs.
func ReadCSV(r io.Reader) (*Table, error) {
	return decode(r, ',')
}

// WriteCSV writes the known columns followed by every extra column seen when the table was read.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cols := append(append([]string{}, knownColumns...), t.extraColumns...)

	if err := cw.Write(cols); err != nil {
		return err
	}

	for i := range t.Runs {
		rec := make([]string, len(cols))
		for j, c := range cols {
			rec[j] = t.Runs[i].get(c)
		}

		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// LoadFile reads the metadata CSV at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}

	return t, nil
}

// SaveFile writes the table to path through a temporary file.
func (t *Table) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}

	return nil
}

// Count returns how many runs share each value of column, e.g. "scientific_name".
func (t *Table) Count(column string) map[string]int {
	counts := make(map[string]int)

	for i := range t.Runs {
		v := strings.TrimSpace(t.Runs[i].get(column))
		if v == "" {
			v = "unknown"
		}

		counts[v]++
	}

	return counts
}

// FileEntries derives the files to download under rawDir. It also returns the ids of
// runs that list no files, which callers report as not attempted.
func (t *Table) FileEntries(rawDir string) (transfer.Batch, []string) {
	var (
		batch   transfer.Batch
		missing []string
	)

	for i := range t.Runs {
		entries := t.Runs[i].entries(rawDir)
		if len(entries) == 0 {
			missing = append(missing, t.Runs[i].RunAccession)

			continue
		}

		batch = append(batch, entries...)
	}

	return batch, missing
}

func (r *Run) entries(rawDir string) []transfer.FileEntry {
	urls := splitList(r.FastqFTP)
	if r.RunAccession == "" || len(urls) == 0 {
		return nil
	}

	sums := splitList(r.FastqMD5)

	out := make([]transfer.FileEntry, 0, len(urls))

	for i, u := range urls {
		role := roleOf(u, i, len(urls))

		var sum string
		if i < len(sums) {
			sum = sums[i]
		}

		out = append(out, transfer.FileEntry{
			RunID:            r.RunAccession,
			SampleID:         r.SampleAccession,
			Role:             role,
			URL:              u,
			ExpectedChecksum: sum,
			LocalPath:        LocalPath(rawDir, r.RunAccession, role, extension(u)),
		})
	}

	return out
}

// LocalPath is where a run file lives: rawDir/<run>/<run>[_1|_2].<ext>.
func LocalPath(rawDir, runID string, role transfer.Role, ext string) string {
	name := runID

	switch role {
	case transfer.RoleForward:
		name += "_1"
	case transfer.RoleReverse:
		name += "_2"
	}

	return filepath.Join(rawDir, runID, name+"."+ext)
}

func roleOf(u string, pos, total int) transfer.Role {
	stem, _, _ := strings.Cut(path.Base(u), ".")

	switch {
	case strings.HasSuffix(stem, "_1"):
		return transfer.RoleForward
	case strings.HasSuffix(stem, "_2"):
		return transfer.RoleReverse
	case total == 2 && pos == 0:
		return transfer.RoleForward
	case total == 2 && pos == 1:
		return transfer.RoleReverse
	default:
		return transfer.RoleUnpaired
	}
}

func extension(u string) string {
	if _, ext, ok := strings.Cut(path.Base(u), "."); ok && ext != "" {
		return ext
	}

	return "fastq.gz"
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
