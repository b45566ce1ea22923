package workdir

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// BatchSummary is the status count of the last batch.
type BatchSummary struct {
	OK           int `toml:"ok"`
	Exists       int `toml:"exists"`
	Error        int `toml:"error"`
	NotAttempted int `toml:"not_attempted"`
}

// Manifest describes a project directory.
type Manifest struct {
	Project   string    `toml:"project"`
	Provider  string    `toml:"provider"`
	CreatedAt time.Time `toml:"created_at"`
	UpdatedAt time.Time `toml:"updated_at"`

	LastBatch Batch `toml:"last_batch"`
}

// Batch identifies the last manager invocation.
type Batch struct {
	ID         string       `toml:"id"`
	Command    string       `toml:"command"`
	StartedAt  time.Time    `toml:"started_at"`
	FinishedAt time.Time    `toml:"finished_at"`
	Summary    BatchSummary `toml:"summary"`
}

// LoadManifest reads the manifest of the layout. A missing file yields a new manifest.
func (l Layout) LoadManifest() (*Manifest, error) {
	out := &Manifest{Project: l.Project}

	path := l.ManifestPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return out, nil
	}

	if _, err := toml.DecodeFile(path, out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out.Project = strings.TrimSpace(out.Project)
	if out.Project == "" {
		return nil, fmt.Errorf("invalid manifest %s: project is required", path)
	}

	if out.Project != l.Project {
		return nil, fmt.Errorf("directory %s belongs to project %s, not %s", l.Root, out.Project, l.Project)
	}

	return out, nil
}

// SaveManifest writes m, stamping its timestamps.
func (l Layout) SaveManifest(m *Manifest) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	m.UpdatedAt = now

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := l.ManifestPath() + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return os.Rename(tmp, l.ManifestPath())
}
