// Package workdir owns the on-disk layout of a project output directory.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	RawDirName   = "raw_reads"
	ManifestName = "project.toml"
	LockName     = ".enadl.lock"
)

// Layout resolves the paths of one project directory.
type Layout struct {
	Root    string
	Project string
}

// New returns the layout of project under root.
func New(root, project string) Layout {
	return Layout{Root: root, Project: project}
}

// MetadataPath is the run table saved by fetch and read by download-files.
func (l Layout) MetadataPath() string {
	return filepath.Join(l.Root, l.Project+".csv")
}

func (l Layout) ManifestPath() string {
	return filepath.Join(l.Root, ManifestName)
}

func (l Layout) LockPath() string {
	return filepath.Join(l.Root, LockName)
}

// RawDir holds one subdirectory per run.
func (l Layout) RawDir() string {
	return filepath.Join(l.Root, RawDirName)
}

// TrackingPath joins the tracking store file name onto the root.
func (l Layout) TrackingPath(fileName string) string {
	return filepath.Join(l.Root, fileName)
}

// Ensure creates the root and raw directories.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.RawDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return nil
}
