package workdir

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned when another invocation holds the directory lock.
var ErrLocked = errors.New("output directory is locked by another invocation")

// LockedError carries the holder recorded in the lock file.
type LockedError struct {
	Path   string
	Holder string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s (lock %s held by %s)", ErrLocked, e.Path, e.Holder)
}

func (e *LockedError) Unwrap() error {
	return ErrLocked
}

// Lock is an exclusive claim on an output directory.
type Lock struct {
	path string
	id   string
}

// GenerateInstanceID returns a unique string for this process (hostname+pid+random).
func GenerateInstanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}

// Acquire creates the lock file of the layout. A stale lock left by a crash must be removed by hand.
func (l Layout) Acquire() (*Lock, error) {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := l.LockPath()
	id := GenerateInstanceID()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		holder, _ := os.ReadFile(path)

		return nil, &LockedError{Path: path, Holder: strings.TrimSpace(string(holder))}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	_, werr := f.WriteString(id + "\n")
	cerr := f.Close()

	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)

		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	return &Lock{path: path, id: id}, nil
}

// ID is the instance id written to the lock file.
func (k *Lock) ID() string {
	return k.id
}

// Release removes the lock file if it still belongs to this lock.
func (k *Lock) Release() error {
	holder, err := os.ReadFile(k.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	if strings.TrimSpace(string(holder)) != k.id {
		return fmt.Errorf("lock %s was taken over by %s", k.path, strings.TrimSpace(string(holder)))
	}

	if err := os.Remove(k.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	return nil
}
