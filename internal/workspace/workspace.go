package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/openmined/sftpsync/internal/sync"
	"github.com/openmined/sftpsync/internal/utils"
)

var (
	ErrWorkspaceLocked = errors.New("local root is locked by another sync pass")
	ErrNotADirectory   = errors.New("local root is not a directory")
)

// Workspace is the local side of a sync: the root directory and the
// bookkeeping files the engine keeps in it.
type Workspace struct {
	Root         string
	RevisionFile string
	IgnoreFile   string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	return &Workspace{
		Root:         root,
		RevisionFile: filepath.Join(root, sync.RevisionFileName),
		IgnoreFile:   filepath.Join(root, sync.IgnoreFileName),
		flock:        flock.New(filepath.Join(root, sync.LockFileName)),
	}, nil
}

// DefaultRoot is the local root used when none is given: the last element of
// the remote path, in the working directory.
func DefaultRoot(remotePath string) string {
	base := path.Base(strings.TrimRight(NormPath(remotePath), "/"))
	if base == "." || base == "/" || base == "" {
		return "."
	}
	return base
}

// Setup makes sure the root exists, creating it when create is set, and
// takes the lock.
func (w *Workspace) Setup(create bool) error {
	info, err := os.Stat(w.Root)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotADirectory, w.Root)
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && create:
		if err := utils.EnsureDir(w.Root); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
		}
		slog.Info("workspace created", "root", w.Root)
	default:
		return fmt.Errorf("local root %s: %w", w.Root, err)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)
	return nil
}

func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// NormPath cleans a path and converts it to forward slashes.
func NormPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean(p)
}
