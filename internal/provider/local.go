package provider

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Local is the local side of a sync, backed by an afero filesystem.
type Local struct {
	fs   afero.Fs
	root string
}

// NewLocal returns a provider over the operating system filesystem.
func NewLocal(root string) *Local {
	return NewLocalFs(afero.NewOsFs(), root)
}

// NewLocalFs returns a provider over an arbitrary afero filesystem.
// Symlink operations need the filesystem to implement afero.Linker and
// afero.LinkReader.
func NewLocalFs(fsys afero.Fs, root string) *Local {
	return &Local{fs: fsys, root: root}
}

func (l *Local) Root() string {
	return l.root
}

func (l *Local) abs(rel string) string {
	if rel == "" {
		return l.root
	}
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

func (l *Local) ReadDir(rel string) ([]DirEntry, error) {
	infos, err := afero.ReadDir(l.fs, l.abs(rel))
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info.Name(), info))
	}
	return entries, nil
}

func (l *Local) Lstat(rel string) (DirEntry, error) {
	p := l.abs(rel)

	var (
		info fs.FileInfo
		err  error
	)
	if lst, ok := l.fs.(afero.Lstater); ok {
		info, _, err = lst.LstatIfPossible(p)
	} else {
		info, err = l.fs.Stat(p)
	}
	if err != nil {
		return DirEntry{}, err
	}
	return entryFromInfo(info.Name(), info), nil
}

func (l *Local) Readlink(rel string) (string, error) {
	reader, ok := l.fs.(afero.LinkReader)
	if !ok {
		return "", &os.PathError{Op: "readlink", Path: l.abs(rel), Err: afero.ErrNoReadlink}
	}
	return reader.ReadlinkIfPossible(l.abs(rel))
}

func (l *Local) Symlink(target, rel string) error {
	linker, ok := l.fs.(afero.Linker)
	if !ok {
		return &os.LinkError{Op: "symlink", Old: target, New: l.abs(rel), Err: afero.ErrNoSymlink}
	}
	return linker.SymlinkIfPossible(target, l.abs(rel))
}

func (l *Local) Mkdir(rel string) error {
	return l.fs.Mkdir(l.abs(rel), 0o755)
}

func (l *Local) Remove(rel string) error {
	return l.fs.Remove(l.abs(rel))
}

func (l *Local) Rename(oldRel, newRel string) error {
	return l.fs.Rename(l.abs(oldRel), l.abs(newRel))
}

func (l *Local) Open(rel string) (io.ReadCloser, error) {
	return l.fs.Open(l.abs(rel))
}

func (l *Local) Create(rel string) (io.WriteCloser, error) {
	f, err := l.fs.OpenFile(l.abs(rel), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", rel, err)
	}
	return f, nil
}

func (l *Local) Chtimes(rel string, mtime time.Time) error {
	return l.fs.Chtimes(l.abs(rel), mtime, mtime)
}

func (l *Local) Chmod(rel string, perm fs.FileMode) error {
	return l.fs.Chmod(l.abs(rel), perm)
}
