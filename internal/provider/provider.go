// Package provider abstracts the two sides of a synchronization: the local
// tree (afero) and the remote tree (SFTP). Both implementations are rooted at
// the sync root and address entries by forward-slash relative paths; the
// empty path is the root itself.
package provider

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"
)

// DirEntry is a single lstat-style entry of either side.
type DirEntry struct {
	Name      string
	Mtime     int64  // unix seconds
	Size      uint64 // bytes
	Mode      int64  // POSIX mode bits, -1 when unknown
	IsDir     bool
	IsSymlink bool
}

// FS is the set of operations the sync engine needs from a tree.
// Paths are relative to Root() and use forward slashes.
type FS interface {
	// Root returns a printable location of the tree root.
	Root() string

	ReadDir(rel string) ([]DirEntry, error)
	Lstat(rel string) (DirEntry, error)
	Readlink(rel string) (string, error)
	Symlink(target, rel string) error
	Mkdir(rel string) error
	Remove(rel string) error
	Rename(oldRel, newRel string) error
	Open(rel string) (io.ReadCloser, error)
	Create(rel string) (io.WriteCloser, error)
	Chtimes(rel string, mtime time.Time) error
	Chmod(rel string, perm fs.FileMode) error
}

// IsNotExist reports whether err means the entry is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

func entryFromInfo(name string, info fs.FileInfo) DirEntry {
	mode := info.Mode()
	var size uint64
	if info.Size() > 0 {
		size = uint64(info.Size())
	}
	return DirEntry{
		Name:      name,
		Mtime:     info.ModTime().Unix(),
		Size:      size,
		Mode:      PosixMode(mode),
		IsDir:     mode.IsDir(),
		IsSymlink: mode&fs.ModeSymlink != 0,
	}
}
