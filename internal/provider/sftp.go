package provider

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
)

// SFTP is the remote side of a sync. It does not own the client.
type SFTP struct {
	client *sftp.Client
	root   string
}

func NewSFTP(client *sftp.Client, root string) *SFTP {
	return &SFTP{client: client, root: root}
}

func (s *SFTP) Root() string {
	return s.root
}

func (s *SFTP) abs(rel string) string {
	if rel == "" {
		return s.root
	}
	return path.Join(s.root, rel)
}

func (s *SFTP) ReadDir(rel string) ([]DirEntry, error) {
	infos, err := s.client.ReadDir(s.abs(rel))
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info.Name(), info))
	}
	return entries, nil
}

func (s *SFTP) Lstat(rel string) (DirEntry, error) {
	info, err := s.client.Lstat(s.abs(rel))
	if err != nil {
		return DirEntry{}, err
	}
	return entryFromInfo(path.Base(s.abs(rel)), info), nil
}

func (s *SFTP) Readlink(rel string) (string, error) {
	return s.client.ReadLink(s.abs(rel))
}

func (s *SFTP) Symlink(target, rel string) error {
	return s.client.Symlink(target, s.abs(rel))
}

func (s *SFTP) Mkdir(rel string) error {
	return s.client.Mkdir(s.abs(rel))
}

func (s *SFTP) Remove(rel string) error {
	return s.client.Remove(s.abs(rel))
}

// Rename prefers the posix-rename extension, which replaces an existing
// target. Servers without it get a remove followed by a plain rename.
func (s *SFTP) Rename(oldRel, newRel string) error {
	oldPath, newPath := s.abs(oldRel), s.abs(newRel)
	err := s.client.PosixRename(oldPath, newPath)
	if err == nil {
		return nil
	}
	slog.Debug("sftp posix rename failed, falling back", "from", oldPath, "to", newPath, "error", err)

	if rmErr := s.client.Remove(newPath); rmErr != nil && !IsNotExist(rmErr) {
		return fmt.Errorf("rename %s: %w", newPath, rmErr)
	}
	return s.client.Rename(oldPath, newPath)
}

func (s *SFTP) Open(rel string) (io.ReadCloser, error) {
	return s.client.Open(s.abs(rel))
}

func (s *SFTP) Create(rel string) (io.WriteCloser, error) {
	f, err := s.client.OpenFile(s.abs(rel), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", rel, err)
	}
	return f, nil
}

func (s *SFTP) Chtimes(rel string, mtime time.Time) error {
	return s.client.Chtimes(s.abs(rel), mtime, mtime)
}

func (s *SFTP) Chmod(rel string, perm fs.FileMode) error {
	return s.client.Chmod(s.abs(rel), perm)
}
