package sync

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openmined/sftpsync/internal/utils"
	"golang.org/x/text/encoding/charmap"
)

// RevisionFileName is the name of the revision file kept in the local root.
const RevisionFileName = ".files"

const maxRevisionLine = 1024 * 1024

// RevisionStore is the record of every path as of its last successful
// synchronization, persisted as one tab separated line per path:
//
//	<relative-path>\t<mtime>\t<size>\t<mode>
//
// Keys are relative to the sync root, never to a subdir restriction.
type RevisionStore struct {
	path    string
	entries map[string]FileRecord
	dirty   bool
}

// NewRevisionStore returns an empty store backed by path.
func NewRevisionStore(path string) *RevisionStore {
	return &RevisionStore{
		path:    path,
		entries: make(map[string]FileRecord),
	}
}

// LoadRevisionStore reads the store at path. A missing file yields an empty
// store.
func LoadRevisionStore(path string) (*RevisionStore, error) {
	s := NewRevisionStore(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory entries with the content of the backing file.
func (s *RevisionStore) Load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("revision file does not exist", "path", s.path)
			s.entries = make(map[string]FileRecord)
			s.dirty = false
			return nil
		}
		return fmt.Errorf("open revision file %s: %w", s.path, err)
	}
	defer file.Close()

	entries := make(map[string]FileRecord)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRevisionLine)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		relPath, record, err := parseRevisionLine(line)
		if err != nil {
			return fmt.Errorf("revision file %s line %d: %w", s.path, lineNo, err)
		}
		entries[relPath] = record
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read revision file %s: %w", s.path, err)
	}

	s.entries = entries
	s.dirty = false
	slog.Info("revision file loaded", "path", s.path, "files", len(entries))
	return nil
}

func parseRevisionLine(line string) (string, FileRecord, error) {
	parts := strings.Split(line, "\t")
	if len(parts) < 3 {
		return "", FileRecord{}, fmt.Errorf("expected at least 3 fields, got %d", len(parts))
	}

	mtime, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", FileRecord{}, fmt.Errorf("mtime: %w", err)
	}
	size, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return "", FileRecord{}, fmt.Errorf("size: %w", err)
	}

	mode := ModeUnknown
	if len(parts) > 3 && parts[3] != "" {
		mode, err = strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return "", FileRecord{}, fmt.Errorf("mode: %w", err)
		}
	}

	return parts[0], FileRecord{Mtime: mtime, Size: size, Mode: mode}, nil
}

// DisplayPath renders a path for humans. Non UTF-8 names are shown as
// Latin-1 instead of replacement characters.
func DisplayPath(p string) string {
	if utf8.ValidString(p) {
		return p
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(p)
	if err != nil {
		return strings.ToValidUTF8(p, "?")
	}
	return decoded
}

// Save rewrites the backing file with every entry, sorted by path. The file
// is replaced atomically.
func (s *RevisionStore) Save() error {
	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("revision file dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create revision temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, relPath := range s.Keys() {
		rec := s.entries[relPath]
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", relPath, rec.Mtime, rec.Size, rec.Mode); err != nil {
			tmp.Close()
			return fmt.Errorf("write revision file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush revision file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync revision file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close revision file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace revision file: %w", err)
	}

	s.dirty = false
	slog.Debug("revision file saved", "path", s.path, "files", len(s.entries))
	return nil
}

// Checkpoint persists pending changes. Dry runs never touch the disk.
func (s *RevisionStore) Checkpoint(dryRun bool) error {
	if dryRun || !s.dirty {
		return nil
	}
	return s.Save()
}

func (s *RevisionStore) Path() string {
	return s.path
}

func (s *RevisionStore) Dirty() bool {
	return s.dirty
}

func (s *RevisionStore) Get(relPath string) (FileRecord, bool) {
	rec, ok := s.entries[relPath]
	return rec, ok
}

func (s *RevisionStore) Set(relPath string, rec FileRecord) {
	if cur, ok := s.entries[relPath]; ok && cur == rec {
		return
	}
	s.entries[relPath] = rec
	s.dirty = true
}

func (s *RevisionStore) Delete(relPath string) {
	if _, ok := s.entries[relPath]; !ok {
		return
	}
	delete(s.entries, relPath)
	s.dirty = true
}

// Keys returns every stored path in lexical order.
func (s *RevisionStore) Keys() []string {
	return slices.Sorted(maps.Keys(s.entries))
}

// Items returns a copy of the entries.
func (s *RevisionStore) Items() map[string]FileRecord {
	return maps.Clone(s.entries)
}

func (s *RevisionStore) Len() int {
	return len(s.entries)
}
