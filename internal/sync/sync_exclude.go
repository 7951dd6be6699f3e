package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional gitignore-style file in the local root.
const IgnoreFileName = ".syncignore"

// editor swap files, backups and office lock files
var builtinExcludePatterns = []string{
	"**/*~",
	"**/*.swp",
	"**/*.swo",
	"**/.~*",
	"**/~$*",
}

// ExcludeFunc decides whether a path relative to the sync root is left out
// of walks, diffs and the revision store.
type ExcludeFunc func(relPath string) bool

// ExcludeList combines the caller's regular expression, the built-in editor
// rules and the optional .syncignore file.
type ExcludeList struct {
	baseDir string
	pattern *regexp.Regexp
	ignore  *gitignore.GitIgnore
}

// NewExcludeList compiles the user expression. The expression must match
// from the start of the relative path.
func NewExcludeList(baseDir string, expr string) (*ExcludeList, error) {
	e := &ExcludeList{baseDir: baseDir}
	if expr != "" {
		re, err := regexp.Compile(`^(?:` + expr + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", expr, err)
		}
		e.pattern = re
	}
	return e, nil
}

// Load reads the .syncignore file of the base directory if there is one.
func (e *ExcludeList) Load() error {
	if e.baseDir == "" {
		return nil
	}

	ignorePath := filepath.Join(e.baseDir, IgnoreFileName)
	ig, err := gitignore.CompileIgnoreFile(ignorePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.ignore = nil
			return nil
		}
		return fmt.Errorf("read %s: %w", ignorePath, err)
	}

	e.ignore = ig
	slog.Info("loaded ignore file", "path", ignorePath)
	return nil
}

// ShouldExclude reports whether relPath is excluded. The root is never
// excluded.
func (e *ExcludeList) ShouldExclude(relPath string) bool {
	if relPath == "" {
		return false
	}
	if e.pattern != nil && e.pattern.MatchString(relPath) {
		return true
	}
	if matchesBuiltin(relPath) {
		return true
	}
	return e.ignore != nil && e.ignore.MatchesPath(relPath)
}

// Func adapts the list to an ExcludeFunc.
func (e *ExcludeList) Func() ExcludeFunc {
	return e.ShouldExclude
}

func matchesBuiltin(relPath string) bool {
	for _, pattern := range builtinExcludePatterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
