package sync

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/openmined/sftpsync/internal/provider"
)

const (
	// LockFileName guards a local root against concurrent passes.
	LockFileName = ".files.lock"
	// partialSuffix marks an in-flight download or upload.
	partialSuffix = ".sftpsync-partial"
)

// WalkStep is one directory of a tree walk. Dir is relative to the sync
// root. A Skipped step is an excluded directory that was not listed.
type WalkStep struct {
	Dir     string
	Subdirs []provider.DirEntry
	Files   []provider.DirEntry
	Skipped bool
}

// Walk lazily traverses fsys depth-first, pre-order, starting at root (a
// path relative to the sync root, "" for the whole tree). It keeps an
// explicit stack so deep trees and slow remote listings never grow the call
// stack. Iteration stops after the first listing error.
func Walk(fsys provider.FS, root string, exclude ExcludeFunc) iter.Seq2[WalkStep, error] {
	return func(yield func(WalkStep, error) bool) {
		stack := []string{root}
		for len(stack) > 0 {
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if dir != root && exclude != nil && exclude(dir) {
				if !yield(WalkStep{Dir: dir, Skipped: true}, nil) {
					return
				}
				continue
			}

			entries, err := fsys.ReadDir(dir)
			if err != nil {
				yield(WalkStep{Dir: dir}, fmt.Errorf("list %q: %w", dir, err))
				return
			}
			slices.SortFunc(entries, func(a, b provider.DirEntry) int {
				return strings.Compare(a.Name, b.Name)
			})

			step := WalkStep{Dir: dir}
			for _, entry := range entries {
				if entry.IsDir {
					step.Subdirs = append(step.Subdirs, entry)
					continue
				}
				if isReservedName(entry.Name) {
					continue
				}
				if exclude != nil && exclude(joinRel(dir, entry.Name)) {
					continue
				}
				step.Files = append(step.Files, entry)
			}

			if !yield(step, nil) {
				return
			}

			// reversed so the smallest name is popped first
			for i := len(step.Subdirs) - 1; i >= 0; i-- {
				stack = append(stack, joinRel(dir, step.Subdirs[i].Name))
			}
		}
	}
}

// isReservedName filters the engine's own bookkeeping files and names the
// revision file format cannot represent.
func isReservedName(name string) bool {
	switch {
	case name == RevisionFileName, name == LockFileName:
		return true
	case strings.HasSuffix(name, partialSuffix), strings.HasPrefix(name, RevisionFileName+".tmp-"):
		return true
	case strings.ContainsAny(name, "\t\n\r"):
		return true
	}
	return false
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// inScope reports whether relPath lies under subdir.
func inScope(relPath, subdir string) bool {
	if subdir == "" {
		return true
	}
	return relPath == subdir || strings.HasPrefix(relPath, subdir+"/")
}
