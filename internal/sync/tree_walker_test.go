package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/sftpsync/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walkedDir struct {
	dir     string
	files   []string
	skipped bool
}

func collectWalk(t *testing.T, fsys provider.FS, root string, exclude ExcludeFunc) []walkedDir {
	t.Helper()
	var out []walkedDir
	for step, err := range Walk(fsys, root, exclude) {
		require.NoError(t, err)
		w := walkedDir{dir: step.Dir, skipped: step.Skipped}
		for _, f := range step.Files {
			w.files = append(w.files, f.Name)
		}
		out = append(out, w)
	}
	return out
}

func TestWalk_PreOrderSorted(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"z.txt", "a.txt", "b/2.txt", "b/1.txt", "b/c/deep.txt", "a/x.txt"} {
		writeTestFile(t, root, rel, "x", 1000)
	}
	writeTestFile(t, root, RevisionFileName, "", 1000)
	writeTestFile(t, root, LockFileName, "", 1000)
	writeTestFile(t, root, "a.txt"+partialSuffix, "", 1000)
	writeTestFile(t, root, "a.txt.swp", "", 1000)

	exclude, err := NewExcludeList("", "")
	require.NoError(t, err)

	got := collectWalk(t, provider.NewLocal(root), "", exclude.Func())
	assert.Equal(t, []walkedDir{
		{dir: "", files: []string{"a.txt", "z.txt"}},
		{dir: "a", files: []string{"x.txt"}},
		{dir: "b", files: []string{"1.txt", "2.txt"}},
		{dir: "b/c", files: []string{"deep.txt"}},
	}, got)
}

func TestWalk_ExcludedDirectoryReportedNotDescended(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "keep/a.txt", "x", 1000)
	writeTestFile(t, root, "skip/b.txt", "x", 1000)

	exclude := func(rel string) bool { return rel == "skip" }
	got := collectWalk(t, provider.NewLocal(root), "", exclude)
	assert.Equal(t, []walkedDir{
		{dir: ""},
		{dir: "keep", files: []string{"a.txt"}},
		{dir: "skip", skipped: true},
	}, got)
}

func TestWalk_SubdirRootAndListingError(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a/b/c.txt", "x", 1000)

	got := collectWalk(t, provider.NewLocal(root), "a", nil)
	assert.Equal(t, []walkedDir{
		{dir: "a"},
		{dir: "a/b", files: []string{"c.txt"}},
	}, got)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "a")))
	var errs int
	for _, err := range Walk(provider.NewLocal(root), "a", nil) {
		if err != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestInScope(t *testing.T) {
	assert.True(t, inScope("a/b", ""))
	assert.True(t, inScope("a/b", "a"))
	assert.True(t, inScope("a", "a"))
	assert.False(t, inScope("ab/c", "a"))
	assert.False(t, inScope("b/a", "a"))
}
