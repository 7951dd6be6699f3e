package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoot(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"absolute", "/srv/www/site", "site"},
		{"trailing-slash", "/srv/www/site/", "site"},
		{"relative", "photos", "photos"},
		{"home-relative", "~/music", "music"},
		{"root", "/", "."},
		{"empty", "", "."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, DefaultRoot(c.input))
		})
	}
}

func TestWorkspaceSetup_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "site")

	w, err := NewWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".files"), w.RevisionFile)

	require.Error(t, w.Setup(false))
	assert.NoDirExists(t, root)

	require.NoError(t, w.Setup(true))
	t.Cleanup(func() { _ = w.Unlock() })
	assert.DirExists(t, root)
}

func TestWorkspaceSetup_RejectsFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	w, err := NewWorkspace(root)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Setup(true), ErrNotADirectory)
}

func TestWorkspaceLocking_SingleInstance(t *testing.T) {
	root := t.TempDir()

	w1, err := NewWorkspace(root)
	require.NoError(t, err)
	w2, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w1.Lock())
	assert.ErrorIs(t, w2.Lock(), ErrWorkspaceLocked)

	require.NoError(t, w1.Unlock())
	assert.NoFileExists(t, filepath.Join(root, ".files.lock"))

	require.NoError(t, w2.Lock())
	require.NoError(t, w2.Unlock())
	require.NoError(t, w2.Unlock())
}
