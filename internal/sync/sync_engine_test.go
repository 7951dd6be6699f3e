package sync

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/sftpsync/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTrees struct {
	local  string
	remote string
}

func newTestTrees(t *testing.T) *testTrees {
	t.Helper()
	return &testTrees{local: t.TempDir(), remote: t.TempDir()}
}

func (tt *testTrees) revisionFile() string {
	return filepath.Join(tt.local, RevisionFileName)
}

func (tt *testTrees) loadStore(t *testing.T) *RevisionStore {
	t.Helper()
	store, err := LoadRevisionStore(tt.revisionFile())
	require.NoError(t, err)
	return store
}

func writeTestFile(t *testing.T, root, rel, content string, mtime int64) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chmod(p, 0o644))
	ts := time.Unix(mtime, 0)
	require.NoError(t, os.Chtimes(p, ts, ts))
}

func readTestFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func mtimeOf(t *testing.T, root, rel string) int64 {
	t.Helper()
	info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return info.ModTime().Unix()
}

func exists(root, rel string) bool {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

type eventLog struct {
	events []Event
}

func (l *eventLog) Emit(e Event) {
	l.events = append(l.events, e)
}

func (l *eventLog) paths(typ EventType) []string {
	var out []string
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e.Path)
		}
	}
	return out
}

func (l *eventLog) findings() map[string]Finding {
	out := make(map[string]Finding)
	for _, e := range l.events {
		if e.Type == EventAuditFinding {
			out[e.Path] = e.Finding
		}
	}
	return out
}

type engineSetup struct {
	opts     Options
	confirm  Confirmer
	remote   provider.FS
	local    provider.FS
	noRemote bool
}

func (tt *testTrees) engine(t *testing.T, setup engineSetup) (*SyncEngine, *eventLog) {
	t.Helper()

	exclude, err := NewExcludeList(tt.local, "")
	require.NoError(t, err)
	require.NoError(t, exclude.Load())

	local := setup.local
	if local == nil {
		local = provider.NewLocal(tt.local)
	}
	var remote provider.FS
	if !setup.noRemote {
		remote = setup.remote
		if remote == nil {
			remote = provider.NewLocal(tt.remote)
		}
	}
	confirm := setup.confirm
	if confirm == nil {
		confirm = AutoConfirm(true)
	}

	log := &eventLog{}
	engine, err := NewSyncEngine(EngineConfig{
		Local:        local,
		Remote:       remote,
		RevisionFile: tt.revisionFile(),
		Options:      setup.opts,
		Exclude:      exclude.Func(),
		Confirm:      confirm,
		Sink:         log,
	})
	require.NoError(t, err)
	return engine, log
}

// faultyFS fails Open for one path.
type faultyFS struct {
	provider.FS
	failOpen string
}

func (f *faultyFS) Open(rel string) (io.ReadCloser, error) {
	if rel == f.failOpen {
		return nil, errors.New("connection reset")
	}
	return f.FS.Open(rel)
}

// cancelingFS cancels the pass while one path is being read.
type cancelingFS struct {
	provider.FS
	path   string
	cancel context.CancelFunc
}

func (c *cancelingFS) Open(rel string) (io.ReadCloser, error) {
	rc, err := c.FS.Open(rel)
	if err != nil || rel != c.path {
		return rc, err
	}
	return &cancelingReader{ReadCloser: rc, cancel: c.cancel}, nil
}

type cancelingReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelingReader) Read(p []byte) (int, error) {
	r.cancel()
	return r.ReadCloser.Read(p)
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		got, err := ParseDirection(strings.ToUpper(string(d)))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	_, err := ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrUnknownDirection)

	assert.True(t, DirectionInit.Mutating())
	assert.False(t, DirectionCheck.Mutating())
	assert.False(t, DirectionList.Mutating())
	assert.False(t, DirectionList.NeedsRemote())
}

func TestSyncEngine_DownCopiesAndIsIdempotent(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "a.txt", "alpha", 1000)
	writeTestFile(t, tt.remote, "dir/sub/b.txt", "bravo", 2000)
	require.NoError(t, os.Symlink("a.txt", filepath.Join(tt.remote, "link")))

	engine, log := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Transferred)
	assert.Equal(t, int64(len("alpha")+len("bravo")), summary.Bytes)

	assert.Equal(t, "alpha", readTestFile(t, tt.local, "a.txt"))
	assert.Equal(t, "bravo", readTestFile(t, tt.local, "dir/sub/b.txt"))
	assert.Equal(t, int64(1000), mtimeOf(t, tt.local, "a.txt"))
	assert.Equal(t, int64(2000), mtimeOf(t, tt.local, "dir/sub/b.txt"))
	target, err := os.Readlink(filepath.Join(tt.local, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)
	assert.Contains(t, log.paths(EventDirectoryCreated), "dir/sub")

	store := tt.loadStore(t)
	assert.ElementsMatch(t, []string{"a.txt", "dir/sub/b.txt", "link"}, store.Keys())
	rec, ok := store.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(1000), rec.Mtime)
	assert.Equal(t, uint64(5), rec.Size)

	engine, _ = tt.engine(t, engineSetup{})
	summary, err = engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Zero(t, summary.Transferred)
	assert.Equal(t, 3, summary.Unchanged)
}

func TestSyncEngine_UpCreatesRemoteDirectories(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.local, "x/y/z.txt", "zulu", 3000)

	engine, _ := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transferred)
	assert.Equal(t, "zulu", readTestFile(t, tt.remote, "x/y/z.txt"))
	assert.Equal(t, int64(3000), mtimeOf(t, tt.remote, "x/y/z.txt"))
	assert.False(t, exists(tt.remote, RevisionFileName))
}

func TestSyncEngine_BothConverges(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "r.txt", "from remote", 1000)
	writeTestFile(t, tt.local, "l.txt", "from local", 2000)

	engine, _ := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Transferred)
	assert.Zero(t, summary.Conflicts)

	for _, rel := range []string{"r.txt", "l.txt"} {
		assert.Equal(t, readTestFile(t, tt.remote, rel), readTestFile(t, tt.local, rel))
		assert.Equal(t, mtimeOf(t, tt.remote, rel), mtimeOf(t, tt.local, rel))
	}

	store := tt.loadStore(t)
	assert.Equal(t, []string{"l.txt", "r.txt"}, store.Keys())
	for _, rel := range store.Keys() {
		rec, _ := store.Get(rel)
		assert.Equal(t, mtimeOf(t, tt.local, rel), rec.Mtime)
	}

	engine, _ = tt.engine(t, engineSetup{})
	summary, err = engine.Run(context.Background(), DirectionBoth)
	require.NoError(t, err)
	assert.Zero(t, summary.Transferred)
}

func TestSyncEngine_ConflictLeavesDestinationUntouched(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "doc.txt", "remote edit", 2000)
	writeTestFile(t, tt.local, "doc.txt", "local edit!", 3000)

	store := NewRevisionStore(tt.revisionFile())
	store.Set("doc.txt", FileRecord{Mtime: 1000, Size: 8, Mode: 0o100644})
	require.NoError(t, store.Save())

	engine, log := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "doc.txt", conflict.Path)
	assert.Equal(t, reasonDestinationNewer, conflict.Reason)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Equal(t, []string{"doc.txt"}, log.paths(EventConflictDetected))

	assert.Equal(t, "local edit!", readTestFile(t, tt.local, "doc.txt"))
	assert.Equal(t, int64(3000), mtimeOf(t, tt.local, "doc.txt"))
	rec, ok := tt.loadStore(t).Get("doc.txt")
	require.True(t, ok)
	assert.Equal(t, int64(1000), rec.Mtime)
}

func TestSyncEngine_DownAfterRemoteRestoredToOlderMtime(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "a.txt", "alpha", 1000)

	engine, _ := tt.engine(t, engineSetup{})
	_, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	require.Equal(t, int64(1000), mtimeOf(t, tt.local, "a.txt"))

	writeTestFile(t, tt.remote, "a.txt", "restored", 500)

	engine, log := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transferred)
	assert.Empty(t, log.paths(EventConflictDetected))

	assert.Equal(t, "restored", readTestFile(t, tt.local, "a.txt"))
	assert.Equal(t, int64(500), mtimeOf(t, tt.local, "a.txt"))
	rec, ok := tt.loadStore(t).Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(500), rec.Mtime)
	assert.Equal(t, uint64(8), rec.Size)
}

func TestSyncEngine_AlreadySynchronizedDestination(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "same.txt", "same", 1500)
	writeTestFile(t, tt.local, "same.txt", "same", 1500)

	engine, log := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Zero(t, summary.Transferred)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"same.txt"}, log.paths(EventTransferSkipped))

	_, ok := tt.loadStore(t).Get("same.txt")
	assert.True(t, ok)
}

func TestSyncEngine_SkipOnErrorContinues(t *testing.T) {
	tt := newTestTrees(t)
	for i := range 10 {
		writeTestFile(t, tt.remote, "f"+string(rune('0'+i))+".txt", "payload", int64(5000+i))
	}

	previous := FileRecord{Mtime: 10, Size: 3, Mode: 0o100644}
	store := NewRevisionStore(tt.revisionFile())
	store.Set("f3.txt", previous)
	require.NoError(t, store.Save())

	remote := &faultyFS{FS: provider.NewLocal(tt.remote), failOpen: "f3.txt"}
	engine, log := tt.engine(t, engineSetup{remote: remote, opts: Options{SkipOnError: true}})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Transferred)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, []string{"f3.txt"}, log.paths(EventTransferFailed))

	assert.False(t, exists(tt.local, "f3.txt"))
	assert.False(t, exists(tt.local, "f3.txt"+partialSuffix))

	saved := tt.loadStore(t)
	assert.Equal(t, 10, saved.Len())
	rec, ok := saved.Get("f3.txt")
	require.True(t, ok)
	assert.Equal(t, previous, rec)
}

func TestSyncEngine_FailureWithoutSkipIsFatal(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "a.txt", "a", 1000)
	writeTestFile(t, tt.remote, "b.txt", "b", 1000)
	writeTestFile(t, tt.remote, "c.txt", "c", 1000)

	remote := &faultyFS{FS: provider.NewLocal(tt.remote), failOpen: "b.txt"}
	engine, _ := tt.engine(t, engineSetup{remote: remote})
	_, err := engine.Run(context.Background(), DirectionDown)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "b.txt", transferErr.Path)

	store := tt.loadStore(t)
	assert.Equal(t, []string{"a.txt"}, store.Keys())
	assert.False(t, exists(tt.local, "c.txt"))
}

func TestSyncEngine_InterruptRollsBackInFlightPath(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "a.txt", "first", 1000)
	writeTestFile(t, tt.remote, "b.txt", "second", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := &cancelingFS{FS: provider.NewLocal(tt.remote), path: "b.txt", cancel: cancel}
	engine, _ := tt.engine(t, engineSetup{remote: remote, opts: Options{SkipOnError: true}})
	_, err := engine.Run(ctx, DirectionDown)
	require.ErrorIs(t, err, ErrInterrupted)

	assert.True(t, exists(tt.local, "a.txt"))
	assert.False(t, exists(tt.local, "b.txt"))
	assert.False(t, exists(tt.local, "b.txt"+partialSuffix))
	assert.Equal(t, []string{"a.txt"}, tt.loadStore(t).Keys())
}

func TestSyncEngine_ExcludedFilesNeverStored(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "notes.txt", "n", 1000)
	writeTestFile(t, tt.remote, "notes.txt.swp", "swap", 1000)
	writeTestFile(t, tt.remote, "tmp/cache.bin", "c", 1000)
	writeTestFile(t, tt.local, IgnoreFileName, "tmp\n", 1000)

	engine, log := tt.engine(t, engineSetup{})
	_, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)

	assert.False(t, exists(tt.local, "notes.txt.swp"))
	assert.False(t, exists(tt.local, "tmp/cache.bin"))
	assert.Contains(t, log.paths(EventDirectorySkipped), "tmp")
	assert.Equal(t, []string{"notes.txt"}, tt.loadStore(t).Keys())
}

func TestSyncEngine_DryRunTouchesNothing(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "dir/a.txt", "a", 1000)

	engine, log := tt.engine(t, engineSetup{opts: Options{DryRun: true}})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"dir/a.txt"}, log.paths(EventFileDiscovered))

	assert.False(t, exists(tt.local, "dir"))
	assert.False(t, exists(tt.local, RevisionFileName))
}

func TestSyncEngine_DeclinedConfirmationAborts(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "a.txt", "a", 1000)

	engine, _ := tt.engine(t, engineSetup{confirm: AutoConfirm(false)})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.True(t, summary.Aborted)
	assert.False(t, exists(tt.local, "a.txt"))
}

func TestSyncEngine_DeletionReconciliation(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.local, "a/x.txt", "x", 1000)
	writeTestFile(t, tt.local, "a/keep.txt", "k", 1000)
	writeTestFile(t, tt.local, "b/y.txt", "y", 1000)
	require.NoError(t, os.MkdirAll(filepath.Join(tt.remote, "a"), 0o755))

	store := NewRevisionStore(tt.revisionFile())
	for _, rel := range []string{"a/x.txt", "a/keep.txt", "a/gone.txt", "b/y.txt"} {
		store.Set(rel, FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	}
	require.NoError(t, store.Save())

	var asked []string
	confirm := ConfirmFunc(func(_ context.Context, question string) (bool, error) {
		asked = append(asked, question)
		return !strings.Contains(question, "keep.txt"), nil
	})

	engine, log := tt.engine(t, engineSetup{confirm: confirm, opts: Options{Subdir: "a"}})
	summary, err := engine.Run(context.Background(), DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deleted)

	assert.ElementsMatch(t, []string{"a/gone.txt", "a/keep.txt", "a/x.txt"}, log.paths(EventFileDeleted))
	assert.Equal(t, []string{"a/gone.txt"}, log.paths(EventAlreadyDeleted))
	assert.Equal(t, []string{"a/keep.txt"}, log.paths(EventDeletionDeclined))
	assert.Len(t, asked, 3, "continue plus two deletions; the missing file is never prompted")

	assert.False(t, exists(tt.local, "a/x.txt"))
	assert.True(t, exists(tt.local, "a/keep.txt"))
	assert.True(t, exists(tt.local, "b/y.txt"))
	assert.Equal(t, []string{"a/keep.txt", "b/y.txt"}, tt.loadStore(t).Keys())
}

func TestSyncEngine_Init(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "both.txt", "remote", 1000)
	writeTestFile(t, tt.remote, "remote-only.txt", "r", 1000)
	writeTestFile(t, tt.local, "both.txt", "local!", 2000)
	writeTestFile(t, tt.local, "local-only.txt", "l", 2000)

	engine, _ := tt.engine(t, engineSetup{})
	summary, err := engine.Run(context.Background(), DirectionInit)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Recorded)

	store := tt.loadStore(t)
	assert.Equal(t, []string{"both.txt"}, store.Keys())
	rec, _ := store.Get("both.txt")
	assert.Equal(t, int64(1000), rec.Mtime)
	assert.Equal(t, uint64(6), rec.Size)
	assert.Equal(t, "local!", readTestFile(t, tt.local, "both.txt"))

	overwrite := ConfirmFunc(func(_ context.Context, question string) (bool, error) {
		return !strings.HasPrefix(question, "Overwrite"), nil
	})
	writeTestFile(t, tt.remote, "local-only.txt", "l", 2000)
	engine, _ = tt.engine(t, engineSetup{confirm: overwrite})
	summary, err = engine.Run(context.Background(), DirectionInit)
	require.NoError(t, err)
	assert.True(t, summary.Aborted)
	assert.Equal(t, []string{"both.txt"}, tt.loadStore(t).Keys())
}

func TestSyncEngine_Check(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.remote, "same.txt", "s", 1000)
	writeTestFile(t, tt.remote, "changed.txt", "changed", 3000)
	writeTestFile(t, tt.remote, "fresh.txt", "f", 1000)
	writeTestFile(t, tt.local, "missing.txt", "m", 1000)

	store := NewRevisionStore(tt.revisionFile())
	store.Set("same.txt", FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	store.Set("changed.txt", FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	store.Set("orphan.txt", FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	store.Set("missing.txt", FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	require.NoError(t, store.Save())
	before, err := os.ReadFile(tt.revisionFile())
	require.NoError(t, err)

	confirm := ConfirmFunc(func(context.Context, string) (bool, error) {
		t.Fatal("check must not prompt")
		return false, nil
	})
	engine, log := tt.engine(t, engineSetup{confirm: confirm})
	summary, err := engine.Run(context.Background(), DirectionCheck)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Findings)

	assert.Equal(t, map[string]Finding{
		"changed.txt": FindingDiffers,
		"fresh.txt":   FindingOnlyRemote,
		"orphan.txt":  FindingOrphaned,
		"missing.txt": FindingMissingRemote,
	}, log.findings())

	after, err := os.ReadFile(tt.revisionFile())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, exists(tt.local, "fresh.txt"))
}

func TestSyncEngine_ListWithoutRemote(t *testing.T) {
	tt := newTestTrees(t)
	writeTestFile(t, tt.local, "kept.txt", "k", 1000)
	writeTestFile(t, tt.local, "edited.txt", "edited", 2000)
	writeTestFile(t, tt.local, "added.txt", "a", 1000)

	store := NewRevisionStore(tt.revisionFile())
	store.Set("kept.txt", FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	store.Set("edited.txt", FileRecord{Mtime: 1000, Size: 1, Mode: 0o100644})
	require.NoError(t, store.Save())

	engine, log := tt.engine(t, engineSetup{noRemote: true})
	_, err := engine.Run(context.Background(), DirectionList)
	require.NoError(t, err)
	assert.Equal(t, map[string]Finding{
		"edited.txt": FindingChanged,
		"added.txt":  FindingNew,
	}, log.findings())

	_, err = engine.Run(context.Background(), DirectionDown)
	assert.ErrorIs(t, err, ErrNoRemote)
}
