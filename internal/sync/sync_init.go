package sync

import (
	"context"
	"fmt"

	"github.com/openmined/sftpsync/internal/provider"
)

// Init rebuilds the in-scope part of the store from the paths present on
// both sides, taking the remote attributes. Nothing is transferred.
func (o *Orchestrator) Init(ctx context.Context) error {
	if o.remote == nil {
		return ErrNoRemote
	}

	remote, err := o.collectFiles(ctx, o.remote, SideRemote)
	if err != nil {
		return err
	}
	local, err := o.collectFiles(ctx, o.local, SideLocal)
	if err != nil {
		return err
	}

	for _, relPath := range o.store.Keys() {
		if inScope(relPath, o.opts.Subdir) {
			o.store.Delete(relPath)
		}
	}

	for relPath, entry := range remote {
		if _, ok := local[relPath]; !ok {
			continue
		}
		rec := RecordFromEntry(entry)
		o.store.Set(relPath, rec)
		o.summary.Recorded++
		o.emit(Event{Type: EventFileDiscovered, Path: relPath, Side: SideRemote, Record: &rec})
	}

	if o.opts.DryRun {
		return nil
	}
	if err := o.store.Save(); err != nil {
		return fmt.Errorf("save revision file: %w", err)
	}
	return nil
}

// collectFiles walks one side and returns every file by relative path. A
// missing subdir root counts as an empty tree.
func (o *Orchestrator) collectFiles(ctx context.Context, fsys provider.FS, side Side) (map[string]provider.DirEntry, error) {
	files := make(map[string]provider.DirEntry)

	if o.opts.Subdir != "" {
		if _, err := fsys.Lstat(o.opts.Subdir); provider.IsNotExist(err) {
			return files, nil
		}
	}

	for step, err := range Walk(fsys, o.opts.Subdir, o.exclude) {
		if err != nil {
			return nil, fmt.Errorf("%s walk: %w", side, err)
		}
		if ctx.Err() != nil {
			return nil, ErrInterrupted
		}
		if step.Skipped {
			o.emit(Event{Type: EventDirectorySkipped, Path: step.Dir, Side: side})
			continue
		}
		for _, entry := range step.Files {
			files[joinRel(step.Dir, entry.Name)] = entry
		}
	}
	return files, nil
}
