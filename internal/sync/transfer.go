package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/sftpsync/internal/provider"
)

// syncFile classifies one source file against the store and, when it is new
// or different, transfers it.
func (o *Orchestrator) syncFile(ctx context.Context, plan transferPlan, relPath string, entry provider.DirEntry) Outcome {
	cur := RecordFromEntry(entry)

	prev, known := o.store.Get(relPath)
	if !known {
		o.emit(Event{Type: EventFileDiscovered, Path: relPath, Side: plan.srcSide, Record: &cur})
		return o.transfer(ctx, plan, relPath, cur, nil)
	}

	d := Diff(prev, cur, entry.IsSymlink, o.linkTargets(plan, relPath))
	if d.Kind == DiffNone {
		return skipped(relPath, &cur, reasonUnchanged)
	}

	o.emit(Event{
		Type:     EventFileChanged,
		Path:     relPath,
		Side:     plan.srcSide,
		Record:   &cur,
		Previous: &prev,
		Diff:     d.Kind,
		Target:   d.SrcTarget,
	})
	return o.transfer(ctx, plan, relPath, cur, &prev)
}

// transfer runs the per-path protocol: gate on the live destination, copy,
// then report the terminal outcome. It never touches the store.
func (o *Orchestrator) transfer(ctx context.Context, plan transferPlan, relPath string, src FileRecord, prev *FileRecord) Outcome {
	if ctx.Err() != nil {
		return interrupted(relPath)
	}

	existed := false
	dstEntry, err := plan.dst.Lstat(relPath)
	switch {
	case err == nil:
		existed = true
		check := CheckDestination(dstEntry, src, prev, o.linkTargets(plan, relPath))
		switch check.Verdict {
		case VerdictInSync:
			return skipped(relPath, &src, reasonAlreadySynced)
		case VerdictConflict:
			return conflicted(relPath, check.Reason)
		}
	case provider.IsNotExist(err):
	default:
		return failed(relPath, "stat destination", err)
	}

	if o.opts.DryRun {
		return skipped(relPath, nil, reasonDryRun)
	}

	// pending unchanged records go to disk before anything is written
	if err := o.checkpoint(); err != nil {
		return failed(relPath, "save revision file", err)
	}

	o.emit(Event{Type: EventTransferStarted, Path: relPath, Side: plan.dstSide, Record: &src})
	slog.Debug("sync", "op", "transfer", "from", plan.srcSide, "to", plan.dstSide, "path", DisplayPath(relPath))

	if src.IsSymlink() {
		return o.copySymlink(plan, relPath, src, existed)
	}
	return o.copyFile(ctx, plan, relPath, src, existed && prev != nil)
}

// copyFile streams the source into a partial file next to the destination,
// renames it into place and restores the source attributes. keepExisting
// protects a destination that was already synchronized once from cleanup.
func (o *Orchestrator) copyFile(ctx context.Context, plan transferPlan, relPath string, src FileRecord, keepExisting bool) Outcome {
	partial := relPath + partialSuffix
	start := time.Now()

	reader, err := plan.src.Open(relPath)
	if err != nil {
		return failed(relPath, "open source", err)
	}
	defer reader.Close()

	writer, err := plan.dst.Create(partial)
	if err != nil {
		return failed(relPath, "create destination", err)
	}

	progress := Progress{OnProgress: func(done, total int64) {
		o.emit(Event{
			Type:    EventTransferProgress,
			Path:    relPath,
			Side:    plan.dstSide,
			Done:    done,
			Total:   total,
			Elapsed: time.Since(start),
		})
	}}

	written, copyErr := copyWithProgress(ctx, writer, reader, int64(src.Size), progress)
	closeErr := writer.Close()
	if copyErr != nil || closeErr != nil {
		o.discard(plan, partial)
		if ctx.Err() != nil || errors.Is(copyErr, context.Canceled) {
			return interrupted(relPath)
		}
		return failed(relPath, "copy", errors.Join(copyErr, closeErr))
	}

	if err := plan.dst.Rename(partial, relPath); err != nil {
		o.discard(plan, partial)
		return failed(relPath, "rename", err)
	}

	if err := o.restoreAttributes(plan, relPath, src); err != nil {
		if !keepExisting {
			o.discard(plan, relPath)
		}
		return failed(relPath, "set attributes", err)
	}

	o.summary.Bytes += written
	return committed(relPath, src)
}

// copySymlink re-creates a link verbatim. Links are never followed.
func (o *Orchestrator) copySymlink(plan transferPlan, relPath string, src FileRecord, existed bool) Outcome {
	target, err := plan.src.Readlink(relPath)
	if err != nil {
		return failed(relPath, "read link", err)
	}

	if existed {
		if err := plan.dst.Remove(relPath); err != nil {
			return failed(relPath, "replace link", err)
		}
	}
	if err := plan.dst.Symlink(target, relPath); err != nil {
		return failed(relPath, "create link", err)
	}

	o.emit(Event{Type: EventSymlinkCreated, Path: relPath, Side: plan.dstSide, Target: target})
	return committed(relPath, src)
}

// restoreAttributes sets the destination mtime (atime too) and, when known,
// the permission bits of the source.
func (o *Orchestrator) restoreAttributes(plan transferPlan, relPath string, src FileRecord) error {
	if err := plan.dst.Chtimes(relPath, time.Unix(src.Mtime, 0)); err != nil {
		return err
	}
	if src.Mode == ModeUnknown {
		return nil
	}
	return plan.dst.Chmod(relPath, provider.PermBits(src.Mode))
}

// discard removes a file on the destination, ignoring failures.
func (o *Orchestrator) discard(plan transferPlan, relPath string) {
	if err := plan.dst.Remove(relPath); err != nil && !provider.IsNotExist(err) {
		slog.Debug("sync", "op", "cleanup", "path", DisplayPath(relPath), "error", err)
	}
}
