package sync

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/openmined/sftpsync/internal/provider"
)

// Check audits the remote tree against the store without changing
// anything. Stored paths seen on neither side are reported orphaned.
func (o *Orchestrator) Check(ctx context.Context) error {
	if o.remote == nil {
		return ErrNoRemote
	}

	pending := o.store.Items()
	plan := o.downPlan()

	for step, err := range Walk(o.remote, o.opts.Subdir, o.exclude) {
		if err != nil {
			return fmt.Errorf("%s walk: %w", SideRemote, err)
		}
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if step.Skipped {
			o.emit(Event{Type: EventDirectorySkipped, Path: step.Dir, Side: SideRemote})
			continue
		}

		for _, entry := range step.Files {
			relPath := joinRel(step.Dir, entry.Name)
			cur := RecordFromEntry(entry)

			prev, ok := pending[relPath]
			if !ok {
				o.finding(relPath, SideRemote, FindingOnlyRemote, &cur, nil)
				continue
			}
			delete(pending, relPath)

			if Different(prev, cur, entry.IsSymlink, o.linkTargets(plan, relPath)) {
				o.finding(relPath, SideRemote, FindingDiffers, &cur, &prev)
			}
		}
	}

	for _, relPath := range slices.Sorted(maps.Keys(pending)) {
		if !inScope(relPath, o.opts.Subdir) || o.excluded(relPath) {
			continue
		}
		prev := pending[relPath]
		_, err := o.local.Lstat(relPath)
		switch {
		case provider.IsNotExist(err):
			o.finding(relPath, SideLocal, FindingOrphaned, nil, &prev)
		case err != nil:
			return fmt.Errorf("%s stat %s: %w", SideLocal, DisplayPath(relPath), err)
		default:
			o.finding(relPath, SideRemote, FindingMissingRemote, nil, &prev)
		}
	}
	return nil
}

// List audits the local tree against the store. It never needs the remote
// side, so symlinks are compared by their recorded attributes only.
func (o *Orchestrator) List(ctx context.Context) error {
	for step, err := range Walk(o.local, o.opts.Subdir, o.exclude) {
		if err != nil {
			return fmt.Errorf("%s walk: %w", SideLocal, err)
		}
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if step.Skipped {
			o.emit(Event{Type: EventDirectorySkipped, Path: step.Dir, Side: SideLocal})
			continue
		}

		for _, entry := range step.Files {
			relPath := joinRel(step.Dir, entry.Name)
			cur := RecordFromEntry(entry)

			prev, ok := o.store.Get(relPath)
			switch {
			case !ok:
				o.finding(relPath, SideLocal, FindingNew, &cur, nil)
			case Different(prev, cur, entry.IsSymlink, nil):
				o.finding(relPath, SideLocal, FindingChanged, &cur, &prev)
			}
		}
	}
	return nil
}

func (o *Orchestrator) finding(relPath string, side Side, f Finding, cur, prev *FileRecord) {
	o.summary.Findings++
	o.emit(Event{Type: EventAuditFinding, Path: relPath, Side: side, Finding: f, Record: cur, Previous: prev})
}
