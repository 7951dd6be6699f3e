package sync

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Down mirrors remote changes into the local tree, then reconciles paths
// deleted on the remote side.
func (o *Orchestrator) Down(ctx context.Context) error {
	if o.remote == nil {
		return ErrNoRemote
	}
	return o.syncTree(ctx, o.downPlan())
}

// syncTree is one directional pass: walk the source, transfer what is new or
// different, then reconcile deletions on the destination.
func (o *Orchestrator) syncTree(ctx context.Context, plan transferPlan) error {
	seen := mapset.NewThreadUnsafeSet[string]()
	knownDirs := mapset.NewThreadUnsafeSet[string]()

	for step, err := range Walk(plan.src, o.opts.Subdir, o.exclude) {
		if err != nil {
			if cpErr := o.checkpoint(); cpErr != nil {
				return fmt.Errorf("%s walk: %w (%w)", plan.srcSide, err, cpErr)
			}
			return fmt.Errorf("%s walk: %w", plan.srcSide, err)
		}
		if ctx.Err() != nil {
			return o.interrupt()
		}

		if step.Skipped {
			o.emit(Event{Type: EventDirectorySkipped, Path: step.Dir, Side: plan.srcSide})
			continue
		}

		if err := o.checkDir(plan, step.Dir, knownDirs); err != nil {
			if err := o.settle(plan, failed(step.Dir, "create directory", err)); err != nil {
				return err
			}
			// files below a missing directory fail one by one
		}

		for _, entry := range step.Files {
			relPath := joinRel(step.Dir, entry.Name)
			seen.Add(relPath)

			outcome := o.syncFile(ctx, plan, relPath, entry)
			if err := o.settle(plan, outcome); err != nil {
				return err
			}
		}
	}

	return o.reconcileDeletions(ctx, plan, seen)
}
