package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/sftpsync/internal/provider"
)

// reconcileDeletions handles stored paths the source walk did not see: they
// were deleted on the source side since the last pass. Only paths inside
// the subdir scope are considered.
func (o *Orchestrator) reconcileDeletions(ctx context.Context, plan transferPlan, seen mapset.Set[string]) error {
	for _, relPath := range o.store.Keys() {
		if !inScope(relPath, o.opts.Subdir) || seen.Contains(relPath) || o.excluded(relPath) {
			continue
		}
		if ctx.Err() != nil {
			return o.interrupt()
		}

		prev, _ := o.store.Get(relPath)
		o.emit(Event{Type: EventFileDeleted, Path: relPath, Side: plan.srcSide, Previous: &prev})
		if o.opts.DryRun {
			continue
		}

		if err := o.deleteOpposite(ctx, plan, relPath); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) deleteOpposite(ctx context.Context, plan transferPlan, relPath string) error {
	if _, err := plan.dst.Lstat(relPath); err != nil {
		if provider.IsNotExist(err) {
			o.store.Delete(relPath)
			o.emit(Event{Type: EventAlreadyDeleted, Path: relPath, Side: plan.dstSide})
			return o.checkpoint()
		}
		return o.settle(plan, failed(relPath, "stat before delete", err))
	}

	question := fmt.Sprintf("Delete %s on %s?", DisplayPath(relPath), plan.dstSide)
	ok, err := o.confirm.Confirm(ctx, question)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return o.interrupt()
		}
		if cpErr := o.checkpoint(); cpErr != nil {
			return errors.Join(err, cpErr)
		}
		return fmt.Errorf("confirm deletion of %s: %w", DisplayPath(relPath), err)
	}
	if !ok {
		o.emit(Event{Type: EventDeletionDeclined, Path: relPath, Side: plan.dstSide})
		return nil
	}

	if err := plan.dst.Remove(relPath); err != nil {
		if provider.IsNotExist(err) {
			o.store.Delete(relPath)
			o.emit(Event{Type: EventAlreadyDeleted, Path: relPath, Side: plan.dstSide})
			return o.checkpoint()
		}
		return o.settle(plan, failed(relPath, "delete", err))
	}

	slog.Debug("sync", "op", "delete", "side", plan.dstSide, "path", DisplayPath(relPath))
	o.store.Delete(relPath)
	o.summary.Deleted++
	o.emit(Event{Type: EventDeletionApplied, Path: relPath, Side: plan.dstSide})
	return o.checkpoint()
}
