package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/sftpsync/internal/provider"
)

const (
	reasonUnchanged     = "unchanged"
	reasonAlreadySynced = "already synchronized"
	reasonDryRun        = "dry run"
)

// Options tune a pass.
type Options struct {
	// Subdir restricts the pass to one directory below the sync root.
	Subdir string
	// DryRun detects and reports without touching either tree or the store.
	DryRun bool
	// SkipOnError turns conflicts and per-path failures into report lines.
	SkipOnError bool
}

// Summary counts what a pass did.
type Summary struct {
	Direction   Direction
	Transferred int
	Unchanged   int
	Skipped     int
	Conflicts   int
	Failures    int
	Deleted     int
	Recorded    int
	Findings    int
	Bytes       int64
	Aborted     bool
}

// transferPlan fixes which side is read and which is written.
type transferPlan struct {
	src     provider.FS
	dst     provider.FS
	srcSide Side
	dstSide Side
}

// Orchestrator runs the passes of one invocation against a shared revision
// store. It is single use and not safe for concurrent use.
type Orchestrator struct {
	local   provider.FS
	remote  provider.FS
	store   *RevisionStore
	opts    Options
	exclude ExcludeFunc
	confirm Confirmer
	sink    EventSink
	summary *Summary
}

func newOrchestrator(local, remote provider.FS, store *RevisionStore, opts Options, exclude ExcludeFunc, confirm Confirmer, sink EventSink, summary *Summary) *Orchestrator {
	if exclude == nil {
		exclude = func(string) bool { return false }
	}
	if confirm == nil {
		confirm = AutoConfirm(false)
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		local:   local,
		remote:  remote,
		store:   store,
		opts:    opts,
		exclude: exclude,
		confirm: confirm,
		sink:    sink,
		summary: summary,
	}
}

func (o *Orchestrator) downPlan() transferPlan {
	return transferPlan{src: o.remote, dst: o.local, srcSide: SideRemote, dstSide: SideLocal}
}

func (o *Orchestrator) upPlan() transferPlan {
	return transferPlan{src: o.local, dst: o.remote, srcSide: SideLocal, dstSide: SideRemote}
}

func (o *Orchestrator) emit(e Event) {
	e.Direction = o.summary.Direction
	e.DryRun = o.opts.DryRun
	o.sink.Emit(e)
}

func (o *Orchestrator) checkpoint() error {
	if err := o.store.Checkpoint(o.opts.DryRun); err != nil {
		return fmt.Errorf("checkpoint revision file: %w", err)
	}
	return nil
}

// interrupt persists the store and ends the pass.
func (o *Orchestrator) interrupt() error {
	if err := o.checkpoint(); err != nil {
		return errors.Join(ErrInterrupted, err)
	}
	return ErrInterrupted
}

// excluded applies the predicate to relPath and every parent directory, so
// files below an excluded directory stay excluded after the walk is done.
func (o *Orchestrator) excluded(relPath string) bool {
	for p := relPath; p != "." && p != "/" && p != ""; p = path.Dir(p) {
		if o.exclude(p) {
			return true
		}
	}
	return false
}

// linkTargets resolves the link targets of relPath on both sides of plan.
func (o *Orchestrator) linkTargets(plan transferPlan, relPath string) TargetResolver {
	if plan.src == nil || plan.dst == nil {
		return nil
	}
	return func() (string, string, error) {
		dstTarget, err := plan.dst.Readlink(relPath)
		if err != nil {
			return "", "", fmt.Errorf("%s readlink: %w", plan.dstSide, err)
		}
		srcTarget, err := plan.src.Readlink(relPath)
		if err != nil {
			return dstTarget, "", fmt.Errorf("%s readlink: %w", plan.srcSide, err)
		}
		return dstTarget, srcTarget, nil
	}
}

// checkDir makes sure every segment of dir exists on the destination,
// creating missing ones in order. Known directories are cached per pass.
func (o *Orchestrator) checkDir(plan transferPlan, dir string, known mapset.Set[string]) error {
	if dir == "" || known.Contains(dir) {
		return nil
	}

	segments := strings.Split(dir, "/")
	for i := range segments {
		current := strings.Join(segments[:i+1], "/")
		if known.Contains(current) {
			continue
		}

		entry, err := plan.dst.Lstat(current)
		switch {
		case err == nil && !entry.IsDir:
			return fmt.Errorf("%s %s exists and is not a directory", plan.dstSide, current)
		case err == nil:
		case provider.IsNotExist(err):
			if !o.opts.DryRun {
				if err := plan.dst.Mkdir(current); err != nil {
					return err
				}
				slog.Debug("sync", "op", "mkdir", "side", plan.dstSide, "path", current)
			}
			o.emit(Event{Type: EventDirectoryCreated, Path: current, Side: plan.dstSide})
		default:
			return err
		}
		known.Add(current)
	}
	return nil
}

// settle applies a terminal outcome to the store and decides whether the
// pass goes on. The store is only touched here, so a failed or interrupted
// attempt leaves it as it was before the attempt.
func (o *Orchestrator) settle(plan transferPlan, out Outcome) error {
	switch out.Kind {
	case OutcomeCommitted:
		o.summary.Transferred++
		o.store.Set(out.Path, *out.Record)
		o.emit(Event{Type: EventTransferCommitted, Path: out.Path, Side: plan.dstSide, Record: out.Record})
		return o.checkpoint()

	case OutcomeSkipped:
		if out.Record != nil && !o.opts.DryRun {
			o.store.Set(out.Path, *out.Record)
		}
		if out.Reason == reasonUnchanged {
			o.summary.Unchanged++
		} else {
			o.summary.Skipped++
			o.emit(Event{Type: EventTransferSkipped, Path: out.Path, Side: plan.dstSide, Record: out.Record, Reason: out.Reason})
		}
		return o.checkpoint()

	case OutcomeConflicted:
		o.summary.Conflicts++
		o.emit(Event{Type: EventConflictDetected, Path: out.Path, Side: plan.dstSide, Reason: out.Reason, Err: out.Err, Fatal: !o.opts.SkipOnError})
		return o.fail(out)

	case OutcomeFailed:
		o.summary.Failures++
		o.emit(Event{Type: EventTransferFailed, Path: out.Path, Side: plan.dstSide, Reason: out.Reason, Err: out.Err, Fatal: !o.opts.SkipOnError})
		return o.fail(out)

	case OutcomeInterrupted:
		o.emit(Event{Type: EventTransferFailed, Path: out.Path, Side: plan.dstSide, Err: ErrInterrupted, Fatal: true})
		return o.interrupt()
	}
	return fmt.Errorf("unknown outcome %q for %s", out.Kind, out.Path)
}

// fail keeps the previous record of the path either way. Without skipping
// the store is saved and the error ends the pass.
func (o *Orchestrator) fail(out Outcome) error {
	if o.opts.SkipOnError {
		slog.Warn("sync", "op", "skip", "path", DisplayPath(out.Path), "error", out.Err)
		return nil
	}
	if err := o.checkpoint(); err != nil {
		return errors.Join(out.Err, err)
	}
	return out.Err
}
