package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openmined/sftpsync/internal/provider"
)

// Direction is the kind of pass requested.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionBoth  Direction = "both"
	DirectionInit  Direction = "init"
	DirectionCheck Direction = "check"
	DirectionList  Direction = "list"
)

var Directions = []Direction{DirectionUp, DirectionDown, DirectionBoth, DirectionInit, DirectionCheck, DirectionList}

var ErrUnknownDirection = errors.New("unknown direction")

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Directions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownDirection, s)
}

// Mutating reports whether the direction changes trees or the store and so
// needs the operator's confirmation.
func (d Direction) Mutating() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionBoth, DirectionInit:
		return true
	}
	return false
}

// NeedsRemote reports whether the direction talks to the remote side.
func (d Direction) NeedsRemote() bool {
	return d != DirectionList
}

// EngineConfig wires a SyncEngine. Remote may be nil for list.
type EngineConfig struct {
	Local        provider.FS
	Remote       provider.FS
	RevisionFile string
	Options      Options
	Exclude      ExcludeFunc
	Confirm      Confirmer
	Sink         EventSink
}

// SyncEngine loads the revision store, confirms and dispatches one pass.
type SyncEngine struct {
	local        provider.FS
	remote       provider.FS
	revisionFile string
	opts         Options
	exclude      ExcludeFunc
	confirm      Confirmer
	sink         EventSink
}

func NewSyncEngine(cfg EngineConfig) (*SyncEngine, error) {
	if cfg.Local == nil {
		return nil, errors.New("local provider is required")
	}
	if cfg.RevisionFile == "" {
		return nil, errors.New("revision file path is required")
	}

	confirm := cfg.Confirm
	if confirm == nil {
		confirm = AutoConfirm(false)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}

	return &SyncEngine{
		local:        cfg.Local,
		remote:       cfg.Remote,
		revisionFile: cfg.RevisionFile,
		opts:         normalizeOptions(cfg.Options),
		exclude:      cfg.Exclude,
		confirm:      confirm,
		sink:         sink,
	}, nil
}

func normalizeOptions(opts Options) Options {
	opts.Subdir = strings.Trim(strings.ReplaceAll(opts.Subdir, "\\", "/"), "/")
	if opts.Subdir == "." {
		opts.Subdir = ""
	}
	return opts
}

// Run executes one pass. A declined confirmation returns a summary marked
// Aborted and no error.
func (e *SyncEngine) Run(ctx context.Context, dir Direction) (*Summary, error) {
	summary := &Summary{Direction: dir}

	if dir.NeedsRemote() && e.remote == nil {
		return summary, ErrNoRemote
	}

	store, err := LoadRevisionStore(e.revisionFile)
	if err != nil {
		return summary, err
	}

	o := newOrchestrator(e.local, e.remote, store, e.opts, e.exclude, e.confirm, e.sink, summary)

	source, dest := e.endpoints(dir)
	o.emit(Event{Type: EventPassStarted, Source: source, Dest: dest, Subdir: e.opts.Subdir})
	slog.Info("sync", "op", "start", "direction", dir, "source", source, "dest", dest, "subdir", e.opts.Subdir, "dryRun", e.opts.DryRun)

	if dir.Mutating() {
		ok, err := e.confirm.Confirm(ctx, "Continue?")
		if err != nil {
			return e.finish(o, fmt.Errorf("confirm: %w", err))
		}
		if !ok {
			summary.Aborted = true
			return e.finish(o, nil)
		}
	}

	if dir == DirectionInit && store.Len() > 0 {
		ok, err := e.confirm.Confirm(ctx, fmt.Sprintf("Overwrite existing revision file %s?", store.Path()))
		if err != nil {
			return e.finish(o, fmt.Errorf("confirm: %w", err))
		}
		if !ok {
			summary.Aborted = true
			return e.finish(o, nil)
		}
	}

	var runErr error
	switch dir {
	case DirectionDown:
		runErr = o.Down(ctx)
	case DirectionUp:
		runErr = o.Up(ctx)
	case DirectionBoth:
		runErr = o.Both(ctx)
	case DirectionInit:
		runErr = o.Init(ctx)
	case DirectionCheck:
		runErr = o.Check(ctx)
	case DirectionList:
		runErr = o.List(ctx)
	default:
		runErr = fmt.Errorf("%w %q", ErrUnknownDirection, dir)
	}

	return e.finish(o, runErr)
}

func (e *SyncEngine) finish(o *Orchestrator, err error) (*Summary, error) {
	o.emit(Event{Type: EventPassFinished, Summary: o.summary, Err: err})
	if err != nil {
		slog.Error("sync", "op", "finish", "direction", o.summary.Direction, "error", err)
	} else {
		slog.Info("sync", "op", "finish", "direction", o.summary.Direction,
			"transferred", o.summary.Transferred,
			"conflicts", o.summary.Conflicts,
			"failures", o.summary.Failures,
			"deleted", o.summary.Deleted,
			"aborted", o.summary.Aborted,
		)
	}
	return o.summary, err
}

func (e *SyncEngine) endpoints(dir Direction) (source, dest string) {
	local := e.local.Root()
	remote := ""
	if e.remote != nil {
		remote = e.remote.Root()
	}

	switch dir {
	case DirectionUp:
		return local, remote
	case DirectionList:
		return local, e.revisionFile
	}
	return remote, local
}
