package sync

import (
	"log/slog"
	"time"
)

// EventType names what happened during a pass.
type EventType string

const (
	EventPassStarted       EventType = "pass_started"
	EventPassFinished      EventType = "pass_finished"
	EventDirectorySkipped  EventType = "directory_skipped"
	EventDirectoryCreated  EventType = "directory_created"
	EventFileDiscovered    EventType = "file_discovered"
	EventFileChanged       EventType = "file_changed"
	EventTransferStarted   EventType = "transfer_started"
	EventTransferProgress  EventType = "transfer_progress"
	EventTransferCommitted EventType = "transfer_committed"
	EventTransferSkipped   EventType = "transfer_skipped"
	EventConflictDetected  EventType = "conflict_detected"
	EventTransferFailed    EventType = "transfer_failed"
	EventSymlinkCreated    EventType = "symlink_created"
	EventFileDeleted       EventType = "file_deleted"
	EventDeletionApplied   EventType = "deletion_applied"
	EventDeletionDeclined  EventType = "deletion_declined"
	EventAlreadyDeleted    EventType = "already_deleted"
	EventAuditFinding      EventType = "audit_finding"
)

// Side is one end of a transfer.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Finding classifies a path reported by check and list.
type Finding string

const (
	FindingOnlyRemote    Finding = "only on remote"
	FindingDiffers       Finding = "differs"
	FindingOrphaned      Finding = "orphaned"
	FindingMissingRemote Finding = "missing on remote"
	FindingNew           Finding = "new"
	FindingChanged       Finding = "changed"
)

// Event is emitted by the engine for every observable step. Only the fields
// relevant to Type are set.
type Event struct {
	Type      EventType
	Direction Direction
	Path      string
	// Side is where the event happened: the destination of a transfer, the
	// side a deletion is applied to, the side a directory was created on.
	Side     Side
	Source   string
	Dest     string
	Subdir   string
	DryRun   bool
	Record   *FileRecord
	Previous *FileRecord
	Diff     DiffKind
	Target   string
	Reason   string
	Finding  Finding
	Done     int64
	Total    int64
	Elapsed  time.Duration
	Fatal    bool
	Err      error
	Summary  *Summary
}

// EventSink consumes engine events. Emit is called synchronously from the
// pass and must not block for long.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) {
	f(e)
}

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(e)
		}
	}
}

// NopSink drops events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes every event except progress ticks to slog.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	if e.Type == EventTransferProgress {
		return
	}

	attrs := []any{"event", e.Type}
	if e.Path != "" {
		attrs = append(attrs, "path", DisplayPath(e.Path))
	}
	if e.Side != "" {
		attrs = append(attrs, "side", e.Side)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	if e.Finding != "" {
		attrs = append(attrs, "finding", e.Finding)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}

	switch e.Type {
	case EventConflictDetected, EventTransferFailed:
		slog.Warn("sync", attrs...)
	default:
		slog.Debug("sync", attrs...)
	}
}
