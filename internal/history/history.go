// Package history journals every pass and per-path outcome into SQLite so
// `sftpsync history` can show what happened after the terminal scrolled away.
package history

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/sftpsync/internal/db"
	"github.com/openmined/sftpsync/internal/sync"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS passes (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		source TEXT NOT NULL,
		dest TEXT NOT NULL,
		subdir TEXT NOT NULL DEFAULT '',
		dry_run INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		result TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL REFERENCES passes(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		side TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		size INTEGER,
		mtime INTEGER,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_pass ON outcomes(pass_id)`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_path ON outcomes(path)`,
}

// Entry is one journaled outcome joined with its pass.
type Entry struct {
	PassID     string `db:"pass_id"`
	Direction  string `db:"direction"`
	Path       string `db:"path"`
	Side       string `db:"side"`
	Kind       string `db:"kind"`
	Reason     string `db:"reason"`
	Size       *int64 `db:"size"`
	Mtime      *int64 `db:"mtime"`
	RecordedAt string `db:"recorded_at"`
}

func (e Entry) Time() time.Time {
	t, _ := time.Parse(time.RFC3339, e.RecordedAt)
	return t
}

// Journal is a sync.EventSink writing to SQLite. Write failures are logged
// and never interrupt a pass.
type Journal struct {
	db     *sqlx.DB
	passID string
	now    func() time.Time
}

// Open opens or creates the journal at path (":memory:" for tests).
func Open(path string) (*Journal, error) {
	conn, err := db.Open(db.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Migrate(conn, schema...); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &Journal{db: conn, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// PassID is the id of the pass being journaled, empty between passes.
func (j *Journal) PassID() string {
	return j.passID
}

func (j *Journal) Emit(e sync.Event) {
	var err error
	switch e.Type {
	case sync.EventPassStarted:
		err = j.startPass(e)
	case sync.EventPassFinished:
		err = j.finishPass(e)
	case sync.EventTransferCommitted:
		err = j.record(e, "committed")
	case sync.EventTransferSkipped:
		err = j.record(e, "skipped")
	case sync.EventConflictDetected:
		err = j.record(e, "conflicted")
	case sync.EventTransferFailed:
		err = j.record(e, "failed")
	case sync.EventDeletionApplied:
		err = j.record(e, "deleted")
	case sync.EventAlreadyDeleted:
		err = j.record(e, "forgotten")
	case sync.EventDeletionDeclined:
		err = j.record(e, "kept")
	}
	if err != nil {
		slog.Warn("history", "event", e.Type, "path", e.Path, "error", err)
	}
}

func (j *Journal) startPass(e sync.Event) error {
	j.passID = uuid.NewString()
	_, err := j.db.Exec(
		`INSERT INTO passes (id, direction, source, dest, subdir, dry_run, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.passID, string(e.Direction), e.Source, e.Dest, e.Subdir, e.DryRun, j.timestamp(),
	)
	return err
}

func (j *Journal) finishPass(e sync.Event) error {
	if j.passID == "" {
		return nil
	}
	result := "ok"
	switch {
	case e.Err != nil:
		result = e.Err.Error()
	case e.Summary != nil && e.Summary.Aborted:
		result = "aborted"
	}
	_, err := j.db.Exec(`UPDATE passes SET finished_at = ?, result = ? WHERE id = ?`, j.timestamp(), result, j.passID)
	j.passID = ""
	return err
}

func (j *Journal) record(e sync.Event, kind string) error {
	if j.passID == "" || e.DryRun {
		return nil
	}

	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}

	var size, mtime *int64
	if e.Record != nil {
		s, m := int64(e.Record.Size), e.Record.Mtime
		size, mtime = &s, &m
	}

	_, err := j.db.Exec(
		`INSERT INTO outcomes (pass_id, path, side, kind, reason, size, mtime, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.passID, sync.DisplayPath(e.Path), string(e.Side), kind, reason, size, mtime, j.timestamp(),
	)
	return err
}

func (j *Journal) timestamp() string {
	return j.now().UTC().Format(time.RFC3339)
}

// Recent returns the latest outcomes, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := j.db.Select(&entries, `
		SELECT o.pass_id, p.direction, o.path, o.side, o.kind, o.reason, o.size, o.mtime, o.recorded_at
		FROM outcomes o JOIN passes p ON p.id = o.pass_id
		ORDER BY o.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return entries, nil
}
