package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/openmined/sftpsync/internal/provider"
	"github.com/openmined/sftpsync/internal/sync"
)

const (
	defaultWidth = 80
	mtimeLayout  = "2006-01-02 15:04:05"
	labelWidth   = 10
)

// presenter renders engine events as one status line each. On a terminal
// transfer progress redraws a single line in place.
type presenter struct {
	out      io.Writer
	width    int
	live     bool
	pending  bool
	lastDone int64
	lastTime time.Duration
}

func newPresenter(out io.Writer, width int, live bool) *presenter {
	if width <= 0 {
		width = defaultWidth
	}
	return &presenter{out: out, width: width, live: live}
}

func (p *presenter) Emit(e sync.Event) {
	if e.Type == sync.EventTransferProgress {
		p.progress(e)
		return
	}
	p.clearLive()

	switch e.Type {
	case sync.EventPassStarted:
		line := fmt.Sprintf("%s %s %s %s", cyan.Bold(true).Render(string(e.Direction)), e.Source, gray.Render("->"), e.Dest)
		if e.Subdir != "" {
			line += gray.Render(" in " + e.Subdir)
		}
		if e.DryRun {
			line += yellow.Render(" (dry run)")
		}
		p.println(line)
	case sync.EventPassFinished:
		p.finished(e)
	case sync.EventDirectoryCreated:
		p.status(green, "mkdir", e.Path+"/", string(e.Side))
	case sync.EventDirectorySkipped:
		p.status(gray, "skip dir", e.Path+"/", e.Reason)
	case sync.EventFileDiscovered:
		p.status(cyan, "new", e.Path, recordInfo(e.Record))
	case sync.EventFileChanged:
		p.status(cyan, "changed", e.Path, changeInfo(e))
	case sync.EventTransferStarted:
		p.lastDone, p.lastTime = 0, 0
	case sync.EventTransferCommitted:
		p.status(green, "copied", e.Path, p.transferInfo(e))
	case sync.EventTransferSkipped:
		p.status(gray, "skipped", e.Path, e.Reason)
	case sync.EventSymlinkCreated:
		p.status(green, "linked", e.Path, "-> "+e.Target)
	case sync.EventConflictDetected:
		p.status(red.Bold(true), "conflict", e.Path, e.Reason)
	case sync.EventTransferFailed:
		detail := e.Reason
		if e.Err != nil {
			detail = e.Err.Error()
		}
		p.status(red, "failed", e.Path, detail)
	case sync.EventFileDeleted:
		p.status(yellow, "deleted", e.Path, "on "+string(e.Side))
	case sync.EventDeletionApplied:
		p.status(yellow, "removed", e.Path, "from "+string(e.Side))
	case sync.EventDeletionDeclined:
		p.status(gray, "kept", e.Path, "on "+string(e.Side))
	case sync.EventAlreadyDeleted:
		p.status(gray, "gone", e.Path, "already deleted on "+string(e.Side))
	case sync.EventAuditFinding:
		style := yellow
		if e.Finding == sync.FindingNew || e.Finding == sync.FindingOnlyRemote {
			style = cyan
		}
		p.status(style, string(e.Finding), e.Path, "")
	}
}

func (p *presenter) status(style lipgloss.Style, label, path, detail string) {
	label = fmt.Sprintf("%-*s", labelWidth, label)
	room := p.width - labelWidth - 1
	if detail != "" {
		room -= len(detail) + 2
	}
	line := style.Render(label) + " " + shortenPath(sync.DisplayPath(path), max(room, 16))
	if detail != "" {
		line += "  " + lightGray.Render(detail)
	}
	p.println(line)
}

func (p *presenter) progress(e sync.Event) {
	p.lastDone, p.lastTime = e.Done, e.Elapsed
	if !p.live {
		return
	}

	pct := 100
	if e.Total > 0 {
		pct = int(e.Done * 100 / e.Total)
	}
	detail := fmt.Sprintf("%3d%% %s/%s %s/s", pct,
		humanize.Bytes(uint64(e.Done)), humanize.Bytes(uint64(e.Total)),
		humanize.Bytes(uint64(sync.Rate(e.Done, e.Elapsed))))
	room := p.width - len(detail) - 2
	fmt.Fprintf(p.out, "\r\033[K%s  %s", shortenPath(sync.DisplayPath(e.Path), max(room, 16)), gray.Render(detail))
	p.pending = true
}

func (p *presenter) clearLive() {
	if p.pending {
		fmt.Fprint(p.out, "\r\033[K")
		p.pending = false
	}
}

func (p *presenter) transferInfo(e sync.Event) string {
	if e.Record == nil {
		return ""
	}
	info := humanize.Bytes(e.Record.Size)
	if p.lastTime > 0 {
		info += ", " + humanize.Bytes(uint64(sync.Rate(p.lastDone, p.lastTime))) + "/s"
	}
	return info
}

func (p *presenter) finished(e sync.Event) {
	s := e.Summary
	if s == nil {
		return
	}
	if s.Aborted {
		p.println(yellow.Render("aborted") + gray.Render(", nothing changed"))
		return
	}

	var parts []string
	switch s.Direction {
	case sync.DirectionCheck, sync.DirectionList:
		parts = append(parts, english.Plural(s.Findings, "finding", ""))
	case sync.DirectionInit:
		parts = append(parts, english.Plural(s.Recorded, "file", "")+" recorded")
	default:
		parts = append(parts,
			fmt.Sprintf("%d transferred (%s)", s.Transferred, humanize.Bytes(uint64(s.Bytes))),
			fmt.Sprintf("%d unchanged", s.Unchanged),
		)
		if s.Skipped > 0 {
			parts = append(parts, fmt.Sprintf("%d skipped", s.Skipped))
		}
		if s.Deleted > 0 {
			parts = append(parts, fmt.Sprintf("%d deleted", s.Deleted))
		}
		if s.Conflicts > 0 {
			parts = append(parts, red.Render(english.Plural(s.Conflicts, "conflict", "")))
		}
		if s.Failures > 0 {
			parts = append(parts, red.Render(fmt.Sprintf("%d failed", s.Failures)))
		}
	}

	head := green.Render("done")
	if e.Err != nil {
		head = red.Render("stopped")
	}
	p.println(head + " " + strings.Join(parts, ", "))
}

func (p *presenter) println(line string) {
	fmt.Fprintln(p.out, line)
}

// recordInfo is `12 kB, -rw-r--r--, 2025-01-02 03:04:05`.
func recordInfo(r *sync.FileRecord) string {
	if r == nil {
		return ""
	}
	parts := []string{humanize.Bytes(r.Size)}
	switch {
	case r.IsSymlink():
		parts = append(parts, "symlink")
	case r.Mode != sync.ModeUnknown:
		parts = append(parts, provider.PermBits(r.Mode).String())
	}
	parts = append(parts, time.Unix(r.Mtime, 0).Format(mtimeLayout))
	return strings.Join(parts, ", ")
}

func changeInfo(e sync.Event) string {
	switch e.Diff {
	case sync.DiffTarget:
		return "link target -> " + e.Target
	case sync.DiffMode:
		return "file type"
	}
	if e.Previous == nil || e.Record == nil {
		return string(e.Diff)
	}
	return fmt.Sprintf("%s vs %s", humanize.Bytes(e.Record.Size), humanize.Bytes(e.Previous.Size))
}
