package sync

import "log/slog"

// DiffKind names the rule that found two records different.
type DiffKind string

const (
	DiffNone    DiffKind = ""
	DiffMode    DiffKind = "mode"
	DiffTarget  DiffKind = "target"
	DiffContent DiffKind = "content"
)

// TargetResolver reads the link targets of a symlink on the destination and
// the source side.
type TargetResolver func() (dstTarget, srcTarget string, err error)

// Difference explains the outcome of a comparison.
type Difference struct {
	Kind      DiffKind
	Previous  FileRecord
	Current   FileRecord
	DstTarget string
	SrcTarget string
}

// Diff compares the last synchronized record with the current one. Rules
// apply in order:
//
//  1. file type bits changed (previous mode known)
//  2. symlink: link targets differ
//  3. mtime differs, or equal mtime with a different size
//
// Mode and link changes are checked first because they can happen without
// touching the mtime. A nil resolver skips rule 2.
func Diff(prev, cur FileRecord, isSymlink bool, targets TargetResolver) Difference {
	d := Difference{Previous: prev, Current: cur}

	if prev.Mode != ModeUnknown && prev.Mode&modeTypeMask != cur.Mode&modeTypeMask {
		d.Kind = DiffMode
		return d
	}

	if isSymlink && targets != nil {
		dstTarget, srcTarget, err := targets()
		d.DstTarget, d.SrcTarget = dstTarget, srcTarget
		if err != nil {
			slog.Debug("resolve link targets", "error", err)
			d.Kind = DiffTarget
		} else if dstTarget != srcTarget {
			d.Kind = DiffTarget
		}
		return d
	}

	if prev.Mtime != cur.Mtime || prev.Size != cur.Size {
		d.Kind = DiffContent
	}
	return d
}

// Different reports whether a transfer is warranted.
func Different(prev, cur FileRecord, isSymlink bool, targets TargetResolver) bool {
	return Diff(prev, cur, isSymlink, targets).Kind != DiffNone
}
