package sync

import "github.com/openmined/sftpsync/internal/provider"

// Verdict is the conflict detector's decision for one destination.
type Verdict int

const (
	// VerdictProceed: safe to overwrite the destination.
	VerdictProceed Verdict = iota
	// VerdictInSync: destination already holds the source state.
	VerdictInSync
	// VerdictConflict: destination changed independently since the last sync.
	VerdictConflict
)

const (
	reasonDestinationNewer = "destination is newer"
	reasonBothModified     = "both sides modified"
	reasonSizeDiffers      = "size differs at equal mtime"
	reasonTypeDiffers      = "destination has a different file type"
)

// ConflictCheck is the verdict plus a reason for conflicts.
type ConflictCheck struct {
	Verdict Verdict
	Reason  string
}

// CheckDestination compares the live destination entry against the source
// record about to be copied and the last synchronized record, if any. The
// same rule serves both directions. A destination equal to the stored record
// is untouched and may be overwritten.
func CheckDestination(dst provider.DirEntry, src FileRecord, prev *FileRecord, targets TargetResolver) ConflictCheck {
	if dst.IsDir {
		return ConflictCheck{Verdict: VerdictConflict, Reason: reasonTypeDiffers}
	}

	if src.IsSymlink() || dst.IsSymlink {
		return checkSymlinkDestination(dst, src, targets)
	}

	switch {
	case dst.Mtime == src.Mtime && dst.Size == src.Size:
		return ConflictCheck{Verdict: VerdictInSync}
	case prev != nil && dst.Mtime == prev.Mtime && dst.Size == prev.Size:
		// untouched since the last pass, even when the source went back in time
		return ConflictCheck{Verdict: VerdictProceed}
	case dst.Mtime > src.Mtime:
		return ConflictCheck{Verdict: VerdictConflict, Reason: reasonDestinationNewer}
	case prev != nil && dst.Mtime != prev.Mtime && dst.Mtime != src.Mtime:
		return ConflictCheck{Verdict: VerdictConflict, Reason: reasonBothModified}
	case dst.Mtime == src.Mtime && dst.Size != src.Size:
		return ConflictCheck{Verdict: VerdictConflict, Reason: reasonSizeDiffers}
	}
	return ConflictCheck{Verdict: VerdictProceed}
}

// checkSymlinkDestination: links are compared by target, never by mtime,
// because a re-created link always carries a fresh timestamp.
func checkSymlinkDestination(dst provider.DirEntry, src FileRecord, targets TargetResolver) ConflictCheck {
	if src.IsSymlink() != dst.IsSymlink {
		return ConflictCheck{Verdict: VerdictConflict, Reason: reasonTypeDiffers}
	}
	if targets == nil {
		return ConflictCheck{Verdict: VerdictProceed}
	}

	dstTarget, srcTarget, err := targets()
	if err == nil && dstTarget == srcTarget {
		return ConflictCheck{Verdict: VerdictInSync}
	}
	return ConflictCheck{Verdict: VerdictProceed}
}
