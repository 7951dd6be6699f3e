package sync

import (
	"fmt"

	"github.com/openmined/sftpsync/internal/provider"
)

// ModeUnknown marks a record whose mode was never captured, e.g. one loaded
// from a three-column revision file.
const ModeUnknown int64 = -1

// modeTypeMask selects the file type and special bits compared by the diff.
const modeTypeMask = 0o777000

// FileRecord is the synchronization unit: two records describe the same
// file state iff all three fields match.
type FileRecord struct {
	Mtime int64
	Size  uint64
	Mode  int64
}

// RecordFromEntry captures the comparable attributes of a directory entry.
func RecordFromEntry(e provider.DirEntry) FileRecord {
	return FileRecord{Mtime: e.Mtime, Size: e.Size, Mode: e.Mode}
}

func (r FileRecord) IsSymlink() bool {
	return provider.IsSymlinkMode(r.Mode)
}

func (r FileRecord) String() string {
	return fmt.Sprintf("mtime=%d size=%d mode=%o", r.Mtime, r.Size, r.Mode)
}
