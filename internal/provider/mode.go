package provider

import "io/fs"

// POSIX st_mode file type bits.
const (
	ModeTypeMask = 0o170000
	ModeSocket   = 0o140000
	ModeSymlink  = 0o120000
	ModeRegular  = 0o100000
	ModeBlock    = 0o060000
	ModeDir      = 0o040000
	ModeChar     = 0o020000
	ModeFifo     = 0o010000
)

// PosixMode converts a Go file mode into the st_mode integer stored in the
// revision file, so records written by either provider compare equal.
func PosixMode(m fs.FileMode) int64 {
	bits := int64(m.Perm())
	if m&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		bits |= 0o1000
	}

	switch {
	case m.IsDir():
		bits |= ModeDir
	case m&fs.ModeSymlink != 0:
		bits |= ModeSymlink
	case m&fs.ModeNamedPipe != 0:
		bits |= ModeFifo
	case m&fs.ModeSocket != 0:
		bits |= ModeSocket
	case m&fs.ModeCharDevice != 0:
		bits |= ModeChar
	case m&fs.ModeDevice != 0:
		bits |= ModeBlock
	default:
		bits |= ModeRegular
	}
	return bits
}

// IsSymlinkMode reports whether POSIX mode bits describe a symbolic link.
func IsSymlinkMode(mode int64) bool {
	return mode >= 0 && mode&ModeTypeMask == ModeSymlink
}

// PermBits extracts the permission, setuid, setgid and sticky bits.
func PermBits(mode int64) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}
