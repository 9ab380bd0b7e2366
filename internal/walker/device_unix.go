//go:build unix

package walker

import (
	"golang.org/x/sys/unix"
)

// fileID identifies a file system object.
type fileID struct {
	dev uint64
	ino uint64
}

// lookupID returns the device and inode of path. With follow set, symlinks
// are resolved first.
func lookupID(path string, follow bool) (fileID, bool) {
	var st unix.Stat_t
	var err error
	if follow {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return fileID{}, false
	}
	return fileID{
		dev: uint64(st.Dev), //nolint:gosec,unconvert // Dev is int32 on darwin
		ino: st.Ino,
	}, true
}
