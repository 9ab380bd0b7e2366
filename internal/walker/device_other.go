//go:build !unix

package walker

// fileID identifies a file system object.
type fileID struct {
	dev uint64
	ino uint64
}

// lookupID is unsupported on this platform; one-file-system and cycle
// detection are disabled.
func lookupID(string, bool) (fileID, bool) {
	return fileID{}, false
}
