package model

import (
	"io/fs"
	"time"
)

// PathEntry is a filesystem path plus the metadata cached when the walker
// discovered it. It is produced by the walker, consumed once by the filter
// and the evaluator, then discarded.
type PathEntry struct {
	// Path is the path of the entry as produced by the walker
	// (the scan root joined with the relative path).
	Path string `json:"path"`

	// Size is the length of the file in bytes. It is zero for directories
	// and for entries whose metadata could not be read.
	Size int64 `json:"size"`

	// Mode holds the file type and permission bits of the entry.
	// For followed symlinks this describes the link target.
	Mode fs.FileMode `json:"mode"`

	// ModTime is the modification time reported by stat.
	ModTime time.Time `json:"mod_time"`
}

// NewPathEntry builds a PathEntry from a path and its fs.FileInfo.
func NewPathEntry(path string, info fs.FileInfo) PathEntry {
	return PathEntry{
		Path:    path,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}
}

// IsDir reports whether the entry is a directory.
func (e PathEntry) IsDir() bool {
	return e.Mode.IsDir()
}

// IsRegular reports whether the entry is a regular file.
func (e PathEntry) IsRegular() bool {
	return e.Mode.IsRegular()
}

// IsSymlink reports whether the entry is a symbolic link that was not followed.
func (e PathEntry) IsSymlink() bool {
	return e.Mode&fs.ModeSymlink != 0
}
