package domain

import (
	"path/filepath"
	"time"
)

const (
	// MaxPathLen bounds the stored path field; longer harvested paths are truncated
	MaxPathLen = 4096
	// MaxNameLen bounds the stored name field
	MaxNameLen = 255
)

// Record represents one entry in the filesystem namespace
type Record struct {
	// Path is the absolute path identifier, unique within one store
	Path string `json:"path"`

	// Name is the base name component, derived from Path
	Name string `json:"name"`

	// Inode is the filesystem inode number, used for move/rename correlation
	Inode uint64 `json:"inode"`

	// Size in bytes (0 for directories)
	Size int64 `json:"size"`

	// ModTime is the last modification time, seconds resolution
	ModTime time.Time `json:"-"`

	// Mode is the raw type/permission bitfield
	Mode uint32 `json:"mode"`

	// IsDir classifies the mode bits
	IsDir bool `json:"is_dir"`

	// IndexedAt is the time of the last write of this row into the store.
	// Zero until the record has been persisted.
	IndexedAt time.Time `json:"-"`
}

// NewRecord builds a Record for path from raw stat values, applying the
// path/name truncation bounds
func NewRecord(path string, inode uint64, size int64, mtime time.Time, mode uint32, isDir bool) Record {
	name := filepath.Base(path)
	if len(path) > MaxPathLen {
		path = path[:MaxPathLen]
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	if isDir {
		size = 0
	}
	return Record{
		Path:    path,
		Name:    name,
		Inode:   inode,
		Size:    size,
		ModTime: mtime.Truncate(time.Second),
		Mode:    mode,
		IsDir:   isDir,
	}
}
