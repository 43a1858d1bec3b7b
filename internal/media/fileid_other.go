//go:build !unix

package media

import (
	"io/fs"
	"path/filepath"
)

// fileID identifies a directory by its resolved path where device and inode
// numbers are unavailable.
type fileID struct {
	dev, ino uint64
	path     string
}

func identify(path string, _ fs.FileInfo) fileID {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return fileID{path: resolved}
	}
	return fileID{path: path}
}
