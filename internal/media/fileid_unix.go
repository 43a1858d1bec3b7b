//go:build unix

package media

import (
	"io/fs"
	"syscall"
)

// fileID identifies a directory by device and inode so that symlink cycles
// are walked once.
type fileID struct {
	dev, ino uint64
	path     string
}

func identify(path string, info fs.FileInfo) fileID {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)} //nolint:unconvert // Dev is not uint64 on every platform
	}
	return fileID{path: path}
}
