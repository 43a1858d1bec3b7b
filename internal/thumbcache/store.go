package thumbcache

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"background-picker/internal/filesystem"
	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"
	"background-picker/internal/metrics"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store reads and writes thumbnails under a single root directory.
// It is safe for concurrent use.
type Store struct {
	root    string
	retry   filesystem.RetryConfig
	encoder png.Encoder
}

// NewStore returns a store rooted at root. Class directories are created on
// first write.
func NewStore(root string) *Store {
	return &Store{
		root:    filepath.Clean(root),
		retry:   filesystem.DefaultRetryConfig(),
		encoder: png.Encoder{CompressionLevel: png.DefaultCompression},
	}
}

// DefaultRoot returns $XDG_CACHE_HOME/thumbnails, falling back to
// ~/.cache/thumbnails.
func DefaultRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate user cache directory: %w", err)
	}
	return filepath.Join(dir, "thumbnails"), nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns where the thumbnail for key in class is stored.
func (s *Store) Path(key Key, class SizeClass) string {
	return filepath.Join(s.root, class.Name, key.String()+".png")
}

// Lookup loads the thumbnail for key in class. Absent, unreadable and
// corrupt files all report false; corruption is logged at debug level.
func (s *Store) Lookup(key Key, class SizeClass) (*Entry, bool) {
	path := s.Path(key, class)

	data, err := filesystem.ReadFileWithRetry(path, s.retry)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Debug("Thumbnail %s unreadable, treating as miss: %v", path, err)
			metrics.ThumbnailCacheLookups.WithLabelValues(class.Name, "corrupt").Inc()
		}
		return nil, false
	}

	e, err := parseEntry(data)
	if err != nil {
		logging.Debug("Thumbnail %s corrupt, treating as miss: %v", path, err)
		metrics.ThumbnailCacheLookups.WithLabelValues(class.Name, "corrupt").Inc()
		return nil, false
	}
	e.Key = key
	e.Class = class
	return e, true
}

func parseEntry(data []byte) (*Entry, error) {
	text, err := readText(data)
	if err != nil {
		return nil, err
	}
	if _, err := decodeConfig(data); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	e, ok := entryFromText(text)
	if !ok {
		return nil, fmt.Errorf("missing %s or %s", KeyURI, KeyMTime)
	}
	e.Data = data
	return &e, nil
}

// IsFresh reports whether entry still depicts src.
func (s *Store) IsFresh(entry *Entry, src mediatypes.SourceImage) bool {
	return IsFresh(entry, src)
}

// IsFresh reports whether entry still depicts src: the recorded URI must be
// src's URI, the recorded mtime must equal src's exactly, and when both sides
// know the size the sizes must match.
func IsFresh(entry *Entry, src mediatypes.SourceImage) bool {
	if entry == nil {
		return false
	}
	uri, err := URI(src.Path)
	if err != nil || uri != entry.URI {
		return false
	}
	if entry.MTime != src.ModTime {
		return false
	}
	if entry.Size >= 0 && src.Size >= 0 && entry.Size != src.Size {
		return false
	}
	return true
}

// Encode renders entry's image as a PNG carrying its metadata.
func (s *Store) Encode(entry *Entry) ([]byte, error) {
	if entry.Image == nil {
		return nil, errors.New("entry has no image")
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := s.encoder.Encode(&buf, entry.Image); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	data, err := insertText(buf.Bytes(), entry.textFields())
	if err != nil {
		return nil, err
	}
	metrics.ThumbnailGenerationDurationDetailed.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	return data, nil
}

// Store persists entry as the thumbnail for key in class, replacing any
// previous file atomically. entry.Data is written as is when set; otherwise
// the image is encoded. Failures are *CacheWriteError.
func (s *Store) Store(key Key, class SizeClass, entry *Entry) error {
	path := s.Path(key, class)

	data := entry.Data
	if len(data) == 0 {
		var err error
		if data, err = s.Encode(entry); err != nil {
			return &CacheWriteError{Path: path, Err: err}
		}
	}

	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return &CacheWriteError{Path: path, Err: err}
	}
	if err := filesystem.WriteFileAtomic(path, data, filePerm); err != nil {
		return &CacheWriteError{Path: path, Err: err}
	}
	metrics.ThumbnailGenerationDurationDetailed.WithLabelValues("store").Observe(time.Since(start).Seconds())
	return nil
}

// Stats counts the thumbnails in a class directory and their total size.
// A class directory that does not exist yet is empty.
func (s *Store) Stats(class SizeClass) (count int, size int64, err error) {
	entries, err := os.ReadDir(filepath.Join(s.root, class.Name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	for _, de := range entries {
		stem, ok := strings.CutSuffix(de.Name(), ".png")
		if de.IsDir() || !ok {
			continue
		}
		if _, err := ParseKey(stem); err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		count++
		size += info.Size()
	}
	return count, size, nil
}
