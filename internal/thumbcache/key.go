package thumbcache

import (
	"crypto/md5" //nolint:gosec // freedesktop cache names are MD5 by definition
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrRelativePath is returned when a cache key is requested for a path that
// is not absolute.
var ErrRelativePath = errors.New("path is not absolute")

// Key identifies a source in every size class: the MD5 digest of its URI.
type Key [md5.Size]byte

// String returns the 32 lowercase hex characters used as the file name stem.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey parses the hex form produced by String.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != 2*len(k) {
		return k, fmt.Errorf("invalid key %q: want %d hex characters", s, 2*len(k))
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return k, nil
}

const upperHex = "0123456789ABCDEF"

// URI returns the canonical file:// URI of an absolute path. The path is
// cleaned lexically; symlinks are not resolved. Bytes outside the path-safe
// set are percent-encoded with uppercase hex, the same way GLib's
// g_filename_to_uri does, so keys agree with GNOME and other desktops.
func URI(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q", ErrRelativePath, path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))

	var b strings.Builder
	b.Grow(len("file://") + len(clean) + 16)
	b.WriteString("file://")
	for i := 0; i < len(clean); i++ {
		c := clean[i]
		if pathSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0F])
	}
	return b.String(), nil
}

func pathSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!$&'()*+,-./:=@_~", c) >= 0
}

// Derive returns the cache key of an absolute source path.
func Derive(path string) (Key, error) {
	uri, err := URI(path)
	if err != nil {
		return Key{}, err
	}
	return DeriveURI(uri), nil
}

// DeriveURI returns the cache key of an already canonical URI.
func DeriveURI(uri string) Key {
	return md5.Sum([]byte(uri)) //nolint:gosec // MD5 used for cache key generation, not security
}
