package mediatypes

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies a supported raster image format.
type Format string

const (
	// FormatJPEG is JPEG/JFIF.
	FormatJPEG Format = "jpeg"
	// FormatPNG is Portable Network Graphics.
	FormatPNG Format = "png"
	// FormatGIF is the Graphics Interchange Format (first frame only).
	FormatGIF Format = "gif"
	// FormatBMP is Windows bitmap.
	FormatBMP Format = "bmp"
	// FormatWebP is WebP (lossy and lossless).
	FormatWebP Format = "webp"
	// FormatTIFF is baseline TIFF.
	FormatTIFF Format = "tiff"
	// FormatUnknown is returned when a file matches no supported format.
	FormatUnknown Format = "unknown"
)

// Formats lists every supported format.
var Formats = []Format{FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatWebP, FormatTIFF}

// ImageExtensions maps lowercase file extensions to the format they announce.
var ImageExtensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".webp": FormatWebP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

// MimeTypes maps formats to their MIME types.
var MimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatWebP: "image/webp",
	FormatTIFF: "image/tiff",
}

// SourceImage is an image file discovered under the scan root.
type SourceImage struct {
	// Path is absolute and cleaned. Symlink components are kept as walked.
	Path string `json:"path"`
	// RelPath is Path relative to the scan root.
	RelPath string `json:"relPath"`
	// ModTime is the modification time in whole seconds since the epoch.
	ModTime int64 `json:"modTime"`
	// Size is the file size in bytes, or -1 when unknown.
	Size   int64  `json:"size"`
	Format Format `json:"format"`
}

// ModTimeSeconds truncates a modification time to the precision stored in
// thumbnail metadata.
func ModTimeSeconds(t time.Time) int64 {
	return t.Unix()
}

// FormatFromExtension returns the format announced by a file name's extension,
// compared case-insensitively. Returns FormatUnknown if it is not an image.
func FormatFromExtension(name string) Format {
	if f, ok := ImageExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return f
	}
	return FormatUnknown
}

// IsImageFile reports whether a file name has a supported image extension.
func IsImageFile(name string) bool {
	return FormatFromExtension(name) != FormatUnknown
}

// GetMimeType returns the MIME type for a format, or
// "application/octet-stream" if the format is not recognized.
func GetMimeType(f Format) string {
	if mime, ok := MimeTypes[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

// SniffLen is the number of leading bytes Sniff needs to identify any format.
const SniffLen = 12

// Sniff identifies a format from the first bytes of a file.
func Sniff(header []byte) Format {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return FormatJPEG

	case len(header) >= 8 && bytes.Equal(header[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG

	case len(header) >= 6 && (bytes.Equal(header[:6], []byte("GIF87a")) || bytes.Equal(header[:6], []byte("GIF89a"))):
		return FormatGIF

	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return FormatWebP

	case len(header) >= 2 && header[0] == 'B' && header[1] == 'M':
		return FormatBMP

	case len(header) >= 4 && (bytes.Equal(header[:4], []byte("II*\x00")) || bytes.Equal(header[:4], []byte("MM\x00*"))):
		return FormatTIFF
	}

	return FormatUnknown
}
