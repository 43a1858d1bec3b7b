// Package testutil writes image fixtures for tests.
package testutil

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// webpLossless1x1 is a complete 1x1 lossless WebP file. x/image/webp only
// decodes.
var webpLossless1x1, _ = hex.DecodeString(
	"524946461a000000574542505650384c0d0000002f00000010071011118888fe0700")

// Gradient returns a w x h image whose pixels differ, so resizing is
// observable.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8((x * 255) / max(w, 1)),
				G: uint8((y * 255) / max(h, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// WriteImage encodes a gradient of the given size at path. format is one of
// jpeg, png, gif, bmp, tiff or webp; webp always produces a 1x1 image.
// Parent directories are created.
func WriteImage(t testing.TB, path string, w, h int, format string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}

	if format == "webp" {
		if err := os.WriteFile(path, webpLossless1x1, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		return
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	img := Gradient(w, h)
	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(f, img)
	case "gif":
		err = gif.Encode(f, img, nil)
	case "bmp":
		err = bmp.Encode(f, img)
	case "tiff":
		err = tiff.Encode(f, img, nil)
	default:
		err = fmt.Errorf("unsupported fixture format %q", format)
	}
	if err != nil {
		t.Fatalf("encode fixture %s: %v", path, err)
	}
}

// WriteFile writes raw bytes at path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

// Touch sets a file's modification time.
func Touch(t testing.TB, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// CorruptJPEG returns bytes with a JPEG signature and no decodable image.
func CorruptJPEG() []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, []byte("JFIF\x00 truncated garbage")...)
}
