package media

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// DefaultMaxImagePixels is the largest source, in pixels, decoded by
// default. A 50MP image would be ~200MB in RGBA.
const DefaultMaxImagePixels = 100_000_000

// codec decodes one format. Dispatch is by sniffed content, never by the
// extension, and no other codec is tried when one fails.
type codec struct {
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

var codecs = map[mediatypes.Format]codec{
	mediatypes.FormatJPEG: {
		// imaging applies the EXIF orientation tag.
		decode: func(r io.Reader) (image.Image, error) {
			return imaging.Decode(r, imaging.AutoOrientation(true))
		},
		config: jpeg.DecodeConfig,
	},
	mediatypes.FormatPNG:  {decode: png.Decode, config: png.DecodeConfig},
	mediatypes.FormatGIF:  {decode: gif.Decode, config: gif.DecodeConfig},
	mediatypes.FormatBMP:  {decode: bmp.Decode, config: bmp.DecodeConfig},
	mediatypes.FormatWebP: {decode: webp.Decode, config: webp.DecodeConfig},
	mediatypes.FormatTIFF: {decode: tiff.Decode, config: tiff.DecodeConfig},
}

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
	Format mediatypes.Format
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	format, err := sniff(file)
	if err != nil {
		return nil, err
	}
	c, ok := codecs[format]
	if !ok {
		return nil, ErrUnsupportedFormat
	}

	config, err := safeConfig(c.config, file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
		Format: format,
	}, nil
}

// sniff identifies the format from the leading bytes of r and rewinds it.
func sniff(r io.ReadSeeker) (mediatypes.Format, error) {
	header := make([]byte, mediatypes.SniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return mediatypes.FormatUnknown, fmt.Errorf("read header: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return mediatypes.FormatUnknown, fmt.Errorf("rewind: %w", err)
	}
	return mediatypes.Sniff(header[:n]), nil
}

// safeDecode runs a decoder, converting a panic on malformed input into an
// error.
func safeDecode(decode func(io.Reader) (image.Image, error), r io.Reader) (img image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			img = nil
			err = fmt.Errorf("%w: %v", ErrCodecPanic, p)
		}
	}()
	return decode(r)
}

func safeConfig(config func(io.Reader) (image.Config, error), r io.Reader) (cfg image.Config, err error) {
	defer func() {
		if p := recover(); p != nil {
			cfg = image.Config{}
			err = fmt.Errorf("%w: %v", ErrCodecPanic, p)
		}
	}()
	return config(r)
}

const (
	// Sources more than this many times larger than the bound are first
	// shrunk with a cheap filter.
	intermediateSizeMultiplier = 4
)

// fitWithin shrinks img to fit a bound x bound square, keeping the aspect
// ratio. Images already within the bound are returned unchanged.
func fitWithin(img image.Image, bound int) image.Image {
	b := img.Bounds()
	if b.Dx() <= bound && b.Dy() <= bound {
		return img
	}

	limit := bound * intermediateSizeMultiplier
	if b.Dx() > limit || b.Dy() > limit {
		img = imaging.Fit(img, limit, limit, imaging.Box)
	}
	return imaging.Fit(img, bound, bound, imaging.Lanczos)
}
