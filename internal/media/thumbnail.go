package media

import (
	"context"
	"fmt"
	"image"
	"time"

	"background-picker/internal/filesystem"
	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"
	"background-picker/internal/metrics"
)

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// MaxImagePixels rejects larger sources. 0 means DefaultMaxImagePixels.
	MaxImagePixels int
	// UseVips shrinks large sources with libvips when it is initialized.
	UseVips bool
	Retry   filesystem.RetryConfig
}

// Rendered is a thumbnail raster and the source it was made from.
type Rendered struct {
	Image image.Image
	// Source carries the modification time and size observed on the open
	// file, before decoding began.
	Source mediatypes.SourceImage
	// Width and Height are the source dimensions.
	Width  int
	Height int
}

// Renderer decodes source images and shrinks them. It holds no mutable
// state and is safe for concurrent use.
type Renderer struct {
	opts RendererOptions
}

// NewRenderer creates a renderer.
func NewRenderer(opts RendererOptions) *Renderer {
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = DefaultMaxImagePixels
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = filesystem.DefaultRetryConfig()
	}
	return &Renderer{opts: opts}
}

// Render produces a thumbnail of the image at path fitting a bound x bound
// square. Every failure is a *DecodeError.
func (r *Renderer) Render(ctx context.Context, path string, bound int) (*Rendered, error) {
	out, format, err := r.render(ctx, path, bound)
	if err != nil {
		return nil, &DecodeError{Path: path, Format: format, Err: err}
	}
	return out, nil
}

func (r *Renderer) render(ctx context.Context, path string, bound int) (*Rendered, mediatypes.Format, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if bound <= 0 {
		return nil, "", fmt.Errorf("invalid bound %d", bound)
	}

	f, err := filesystem.OpenWithRetry(path, r.opts.Retry)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, "", err
	}
	if !info.Mode().IsRegular() {
		return nil, "", ErrNotRegularFile
	}
	if info.Size() == 0 {
		return nil, "", ErrEmptyFile
	}

	src := mediatypes.SourceImage{
		Path:    path,
		ModTime: mediatypes.ModTimeSeconds(info.ModTime()),
		Size:    info.Size(),
	}

	format, err := sniff(f)
	if err != nil {
		return nil, "", err
	}
	src.Format = format
	metrics.ThumbnailImageDecodeByFormat.WithLabelValues(string(format)).Inc()

	c, ok := codecs[format]
	if !ok {
		return nil, format, ErrUnsupportedFormat
	}

	cfg, err := safeConfig(c.config, f)
	if err != nil {
		return nil, format, fmt.Errorf("read header: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, format, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(r.opts.MaxImagePixels) {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	large := cfg.Width > bound || cfg.Height > bound
	if r.opts.UseVips && large && IsVipsAvailable() {
		start := time.Now()
		img, err := LoadImageWithVips(path, bound)
		if err != nil {
			return nil, format, err
		}
		metrics.ThumbnailGenerationDurationDetailed.WithLabelValues("decode").Observe(time.Since(start).Seconds())
		return &Rendered{Image: img, Source: src, Width: cfg.Width, Height: cfg.Height}, format, nil
	}

	start := time.Now()
	img, err := safeDecode(c.decode, f)
	if err != nil {
		return nil, format, err
	}
	if img == nil {
		return nil, format, fmt.Errorf("decoder returned no image")
	}
	metrics.ThumbnailGenerationDurationDetailed.WithLabelValues("decode").Observe(time.Since(start).Seconds())

	// Orientation may have swapped the axes.
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	if err := ctx.Err(); err != nil {
		return nil, format, err
	}

	start = time.Now()
	thumb := fitWithin(img, bound)
	metrics.ThumbnailGenerationDurationDetailed.WithLabelValues("resize").Observe(time.Since(start).Seconds())

	logging.Debug("Rendered %s (%s %dx%d) to %dx%d", path, format, width, height,
		thumb.Bounds().Dx(), thumb.Bounds().Dy())

	return &Rendered{Image: thumb, Source: src, Width: width, Height: height}, format, nil
}
