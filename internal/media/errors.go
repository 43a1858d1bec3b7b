package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"background-picker/internal/mediatypes"
)

var (
	// ErrUnsupportedFormat means the file content matches no supported format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyFile means the source has zero bytes.
	ErrEmptyFile = errors.New("empty file")
	// ErrNotRegularFile means the source is a directory, device or similar.
	ErrNotRegularFile = errors.New("not a regular file")
	// ErrImageTooLarge means the source exceeds the configured pixel limit.
	ErrImageTooLarge = errors.New("image exceeds pixel limit")
	// ErrCodecPanic means a decoder panicked on malformed input.
	ErrCodecPanic = errors.New("decoder panic")
)

// ScanError reports a directory the scanner could not read.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// DecodeError reports a source that could not be rendered.
type DecodeError struct {
	Path   string
	Format mediatypes.Format
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" || e.Format == mediatypes.FormatUnknown {
		return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Permanent reports whether the failure lies in the file's content, so that
// retrying the same unchanged file would fail again. Access errors, vanished
// files and cancellation are transient.
func (e *DecodeError) Permanent() bool {
	switch {
	case errors.Is(e.Err, fs.ErrNotExist),
		errors.Is(e.Err, fs.ErrPermission),
		errors.Is(e.Err, syscall.ESTALE),
		errors.Is(e.Err, syscall.EIO),
		errors.Is(e.Err, context.Canceled),
		errors.Is(e.Err, context.DeadlineExceeded):
		return false
	}
	return true
}
