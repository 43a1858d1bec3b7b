// Package background applies a chosen image as the desktop background by
// running a configured external command, and remembers the last choice.
package background

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"background-picker/internal/filesystem"
	"background-picker/internal/logging"
	"background-picker/internal/metrics"
)

// DefaultCommand sets the background with feh, scaled to fit the screen.
const DefaultCommand = "feh --bg-max"

// DefaultSelectedFile is where the last applied image is remembered.
const DefaultSelectedFile = "selected-background.txt"

// ErrEmptyCommand means the configured command has no words.
var ErrEmptyCommand = errors.New("empty background command")

// CommandError reports a background command that could not run or exited
// with a failure status.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q failed: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Validate checks that command has at least one word.
func Validate(command string) error {
	if len(strings.Fields(command)) == 0 {
		return ErrEmptyCommand
	}
	return nil
}

// Setter runs the background command. The command is split on whitespace
// and the image path is appended as the last argument; no shell is
// involved.
type Setter struct {
	words        []string
	selectedFile string
	timeout      time.Duration
}

// NewSetter creates a setter for command. When selectedFile is not empty,
// every successfully applied path is written there.
func NewSetter(command, selectedFile string) (*Setter, error) {
	if err := Validate(command); err != nil {
		return nil, err
	}
	return &Setter{
		words:        strings.Fields(command),
		selectedFile: selectedFile,
		timeout:      30 * time.Second,
	}, nil
}

// Command returns the configured command line.
func (s *Setter) Command() string {
	return strings.Join(s.words, " ")
}

// Apply sets path as the background. path must be absolute.
func (s *Setter) Apply(ctx context.Context, path string) (err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.BackgroundSetTotal.WithLabelValues(status).Inc()
	}()

	if !filepath.IsAbs(path) {
		return fmt.Errorf("background path %q is not absolute", path)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string{}, s.words[1:]...), path)
	cmd := exec.CommandContext(ctx, s.words[0], args...) //nolint:gosec // command comes from local configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debug("Running background command: %s %s", s.Command(), path)
	if err := cmd.Run(); err != nil {
		return &CommandError{
			Command: s.Command(),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	logging.Info("Background set to %s", path)

	if s.selectedFile != "" {
		if err := s.saveSelected(path); err != nil {
			// The background did change; only the memo failed.
			logging.Warn("Failed to remember selected background: %v", err)
		}
	}
	return nil
}

// Selected returns the last remembered background, or "" if none.
func (s *Setter) Selected() (string, error) {
	if s.selectedFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.selectedFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Setter) saveSelected(path string) error {
	if dir := filepath.Dir(s.selectedFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return filesystem.WriteFileAtomic(s.selectedFile, []byte(path), 0o644)
}
