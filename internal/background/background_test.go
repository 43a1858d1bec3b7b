package background

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{"default", DefaultCommand, false},
		{"single word", "true", false},
		{"empty", "", true},
		{"whitespace only", "  \t ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.command)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrEmptyCommand) {
				t.Errorf("Validate(%q) error = %v, want ErrEmptyCommand", tt.command, err)
			}
		})
	}
}

func TestNewSetterRejectsEmptyCommand(t *testing.T) {
	if _, err := NewSetter(" ", ""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("NewSetter() error = %v, want ErrEmptyCommand", err)
	}
}

// writeScript creates a shell script that records its arguments in out.
func writeScript(t *testing.T, dir, out string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(dir, "set-bg.sh")
	body := "#!/bin/sh\nprintf '%s|' \"$@\" > '" + out + "'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestApplyAppendsPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args")
	script := writeScript(t, dir, out)
	selected := filepath.Join(dir, "state", DefaultSelectedFile)

	s, err := NewSetter(script+"   --bg-max", selected)
	if err != nil {
		t.Fatalf("NewSetter() error = %v", err)
	}

	image := filepath.Join(dir, "my photo.jpg")
	if err := s.Apply(context.Background(), image); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("command did not run: %v", err)
	}
	if want := "--bg-max|" + image + "|"; string(got) != want {
		t.Errorf("command arguments = %q, want %q", got, want)
	}

	remembered, err := s.Selected()
	if err != nil || remembered != image {
		t.Errorf("Selected() = %q, %v; want %q", remembered, err, image)
	}
}

func TestApplyCommandFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	dir := t.TempDir()
	selected := filepath.Join(dir, DefaultSelectedFile)
	s, err := NewSetter("false", selected)
	if err != nil {
		t.Fatalf("NewSetter() error = %v", err)
	}

	err = s.Apply(context.Background(), "/pics/a.png")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Apply() error = %v, want *CommandError", err)
	}
	if cmdErr.Command != "false" {
		t.Errorf("CommandError.Command = %q", cmdErr.Command)
	}
	if _, err := os.Stat(selected); !errors.Is(err, os.ErrNotExist) {
		t.Error("failed command must not update the selected file")
	}
}

func TestApplyMissingCommand(t *testing.T) {
	s, err := NewSetter("definitely-not-a-real-command-xyz", "")
	if err != nil {
		t.Fatalf("NewSetter() error = %v", err)
	}
	var cmdErr *CommandError
	if err := s.Apply(context.Background(), "/pics/a.png"); !errors.As(err, &cmdErr) {
		t.Errorf("Apply() error = %v, want *CommandError", err)
	}
}

func TestApplyRejectsRelativePath(t *testing.T) {
	s, err := NewSetter("true", "")
	if err != nil {
		t.Fatalf("NewSetter() error = %v", err)
	}
	if err := s.Apply(context.Background(), "relative.png"); err == nil {
		t.Error("Apply() with a relative path should fail")
	}
}

func TestSelectedWithoutFile(t *testing.T) {
	s, err := NewSetter("true", filepath.Join(t.TempDir(), "never-written"))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := s.Selected(); got != "" || err != nil {
		t.Errorf("Selected() = %q, %v; want empty", got, err)
	}
}
