package startup

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"background-picker/internal/background"
	"background-picker/internal/thumbcache"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

// isolate points every path default at a temporary directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	for _, key := range []string{"BACKGROUND_DIR", "THUMBNAIL_SIZE", "BACKGROUND_COMMAND", "SELECTED_FILE",
		"THUMBNAIL_CACHE_DIR", "LEDGER_PATH", "USE_VIPS", "MAX_IMAGE_PIXELS", "RESCAN_INTERVAL", "STREAM_TIMEOUT"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := isolate(t)
	pics := filepath.Join(dir, "pics")
	if err := os.Mkdir(pics, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig([]string{"-d", pics})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Directory != pics {
		t.Errorf("Directory = %q, want %q", cfg.Directory, pics)
	}
	if cfg.ThumbnailSize != DefaultThumbnailSize || cfg.Class != thumbcache.Large {
		t.Errorf("size %d class %s, want %d and large", cfg.ThumbnailSize, cfg.Class.Name, DefaultThumbnailSize)
	}
	if cfg.Command != background.DefaultCommand {
		t.Errorf("Command = %q", cfg.Command)
	}
	if want := filepath.Join(dir, "cache", "thumbnails"); cfg.CacheDir != want {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, want)
	}
	if want := filepath.Join(dir, "cache", "background-picker", "background-picker.db"); cfg.LedgerPath != want {
		t.Errorf("LedgerPath = %q, want %q", cfg.LedgerPath, want)
	}
	if !filepath.IsAbs(cfg.SelectedFile) {
		t.Errorf("SelectedFile = %q, want an absolute path", cfg.SelectedFile)
	}
	if cfg.Pregenerate || !cfg.Watch || cfg.RescanInterval != DefaultRescanInterval || cfg.StreamTimeout != DefaultStreamTimeout {
		t.Errorf("unexpected mode defaults: %+v", cfg)
	}
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("THUMBNAIL_SIZE", "64")
	t.Setenv("BACKGROUND_COMMAND", "nitrogen --set-zoom")
	t.Setenv("RESCAN_INTERVAL", "5m")

	cfg, err := LoadConfig([]string{
		"--directory", dir,
		"--thumbnail-size", "600",
		"--cache-dir", filepath.Join(dir, "thumbs"),
		"--pregenerate",
		"--workers", "3",
		"--skip-hidden",
	})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ThumbnailSize != 600 || cfg.Class != thumbcache.XXLarge {
		t.Errorf("size %d class %s, want 600 and xx-large", cfg.ThumbnailSize, cfg.Class.Name)
	}
	if cfg.Command != "nitrogen --set-zoom" {
		t.Errorf("Command = %q, want env value", cfg.Command)
	}
	if cfg.RescanInterval != 5*time.Minute {
		t.Errorf("RescanInterval = %v, want 5m", cfg.RescanInterval)
	}
	if cfg.CacheDir != filepath.Join(dir, "thumbs") {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if !cfg.Pregenerate || cfg.Workers != 3 || !cfg.SkipHidden {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"missing directory", []string{"-d", filepath.Join(dir, "nope")}, "directory"},
		{"file as directory", []string{"-d", file}, "directory"},
		{"size zero", []string{"-d", dir, "-t", "0"}, "thumbnail size"},
		{"size too large", []string{"-d", dir, "-t", "1025"}, "thumbnail size"},
		{"empty command", []string{"-d", dir, "-c", "  "}, "command"},
		{"negative workers", []string{"-d", dir, "-w", "-1"}, "workers"},
		{"negative stream timeout", []string{"-d", dir, "--stream-timeout=-1s"}, "stream timeout"},
		{"unknown flag", []string{"--bogus"}, "arguments"},
		{"positional argument", []string{"-d", dir, "extra"}, "arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("LoadConfig(%v) error = %v, want *ConfigError", tt.args, err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestLoadConfigUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any directory")
	}
	dir := isolate(t)
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	var cfgErr *ConfigError
	if _, err := LoadConfig([]string{"-d", locked}); !errors.As(err, &cfgErr) {
		t.Errorf("LoadConfig() error = %v, want *ConfigError", err)
	}
}

func TestLoadConfigHelp(t *testing.T) {
	isolate(t)
	if _, err := LoadConfig([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("LoadConfig(--help) error = %v, want pflag.ErrHelp", err)
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "thumbnail size", Value: "0", Err: errors.New("out of range")}
	if got, want := err.Error(), `invalid thumbnail size "0": out of range`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, err.Err) {
		t.Error("ConfigError should unwrap to its cause")
	}
}

func TestLogValueHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"auto workers", workersString(0), "auto"},
		{"explicit workers", workersString(4), "4"},
		{"empty value", valueOr("", "(disabled)"), "(disabled)"},
		{"file named 0", valueOr("0", "(disabled)"), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STARTUP_STR", "custom")
	t.Setenv("TEST_STARTUP_BOOL", "true")
	t.Setenv("TEST_STARTUP_BAD_BOOL", "maybe")
	t.Setenv("TEST_STARTUP_INT", "42")
	t.Setenv("TEST_STARTUP_BAD_INT", "many")
	t.Setenv("TEST_STARTUP_DURATION", "90s")

	if got := getEnv("TEST_STARTUP_STR", "default"); got != "custom" {
		t.Errorf("getEnv() = %q", got)
	}
	if got := getEnv("TEST_STARTUP_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() unset = %q", got)
	}
	if !getEnvBool("TEST_STARTUP_BOOL", false) {
		t.Error("getEnvBool() = false, want true")
	}
	if !getEnvBool("TEST_STARTUP_BAD_BOOL", true) {
		t.Error("getEnvBool() with invalid value should return the default")
	}
	if got := getEnvInt("TEST_STARTUP_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d", got)
	}
	if got := getEnvInt("TEST_STARTUP_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() invalid = %d, want default", got)
	}
	if got := getEnvDuration("TEST_STARTUP_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v", got)
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/tree", func(_ http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet).Name("tree")
	router.HandleFunc("/healthz", func(_ http.ResponseWriter, _ *http.Request) {})

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("GetRoutes() returned %d routes, want 2", len(routes))
	}
	if routes[0].Method != http.MethodGet || routes[0].Name != "tree" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if routes[1].Method != "*" {
		t.Errorf("route without methods = %+v, want method *", routes[1])
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/thumbnail/{path}", "api/thumbnail"},
		{"/api/tree", "api/tree"},
		{"/healthz", "healthz"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
