package startup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"background-picker/internal/background"
	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/media"
	"background-picker/internal/thumbcache"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Defaults
const (
	DefaultThumbnailSize  = 150
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultRescanInterval = 30 * time.Minute
	DefaultStreamTimeout  = 30 * time.Second
)

// ConfigError reports configuration that cannot be used. It is fatal and
// is returned before any scanning starts.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config holds all application configuration
type Config struct {
	// Directory is the absolute scan root.
	Directory     string
	ThumbnailSize int
	// Class is the smallest size class covering ThumbnailSize.
	Class        thumbcache.SizeClass
	Command      string
	SelectedFile string
	Debug        bool
	Pregenerate  bool
	ShowVersion  bool

	CacheDir   string
	LedgerPath string
	NoLedger   bool

	Workers        int
	UseVips        bool
	MaxImagePixels int
	SkipHidden     bool

	ListenAddr      string
	Watch           bool
	RescanInterval  time.Duration
	StreamTimeout   time.Duration
	LogHealthChecks bool
}

// LoadConfig builds the configuration from environment defaults overridden
// by command-line arguments (without the program name). It returns
// pflag.ErrHelp when help was requested and a *ConfigError for anything
// unusable.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}

	fs := pflag.NewFlagSet("background-picker", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.StringVarP(&cfg.Directory, "directory", "d", getEnv("BACKGROUND_DIR", "."), "directory to scan for images")
	fs.IntVarP(&cfg.ThumbnailSize, "thumbnail-size", "t", getEnvInt("THUMBNAIL_SIZE", DefaultThumbnailSize), "thumbnail edge length in pixels (1-1024)")
	fs.StringVarP(&cfg.Command, "command", "c", getEnv("BACKGROUND_COMMAND", background.DefaultCommand), "command that sets the background; the image path is appended")
	fs.StringVarP(&cfg.SelectedFile, "selected-file", "s", getEnv("SELECTED_FILE", background.DefaultSelectedFile), "file remembering the last applied image (empty to disable)")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("DEBUG", false), "enable debug output")
	fs.BoolVar(&cfg.Pregenerate, "pregenerate", false, "generate all thumbnails and exit")
	fs.StringVar(&cfg.CacheDir, "cache-dir", getEnv("THUMBNAIL_CACHE_DIR", ""), "thumbnail cache root (default $XDG_CACHE_HOME/thumbnails)")
	fs.StringVar(&cfg.LedgerPath, "ledger", getEnv("LEDGER_PATH", ""), "failure ledger database path")
	fs.BoolVar(&cfg.NoLedger, "no-ledger", getEnvBool("NO_LEDGER", false), "do not remember undecodable files")
	fs.IntVarP(&cfg.Workers, "workers", "w", 0, "render workers (default from THUMBNAIL_WORKERS or CPU count)")
	fs.BoolVar(&cfg.UseVips, "vips", getEnvBool("USE_VIPS", false), "shrink large images with libvips when available")
	fs.IntVar(&cfg.MaxImagePixels, "max-pixels", getEnvInt("MAX_IMAGE_PIXELS", media.DefaultMaxImagePixels), "reject images with more pixels than this")
	fs.BoolVar(&cfg.SkipHidden, "skip-hidden", getEnvBool("SKIP_HIDDEN", false), "skip hidden files and directories")
	fs.StringVar(&cfg.ListenAddr, "listen", getEnv("LISTEN_ADDR", DefaultListenAddr), "HTTP listen address")
	fs.BoolVar(&cfg.Watch, "watch", getEnvBool("WATCH", true), "follow changes under the directory")
	fs.DurationVar(&cfg.RescanInterval, "rescan-interval", getEnvDuration("RESCAN_INTERVAL", DefaultRescanInterval), "full rescan interval (0 disables)")
	fs.DurationVar(&cfg.StreamTimeout, "stream-timeout", getEnvDuration("STREAM_TIMEOUT", DefaultStreamTimeout), "per-line write timeout of thumbnail streams (0 disables)")
	fs.BoolVar(&cfg.LogHealthChecks, "log-health-checks", getEnvBool("LOG_HEALTH_CHECKS", false), "log health check requests")
	fs.BoolVarP(&cfg.ShowVersion, "version", "V", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, &ConfigError{Field: "arguments", Value: strings.Join(args, " "), Err: err}
	}
	if fs.NArg() > 0 {
		return nil, &ConfigError{Field: "arguments", Value: strings.Join(fs.Args(), " "), Err: errors.New("unexpected positional arguments")}
	}

	if cfg.Debug {
		logging.SetLevel(logging.LevelDebug)
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	cfg.log()
	return cfg, nil
}

// resolve validates the configuration and fills in derived values.
func (c *Config) resolve() error {
	dir, err := filepath.Abs(c.Directory)
	if err != nil {
		return &ConfigError{Field: "directory", Value: c.Directory, Err: err}
	}
	if err := checkReadableDir(dir); err != nil {
		return &ConfigError{Field: "directory", Value: c.Directory, Err: err}
	}
	c.Directory = dir

	class, err := thumbcache.ClassFor(c.ThumbnailSize)
	if err != nil {
		return &ConfigError{Field: "thumbnail size", Value: strconv.Itoa(c.ThumbnailSize), Err: err}
	}
	c.Class = class

	if err := background.Validate(c.Command); err != nil {
		return &ConfigError{Field: "command", Value: c.Command, Err: err}
	}

	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Value: strconv.Itoa(c.Workers), Err: errors.New("must not be negative")}
	}
	if c.MaxImagePixels <= 0 {
		return &ConfigError{Field: "max pixels", Value: strconv.Itoa(c.MaxImagePixels), Err: errors.New("must be positive")}
	}
	if c.RescanInterval < 0 {
		return &ConfigError{Field: "rescan interval", Value: c.RescanInterval.String(), Err: errors.New("must not be negative")}
	}
	if c.StreamTimeout < 0 {
		return &ConfigError{Field: "stream timeout", Value: c.StreamTimeout.String(), Err: errors.New("must not be negative")}
	}

	if c.CacheDir == "" {
		if c.CacheDir, err = thumbcache.DefaultRoot(); err != nil {
			return &ConfigError{Field: "cache directory", Err: err}
		}
	}
	if c.CacheDir, err = filepath.Abs(c.CacheDir); err != nil {
		return &ConfigError{Field: "cache directory", Value: c.CacheDir, Err: err}
	}

	if c.LedgerPath == "" {
		c.LedgerPath = filepath.Join(filepath.Dir(c.CacheDir), "background-picker", ledger.DefaultFileName)
	}
	if c.LedgerPath, err = filepath.Abs(c.LedgerPath); err != nil {
		return &ConfigError{Field: "ledger path", Value: c.LedgerPath, Err: err}
	}

	if c.SelectedFile != "" {
		if c.SelectedFile, err = filepath.Abs(c.SelectedFile); err != nil {
			return &ConfigError{Field: "selected file", Value: c.SelectedFile, Err: err}
		}
	}
	return nil
}

// log writes the configuration block. Batch runs log it at debug level
// only, keeping their output to the progress and summary lines.
func (c *Config) log() {
	logf := logging.Info
	if c.Pregenerate {
		logf = logging.Debug
	}

	logf("------------------------------------------------------------")
	logf("CONFIGURATION")
	logf("------------------------------------------------------------")
	logf("  Directory:        %s", c.Directory)
	logf("  Thumbnail size:   %d (class %s, %dpx)", c.ThumbnailSize, c.Class.Name, c.Class.Pixels)
	logf("  Command:          %s", c.Command)
	logf("  Selected file:    %s", valueOr(c.SelectedFile, "(disabled)"))
	logf("  Cache directory:  %s", c.CacheDir)
	if c.NoLedger {
		logf("  Failure ledger:   DISABLED")
	} else {
		logf("  Failure ledger:   %s", c.LedgerPath)
	}
	logf("  Workers:          %s", workersString(c.Workers))
	logf("  libvips:          %s", enabledString(c.UseVips))
	logf("  Max image pixels: %d", c.MaxImagePixels)
	logf("  Skip hidden:      %v", c.SkipHidden)
	logf("  LOG_LEVEL:        %s", logging.GetLevel())
	if !c.Pregenerate {
		logf("  Listen address:   %s", c.ListenAddr)
		logf("  Watch:            %s", enabledString(c.Watch))
		logf("  Rescan interval:  %v", c.RescanInterval)
		logf("  Stream timeout:   %v", c.StreamTimeout)
	}

	if err := testWriteAccess(c.CacheDir); err != nil {
		logging.Warn("  Thumbnail cache %s is not writable: %v", c.CacheDir, err)
		logging.Warn("  Thumbnails will be generated but not kept")
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// workersString reports zero workers as "auto": the orchestrator sizes the
// pool itself.
func workersString(n int) string {
	if n == 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// PrintBanner prints the startup banner and system information.
func PrintBanner() {
	banner := `
------------------------------------------------------------
    ___           _                                   _
   / __\ __ _  __| | ____ _ _ __ ___  _   _ _ __   __| |
  /__\/// _' |/ _| |/ / _' | '__/ _ \| | | | '_ \ / _' |
 / \/  \ (_| | (_|   < (_| | | | (_) | |_| | | | | (_| |
 \_____/\__,_|\__|_|\_\__, |_|  \___/ \__,_|_| |_|\__,_|
                      |___/          picker
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
	logSystemInfo()
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
	}

	logging.Info("")
}

// LogVipsInit logs the outcome of libvips initialization.
func LogVipsInit(requested, available bool) {
	if !requested {
		return
	}
	if available {
		logging.Info("  [OK] libvips initialized")
		return
	}
	logging.Warn("  libvips requested but not available, using the Go decoders")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	logging.Debug("  Registered routes (%d total):", len(routes))

	// Group routes by prefix for cleaner output
	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	ListenAddr      string
	StartupDuration time.Duration
	Images          int
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Images found:    %d", config.Images)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://%s", config.ListenAddr)
	logging.Info("    Metrics:       http://%s/metrics", config.ListenAddr)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// Helper functions

func checkReadableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// testWriteAccess checks that dir, or the nearest existing parent it would
// be created under, accepts new files.
func testWriteAccess(dir string) error {
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
