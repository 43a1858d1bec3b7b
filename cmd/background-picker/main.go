package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"background-picker/internal/background"
	"background-picker/internal/filesystem"
	"background-picker/internal/handlers"
	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/media"
	"background-picker/internal/memory"
	"background-picker/internal/metrics"
	"background-picker/internal/middleware"
	"background-picker/internal/orchestrator"
	"background-picker/internal/pregen"
	"background-picker/internal/startup"
	"background-picker/internal/streaming"
	"background-picker/internal/thumbcache"
	"background-picker/internal/watcher"
)

const (
	shutdownTimeout        = 30 * time.Second
	metricsCollectInterval = time.Minute
	exitConfigError        = 2
	exitRuntimeError       = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// app holds the components shared by both modes.
type app struct {
	config   *startup.Config
	ledger   *ledger.Ledger
	store    *thumbcache.Store
	monitor  *memory.Monitor
	orch     *orchestrator.Orchestrator
	scanner  *media.Scanner
	setter   *background.Setter
	vipsUsed bool
}

func run(args []string) int {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	var cfgErr *startup.ConfigError
	if errors.As(err, &cfgErr) {
		fmt.Fprintf(os.Stderr, "background-picker: %v\n", cfgErr)
		return exitConfigError
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "background-picker: %v\n", err)
		return exitConfigError
	}
	if config.ShowVersion {
		info := startup.GetBuildInfo()
		fmt.Printf("background-picker %s (commit %s, built %s, %s %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, config)
	if err != nil {
		logging.Error("%v", err)
		return exitRuntimeError
	}
	defer a.close()

	if config.Pregenerate {
		return a.pregenerate(ctx)
	}
	if err := a.serve(ctx, startTime); err != nil {
		logging.Error("%v", err)
		return exitRuntimeError
	}
	return 0
}

func newApp(ctx context.Context, config *startup.Config) (*app, error) {
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	metrics.InitializeMetrics(thumbcache.ClassNames())
	filesystem.SetObserver(metrics.NewFilesystemObserver(metrics.DefaultSlowOperation))
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"source": config.Directory,
		"cache":  config.CacheDir,
	}))

	a := &app{config: config}

	if config.UseVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips initialization failed: %v", err)
		} else {
			a.vipsUsed = true
		}
	}
	startup.LogVipsInit(config.UseVips, a.vipsUsed)

	if !config.NoLedger {
		led, err := ledger.Open(ctx, config.LedgerPath)
		if err != nil {
			// Undecodable files are simply retried on every run without it.
			logging.Warn("Failure ledger unavailable, continuing without it: %v", err)
		} else {
			logging.Debug("Failure ledger opened at %s", led.Path())
			a.ledger = led
		}
	}

	setter, err := background.NewSetter(config.Command, config.SelectedFile)
	if err != nil {
		a.close()
		return nil, err
	}
	a.setter = setter
	logging.Debug("Background command: %s", setter.Command())

	scanner, err := media.NewScanner(config.Directory, media.ScannerOptions{SkipHidden: config.SkipHidden})
	if err != nil {
		a.close()
		return nil, err
	}
	a.scanner = scanner

	a.monitor = memory.NewMonitor(memory.DefaultConfig())
	a.monitor.Start()

	a.store = thumbcache.NewStore(config.CacheDir)
	renderer := media.NewRenderer(media.RendererOptions{
		MaxImagePixels: config.MaxImagePixels,
		UseVips:        a.vipsUsed,
	})

	opts := orchestrator.Options{
		Workers: config.Workers,
		Pauser:  a.monitor,
	}
	if a.ledger != nil {
		opts.Ledger = a.ledger
	}
	a.orch = orchestrator.New(a.store, renderer, opts)
	a.orch.Start()
	logging.Debug("Thumbnail orchestrator started with %d render workers", a.orch.Workers())

	return a, nil
}

func (a *app) close() {
	// Stopping the monitor releases render workers held by backpressure.
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.orch != nil {
		a.orch.Close()
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			logging.Warn("Failed to close failure ledger: %v", err)
		}
	}
	if a.vipsUsed {
		media.ShutdownVips()
	}
}

// pregenerate fills the cache for the whole tree and reports through the
// exit status whether every image ended up with a thumbnail.
func (a *app) pregenerate(ctx context.Context) int {
	opts := pregen.Options{Class: a.config.Class, Out: os.Stdout}
	if a.ledger != nil {
		opts.Recorder = a.ledger
	}

	summary, err := pregen.Run(ctx, a.scanner, a.orch, opts)
	if err != nil {
		logging.Warn("Thumbnail generation interrupted: %v", err)
		return exitRuntimeError
	}
	for _, f := range summary.Failures {
		logging.Warn("  %s: %s", f.Path, f.Err)
	}
	return summary.ExitCode()
}

func (a *app) serve(ctx context.Context, startTime time.Time) error {
	startup.PrintBanner()

	var failures handlers.FailureLister
	if a.ledger != nil {
		failures = a.ledger
	}
	h := handlers.New(a.scanner, a.orch, a.setter, failures, a.config.Class)
	streamCfg := streaming.DefaultConfig()
	streamCfg.WriteTimeout = a.config.StreamTimeout
	h.SetStreamConfig(streamCfg)
	if a.monitor != nil {
		h.SetMemoryStatus(a.monitor)
	}
	tree := h.Refresh(ctx)

	refresh := newRefresher(ctx, h, a.orch, a.config.Class)
	defer refresh.stop()

	var w *watcher.Watcher
	if a.config.Watch {
		var err error
		w, err = watcher.New(a.config.Directory, watcher.Options{
			RescanInterval: a.config.RescanInterval,
			SkipHidden:     a.config.SkipHidden,
		}, watcher.Handlers{
			OnChange: refresh.warm,
			OnRescan: refresh.request,
		})
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			logging.Warn("Directory watching disabled: %v", err)
			w = nil
		}
	}

	collector := metrics.NewCollector(&cacheStatsAdapter{store: a.store, ledger: a.ledger}, metricsCollectInterval)
	collector.Start(ctx)

	router := mux.NewRouter()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.Register(router)
	startup.LogHTTPRoutes(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = a.config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	listener, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		collector.Stop()
		if w != nil {
			w.Stop()
		}
		return fmt.Errorf("listen on %s: %w", a.config.ListenAddr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Thumbnail streams for large folders can run for minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		ListenAddr:      listener.Addr().String(),
		StartupDuration: time.Since(startTime),
		Images:          tree.Len(),
	})

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			collector.Stop()
			if w != nil {
				w.Stop()
			}
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		startup.LogShutdownInitiated("signal")
	}

	shutdown(srv, w, collector)
	return nil
}

func shutdown(srv *http.Server, w *watcher.Watcher, collector *metrics.Collector) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if w != nil {
		startup.LogShutdownStep("Stopping directory watcher")
		w.Stop()
		startup.LogShutdownStepComplete("Directory watcher stopped")
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
