package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"background-picker/internal/ledger"
	"background-picker/internal/media"
	"background-picker/internal/mediatypes"
	"background-picker/internal/thumbcache"
)

const (
	// Default timeout for ledger operations
	defaultTimeout = 30 * time.Second
	defaultLimit   = 50
	// Reasons are cut to fit when stdout is a terminal narrower than this.
	minReasonWidth = 20
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 1
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	cacheDir, ledgerPath, err := locations()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	switch args[0] {
	case "key":
		return showKeys(stdout, stderr, thumbcache.NewStore(cacheDir), args[1:])
	case "stats":
		return showStats(stdout, stderr, thumbcache.NewStore(cacheDir), args[1:])
	case "failures", "forget", "runs":
		led, err := ledger.Open(ctx, ledgerPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open ledger %s: %v\n", ledgerPath, err)
			return 1
		}
		defer func() {
			if err := led.Close(); err != nil {
				fmt.Fprintf(stderr, "Warning: failed to close ledger: %v\n", err)
			}
		}()

		switch args[0] {
		case "failures":
			return listFailures(ctx, stdout, stderr, led, args[1:])
		case "forget":
			return forget(ctx, stdout, stderr, led, args[1:])
		default:
			return listRuns(ctx, stdout, stderr, led, args[1:])
		}
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", sanitizeCommand(args[0])) //nolint:gosec // sanitized via allowlist
		printUsage(stderr)
		return 1
	}
}

// locations resolves the cache root and ledger path the same way the
// picker does.
func locations() (cacheDir, ledgerPath string, err error) {
	cacheDir = os.Getenv("THUMBNAIL_CACHE_DIR")
	if cacheDir == "" {
		if cacheDir, err = thumbcache.DefaultRoot(); err != nil {
			return "", "", err
		}
	}
	if cacheDir, err = filepath.Abs(cacheDir); err != nil {
		return "", "", err
	}

	ledgerPath = os.Getenv("LEDGER_PATH")
	if ledgerPath == "" {
		ledgerPath = filepath.Join(filepath.Dir(cacheDir), "background-picker", ledger.DefaultFileName)
	}
	return cacheDir, ledgerPath, nil
}

// sanitizeCommand returns a safe representation of a command string for display.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Background Picker thumbnail cache inspector")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: thumbkey <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  key <file>...     - Show cache URI, key and freshness per size class")
	fmt.Fprintln(w, "  stats [class]...  - Count cached thumbnails per size class")
	fmt.Fprintln(w, "  failures [limit]  - List undecodable files in the failure ledger")
	fmt.Fprintln(w, "  forget <file>...  - Remove files from the failure ledger")
	fmt.Fprintln(w, "  runs [limit]      - List recent pregeneration runs")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  THUMBNAIL_CACHE_DIR - Thumbnail cache root")
	fmt.Fprintln(w, "  LEDGER_PATH         - Failure ledger database")
}

func showKeys(stdout, stderr io.Writer, store *thumbcache.Store, files []string) int {
	if len(files) == 0 {
		fmt.Fprintln(stderr, "Error: key needs at least one file")
		return 1
	}

	status := 0
	for i, file := range files {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if err := showKey(stdout, store, file); err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", file, err)
			status = 1
		}
	}
	return status
}

func showKey(w io.Writer, store *thumbcache.Store, file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	uri, err := thumbcache.URI(abs)
	if err != nil {
		return err
	}
	key := thumbcache.DeriveURI(uri)

	src := mediatypes.SourceImage{Path: abs, Size: -1, Format: mediatypes.FormatFromExtension(abs)}
	info, statErr := os.Stat(abs)
	if statErr == nil {
		src.ModTime = mediatypes.ModTimeSeconds(info.ModTime())
		src.Size = info.Size()
	}

	fmt.Fprintf(w, "File: %s\n", abs)
	fmt.Fprintf(w, "URI:  %s\n", uri)
	fmt.Fprintf(w, "Key:  %s\n", key)
	if dims, err := media.GetImageDimensions(abs); err == nil {
		fmt.Fprintf(w, "Image: %dx%d %s\n", dims.Width, dims.Height, dims.Format)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tSTATE\tPATH")
	for _, class := range thumbcache.Classes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", class.Name, entryState(store, key, class, src, statErr), store.Path(key, class))
	}
	return tw.Flush()
}

func showStats(stdout, stderr io.Writer, store *thumbcache.Store, names []string) int {
	classes := thumbcache.Classes
	if len(names) > 0 {
		classes = make([]thumbcache.SizeClass, 0, len(names))
		for _, name := range names {
			class, err := thumbcache.ParseSizeClass(name)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			classes = append(classes, class)
		}
	}

	fmt.Fprintf(stdout, "Cache: %s\n", store.Root())
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tPIXELS\tENTRIES\tBYTES")
	status := 0
	for _, class := range classes {
		count, size, err := store.Stats(class)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", class.Name, err)
			status = 1
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", class.Name, class.Pixels, count, size)
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return status
}

func entryState(store *thumbcache.Store, key thumbcache.Key, class thumbcache.SizeClass, src mediatypes.SourceImage, statErr error) string {
	entry, ok := store.Lookup(key, class)
	switch {
	case !ok:
		return "missing"
	case statErr != nil:
		return "orphaned"
	case store.IsFresh(entry, src):
		return "fresh"
	default:
		return "stale"
	}
}

func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", args[0])
	}
	return n, nil
}

func listFailures(ctx context.Context, stdout, stderr io.Writer, led *ledger.Ledger, args []string) int {
	limit, err := parseLimit(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	failures, err := led.ListFailures(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(failures) == 0 {
		fmt.Fprintln(stdout, "No recorded failures.")
		return 0
	}

	width := reasonWidth(stdout, failures)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tFORMAT\tPATH\tREASON")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			f.RecordedAt.Local().Format(time.DateTime), valueOr(f.Format, "-"), f.Path, truncate(f.Reason, width))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// reasonWidth is the room left for the reason column when stdout is a
// terminal, or 0 for no limit.
func reasonWidth(w io.Writer, failures []ledger.Failure) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	used := len(time.DateTime) + len("FORMAT") + 6
	longest := 0
	for _, fl := range failures {
		longest = max(longest, len(fl.Path))
	}
	return max(cols-used-longest-2, minReasonWidth)
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func forget(ctx context.Context, stdout, stderr io.Writer, led *ledger.Ledger, files []string) int {
	if len(files) == 0 {
		fmt.Fprintln(stderr, "Error: forget needs at least one file")
		return 1
	}

	status := 0
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err == nil {
			var uri string
			if uri, err = thumbcache.URI(abs); err == nil {
				err = led.ClearFailure(ctx, uri)
			}
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", file, err)
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "Forgot %s\n", abs)
	}
	return status
}

func listRuns(ctx context.Context, stdout, stderr io.Writer, led *ledger.Ledger, args []string) int {
	limit, err := parseLimit(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	runs, err := led.ListRuns(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No recorded runs.")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tCLASS\tCACHED\tGENERATED\tFAILED\tELAPSED\tROOT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%v\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Class, r.Cached, r.Generated, r.Failed,
			r.Elapsed.Round(time.Millisecond), r.Root)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
