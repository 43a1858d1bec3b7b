// Package pregen fills the thumbnail cache for a whole directory tree in one
// pass and reports what it did.
package pregen

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/term"

	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"
	"background-picker/internal/metrics"
	"background-picker/internal/orchestrator"
	"background-picker/internal/thumbcache"
)

// ProgressThreshold is the smallest run that gets a progress line.
const ProgressThreshold = 50

const progressInterval = 100 * time.Millisecond

// Source lists the images to process.
type Source interface {
	Root() string
	Scan(ctx context.Context) iter.Seq[mediatypes.SourceImage]
}

// Ensurer produces thumbnails.
type Ensurer interface {
	Ensure(ctx context.Context, paths iter.Seq[string], class thumbcache.SizeClass) <-chan orchestrator.Result
}

// RunRecorder keeps a history of runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, r ledger.Run) (int64, error)
}

// Options configures Run.
type Options struct {
	Class thumbcache.SizeClass
	// Out receives the announcement and summary lines. A progress line is
	// added when Out is a terminal. nil discards output.
	Out io.Writer
	// Recorder, if set, stores the summary of each run.
	Recorder RunRecorder
}

// Failure is one path that did not end up with a usable cached thumbnail.
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Summary describes a finished run.
type Summary struct {
	Total     int           `json:"total"`
	Cached    int           `json:"cached"`
	Generated int           `json:"generated"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	Failures  []Failure     `json:"failures,omitempty"`
}

// ExitCode is 0 when every path has a cached thumbnail and 1 otherwise.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

func (s Summary) String() string {
	return fmt.Sprintf("Thumbnail generation complete: %d cached, %d generated, %d failed (%.1fs)",
		s.Cached, s.Generated, s.Failed, s.Elapsed.Seconds())
}

// Run scans src and ensures a thumbnail for every image found. Per-path
// failures are counted in the summary; the error is only set when ctx ends
// before the run completes.
func Run(ctx context.Context, src Source, ens Ensurer, opts Options) (Summary, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	start := time.Now()

	var paths []string
	for img := range src.Scan(ctx) {
		paths = append(paths, img.Path)
	}
	summary := Summary{Total: len(paths)}

	if err := ctx.Err(); err != nil {
		return finish(ctx, src, opts, summary, start, err)
	}
	if summary.Total == 0 {
		logging.Info("No images found under %s", src.Root())
		return finish(ctx, src, opts, summary, start, nil)
	}

	fmt.Fprintf(out, "Generating %s thumbnails for %d images...\n", opts.Class.Name, summary.Total)

	progress := summary.Total > ProgressThreshold && isTerminal(out)
	lastProgress := time.Time{}
	done := 0

	for r := range ens.Ensure(ctx, slices.Values(paths), opts.Class) {
		done++
		switch {
		case r.Failed():
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Path: r.Path, Err: r.Error().Error()})
			logging.Debug("  [%d/%d] failed: %s: %v", done, summary.Total, r.Path, r.Error())
		case r.Outcome == orchestrator.OutcomeHit:
			summary.Cached++
			logging.Debug("  [%d/%d] cached: %s", done, summary.Total, r.Path)
		default:
			summary.Generated++
			logging.Debug("  [%d/%d] generated: %s", done, summary.Total, r.Path)
		}

		if progress && (done == summary.Total || time.Since(lastProgress) >= progressInterval) {
			fmt.Fprintf(out, "\rProgress: %d/%d images processed", done, summary.Total)
			lastProgress = time.Now()
		}
	}
	if progress {
		fmt.Fprintln(out)
	}

	slices.SortFunc(summary.Failures, func(a, b Failure) int {
		return strings.Compare(a.Path, b.Path)
	})

	return finish(ctx, src, opts, summary, start, ctx.Err())
}

// finish records metrics and history and prints the summary line.
func finish(ctx context.Context, src Source, opts Options, s Summary, start time.Time, err error) (Summary, error) {
	s.Elapsed = time.Since(start)

	result := "success"
	switch {
	case err != nil:
		result = "cancelled"
	case s.Failed > 0:
		result = "failure"
	}
	metrics.PregenRunsTotal.WithLabelValues(result).Inc()
	metrics.PregenLastRunDuration.Set(s.Elapsed.Seconds())
	metrics.PregenLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.PregenFiles.WithLabelValues("cached").Set(float64(s.Cached))
	metrics.PregenFiles.WithLabelValues("generated").Set(float64(s.Generated))
	metrics.PregenFiles.WithLabelValues("failed").Set(float64(s.Failed))

	if opts.Recorder != nil && err == nil {
		run := ledger.Run{
			StartedAt: start,
			Elapsed:   s.Elapsed,
			Root:      src.Root(),
			Class:     opts.Class.Name,
			Cached:    s.Cached,
			Generated: s.Generated,
			Failed:    s.Failed,
		}
		if _, recErr := opts.Recorder.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
			logging.Warn("Failed to record run history: %v", recErr)
		}
	}

	if opts.Out != nil && err == nil {
		fmt.Fprintln(opts.Out, s.String())
	}
	return s, err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
