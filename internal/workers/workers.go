package workers

import (
	"os"
	"runtime"
	"strconv"
)

// MinRender is the smallest render pool Resolve hands out when the count is
// derived automatically. Decoding stalls on disk reads often enough that a
// pool narrower than this leaves small machines idle.
const MinRender = 4

// EnvRenderWorkers overrides the automatically derived render pool size.
const EnvRenderWorkers = "THUMBNAIL_WORKERS"

// Count returns the number of workers for a given task type, scaled from
// GOMAXPROCS so that container CPU limits are respected.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count. Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// Resolve returns the render pool size. An explicit configured value wins,
// then THUMBNAIL_WORKERS, then a CPU-derived count of at least MinRender.
// limit caps the derived and environment values, not an explicit one.
func Resolve(configured, limit int) int {
	if configured > 0 {
		return configured
	}

	if override := os.Getenv(EnvRenderWorkers); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	n := ForCPU(limit)
	if n < MinRender {
		n = MinRender
	}
	return n
}
