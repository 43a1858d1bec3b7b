package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"background-picker/internal/logging"
)

// DefaultMemoryRatio is the share of MEMORY_LIMIT given to the Go heap.
const DefaultMemoryRatio = 0.85

// ConfigResult describes what ConfigureFromEnv decided.
type ConfigResult struct {
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT", or "none".
	Source string

	// HardLimit is MEMORY_LIMIT in bytes (0 if not set).
	HardLimit int64

	// GoMemLimit is the soft limit in bytes (0 if not set).
	GoMemLimit int64

	Ratio float64
}

// ConfigureFromEnv applies the soft memory limit described by the
// environment. Call it early in main, before large allocations.
func ConfigureFromEnv() ConfigResult {
	result := resolveLimit(os.Getenv)

	switch result.Source {
	case "GOMEMLIMIT":
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", os.Getenv("GOMEMLIMIT"))
	case "MEMORY_LIMIT":
		debug.SetMemoryLimit(result.GoMemLimit)
		logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s)",
			formatBytes(result.GoMemLimit), result.Ratio*100, formatBytes(result.HardLimit))
	default:
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
	}

	return result
}

// resolveLimit computes the soft limit from an environment lookup without
// touching the runtime.
func resolveLimit(getenv func(string) string) ConfigResult {
	if getenv("GOMEMLIMIT") != "" {
		return ConfigResult{Source: "GOMEMLIMIT"}
	}

	result := ConfigResult{Source: "none"}

	memLimitStr := getenv("MEMORY_LIMIT")
	if memLimitStr == "" {
		return result
	}

	memLimit, err := strconv.ParseInt(memLimitStr, 10, 64)
	if err != nil || memLimit <= 0 {
		logging.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte count", memLimitStr)
		return result
	}

	ratio := DefaultMemoryRatio
	if ratioStr := getenv("MEMORY_RATIO"); ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", ratioStr, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1.0:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", ratioStr, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.HardLimit = memLimit
	result.Ratio = ratio
	result.GoMemLimit = int64(float64(memLimit) * ratio)
	return result
}

// formatBytes formats bytes into human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
