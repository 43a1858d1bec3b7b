// Package memory bounds the heap used while decoding source images.
//
// Full-resolution decodes dominate the picker's memory use: a 50 megapixel
// photograph is roughly 200 MB as RGBA before it is shrunk. Two mechanisms
// keep that under control.
//
// [ConfigureFromEnv] sets the Go soft memory limit (GOMEMLIMIT) from the
// environment before work starts:
//
//   - GOMEMLIMIT: standard Go variable; if set it is left untouched.
//   - MEMORY_LIMIT: a hard limit in bytes, for example a cgroup or container
//     limit. The soft limit becomes MEMORY_LIMIT * MEMORY_RATIO.
//   - MEMORY_RATIO: fraction between 0 and 1, default 0.85. The remainder is
//     left for libvips and other non-heap allocations.
//
// [Monitor] samples heap usage against that limit. When usage crosses the
// critical mark it pauses callers of [Monitor.WaitIfPaused] until usage falls
// back below the high-water mark. Render workers call WaitIfPaused before each
// decode, so a burst of large images drains instead of piling up.
package memory
