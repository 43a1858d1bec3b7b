// Package orchestrator turns a stream of image paths into a stream of
// thumbnail results.
//
// Each path is resolved by a pool of lookup workers: the source is stat'ed,
// its cache key derived and the cached thumbnail, if any, checked for
// freshness. Fresh thumbnails are reported immediately. Everything else is
// queued for a fixed pool of render workers, which decode, shrink and store
// the thumbnail.
//
// Requests for the same (size class, key) that overlap in time share one
// render. The first request renders; the others wait for it and receive the
// same entry with Coalesced set. The rendering request checks the cache again
// before decoding, so a duplicate arriving after a render finished resolves
// as a hit instead of rendering twice.
//
// Results are delivered in completion order, not request order. Per-path
// failures are reported in the result and never end the stream.
package orchestrator
