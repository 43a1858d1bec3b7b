// Command thumbkey inspects the thumbnail cache and the failure ledger used
// by the background picker.
//
// Usage:
//
//	thumbkey <command> [args]
//
// Commands:
//
//	key <file>...     Print the cache URI and key of each file, the cache path
//	                  for every size class, and whether a fresh thumbnail
//	                  exists in each class.
//
//	failures [limit]  List files recorded as undecodable, newest first.
//
//	forget <file>...  Remove files from the failure ledger so the next run
//	                  tries them again.
//
//	runs [limit]      List recent pregeneration runs.
//
// Environment:
//
//	THUMBNAIL_CACHE_DIR - Thumbnail cache root (default: $XDG_CACHE_HOME/thumbnails)
//	LEDGER_PATH         - Failure ledger (default: background-picker/background-picker.db
//	                      next to the cache root)
package main
