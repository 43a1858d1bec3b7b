// Package media finds source images and renders thumbnails from them.
//
// Scanner walks a directory tree and yields every file with a supported
// image extension. Renderer decodes one source, identified by its content
// rather than its name, and shrinks it to fit a size class bound.
package media
