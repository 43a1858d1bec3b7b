// Package mediatypes provides shared type definitions for image file handling
// across the background picker.
//
// This package exists as a dependency-free foundation that can be imported by
// other packages without creating import cycles. It contains primitive types,
// constants, and pure utility functions with no dependencies beyond the
// standard library.
//
// # Formats
//
// Format is a closed set of raster formats the renderer can decode:
//
//	mediatypes.FormatJPEG
//	mediatypes.FormatPNG
//	mediatypes.FormatGIF
//	mediatypes.FormatBMP
//	mediatypes.FormatWebP
//	mediatypes.FormatTIFF
//
// FormatFromExtension maps a file name to a Format for scanning, and Sniff
// identifies a Format from the leading bytes of a file for decoding. Files
// whose content does not match a known signature are FormatUnknown.
//
// # Source images
//
// SourceImage describes one discovered image: its absolute path, its path
// relative to the scan root, and the modification time and size used for
// thumbnail freshness checks.
package mediatypes
