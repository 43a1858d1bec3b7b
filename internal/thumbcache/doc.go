/*
Package thumbcache implements the freedesktop.org thumbnail cache.

Thumbnails live under a root directory (normally $XDG_CACHE_HOME/thumbnails)
in one subdirectory per size class:

	<root>/normal/<md5>.png    128 px
	<root>/large/<md5>.png     256 px
	<root>/x-large/<md5>.png   512 px
	<root>/xx-large/<md5>.png  1024 px

The file name is the MD5 of the source's canonical file:// URI (see URI and
Derive), so any program following the same convention, such as a file
manager, shares these files.

Each PNG carries tEXt metadata describing the source it was rendered from.
Thumb::URI and Thumb::MTime are required. A cached thumbnail is fresh only
while both still match the source; Thumb::Size is compared too when present.

Reads never fail loudly: a missing, truncated or otherwise unreadable file is
a cache miss. Writes go through a temporary file and a rename, so concurrent
writers and interrupted runs never leave a partial thumbnail in place.
*/
package thumbcache
