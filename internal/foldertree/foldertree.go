// Package foldertree groups scanned images by the folder they live in.
package foldertree

import (
	"iter"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"background-picker/internal/mediatypes"
)

// RootPath is the relative path of the scan root.
const RootPath = "."

// Folder is one directory in the tree. Images holds only the folder's own
// images; Total counts the whole subtree.
type Folder struct {
	Path     string                   `json:"path"`
	Name     string                   `json:"name"`
	Images   []mediatypes.SourceImage `json:"images"`
	Children []*Folder                `json:"children,omitempty"`
	Total    int                      `json:"total"`
}

// Tree is an immutable folder hierarchy.
type Tree struct {
	Root  *Folder
	index map[string]*Folder
}

// Build groups images by their relative folder. Folders are keyed by
// slash-separated paths relative to the scan root, "." being the root
// itself. Directories holding no images but leading to ones that do are
// included so the hierarchy stays connected. Children and images are
// sorted by name.
func Build(images iter.Seq[mediatypes.SourceImage]) *Tree {
	root := &Folder{Path: RootPath, Name: RootPath}
	t := &Tree{Root: root, index: map[string]*Folder{RootPath: root}}

	for img := range images {
		f := t.ensure(FolderOf(img.RelPath))
		f.Images = append(f.Images, img)
	}

	finish(root)
	return t
}

// FolderOf returns the slash-separated folder of a relative image path.
func FolderOf(relPath string) string {
	dir := path.Dir(filepath.ToSlash(relPath))
	if dir == "" || dir == "/" {
		return RootPath
	}
	return dir
}

func (t *Tree) ensure(rel string) *Folder {
	if f, ok := t.index[rel]; ok {
		return f
	}
	parent := t.ensure(FolderOf(rel))
	f := &Folder{Path: rel, Name: path.Base(rel)}
	parent.Children = append(parent.Children, f)
	t.index[rel] = f
	return f
}

// finish sorts the subtree and fills in totals.
func finish(f *Folder) int {
	slices.SortFunc(f.Images, func(a, b mediatypes.SourceImage) int {
		return strings.Compare(a.RelPath, b.RelPath)
	})
	slices.SortFunc(f.Children, func(a, b *Folder) int {
		return strings.Compare(a.Name, b.Name)
	})

	f.Total = len(f.Images)
	for _, c := range f.Children {
		f.Total += finish(c)
	}
	return f.Total
}

// Folder returns the folder at a slash-separated relative path.
func (t *Tree) Folder(rel string) (*Folder, bool) {
	if rel == "" {
		rel = RootPath
	}
	f, ok := t.index[path.Clean(rel)]
	return f, ok
}

// Folders returns every folder that directly holds images, ordered by path.
func (t *Tree) Folders() []*Folder {
	var out []*Folder
	for _, f := range t.index {
		if len(f.Images) > 0 {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b *Folder) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// Len returns the number of images in the tree.
func (t *Tree) Len() int {
	return t.Root.Total
}

// All yields every image, folder by folder in path order.
func (t *Tree) All() iter.Seq[mediatypes.SourceImage] {
	return func(yield func(mediatypes.SourceImage) bool) {
		for _, f := range t.Folders() {
			for _, img := range f.Images {
				if !yield(img) {
					return
				}
			}
		}
	}
}
