package foldertree

import (
	"slices"
	"testing"

	"background-picker/internal/mediatypes"
)

func images(relPaths ...string) func(func(mediatypes.SourceImage) bool) {
	return func(yield func(mediatypes.SourceImage) bool) {
		for _, rel := range relPaths {
			if !yield(mediatypes.SourceImage{Path: "/pics/" + rel, RelPath: rel}) {
				return
			}
		}
	}
}

func TestFolderOf(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"a.png", "."},
		{"sub/c.webp", "sub"},
		{"x/y/z.jpg", "x/y"},
	}
	for _, tt := range tests {
		if got := FolderOf(tt.rel); got != tt.want {
			t.Errorf("FolderOf(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	tree := Build(images("b.jpg", "a.png", "sub/c.webp", "deep/er/d.gif", "sub/a.bmp"))

	if tree.Len() != 5 {
		t.Errorf("Len() = %d, want 5", tree.Len())
	}

	root := tree.Root
	if got := relPaths(root.Images); !slices.Equal(got, []string{"a.png", "b.jpg"}) {
		t.Errorf("root images = %v, want [a.png b.jpg]", got)
	}

	var names []string
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	if !slices.Equal(names, []string{"deep", "sub"}) {
		t.Errorf("root children = %v, want [deep sub]", names)
	}

	deep, ok := tree.Folder("deep")
	if !ok {
		t.Fatal("intermediate folder deep missing")
	}
	if len(deep.Images) != 0 || deep.Total != 1 {
		t.Errorf("deep: %d images, total %d; want 0 and 1", len(deep.Images), deep.Total)
	}

	sub, ok := tree.Folder("sub/")
	if !ok {
		t.Fatal("Folder(\"sub/\") not found")
	}
	if got := relPaths(sub.Images); !slices.Equal(got, []string{"sub/a.bmp", "sub/c.webp"}) {
		t.Errorf("sub images = %v", got)
	}

	if _, ok := tree.Folder("nope"); ok {
		t.Error("Folder(\"nope\") should not exist")
	}
	if f, ok := tree.Folder(""); !ok || f != root {
		t.Error("Folder(\"\") should be the root")
	}
}

func TestFoldersAndAll(t *testing.T) {
	tree := Build(images("z/1.png", "a.png", "m/n/2.png"))

	var paths []string
	for _, f := range tree.Folders() {
		paths = append(paths, f.Path)
	}
	if !slices.Equal(paths, []string{".", "m/n", "z"}) {
		t.Errorf("Folders() = %v, want [. m/n z]", paths)
	}

	var all []string
	for img := range tree.All() {
		all = append(all, img.RelPath)
	}
	if !slices.Equal(all, []string{"a.png", "m/n/2.png", "z/1.png"}) {
		t.Errorf("All() = %v", all)
	}
}

func TestBuildEmpty(t *testing.T) {
	tree := Build(images())
	if tree.Len() != 0 || len(tree.Folders()) != 0 {
		t.Errorf("empty tree: Len %d, %d folders", tree.Len(), len(tree.Folders()))
	}
	if tree.Root == nil || tree.Root.Path != RootPath {
		t.Error("empty tree must still have a root")
	}
}

func relPaths(imgs []mediatypes.SourceImage) []string {
	var out []string
	for _, img := range imgs {
		out = append(out, img.RelPath)
	}
	return out
}
