package thumbcache

import (
	"fmt"
	"strings"
)

// SizeClass is a named thumbnail bound. Thumbnails fit inside a square of
// Pixels on each side and are stored in a directory called Name.
type SizeClass struct {
	Name   string
	Pixels int
}

// Standard size classes.
var (
	Normal  = SizeClass{Name: "normal", Pixels: 128}
	Large   = SizeClass{Name: "large", Pixels: 256}
	XLarge  = SizeClass{Name: "x-large", Pixels: 512}
	XXLarge = SizeClass{Name: "xx-large", Pixels: 1024}
)

// Classes lists the standard size classes from smallest to largest.
var Classes = []SizeClass{Normal, Large, XLarge, XXLarge}

// MaxPixels is the largest bound any class supports.
const MaxPixels = 1024

func (c SizeClass) String() string {
	return fmt.Sprintf("%s (%dpx)", c.Name, c.Pixels)
}

// ClassFor returns the smallest class whose bound is at least px.
func ClassFor(px int) (SizeClass, error) {
	if px <= 0 || px > MaxPixels {
		return SizeClass{}, fmt.Errorf("thumbnail size %d out of range 1..%d", px, MaxPixels)
	}
	for _, c := range Classes {
		if px <= c.Pixels {
			return c, nil
		}
	}
	return XXLarge, nil
}

// ParseSizeClass looks up a class by directory name, case-insensitively.
func ParseSizeClass(name string) (SizeClass, error) {
	for _, c := range Classes {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return SizeClass{}, fmt.Errorf("unknown size class %q", name)
}

// ClassNames returns the directory names of all classes.
func ClassNames() []string {
	names := make([]string, len(Classes))
	for i, c := range Classes {
		names[i] = c.Name
	}
	return names
}
