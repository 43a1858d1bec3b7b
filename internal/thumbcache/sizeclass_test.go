package thumbcache

import "testing"

func TestClassFor(t *testing.T) {
	tests := []struct {
		px      int
		want    SizeClass
		wantErr bool
	}{
		{1, Normal, false},
		{128, Normal, false},
		{129, Large, false},
		{150, Large, false},
		{256, Large, false},
		{500, XLarge, false},
		{1024, XXLarge, false},
		{0, SizeClass{}, true},
		{-5, SizeClass{}, true},
		{1025, SizeClass{}, true},
	}

	for _, tt := range tests {
		got, err := ClassFor(tt.px)
		if (err != nil) != tt.wantErr {
			t.Errorf("ClassFor(%d) error = %v, wantErr %v", tt.px, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ClassFor(%d) = %v, want %v", tt.px, got, tt.want)
		}
	}
}

func TestParseSizeClass(t *testing.T) {
	for _, c := range Classes {
		got, err := ParseSizeClass(c.Name)
		if err != nil || got != c {
			t.Errorf("ParseSizeClass(%q) = %v, %v", c.Name, got, err)
		}
	}
	if got, err := ParseSizeClass("LARGE"); err != nil || got != Large {
		t.Errorf("ParseSizeClass is case-sensitive: %v, %v", got, err)
	}
	if _, err := ParseSizeClass("huge"); err == nil {
		t.Error("ParseSizeClass(huge) succeeded")
	}
}

func TestClassesAscend(t *testing.T) {
	for i := 1; i < len(Classes); i++ {
		if Classes[i].Pixels <= Classes[i-1].Pixels {
			t.Errorf("Classes not ascending at %d", i)
		}
	}
	if len(ClassNames()) != len(Classes) {
		t.Error("ClassNames length mismatch")
	}
}
