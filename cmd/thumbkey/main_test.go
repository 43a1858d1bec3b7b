package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"background-picker/internal/ledger"
	"background-picker/internal/mediatypes"
	"background-picker/internal/testutil"
	"background-picker/internal/thumbcache"
)

type env struct {
	cache  string
	ledger string
}

func setupEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		cache:  filepath.Join(dir, "thumbnails"),
		ledger: filepath.Join(dir, "ledger.db"),
	}
	t.Setenv("THUMBNAIL_CACHE_DIR", e.cache)
	t.Setenv("LEDGER_PATH", e.ledger)
	return e
}

func runCmd(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestUsage(t *testing.T) {
	setupEnv(t)

	code, out, _ := runCmd(t)
	if code != 1 || !strings.Contains(out, "Usage: thumbkey") {
		t.Errorf("no args: code %d, output %q", code, out)
	}

	code, out, _ = runCmd(t, "help")
	if code != 0 || !strings.Contains(out, "failures [limit]") {
		t.Errorf("help: code %d, output %q", code, out)
	}

	code, _, errOut := runCmd(t, "drop;table")
	if code != 1 || !strings.Contains(errOut, "Unknown command: drop_table") {
		t.Errorf("unknown: code %d, stderr %q", code, errOut)
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"key", "key"},
		{"with space", "with_space"},
		{"a\nb", "a_b"},
		{"über", "_ber"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeCommand(tt.in); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyStates(t *testing.T) {
	e := setupEnv(t)
	src := filepath.Join(t.TempDir(), "My Picture.png")
	testutil.WriteImage(t, src, 32, 32, "png")
	mtime := time.Unix(1700000000, 0)
	testutil.Touch(t, src, mtime)

	uri, err := thumbcache.URI(src)
	if err != nil {
		t.Fatal(err)
	}
	key := thumbcache.DeriveURI(uri)
	store := thumbcache.NewStore(e.cache)

	store1 := func(class thumbcache.SizeClass, mt int64) {
		entry := &thumbcache.Entry{Key: key, Class: class, URI: uri, MTime: mt, Size: -1, Image: testutil.Gradient(8, 8)}
		data, err := store.Encode(entry)
		if err != nil {
			t.Fatal(err)
		}
		entry.Data = data
		if err := store.Store(key, class, entry); err != nil {
			t.Fatal(err)
		}
	}
	store1(thumbcache.Normal, mtime.Unix())
	store1(thumbcache.Large, mtime.Unix()-10)

	code, out, errOut := runCmd(t, "key", src)
	if code != 0 {
		t.Fatalf("code %d, stderr %q", code, errOut)
	}
	for _, want := range []string{
		"URI:  " + uri,
		"Key:  " + key.String(),
		"Image: 32x32 png",
		"%20",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	states := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			states[fields[0]] = fields[1]
		}
	}
	want := map[string]string{"normal": "fresh", "large": "stale", "x-large": "missing", "xx-large": "missing"}
	for class, state := range want {
		if states[class] != state {
			t.Errorf("%s state = %q, want %q", class, states[class], state)
		}
	}
}

func TestStats(t *testing.T) {
	e := setupEnv(t)
	store := thumbcache.NewStore(e.cache)
	for _, name := range []string{"/pics/a.png", "/pics/b.png"} {
		uri, err := thumbcache.URI(name)
		if err != nil {
			t.Fatal(err)
		}
		key := thumbcache.DeriveURI(uri)
		entry := &thumbcache.Entry{Key: key, Class: thumbcache.Large, URI: uri, MTime: 1, Size: -1, Image: testutil.Gradient(8, 8)}
		if err := store.Store(key, thumbcache.Large, entry); err != nil {
			t.Fatal(err)
		}
	}

	code, out, errOut := runCmd(t, "stats")
	if code != 0 {
		t.Fatalf("code %d, stderr %q", code, errOut)
	}
	counts := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); len(fields) == 4 {
			counts[fields[0]] = fields[2]
		}
	}
	if counts["large"] != "2" || counts["normal"] != "0" {
		t.Errorf("entries = %v\n%s", counts, out)
	}

	code, out, _ = runCmd(t, "stats", "LARGE")
	if code != 0 || strings.Contains(out, "normal") || !strings.Contains(out, "large") {
		t.Errorf("filtered stats: code %d\n%s", code, out)
	}

	if code, _, errOut := runCmd(t, "stats", "huge"); code != 1 || !strings.Contains(errOut, "unknown size class") {
		t.Errorf("unknown class: code %d, stderr %q", code, errOut)
	}
}

func TestKeyRequiresFiles(t *testing.T) {
	setupEnv(t)
	if code, _, _ := runCmd(t, "key"); code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}

func TestFailuresAndForget(t *testing.T) {
	e := setupEnv(t)

	code, out, _ := runCmd(t, "failures")
	if code != 0 || !strings.Contains(out, "No recorded failures.") {
		t.Fatalf("empty ledger: code %d, output %q", code, out)
	}

	bad := filepath.Join(t.TempDir(), "bad.jpg")
	testutil.WriteFile(t, bad, testutil.CorruptJPEG())
	uri, err := thumbcache.URI(bad)
	if err != nil {
		t.Fatal(err)
	}

	led, err := ledger.Open(context.Background(), e.ledger)
	if err != nil {
		t.Fatal(err)
	}
	err = led.RecordFailure(context.Background(), ledger.Failure{
		URI: uri, MTime: 1, Path: bad, Format: string(mediatypes.FormatJPEG), Reason: "unexpected EOF",
	})
	led.Close()
	if err != nil {
		t.Fatal(err)
	}

	code, out, _ = runCmd(t, "failures", "10")
	if code != 0 || !strings.Contains(out, bad) || !strings.Contains(out, "unexpected EOF") {
		t.Fatalf("failures: code %d, output %q", code, out)
	}

	if code, _, _ := runCmd(t, "failures", "many"); code != 1 {
		t.Errorf("bad limit code = %d, want 1", code)
	}

	code, out, _ = runCmd(t, "forget", bad)
	if code != 0 || !strings.Contains(out, "Forgot "+bad) {
		t.Fatalf("forget: code %d, output %q", code, out)
	}

	_, out, _ = runCmd(t, "failures")
	if !strings.Contains(out, "No recorded failures.") {
		t.Errorf("failure still listed after forget: %q", out)
	}
}

func TestRuns(t *testing.T) {
	e := setupEnv(t)

	led, err := ledger.Open(context.Background(), e.ledger)
	if err != nil {
		t.Fatal(err)
	}
	_, err = led.RecordRun(context.Background(), ledger.Run{
		StartedAt: time.Now(), Elapsed: 1500 * time.Millisecond, Root: "/walls", Class: "large",
		Cached: 3, Generated: 2, Failed: 1,
	})
	led.Close()
	if err != nil {
		t.Fatal(err)
	}

	code, out, _ := runCmd(t, "runs")
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	for _, want := range []string{"GENERATED", "large", "/walls", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 0); got != "abcdefghij" {
		t.Errorf("no limit: %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("limit 6: %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("short: %q", got)
	}
}
