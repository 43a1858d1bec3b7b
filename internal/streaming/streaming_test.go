package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type event struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", cfg.WriteTimeout)
	}
	if cfg.MaxDuration != 0 {
		t.Errorf("MaxDuration = %v, want unlimited", cfg.MaxDuration)
	}
}

func TestEventStreamHeadersAndLines(t *testing.T) {
	w := httptest.NewRecorder()
	s := NewEventStream(context.Background(), w, DefaultConfig())

	for _, ev := range []event{{"a.png", "hit"}, {"b.jpg", "generated"}} {
		if err := s.Send(ev); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	s.Close()

	if ct := w.Header().Get("Content-Type"); ct != ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if !w.Flushed {
		t.Error("expected the recorder to be flushed")
	}

	lines := strings.Split(strings.TrimSuffix(w.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), w.Body.String())
	}
	var got event
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatal(err)
	}
	if got != (event{"b.jpg", "generated"}) {
		t.Errorf("second line = %+v", got)
	}

	n, bytesWritten, _ := s.Stats()
	if n != 2 || bytesWritten != int64(w.Body.Len()) {
		t.Errorf("Stats() = %d lines, %d bytes; body is %d bytes", n, bytesWritten, w.Body.Len())
	}
}

func TestEventStreamErrors(t *testing.T) {
	t.Run("client gone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		s := NewEventStream(ctx, httptest.NewRecorder(), DefaultConfig())
		cancel()
		if err := s.Send(event{}); !errors.Is(err, ErrClientGone) {
			t.Errorf("Send() error = %v, want ErrClientGone", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := NewEventStream(context.Background(), httptest.NewRecorder(), DefaultConfig())
		s.Close()
		s.Close()
		if err := s.Send(event{}); !errors.Is(err, ErrStreamClosed) {
			t.Errorf("Send() error = %v, want ErrStreamClosed", err)
		}
	})

	t.Run("max duration", func(t *testing.T) {
		s := NewEventStream(context.Background(), httptest.NewRecorder(), Config{MaxDuration: time.Millisecond})
		time.Sleep(5 * time.Millisecond)
		if err := s.Send(event{}); !errors.Is(err, ErrWriteTimeout) {
			t.Errorf("Send() error = %v, want ErrWriteTimeout", err)
		}
	})

	t.Run("unencodable", func(t *testing.T) {
		s := NewEventStream(context.Background(), httptest.NewRecorder(), DefaultConfig())
		if err := s.Send(make(chan int)); err == nil {
			t.Error("expected an encoding error")
		}
	})
}

func TestEventStreamOverHTTP(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := NewEventStream(r.Context(), w, DefaultConfig())
		defer s.Close()
		s.Send(event{"first", "hit"})
		<-release
		s.Send(event{"second", "generated"})
	}))
	defer srv.Close()
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	lines := make(chan string)
	go func() {
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	select {
	case line := <-lines:
		if !strings.Contains(line, "first") {
			t.Errorf("first line = %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first line was not delivered before the handler finished")
	}
	unblock()

	if line := <-lines; !strings.Contains(line, "second") {
		t.Errorf("second line = %q", line)
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	errs := []error{ErrWriteTimeout, ErrClientGone, ErrStreamClosed}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("%v matches %v", errs[i], errs[j])
			}
		}
	}
}
