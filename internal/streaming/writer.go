package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a line could not be delivered within
	// the configured timeout, or the stream ran past MaxDuration.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the stream completed.
	// This is detected via the request context being canceled.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamClosed indicates that Send was called after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// ContentType is the media type of newline-delimited JSON.
const ContentType = "application/x-ndjson"

// Config configures an EventStream.
type Config struct {
	// WriteTimeout bounds the delivery of a single line. It is enforced
	// through the connection's write deadline when the server supports it.
	WriteTimeout time.Duration
	// MaxDuration is the absolute maximum streaming duration (0 = unlimited)
	MaxDuration time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		MaxDuration:  0,
	}
}

// EventStream writes one JSON value per line and flushes after each, so a
// browser can render results while the rest are still being produced.
type EventStream struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	ctx       context.Context
	config    Config
	startTime time.Time

	mu           sync.Mutex
	buf          bytes.Buffer
	lines        int
	bytesWritten int64
	closed       bool
}

// NewEventStream sets the streaming headers and writes the status line.
func NewEventStream(ctx context.Context, w http.ResponseWriter, config Config) *EventStream {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	return &EventStream{
		w:         w,
		rc:        http.NewResponseController(w),
		ctx:       ctx,
		config:    config,
		startTime: time.Now(),
	}
}

// Send encodes v as one line and flushes it to the client.
func (s *EventStream) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if s.ctx.Err() != nil {
		return ErrClientGone
	}
	if s.config.MaxDuration > 0 && time.Since(s.startTime) > s.config.MaxDuration {
		return ErrWriteTimeout
	}

	s.buf.Reset()
	if err := json.NewEncoder(&s.buf).Encode(v); err != nil {
		return err
	}

	if s.config.WriteTimeout > 0 {
		// Unsupported deadlines (recorders, some wrappers) leave writes unbounded.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	n, err := s.w.Write(s.buf.Bytes())
	s.bytesWritten += int64(n)
	if err == nil {
		err = s.rc.Flush()
		if errors.Is(err, http.ErrNotSupported) {
			err = nil
		}
	}
	if err != nil {
		return s.classify(err)
	}

	s.lines++
	return nil
}

func (s *EventStream) classify(err error) error {
	switch {
	case s.ctx.Err() != nil:
		return ErrClientGone
	case errors.Is(err, context.DeadlineExceeded):
		return ErrWriteTimeout
	default:
		return err
	}
}

// Close marks the stream finished and clears the write deadline.
func (s *EventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.config.WriteTimeout > 0 {
		_ = s.rc.SetWriteDeadline(time.Time{})
	}
	return nil
}

// Stats returns streaming statistics
func (s *EventStream) Stats() (lines int, bytesWritten int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines, s.bytesWritten, time.Since(s.startTime)
}
