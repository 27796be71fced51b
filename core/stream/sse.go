package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SSE is a Server-Sent Events stream bound to a single HTTP response.
//
// Writes are queued and flushed by Serve, which must run in the request's
// handler goroutine. The response writer is never touched from any other
// goroutine.
type SSE struct {
	*base

	w         http.ResponseWriter
	flusher   http.Flusher
	eventName string
	idGen     func() string
	retry     int
}

// NewSSE creates an SSE stream for the given response writer.
func NewSSE(uid string, w http.ResponseWriter, opts ...Option) (*SSE, error) {
	cfg := newConfig(opts)

	b, err := newBase(uid, cfg)
	if err != nil {
		return nil, err
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	return &SSE{
		base:      b,
		w:         w,
		flusher:   flusher,
		eventName: cfg.eventName,
		idGen:     cfg.idGen,
		retry:     cfg.retry,
	}, nil
}

// Open writes the event-stream headers and the connection preamble.
// Extra headers are copied to the response before the SSE defaults.
func (s *SSE) Open(header http.Header) error {
	if !s.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpen
	}

	h := s.w.Header()
	for k, v := range header {
		h[k] = append([]string(nil), v...)
	}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s.w.WriteHeader(http.StatusOK)

	if s.retry > 0 {
		if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", s.retry); err != nil {
			return fmt.Errorf("failed to write retry field: %w", err)
		}
	}

	if _, err := fmt.Fprint(s.w, ": connected\n\n"); err != nil {
		return fmt.Errorf("failed to write connection message: %w", err)
	}
	s.flusher.Flush()

	return nil
}

// Serve pumps queued messages to the client until ctx is cancelled, the
// stream is closed, or a write fails. The stream is closed on return and
// close callbacks have run by the time Serve returns.
func (s *SSE) Serve(ctx context.Context) error {
	if !s.opened.Load() {
		return ErrNotOpen
	}

	var keepAliveTicker *time.Ticker
	var keepAliveChan <-chan time.Time

	if s.keepAlive > 0 {
		keepAliveTicker = time.NewTicker(s.keepAlive)
		keepAliveChan = keepAliveTicker.C
		defer keepAliveTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown(nil)
			return nil

		case <-s.done:
			return nil

		case <-keepAliveChan:
			if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
				err = fmt.Errorf("failed to send keepalive: %w", err)
				s.shutdown(err)
				return err
			}
			s.flusher.Flush()

		case msg := <-s.queue:
			if keepAliveTicker != nil {
				keepAliveTicker.Reset(s.keepAlive)
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("dropped unencodable message",
					"uid", s.uid, "channel", msg.Channel, "error", err)
				continue
			}

			if err := s.writeEvent(s.w, data); err != nil {
				err = fmt.Errorf("failed to write event: %w", err)
				s.shutdown(err)
				return err
			}
			s.flusher.Flush()
		}
	}
}

// Close closes the stream. Safe to call multiple times.
func (s *SSE) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *SSE) writeEvent(w io.Writer, data []byte) error {
	if s.eventName != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", s.eventName); err != nil {
			return err
		}
	}

	if s.idGen != nil {
		if id := s.idGen(); id != "" {
			if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
