package stream_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/transmit/core/stream"
)

// syncRecorder is an httptest.ResponseRecorder safe for reading while the
// stream is being served.
type syncRecorder struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{rec: httptest.NewRecorder()}
}

func (r *syncRecorder) Header() http.Header { return r.rec.Header() }

func (r *syncRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Write(b)
}

func (r *syncRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.WriteHeader(code)
}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) Body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Body.String()
}

func (r *syncRecorder) Code() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Code
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewSSE(t *testing.T) {
	t.Parallel()

	t.Run("empty uid", func(t *testing.T) {
		t.Parallel()

		_, err := stream.NewSSE("", httptest.NewRecorder())
		assert.ErrorIs(t, err, stream.ErrEmptyUID)
	})

	t.Run("writer without flusher", func(t *testing.T) {
		t.Parallel()

		_, err := stream.NewSSE("u1", noFlushWriter{httptest.NewRecorder()})
		assert.ErrorIs(t, err, stream.ErrStreamingUnsupported)
	})

	t.Run("serve before open", func(t *testing.T) {
		t.Parallel()

		s, err := stream.NewSSE("u1", httptest.NewRecorder())
		require.NoError(t, err)
		assert.ErrorIs(t, s.Serve(context.Background()), stream.ErrNotOpen)
	})
}

func TestSSE_Open(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	s, err := stream.NewSSE("u1", w, stream.WithReconnectTime(3000))
	require.NoError(t, err)

	extra := http.Header{}
	extra.Set("X-Custom", "yes")
	require.NoError(t, s.Open(extra))
	assert.ErrorIs(t, s.Open(nil), stream.ErrAlreadyOpen)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, "yes", w.Header().Get("X-Custom"))

	body := w.Body.String()
	assert.Contains(t, body, "retry: 3000\n\n")
	assert.Contains(t, body, ": connected\n\n")
}

func TestSSE_Serve(t *testing.T) {
	t.Parallel()

	t.Run("writes queued messages as data frames", func(t *testing.T) {
		t.Parallel()

		w := newSyncRecorder()
		s, err := stream.NewSSE("u1", w,
			stream.WithoutKeepAlive(),
			stream.WithEventName("message"),
			stream.WithEventIDGenerator(func() string { return "evt-1" }),
		)
		require.NoError(t, err)
		require.NoError(t, s.Open(nil))

		require.NoError(t, s.Write(stream.Message{Channel: "room/42", Payload: stream.Payload{"x": 1}}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Serve(ctx) }()

		require.Eventually(t, func() bool {
			return strings.Contains(w.Body(), `data: {"channel":"room/42","payload":{"x":1}}`+"\n\n")
		}, time.Second, 5*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		body := w.Body()
		assert.Contains(t, body, "event: message\n")
		assert.Contains(t, body, "id: evt-1\n")
		assert.True(t, s.Closed())
	})

	t.Run("drops unencodable message and keeps serving", func(t *testing.T) {
		t.Parallel()

		w := newSyncRecorder()
		s, err := stream.NewSSE("u1", w, stream.WithoutKeepAlive())
		require.NoError(t, err)
		require.NoError(t, s.Open(nil))

		require.NoError(t, s.Write(stream.Message{Channel: "news", Payload: stream.Payload{"x": math.Inf(1)}}))
		require.NoError(t, s.Write(stream.Message{Channel: "news", Payload: stream.Payload{"x": 2}}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Serve(ctx) }()

		require.Eventually(t, func() bool {
			return strings.Contains(w.Body(), `data: {"channel":"news","payload":{"x":2}}`)
		}, time.Second, 5*time.Millisecond)
		assert.False(t, s.Closed())

		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, 1, strings.Count(w.Body(), "data: "))
	})

	t.Run("keepalive comments", func(t *testing.T) {
		t.Parallel()

		w := newSyncRecorder()
		s, err := stream.NewSSE("u1", w, stream.WithKeepAlive(20*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, s.Open(nil))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		require.NoError(t, s.Serve(ctx))
		assert.Contains(t, w.Body(), ": keepalive\n\n")
	})

	t.Run("close from another goroutine stops serve", func(t *testing.T) {
		t.Parallel()

		s, err := stream.NewSSE("u1", newSyncRecorder(), stream.WithoutKeepAlive())
		require.NoError(t, err)
		require.NoError(t, s.Open(nil))

		done := make(chan error, 1)
		go func() { done <- s.Serve(context.Background()) }()

		require.NoError(t, s.Close())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("serve did not return after close")
		}
	})
}

func TestSSE_WriteAfterClose(t *testing.T) {
	t.Parallel()

	s, err := stream.NewSSE("u1", httptest.NewRecorder())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Write(stream.Message{Channel: "a"})
	assert.ErrorIs(t, err, stream.ErrStreamClosed)
}

func TestSSE_BufferFull(t *testing.T) {
	t.Parallel()

	s, err := stream.NewSSE("u1", httptest.NewRecorder(), stream.WithBufferSize(1))
	require.NoError(t, err)

	require.NoError(t, s.Write(stream.Message{Channel: "a"}))
	assert.ErrorIs(t, s.Write(stream.Message{Channel: "a"}), stream.ErrBufferFull)
}

func TestSSE_OnClose(t *testing.T) {
	t.Parallel()

	t.Run("callbacks run once in order", func(t *testing.T) {
		t.Parallel()

		s, err := stream.NewSSE("u1", httptest.NewRecorder())
		require.NoError(t, err)

		var order []int
		s.OnClose(func() { order = append(order, 1) })
		s.OnClose(func() { panic("boom") })
		s.OnClose(func() { order = append(order, 3) })

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.Equal(t, []int{1, 3}, order)
	})

	t.Run("registered after close runs immediately", func(t *testing.T) {
		t.Parallel()

		s, err := stream.NewSSE("u1", httptest.NewRecorder())
		require.NoError(t, err)
		require.NoError(t, s.Close())

		var called atomic.Bool
		s.OnClose(func() { called.Store(true) })
		assert.True(t, called.Load())
	})
}
