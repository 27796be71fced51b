package stream_test

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/transmit/core/stream"
)

func TestWebSocket_Stream(t *testing.T) {
	t.Parallel()

	streams := make(chan *stream.WebSocket, 1)
	closed := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := stream.NewWebSocket(r.URL.Query().Get("uid"), w, r,
			stream.WithAllowAnyOrigin(),
			stream.WithoutKeepAlive(),
		)
		if !assert.NoError(t, err) {
			return
		}
		if !assert.NoError(t, s.Open(nil)) {
			return
		}
		s.OnClose(func() { close(closed) })
		streams <- s
		_ = s.Serve(r.Context())
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?uid=u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var s *stream.WebSocket
	select {
	case s = <-streams:
	case <-time.After(time.Second):
		t.Fatal("stream was not created")
	}
	assert.Equal(t, "u1", s.UID())

	require.NoError(t, s.Write(stream.Message{Channel: "news", Payload: stream.Payload{"x": math.NaN()}}))
	require.NoError(t, s.Write(stream.Message{Channel: "news", Payload: stream.Payload{"x": "y"}}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var got stream.Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "news", got.Channel)
	assert.Equal(t, "y", got.Payload["x"])

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("stream did not close after client disconnect")
	}
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.Write(stream.Message{Channel: "news"}), stream.ErrStreamClosed)
}

func TestWebSocket_OpenRejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := stream.NewWebSocket("u1", w, r)
	require.NoError(t, err)
	assert.Error(t, s.Open(nil))
	assert.ErrorIs(t, s.Serve(r.Context()), stream.ErrNotOpen)
}
