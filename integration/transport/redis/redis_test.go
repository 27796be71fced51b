package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/transmit/core/transmit"
	redistransport "github.com/dmitrymomot/transmit/integration/transport/redis"
)

// newUnreachableClient returns a client whose commands fail fast.
func newUnreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	tr := redistransport.New(newUnreachableClient(t), redistransport.WithPrefix("test:"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t.Run("invalid message", func(t *testing.T) {
		err := tr.Send(ctx, "relay", transmit.Message{})
		assert.ErrorIs(t, err, transmit.ErrEmptyChannel)
	})

	t.Run("publish failure", func(t *testing.T) {
		err := tr.Send(ctx, "relay", transmit.Message{Channel: "news"})
		assert.ErrorIs(t, err, redistransport.ErrPublishFailed)
	})
}

func TestSubscribeFailure(t *testing.T) {
	t.Parallel()

	tr := redistransport.New(newUnreachableClient(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := tr.Subscribe(ctx, "relay", func([]byte) {})
	assert.ErrorIs(t, err, redistransport.ErrSubscribeFailed)
}

func TestClosed(t *testing.T) {
	t.Parallel()

	tr := redistransport.NewFromConfig(newUnreachableClient(t), redistransport.Config{BufferSize: 10})
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	ctx := context.Background()
	assert.ErrorIs(t, tr.Send(ctx, "relay", transmit.Message{Channel: "news"}), redistransport.ErrClosed)
	assert.ErrorIs(t, tr.Subscribe(ctx, "relay", func([]byte) {}), redistransport.ErrClosed)
}

// TestRoundTrip needs a live server; set REDIS_URL to run it.
func TestRoundTrip(t *testing.T) {
	url := lookupRedisURL(t)

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	defer client.Close()

	tr := redistransport.New(client, redistransport.WithPrefix("transmit-test:"))
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	require.NoError(t, tr.Subscribe(ctx, "relay", func(raw []byte) { got <- raw }))
	require.NoError(t, tr.Send(ctx, "relay", transmit.Message{Channel: "news", Payload: transmit.Payload{"n": 1}}))

	select {
	case raw := <-got:
		msg, err := transmit.DecodeMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, "news", msg.Channel)
		assert.EqualValues(t, 1, msg.Payload["n"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func lookupRedisURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	return url
}
