package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testClient connects to REDIS_TEST_ADDR, skipping the test when it is unset
func testClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 14})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStreamsEventBusBroadcast(t *testing.T) {
	client := testClient(t)
	topic := "test." + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(context.Background(), getStreamKey(topic)) })

	bus := NewStreamsEventBus(client, 100, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// an event from before the subscription is not delivered
	require.NoError(t, bus.Publish(ctx, topic, domain.Event{ID: "old", Type: domain.EventTypeGenerationQueued}))

	var mu sync.Mutex
	received := map[string][]string{}
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, bus.Subscribe(ctx, topic, func(ctx context.Context, event domain.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received[name] = append(received[name], event.ID)
			return nil
		}))
	}

	require.NoError(t, bus.Publish(ctx, topic, domain.Event{
		ID:           "new",
		Type:         domain.EventTypeGenerationCompleted,
		GenerationID: "gen-1",
		Timestamp:    time.Now(),
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received["a"]) == 1 && len(received["b"]) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"new"}, received["a"])
	assert.Equal(t, []string{"new"}, received["b"])
}

func TestStreamsEventBusEmptyStream(t *testing.T) {
	client := testClient(t)
	topic := "empty." + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(context.Background(), getStreamKey(topic)) })

	bus := NewStreamsEventBus(client, 100, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// subscribing before the stream exists still sees the first event
	received := make(chan string, 1)
	require.NoError(t, bus.Subscribe(ctx, topic, func(ctx context.Context, event domain.Event) error {
		received <- event.ID
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, topic, domain.Event{ID: "first", Type: domain.EventTypeGenerationQueued}))

	select {
	case id := <-received:
		assert.Equal(t, "first", id)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}
