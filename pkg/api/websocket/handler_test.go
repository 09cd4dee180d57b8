package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/glimage/pkg/adapters/events/memory"
	"github.com/aescanero/glimage/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleEventStreamFiltersByGeneration(t *testing.T) {
	gin.SetMode(gin.TestMode)

	bus := memory.NewInMemoryEventBus(zap.NewNop())
	defer bus.Close()

	router := gin.New()
	router.GET("/ws", NewHandler(bus, zap.NewNop()).HandleEventStream)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?generation_id=gen-2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait until the handler has subscribed
	require.Eventually(t, func() bool {
		return bus.SubscriberCount(domain.TopicGenerations) == 1
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	for _, id := range []string{"gen-1", "gen-2"} {
		require.NoError(t, bus.Publish(ctx, domain.TopicGenerations, domain.Event{
			ID:           "evt-" + id,
			Type:         domain.EventTypeGenerationCompleted,
			GenerationID: id,
			Timestamp:    time.Now(),
		}))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event domain.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "gen-2", event.GenerationID)
	assert.Equal(t, domain.EventTypeGenerationCompleted, event.Type)
}
