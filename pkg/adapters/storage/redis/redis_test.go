package redis

import (
	"context"
	"fmt"
	"os"
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

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestRecordStorage(t *testing.T) {
	client := testClient(t)
	storage := NewRecordStorage(client, time.Hour, 3, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, storage.SaveRecord(ctx, &domain.GenerationRecord{
			ID:          fmt.Sprintf("gen-%d", i),
			Prompt:      "fox",
			Status:      domain.GenerationStatusSucceeded,
			SubmittedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	record, err := storage.GetRecord(ctx, "gen-4")
	require.NoError(t, err)
	assert.Equal(t, "fox", record.Prompt)

	_, err = storage.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// the index keeps only the newest three
	records, err := storage.ListRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "gen-4", records[0].ID)
	assert.Equal(t, "gen-2", records[2].ID)
}

func TestRecordStorageTrimAndResave(t *testing.T) {
	client := testClient(t)
	storage := NewRecordStorage(client, time.Hour, 2, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	records := make([]*domain.GenerationRecord, 3)
	for i := range records {
		records[i] = &domain.GenerationRecord{
			ID:          fmt.Sprintf("gen-%d", i),
			Status:      domain.GenerationStatusQueued,
			SubmittedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, storage.SaveRecord(ctx, records[i]))
	}

	// trimmed from the index but still readable by ID
	_, err := storage.GetRecord(ctx, "gen-0")
	assert.NoError(t, err)

	// a status update on the older record keeps its position
	records[1].Status = domain.GenerationStatusSucceeded
	require.NoError(t, storage.SaveRecord(ctx, records[1]))

	listed, err := storage.ListRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "gen-2", listed[0].ID)
	assert.Equal(t, "gen-1", listed[1].ID)
	assert.Equal(t, domain.GenerationStatusSucceeded, listed[1].Status)
}

func TestRecordStoragePrunesExpired(t *testing.T) {
	client := testClient(t)
	storage := NewRecordStorage(client, time.Hour, 10, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, storage.SaveRecord(ctx, &domain.GenerationRecord{ID: id, SubmittedAt: time.Now()}))
	}
	require.NoError(t, client.Del(ctx, getRecordKey("a")).Err())

	records, err := storage.ListRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)

	count, err := client.ZCard(ctx, indexKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
