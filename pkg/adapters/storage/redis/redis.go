package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const indexKey = "glimage:generations"

// RecordStorage implements RecordStorage using Redis.
// Records are JSON strings with a TTL; a sorted set scored by submission time
// indexes them for listing.
type RecordStorage struct {
	client     *redis.Client
	logger     *zap.Logger
	ttl        time.Duration
	maxRecords int64
}

// NewRecordStorage creates a new Redis record storage
func NewRecordStorage(client *redis.Client, ttl time.Duration, maxRecords int, logger *zap.Logger) *RecordStorage {
	return &RecordStorage{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		maxRecords: int64(maxRecords),
	}
}

// SaveRecord persists a record with the configured TTL
func (s *RecordStorage) SaveRecord(ctx context.Context, record *domain.GenerationRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record ID is required")
	}

	// Serialize record
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// Store record and index it atomically
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, getRecordKey(record.ID), data, s.ttl)
	// Re-saving keeps the submission score, so updates do not reorder the index
	pipe.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(record.SubmittedAt.UnixNano()),
		Member: record.ID,
	})
	// Trim the index to the newest maxRecords: ranks run oldest first, so
	// 0..-maxRecords-1 is everything older than the last maxRecords entries.
	// Trimmed records stay readable by ID until their TTL.
	if s.maxRecords > 0 {
		pipe.ZRemRangeByRank(ctx, indexKey, 0, -s.maxRecords-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Debug("record saved",
		zap.String("generation_id", record.ID),
		zap.String("status", string(record.Status)))

	return nil
}

// GetRecord retrieves a record by ID
func (s *RecordStorage) GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	data, err := s.client.Get(ctx, getRecordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var record domain.GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &record, nil
}

// ListRecords returns up to limit records, newest submission first.
// Index entries whose record has expired are pruned.
func (s *RecordStorage) ListRecords(ctx context.Context, limit int) ([]*domain.GenerationRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	// Newest first
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.GenerationRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = getRecordKey(id)
	}

	// Fetch all records in one round trip; expired ones come back nil
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}

	records := make([]*domain.GenerationRecord, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var record domain.GenerationRecord
		if err := json.Unmarshal([]byte(str), &record); err != nil {
			s.logger.Warn("skipping malformed record",
				zap.String("generation_id", ids[i]),
				zap.Error(err))
			continue
		}
		records = append(records, &record)
	}

	// Drop index entries whose record expired
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune expired records", zap.Error(err))
		}
	}

	return records, nil
}

// getRecordKey returns the Redis key for a generation record
func getRecordKey(id string) string {
	return fmt.Sprintf("glimage:generation:%s", id)
}
