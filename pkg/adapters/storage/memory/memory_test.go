package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, submitted time.Time) *domain.GenerationRecord {
	return &domain.GenerationRecord{
		ID:          id,
		Mode:        domain.ModeTextToImage,
		Prompt:      "prompt " + id,
		Status:      domain.GenerationStatusQueued,
		SubmittedAt: submitted,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := NewInMemoryRecordStorage(time.Hour, 10)
	ctx := context.Background()

	r := record("a", time.Now())
	require.NoError(t, s.SaveRecord(ctx, r))

	r.Status = domain.GenerationStatusSucceeded
	got, err := s.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStatusQueued, got.Status, "stored record must not alias the caller's")

	require.NoError(t, s.SaveRecord(ctx, r))
	got, err = s.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStatusSucceeded, got.Status)

	_, err = s.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, s.SaveRecord(ctx, &domain.GenerationRecord{}))
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := NewInMemoryRecordStorage(time.Hour, 10)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveRecord(ctx, record(fmt.Sprint(i), base.Add(time.Duration(i)*time.Second))))
	}

	list, err := s.ListRecords(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "4", list[0].ID)
	assert.Equal(t, "3", list[1].ID)
	assert.Equal(t, "2", list[2].ID)
}

func TestMaxRecordsEvictsOldest(t *testing.T) {
	s := NewInMemoryRecordStorage(time.Hour, 2)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.SaveRecord(ctx, record(fmt.Sprint(i), base.Add(time.Duration(i)*time.Second))))
	}

	list, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "3", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
}

func TestTTLExpiry(t *testing.T) {
	s := NewInMemoryRecordStorage(time.Minute, 10)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.SaveRecord(ctx, record("a", now)))

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := s.GetRecord(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListRecords(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
