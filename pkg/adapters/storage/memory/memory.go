package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
)

type entry struct {
	record    domain.GenerationRecord
	expiresAt time.Time
}

// InMemoryRecordStorage implements RecordStorage using an in-memory map.
// It keeps at most maxRecords records, evicting the oldest submissions first.
type InMemoryRecordStorage struct {
	ttl        time.Duration
	maxRecords int
	now        func() time.Time

	mu      sync.RWMutex
	records map[string]*entry
}

// NewInMemoryRecordStorage creates a new in-memory record storage
func NewInMemoryRecordStorage(ttl time.Duration, maxRecords int) *InMemoryRecordStorage {
	return &InMemoryRecordStorage{
		ttl:        ttl,
		maxRecords: maxRecords,
		now:        time.Now,
		records:    make(map[string]*entry),
	}
}

// SaveRecord stores a copy of record, replacing any record with the same ID
func (s *InMemoryRecordStorage) SaveRecord(ctx context.Context, record *domain.GenerationRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.records[record.ID] = &entry{
		record:    *record,
		expiresAt: now.Add(s.ttl),
	}
	s.evict(now)

	return nil
}

// GetRecord returns the record with id
func (s *InMemoryRecordStorage) GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok || s.expired(e, s.now()) {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}

	record := e.record
	return &record, nil
}

// ListRecords returns up to limit records, newest submission first
func (s *InMemoryRecordStorage) ListRecords(ctx context.Context, limit int) ([]*domain.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	records := make([]*domain.GenerationRecord, 0, len(s.records))
	for _, e := range s.records {
		if s.expired(e, now) {
			continue
		}
		record := e.record
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *InMemoryRecordStorage) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.After(e.expiresAt)
}

// evict drops expired records and then the oldest ones above maxRecords.
// Caller must hold the write lock.
func (s *InMemoryRecordStorage) evict(now time.Time) {
	// Expired first
	for id, e := range s.records {
		if s.expired(e, now) {
			delete(s.records, id)
		}
	}

	if s.maxRecords <= 0 || len(s.records) <= s.maxRecords {
		return
	}

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	// Oldest submission first, then drop the surplus from the front
	sort.Slice(ids, func(i, j int) bool {
		return s.records[ids[i]].record.SubmittedAt.Before(s.records[ids[j]].record.SubmittedAt)
	})
	for _, id := range ids[:len(ids)-s.maxRecords] {
		delete(s.records, id)
	}
}
