package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore holds processed records in memory. It implements the
// Store interface and is used by tests and single-node dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*ProcessedRecord
	nextID  int64
}

// NewMemoryStore initializes a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]*ProcessedRecord),
		nextID:  1,
	}
}

// CreateRecords assigns ids and stores copies. The whole batch is
// written under one lock, mirroring the Postgres transaction semantics.
func (s *MemoryStore) CreateRecords(ctx context.Context, records []*ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		rec.ID = s.nextID
		s.nextID++
		recCopy := *rec
		s.records[rec.ID] = &recCopy
	}
	return nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, id int64) (*ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	recCopy := *rec
	return &recCopy, nil
}

func (s *MemoryStore) ListRecords(ctx context.Context) ([]*ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ProcessedRecord, 0, len(s.records))
	for _, rec := range s.records {
		recCopy := *rec
		result = append(result, &recCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdateRecord(ctx context.Context, id int64, rec *ProcessedRecord) (*ProcessedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return nil, nil
	}
	updated := *rec
	updated.ID = id
	s.records[id] = &updated

	recCopy := updated
	return &recCopy, nil
}

func (s *MemoryStore) DeleteRecord(ctx context.Context, id int64) (*ProcessedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	delete(s.records, id)
	recCopy := *rec
	return &recCopy, nil
}
