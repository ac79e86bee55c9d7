package conversations

import (
	"context"
	"slices"
	"sync"
)

// InMemoryStore keeps records in process memory. Useful for tests and for
// running without persistence.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: map[string][]Record{}}
}

func (s *InMemoryStore) Latest(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[sessionID]
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[len(records)-1], nil
}

func (s *InMemoryStore) Append(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record.ID = s.nextID
	s.records[record.SessionID] = append(s.records[record.SessionID], record)
	return nil
}

// Records returns a copy of every record of sessionID, oldest first.
func (s *InMemoryStore) Records(sessionID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records[sessionID])
}

func (s *InMemoryStore) Close() error { return nil }

var _ Store = (*InMemoryStore)(nil)
