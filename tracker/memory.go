package tracker

import (
	"context"
	"sync"

	"trafego/trafegodns/types"
)

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]types.TrackedRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]types.TrackedRecord)}
}

// Get returns the entry for key, or (nil, nil) when absent.
func (s *MemoryStore) Get(_ context.Context, key string) (*types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Set stores the entry under key, replacing any previous value.
func (s *MemoryStore) Set(_ context.Context, key string, rec types.TrackedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = rec
	return nil
}

// Delete removes the entry for key. Deleting an absent key is a no-op.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ListAll returns every tracked entry.
func (s *MemoryStore) ListAll(_ context.Context) ([]types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TrackedRecord, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec)
	}
	return out, nil
}

// ListByProvider returns the tracked entries owned via one provider.
func (s *MemoryStore) ListByProvider(_ context.Context, providerID string) ([]types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TrackedRecord
	for _, rec := range s.entries {
		if rec.Provider == providerID {
			out = append(out, rec)
		}
	}
	return out, nil
}
