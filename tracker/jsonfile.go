package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"trafego/trafegodns/types"
)

// JSONFileStore is a Store backed by a JSON file. The full ledger is
// held in memory; every mutation is persisted with an atomic write
// (temp file, then rename).
type JSONFileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]types.TrackedRecord
}

// NewJSONFileStore loads the ledger from path. A missing file starts
// an empty ledger.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	s := &JSONFileStore{
		path:    path,
		entries: make(map[string]types.TrackedRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("tracked-record file not found, starting empty", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("read tracked-record file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("unmarshal tracked-record file: %w", err)
	}
	return s, nil
}

// Get returns the entry for key, or (nil, nil) when absent.
func (s *JSONFileStore) Get(_ context.Context, key string) (*types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Set stores the entry under key and persists the ledger.
func (s *JSONFileStore) Set(_ context.Context, key string, rec types.TrackedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = rec
	return s.persistLocked()
}

// Delete removes the entry for key and persists the ledger.
func (s *JSONFileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.persistLocked()
}

// ListAll returns every tracked entry.
func (s *JSONFileStore) ListAll(_ context.Context) ([]types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TrackedRecord, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec)
	}
	return out, nil
}

// ListByProvider returns the tracked entries owned via one provider.
func (s *JSONFileStore) ListByProvider(_ context.Context, providerID string) ([]types.TrackedRecord, error) {
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

// persistLocked writes the ledger atomically. Caller holds the write
// lock.
func (s *JSONFileStore) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracked records: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".trafegodns-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
