package provider

import (
	"strings"
	"sync"
	"time"

	"trafego/trafegodns/types"
)

// Cache is the per-provider in-memory snapshot of provider-held
// records. Readers always see either the old or the new fully-formed
// snapshot, never a partial one. lastUpdated only advances after a
// successful full listing; a failed refresh leaves the previous
// snapshot intact.
type Cache struct {
	mu          sync.RWMutex
	records     []types.DNSRecord
	lastUpdated time.Time
	maxAge      time.Duration
}

// DefaultCacheMaxAge is used when no refresh interval is configured.
const DefaultCacheMaxAge = time.Hour

// NewCache creates a Cache with the given staleness window.
func NewCache(maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &Cache{maxAge: maxAge}
}

// Replace swaps in a new full snapshot and advances lastUpdated.
func (c *Cache) Replace(records []types.DNSRecord) {
	snapshot := make([]types.DNSRecord, len(records))
	copy(snapshot, records)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = snapshot
	c.lastUpdated = time.Now()
}

// Snapshot returns a copy of the cached records.
func (c *Cache) Snapshot() []types.DNSRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.DNSRecord, len(c.records))
	copy(out, c.records)
	return out
}

// List returns cached records passing the filter.
func (c *Cache) List(filter Filter) []types.DNSRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.DNSRecord
	for _, r := range c.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Find looks up a record by type and name, case-insensitive on name.
func (c *Cache) Find(rt types.RecordType, name string) (types.DNSRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.Type == rt && strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return types.DNSRecord{}, false
}

// Upsert inserts or replaces a record after a successful mutation,
// matched by identity key.
func (c *Cache) Upsert(rec types.DNSRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := rec.Key()
	for i, r := range c.records {
		if r.Key() == key {
			c.records[i] = rec
			return
		}
	}
	c.records = append(c.records, rec)
}

// Remove drops a record by identity key after a successful delete.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.records {
		if r.Key() == key {
			c.records = append(c.records[:i], c.records[i+1:]...)
			return
		}
	}
}

// Stale reports whether the snapshot is empty or past its staleness
// window.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastUpdated.IsZero() {
		return true
	}
	return time.Since(c.lastUpdated) > c.maxAge
}

// LastUpdated returns the time of the last successful full listing.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
