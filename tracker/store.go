// Package tracker persists which provider records this system owns
// and drives the orphan lifecycle (seen, missing, orphaned, deleted).
package tracker

import (
	"context"

	"trafego/trafegodns/types"
)

// Store is the tracked-record persistence interface. Semantics are
// last-write-wins per key; no cross-key transactions are required.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (*types.TrackedRecord, error)
	Set(ctx context.Context, key string, rec types.TrackedRecord) error
	Delete(ctx context.Context, key string) error
	ListAll(ctx context.Context) ([]types.TrackedRecord, error)
	ListByProvider(ctx context.Context, providerID string) ([]types.TrackedRecord, error)
}

// storeKey scopes a record key to its provider so the same hostname
// tracked at two providers never collides.
func storeKey(providerID, recordKey string) string {
	return providerID + "/" + recordKey
}
