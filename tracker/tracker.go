package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trafego/trafegodns/events"
	"trafego/trafegodns/types"
)

// Tracker is the single writer of the ownership ledger and of the
// orphan flags on its entries. Orphan-state transitions must run under
// the engine's per-provider lock; the Tracker itself does not lock
// across providers.
type Tracker struct {
	store Store
	bus   *events.Bus
	now   func() time.Time
}

// New creates a Tracker over the given store. bus may be nil.
func New(store Store, bus *events.Bus) *Tracker {
	return &Tracker{store: store, bus: bus, now: time.Now}
}

// DesiredKey is the membership key used to diff tracked records
// against a desired set: lowercased FQDN plus the record type.
func DesiredKey(name string, rt types.RecordType) string {
	return strings.ToLower(strings.TrimSuffix(name, ".")) + ":" + strings.ToUpper(string(rt))
}

// Track records ownership of a provider record, creating the ledger
// entry on first create/adopt. Re-tracking an orphaned entry clears
// the orphan flag (the record is reclaimed rather than recreated).
func (t *Tracker) Track(ctx context.Context, providerID string, rec types.DNSRecord) error {
	key := storeKey(providerID, rec.Key())

	existing, err := t.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("tracker: get %s: %w", key, err)
	}

	entry := types.TrackedRecord{
		Provider:  providerID,
		RecordKey: rec.Key(),
		Name:      rec.Name,
		Type:      rec.Type,
	}
	if existing != nil {
		entry.Metadata = existing.Metadata
		if existing.IsOrphaned {
			slog.Info("reclaimed orphaned record", "provider", providerID, "name", rec.Name, "type", rec.Type)
		}
	}

	if err := t.store.Set(ctx, key, entry); err != nil {
		return fmt.Errorf("tracker: set %s: %w", key, err)
	}
	return nil
}

// Untrack removes the ledger entry after a confirmed provider delete.
func (t *Tracker) Untrack(ctx context.Context, providerID, recordKey string) error {
	return t.store.Delete(ctx, storeKey(providerID, recordKey))
}

// Get returns the ledger entry, or nil when the record is not tracked.
func (t *Tracker) Get(ctx context.Context, providerID, recordKey string) (*types.TrackedRecord, error) {
	return t.store.Get(ctx, storeKey(providerID, recordKey))
}

// ListAll returns every ledger entry.
func (t *Tracker) ListAll(ctx context.Context) ([]types.TrackedRecord, error) {
	return t.store.ListAll(ctx)
}

// ListByProvider returns the ledger entries for one provider.
func (t *Tracker) ListByProvider(ctx context.Context, providerID string) ([]types.TrackedRecord, error) {
	return t.store.ListByProvider(ctx, providerID)
}

// MarkOrphans diffs the provider's tracked records against the current
// desired set (keys built with DesiredKey). Entries absent from the
// set are flagged orphaned, stamped at the moment of first detection;
// entries present again before deletion have the flag cleared.
// Protected hostnames are skipped entirely. Returns the counts of
// newly orphaned and reclaimed entries.
func (t *Tracker) MarkOrphans(ctx context.Context, providerID string, desired map[string]bool, protected *Protected) (orphaned, reclaimed int, err error) {
	tracked, err := t.store.ListByProvider(ctx, providerID)
	if err != nil {
		return 0, 0, fmt.Errorf("tracker: list %s: %w", providerID, err)
	}

	for _, entry := range tracked {
		if protected.Match(entry.Name) {
			continue
		}

		inDesired := desired[DesiredKey(entry.Name, entry.Type)]
		switch {
		case inDesired && entry.IsOrphaned:
			entry.IsOrphaned = false
			entry.OrphanedAt = nil
			if err := t.store.Set(ctx, storeKey(providerID, entry.RecordKey), entry); err != nil {
				return orphaned, reclaimed, fmt.Errorf("tracker: reclaim %s: %w", entry.RecordKey, err)
			}
			reclaimed++
			slog.Info("orphaned record reclaimed by desired state",
				"provider", providerID, "name", entry.Name, "type", entry.Type)

		case !inDesired && !entry.IsOrphaned:
			now := t.now()
			entry.IsOrphaned = true
			entry.OrphanedAt = &now
			if err := t.store.Set(ctx, storeKey(providerID, entry.RecordKey), entry); err != nil {
				return orphaned, reclaimed, fmt.Errorf("tracker: orphan %s: %w", entry.RecordKey, err)
			}
			orphaned++
			slog.Info("record no longer desired, marked orphaned",
				"provider", providerID, "name", entry.Name, "type", entry.Type)
			t.publish(events.EventRecordOrphaned, entry)
		}
	}
	return orphaned, reclaimed, nil
}

// SweepExpired deletes orphaned entries whose grace period has
// elapsed, or all orphaned entries when force is set. del performs the
// provider-side delete; on its failure the entry stays orphaned and is
// retried on the next sweep. Returns the counts of deleted and failed
// entries.
func (t *Tracker) SweepExpired(ctx context.Context, providerID string, grace time.Duration, force bool, del func(ctx context.Context, recordKey string) error) (deleted, failed int, err error) {
	tracked, err := t.store.ListByProvider(ctx, providerID)
	if err != nil {
		return 0, 0, fmt.Errorf("tracker: list %s: %w", providerID, err)
	}

	now := t.now()
	for _, entry := range tracked {
		if !entry.IsOrphaned || entry.OrphanedAt == nil {
			continue
		}
		if !force && now.Sub(*entry.OrphanedAt) < grace {
			continue
		}

		if err := del(ctx, entry.RecordKey); err != nil {
			failed++
			slog.Warn("orphan delete failed, will retry next sweep",
				"provider", providerID, "name", entry.Name, "type", entry.Type, "err", err)
			continue
		}
		if err := t.store.Delete(ctx, storeKey(providerID, entry.RecordKey)); err != nil {
			return deleted, failed, fmt.Errorf("tracker: delete %s: %w", entry.RecordKey, err)
		}
		deleted++
		slog.Info("orphaned record deleted",
			"provider", providerID, "name", entry.Name, "type", entry.Type,
			"orphanedFor", now.Sub(*entry.OrphanedAt).String())
		t.publish(events.EventRecordDeleted, entry)
	}
	return deleted, failed, nil
}

// SetClock overrides the time source. Tests use this to exercise the
// grace period.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) publish(eventType events.EventType, entry types.TrackedRecord) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.Event{
		Type:       eventType,
		RecordType: entry.Type,
		Hostname:   entry.Name,
		Details:    map[string]string{"provider": entry.Provider},
	})
}
