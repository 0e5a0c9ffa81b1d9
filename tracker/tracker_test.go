package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"trafego/trafegodns/types"
)

func recA(name string) types.DNSRecord {
	return types.DNSRecord{
		ID:      "id-" + name,
		Type:    types.RecordTypeA,
		Name:    name,
		Content: "1.2.3.4",
		TTL:     300,
	}
}

func TestTracker_TrackAndGet(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	if err := tr.Track(ctx, "cf", recA("www.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	entry, err := tr.Get(ctx, "cf", "id-www.example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Get() = nil, want tracked entry")
	}
	if entry.Provider != "cf" || entry.Name != "www.example.com" || entry.Type != types.RecordTypeA {
		t.Errorf("entry = %+v", entry)
	}
	if entry.IsOrphaned {
		t.Error("fresh entry must not be orphaned")
	}

	// Absent entries are (nil, nil), not an error.
	entry, err = tr.Get(ctx, "cf", "missing")
	if err != nil || entry != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", entry, err)
	}
}

func TestTracker_SameNameDifferentProviders(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	rec := recA("www.example.com")
	if err := tr.Track(ctx, "cf", rec); err != nil {
		t.Fatalf("Track(cf) error = %v", err)
	}
	if err := tr.Track(ctx, "r53", rec); err != nil {
		t.Fatalf("Track(r53) error = %v", err)
	}

	all, err := tr.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListAll() = %d entries, want 2 (one per provider)", len(all))
	}

	cf, err := tr.ListByProvider(ctx, "cf")
	if err != nil || len(cf) != 1 {
		t.Errorf("ListByProvider(cf) = %v, %v; want one entry", cf, err)
	}
}

func TestTracker_OrphanLifecycle(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	tr.SetClock(func() time.Time { return now })

	if err := tr.Track(ctx, "cf", recA("old.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := tr.Track(ctx, "cf", recA("www.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	// old.example.com drops out of the desired set.
	desired := map[string]bool{DesiredKey("www.example.com", types.RecordTypeA): true}
	orphaned, reclaimed, err := tr.MarkOrphans(ctx, "cf", desired, nil)
	if err != nil {
		t.Fatalf("MarkOrphans() error = %v", err)
	}
	if orphaned != 1 || reclaimed != 0 {
		t.Fatalf("MarkOrphans() = %d orphaned, %d reclaimed; want 1, 0", orphaned, reclaimed)
	}

	entry, _ := tr.Get(ctx, "cf", "id-old.example.com")
	if entry == nil || !entry.IsOrphaned || entry.OrphanedAt == nil || !entry.OrphanedAt.Equal(t0) {
		t.Fatalf("entry = %+v, want orphaned at t0", entry)
	}

	// A second mark before reclaim must not advance the timestamp.
	now = t0.Add(5 * time.Minute)
	if _, _, err := tr.MarkOrphans(ctx, "cf", desired, nil); err != nil {
		t.Fatalf("second MarkOrphans() error = %v", err)
	}
	entry, _ = tr.Get(ctx, "cf", "id-old.example.com")
	if !entry.OrphanedAt.Equal(t0) {
		t.Errorf("OrphanedAt advanced to %v on re-mark, want %v", entry.OrphanedAt, t0)
	}

	// Within the grace period nothing is deleted.
	grace := 15 * time.Minute
	deletes := 0
	del := func(context.Context, string) error { deletes++; return nil }

	now = t0.Add(14 * time.Minute)
	deleted, failed, err := tr.SweepExpired(ctx, "cf", grace, false, del)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 0 || failed != 0 || deletes != 0 {
		t.Fatalf("sweep at +14m deleted %d, want 0", deleted)
	}

	// Past the grace period the orphan is removed from provider and
	// ledger.
	now = t0.Add(16 * time.Minute)
	deleted, failed, err = tr.SweepExpired(ctx, "cf", grace, false, del)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 1 || failed != 0 || deletes != 1 {
		t.Fatalf("sweep at +16m = %d deleted, %d failed, %d provider deletes; want 1, 0, 1", deleted, failed, deletes)
	}
	if entry, _ := tr.Get(ctx, "cf", "id-old.example.com"); entry != nil {
		t.Errorf("ledger entry survived the sweep: %+v", entry)
	}
	// The still-desired record is untouched.
	if entry, _ := tr.Get(ctx, "cf", "id-www.example.com"); entry == nil || entry.IsOrphaned {
		t.Errorf("desired record affected by sweep: %+v", entry)
	}
}

func TestTracker_ReclaimClearsOrphan(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	if err := tr.Track(ctx, "cf", recA("www.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if _, _, err := tr.MarkOrphans(ctx, "cf", map[string]bool{}, nil); err != nil {
		t.Fatalf("MarkOrphans() error = %v", err)
	}

	// The record comes back before deletion.
	desired := map[string]bool{DesiredKey("www.example.com", types.RecordTypeA): true}
	orphaned, reclaimed, err := tr.MarkOrphans(ctx, "cf", desired, nil)
	if err != nil {
		t.Fatalf("MarkOrphans() error = %v", err)
	}
	if orphaned != 0 || reclaimed != 1 {
		t.Fatalf("MarkOrphans() = %d orphaned, %d reclaimed; want 0, 1", orphaned, reclaimed)
	}
	entry, _ := tr.Get(ctx, "cf", "id-www.example.com")
	if entry.IsOrphaned || entry.OrphanedAt != nil {
		t.Errorf("reclaimed entry = %+v, want orphan state cleared", entry)
	}
}

func TestTracker_ProtectedHostnamesNeverOrphaned(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	if err := tr.Track(ctx, "cf", recA("keep.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := tr.Track(ctx, "cf", recA("sub.wild.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := tr.Track(ctx, "cf", recA("gone.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	protected := NewProtected([]string{"keep.example.com", "*.wild.example.com"})
	orphaned, _, err := tr.MarkOrphans(ctx, "cf", map[string]bool{}, protected)
	if err != nil {
		t.Fatalf("MarkOrphans() error = %v", err)
	}
	if orphaned != 1 {
		t.Fatalf("orphaned = %d, want only the unprotected record", orphaned)
	}
	for _, name := range []string{"keep.example.com", "sub.wild.example.com"} {
		entry, _ := tr.Get(ctx, "cf", "id-"+name)
		if entry == nil || entry.IsOrphaned {
			t.Errorf("protected %s = %+v, want untouched", name, entry)
		}
	}
}

func TestTracker_SweepForceIgnoresGrace(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	if err := tr.Track(ctx, "cf", recA("gone.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if _, _, err := tr.MarkOrphans(ctx, "cf", map[string]bool{}, nil); err != nil {
		t.Fatalf("MarkOrphans() error = %v", err)
	}

	deleted, failed, err := tr.SweepExpired(ctx, "cf", time.Hour, true,
		func(context.Context, string) error { return nil })
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 1 || failed != 0 {
		t.Errorf("force sweep = %d deleted, %d failed; want 1, 0", deleted, failed)
	}
}

func TestTracker_SweepDeleteFailureRetries(t *testing.T) {
	tr := New(NewMemoryStore(), nil)
	ctx := context.Background()

	if err := tr.Track(ctx, "cf", recA("gone.example.com")); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if _, _, err := tr.MarkOrphans(ctx, "cf", map[string]bool{}, nil); err != nil {
		t.Fatalf("MarkOrphans() error = %v", err)
	}

	deleted, failed, err := tr.SweepExpired(ctx, "cf", 0, true,
		func(context.Context, string) error { return errors.New("api down") })
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 0 || failed != 1 {
		t.Fatalf("sweep = %d deleted, %d failed; want 0, 1", deleted, failed)
	}

	// Entry stays orphaned for the next sweep.
	entry, _ := tr.Get(ctx, "cf", "id-gone.example.com")
	if entry == nil || !entry.IsOrphaned {
		t.Fatalf("entry = %+v, want still orphaned", entry)
	}

	deleted, failed, err = tr.SweepExpired(ctx, "cf", 0, true,
		func(context.Context, string) error { return nil })
	if err != nil || deleted != 1 || failed != 0 {
		t.Errorf("retry sweep = %d deleted, %d failed, err %v; want 1, 0, nil", deleted, failed, err)
	}
}

func TestDesiredKey(t *testing.T) {
	tests := []struct {
		name string
		host string
		rt   types.RecordType
		want string
	}{
		{"lowercases host", "WWW.Example.COM", types.RecordTypeA, "www.example.com:A"},
		{"strips trailing dot", "www.example.com.", types.RecordTypeTXT, "www.example.com:TXT"},
		{"uppercases type", "www.example.com", types.RecordType("a"), "www.example.com:A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DesiredKey(tt.host, tt.rt); got != tt.want {
				t.Errorf("DesiredKey(%q, %q) = %q, want %q", tt.host, tt.rt, got, tt.want)
			}
		})
	}
}
