package reconcile

import (
	"context"
	"log/slog"
	"time"

	"trafego/trafegodns/metrics"
	"trafego/trafegodns/types"
)

const (
	// DefaultGracePeriod is how long a record stays orphaned before it
	// becomes eligible for deletion.
	DefaultGracePeriod = 15 * time.Minute

	// DefaultSweepInterval is how often the sweeper checks for expired
	// orphans.
	DefaultSweepInterval = 5 * time.Minute
)

// SweepStats summarizes one sweep over a single provider.
type SweepStats struct {
	Provider string `json:"provider"`
	Deleted  int    `json:"deleted"`
	Failed   int    `json:"failed"`
}

// Cleaner periodically deletes orphaned records whose grace period has
// expired. Sweeps take the same per-provider lock as reconciliation
// passes, so a sweep never interleaves with a pass for the same
// provider.
type Cleaner struct {
	engine   *Engine
	grace    time.Duration
	interval time.Duration
}

// NewCleaner creates a Cleaner. Non-positive grace or interval fall
// back to the defaults.
func NewCleaner(engine *Engine, grace, interval time.Duration) *Cleaner {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Cleaner{engine: engine, grace: grace, interval: interval}
}

// Grace returns the configured grace period.
func (c *Cleaner) Grace() time.Duration { return c.grace }

// Run sweeps on the configured interval until the context is
// cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepAll(ctx, false)
		}
	}
}

// SweepAll sweeps every configured provider. force deletes all
// orphans immediately, ignoring the grace period; protected hostnames
// are never deleted either way because they are never marked orphaned.
func (c *Cleaner) SweepAll(ctx context.Context, force bool) []SweepStats {
	var stats []SweepStats
	for _, inst := range c.engine.router.All() {
		st, err := c.SweepProvider(ctx, inst.ID, force)
		if err != nil {
			slog.Error("orphan sweep failed", "provider", inst.ID, "err", err)
			continue
		}
		stats = append(stats, st)
	}
	return stats
}

// SweepProvider sweeps a single provider.
func (c *Cleaner) SweepProvider(ctx context.Context, id string, force bool) (SweepStats, error) {
	inst, ok := c.engine.router.ByID(id)
	if !ok {
		return SweepStats{}, types.ErrProviderNotFound
	}

	unlock := c.engine.lockProvider(inst.ID)
	defer unlock()

	// Re-derive the desired set under the lock so a record that came
	// back since the last pass is reclaimed, not deleted.
	desiredKeys := c.engine.desiredKeysFor(inst)
	if _, _, err := c.engine.tracker.MarkOrphans(ctx, inst.ID, desiredKeys, c.engine.protected); err != nil {
		return SweepStats{}, err
	}

	deleted, failed, err := c.engine.tracker.SweepExpired(ctx, inst.ID, c.grace, force,
		func(ctx context.Context, recordKey string) error {
			return inst.Provider.DeleteRecord(ctx, recordKey)
		})
	if err != nil {
		return SweepStats{}, err
	}
	if deleted > 0 {
		metrics.OrphansDeleted.WithLabelValues(inst.ID).Add(float64(deleted))
	}
	if tracked, lerr := c.engine.tracker.ListByProvider(ctx, inst.ID); lerr == nil {
		metrics.TrackedRecords.WithLabelValues(inst.ID).Set(float64(len(tracked)))
	}
	return SweepStats{Provider: inst.ID, Deleted: deleted, Failed: failed}, nil
}
