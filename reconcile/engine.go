// Package reconcile drives reconciliation passes against providers:
// routing desired entries, serializing passes per provider, feeding
// results into the ownership tracker, and sweeping orphans.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trafego/trafegodns/events"
	"trafego/trafegodns/metrics"
	"trafego/trafegodns/provider"
	"trafego/trafegodns/router"
	"trafego/trafegodns/tracker"
	"trafego/trafegodns/types"
)

// Engine coordinates reconciliation. At most one pass is in flight per
// provider at any time: a trigger arriving while a pass runs joins the
// in-flight pass's result instead of starting a second one. Different
// providers reconcile fully in parallel.
type Engine struct {
	router    *router.Router
	tracker   *tracker.Tracker
	bus       *events.Bus
	protected *tracker.Protected

	mu       sync.Mutex
	states   map[string]*providerState
	lastSync time.Time

	desiredMu sync.RWMutex
	desired   []DesiredEntry

	triggerCh chan struct{}
}

// providerState carries per-provider serialization state. passMu is
// the lock shared between reconciliation passes and orphan sweeps for
// the same provider.
type providerState struct {
	passMu sync.Mutex
	flight *flight
}

// flight is one in-flight pass that concurrent triggers can join.
type flight struct {
	done   chan struct{}
	result types.BatchResult
	err    error
}

// New creates an Engine. bus and protected may be nil.
func New(r *router.Router, tr *tracker.Tracker, bus *events.Bus, protected *tracker.Protected) *Engine {
	return &Engine{
		router:    r,
		tracker:   tr,
		bus:       bus,
		protected: protected,
		states:    make(map[string]*providerState),
		triggerCh: make(chan struct{}, 1),
	}
}

// SetDesired replaces the latest desired set. It does not trigger a
// pass by itself.
func (e *Engine) SetDesired(entries []DesiredEntry) {
	e.desiredMu.Lock()
	defer e.desiredMu.Unlock()
	e.desired = entries
}

// LastSync returns when the most recent pass finished. Zero until the
// first pass completes.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Desired returns the latest desired set.
func (e *Engine) Desired() []DesiredEntry {
	e.desiredMu.RLock()
	defer e.desiredMu.RUnlock()
	out := make([]DesiredEntry, len(e.desired))
	copy(out, e.desired)
	return out
}

// Trigger requests an asynchronous sync. Triggers arriving while one
// is already pending coalesce; none are dropped silently because the
// pending run always observes the latest desired set.
func (e *Engine) Trigger() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

// Run processes the poll timer and manual triggers until the context
// is cancelled. pollInterval <= 0 disables the timer.
func (e *Engine) Run(ctx context.Context, pollInterval time.Duration) {
	var tick <-chan time.Time
	if pollInterval > 0 {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			e.Sync(ctx)
		case <-e.triggerCh:
			e.Sync(ctx)
		}
	}
}

// Sync routes the latest desired set and reconciles every target
// provider, in parallel across providers. The per-provider results are
// keyed by instance id. Specs are processed in input order within one
// provider; there is no ordering guarantee between providers.
func (e *Engine) Sync(ctx context.Context) map[string]types.BatchResult {
	desired := e.Desired()

	type target struct {
		inst        *router.Instance
		specs       []types.DesiredRecordSpec
		desiredKeys map[string]bool
	}
	targets := make(map[string]*target)

	for _, entry := range desired {
		if entry.Skip {
			continue
		}
		for _, inst := range e.router.Route(entry.Hostname, entry.Override) {
			tg, ok := targets[inst.ID]
			if !ok {
				tg = &target{inst: inst, desiredKeys: make(map[string]bool)}
				targets[inst.ID] = tg
			}
			tg.specs = append(tg.specs, entry.spec())
			fqdn := provider.EnsureFQDN(entry.Hostname, inst.Zone())
			tg.desiredKeys[tracker.DesiredKey(fqdn, entry.Type)] = true
		}
	}

	// Providers with desired entries reconcile; providers without any
	// still get their desired-key diff so stale records orphan out.
	for _, inst := range e.router.All() {
		if _, ok := targets[inst.ID]; !ok {
			targets[inst.ID] = &target{inst: inst, desiredKeys: make(map[string]bool)}
		}
	}

	results := make(map[string]types.BatchResult, len(targets))
	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)
	for _, tg := range targets {
		wg.Add(1)
		go func(tg *target) {
			defer wg.Done()
			result, err := e.syncProvider(ctx, tg.inst, tg.specs, tg.desiredKeys)
			if err != nil {
				slog.Warn("reconciliation pass finished with provider error",
					"provider", tg.inst.ID, "err", err)
			}
			resultsMu.Lock()
			results[tg.inst.ID] = result
			resultsMu.Unlock()
		}(tg)
	}
	wg.Wait()

	return results
}

// SyncProvider reconciles a single provider against the latest desired
// set. Unknown ids return ErrProviderNotFound.
func (e *Engine) SyncProvider(ctx context.Context, id string) (types.BatchResult, error) {
	inst, ok := e.router.ByID(id)
	if !ok {
		return types.BatchResult{}, types.ErrProviderNotFound
	}

	var (
		specs       []types.DesiredRecordSpec
		desiredKeys = make(map[string]bool)
	)
	for _, entry := range e.Desired() {
		if entry.Skip {
			continue
		}
		for _, target := range e.router.Route(entry.Hostname, entry.Override) {
			if target.ID != inst.ID {
				continue
			}
			specs = append(specs, entry.spec())
			fqdn := provider.EnsureFQDN(entry.Hostname, inst.Zone())
			desiredKeys[tracker.DesiredKey(fqdn, entry.Type)] = true
		}
	}

	return e.syncProvider(ctx, inst, specs, desiredKeys)
}

// syncProvider runs one serialized pass. A concurrent trigger for the
// same provider joins the in-flight pass and receives its result; no
// second set of provider API calls is made.
func (e *Engine) syncProvider(ctx context.Context, inst *router.Instance, specs []types.DesiredRecordSpec, desiredKeys map[string]bool) (types.BatchResult, error) {
	e.mu.Lock()
	st := e.stateFor(inst.ID)
	if st.flight != nil {
		f := st.flight
		e.mu.Unlock()
		<-f.done
		return f.result, f.err
	}
	f := &flight{done: make(chan struct{})}
	st.flight = f
	e.mu.Unlock()

	st.passMu.Lock()
	result, err := provider.BatchEnsure(ctx, inst.Provider, specs)

	metrics.SyncPasses.WithLabelValues(inst.ID).Inc()
	if err != nil {
		metrics.CacheRefreshFailures.WithLabelValues(inst.ID).Inc()
	}

	// If the provider was removed while the pass ran, discard the
	// results instead of applying them to tracking.
	if _, stillConfigured := e.router.ByID(inst.ID); stillConfigured {
		e.applyTracking(ctx, inst, result, desiredKeys)
	} else {
		slog.Info("provider removed mid-pass, discarding results", "provider", inst.ID)
	}
	st.passMu.Unlock()

	e.mu.Lock()
	st.flight = nil
	e.lastSync = time.Now()
	e.mu.Unlock()

	f.result, f.err = result, err
	close(f.done)
	return result, err
}

// applyTracking feeds a pass result into the ownership ledger and
// emits outbound events. Runs under the per-provider pass lock.
func (e *Engine) applyTracking(ctx context.Context, inst *router.Instance, result types.BatchResult, desiredKeys map[string]bool) {
	for _, rec := range result.Created {
		if err := e.tracker.Track(ctx, inst.ID, rec); err != nil {
			slog.Error("tracking created record failed", "provider", inst.ID, "name", rec.Name, "err", err)
		}
		metrics.RecordsChanged.WithLabelValues(inst.ID, "create").Inc()
		e.publish(events.EventRecordCreated, inst.ID, rec)
	}
	for _, rec := range result.Updated {
		if err := e.tracker.Track(ctx, inst.ID, rec); err != nil {
			slog.Error("tracking updated record failed", "provider", inst.ID, "name", rec.Name, "err", err)
		}
		metrics.RecordsChanged.WithLabelValues(inst.ID, "update").Inc()
		e.publish(events.EventRecordUpdated, inst.ID, rec)
	}
	for _, rec := range result.Unchanged {
		// Adopt unchanged records stamped with our ownership marker
		// that are not yet in the ledger.
		if !provider.Owns(inst.Provider.Info(), rec) {
			continue
		}
		tracked, err := e.tracker.Get(ctx, inst.ID, rec.Key())
		if err != nil {
			slog.Error("ownership lookup failed", "provider", inst.ID, "name", rec.Name, "err", err)
			continue
		}
		if tracked == nil || tracked.IsOrphaned {
			if err := e.tracker.Track(ctx, inst.ID, rec); err != nil {
				slog.Error("adopting record failed", "provider", inst.ID, "name", rec.Name, "err", err)
			}
		}
	}
	if len(result.Errors) > 0 {
		metrics.RecordErrors.WithLabelValues(inst.ID).Add(float64(len(result.Errors)))
	}

	if _, _, err := e.tracker.MarkOrphans(ctx, inst.ID, desiredKeys, e.protected); err != nil {
		slog.Error("orphan marking failed", "provider", inst.ID, "err", err)
	}

	if tracked, err := e.tracker.ListByProvider(ctx, inst.ID); err == nil {
		metrics.TrackedRecords.WithLabelValues(inst.ID).Set(float64(len(tracked)))
	}
}

// lockProvider acquires the per-provider pass lock for callers outside
// a reconciliation pass (the orphan sweep). The caller must invoke the
// returned function to release it.
func (e *Engine) lockProvider(id string) func() {
	e.mu.Lock()
	st := e.stateFor(id)
	e.mu.Unlock()

	st.passMu.Lock()
	return st.passMu.Unlock
}

// desiredKeysFor rebuilds the desired-key set for one instance from
// the latest desired set.
func (e *Engine) desiredKeysFor(inst *router.Instance) map[string]bool {
	keys := make(map[string]bool)
	for _, entry := range e.Desired() {
		if entry.Skip {
			continue
		}
		for _, target := range e.router.Route(entry.Hostname, entry.Override) {
			if target.ID == inst.ID {
				fqdn := provider.EnsureFQDN(entry.Hostname, inst.Zone())
				keys[tracker.DesiredKey(fqdn, entry.Type)] = true
			}
		}
	}
	return keys
}

// stateFor returns the per-provider state, creating it on first use.
// Caller holds e.mu.
func (e *Engine) stateFor(id string) *providerState {
	st, ok := e.states[id]
	if !ok {
		st = &providerState{}
		e.states[id] = st
	}
	return st
}

func (e *Engine) publish(eventType events.EventType, providerID string, rec types.DNSRecord) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:       eventType,
		RecordType: rec.Type,
		Hostname:   rec.Name,
		Details:    map[string]string{"provider": providerID, "content": rec.Content},
	})
}
