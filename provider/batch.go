package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"trafego/trafegodns/types"
)

// BatchEnsure is the shared reconciliation pass: given the desired
// specs for one provider it computes and applies the minimal
// create/update/no-op set. Every spec is processed independently; a
// failing record is recorded in the result and never aborts the rest
// of the batch.
//
// The returned error is non-nil only when the initial cache refresh
// failed; the pass still runs against the retained snapshot
// (stale-but-usable over empty-but-wrong).
func BatchEnsure(ctx context.Context, p Provider, specs []types.DesiredRecordSpec) (types.BatchResult, error) {
	var result types.BatchResult
	if len(specs) == 0 {
		return result, nil
	}

	info := p.Info()
	zone := p.ZoneName()

	logDuplicates(zone, specs)

	// Refresh once at the start so decisions are made against current
	// provider state, not a potentially hours-old cache.
	var refreshErr error
	if _, err := p.RefreshRecordCache(ctx); err != nil {
		refreshErr = fmt.Errorf("%s: refresh before batch: %w", info.Type, err)
		slog.Warn("cache refresh failed, reconciling against previous snapshot",
			"provider", info.Type, "zone", zone, "err", err)
	}

	decider, hasDecider := p.(UpdateDecider)

	for _, spec := range specs {
		if err := ValidateSpec(info, spec); err != nil {
			result.Errors = append(result.Errors, types.BatchError{Record: spec, Error: err.Error()})
			continue
		}

		normalized := spec
		normalized.Name = EnsureFQDN(spec.Name, zone)
		normalized.TTL = ClampTTL(info, spec.TTL)

		existing, err := findExisting(ctx, p, normalized)
		if err != nil {
			result.Errors = append(result.Errors, types.BatchError{Record: spec, Error: err.Error()})
			continue
		}

		switch {
		case existing == nil:
			created, err := p.CreateRecord(ctx, normalized)
			if err != nil {
				result.Errors = append(result.Errors, types.BatchError{Record: spec, Error: err.Error()})
				continue
			}
			result.Created = append(result.Created, *created)

		case needsUpdate(decider, hasDecider, *existing, normalized):
			updated, err := p.UpdateRecord(ctx, existing.Key(), normalized)
			if err != nil {
				result.Errors = append(result.Errors, types.BatchError{Record: spec, Error: err.Error()})
				continue
			}
			result.Updated = append(result.Updated, *updated)

		default:
			result.Unchanged = append(result.Unchanged, *existing)
		}
	}

	// Counts only; a fully idempotent pass stays silent.
	if result.HasChanges() {
		slog.Info("reconciliation pass applied changes",
			"provider", info.Type,
			"zone", zone,
			"created", len(result.Created),
			"updated", len(result.Updated),
			"unchanged", len(result.Unchanged),
			"errors", len(result.Errors),
		)
	}

	return result, refreshErr
}

func needsUpdate(decider UpdateDecider, ok bool, existing types.DNSRecord, desired types.DesiredRecordSpec) bool {
	if ok {
		return decider.NeedsUpdate(existing, desired)
	}
	return NeedsUpdate(existing, desired)
}

// findExisting looks up the cached record matching the normalized
// spec's (type, name), case-insensitive on name.
func findExisting(ctx context.Context, p Provider, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	records, err := p.ListRecords(ctx, Filter{Type: spec.Type, Name: spec.Name})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// logDuplicates reports duplicate (type, name) pairs within the input.
// Duplicates are processed in order, so only the last write for a key
// wins against the cache, but all attempts appear in the result.
func logDuplicates(zone string, specs []types.DesiredRecordSpec) {
	seen := make(map[string]int, len(specs))
	for _, s := range specs {
		key := strings.ToUpper(string(s.Type)) + ":" + strings.ToLower(EnsureFQDN(s.Name, zone))
		seen[key]++
	}
	for key, n := range seen {
		if n > 1 {
			slog.Warn("duplicate desired records in batch, last write wins",
				"zone", zone, "key", key, "count", n)
		}
	}
}
