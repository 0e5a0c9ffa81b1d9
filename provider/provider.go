// Package provider defines the contract DNS provider adapters
// implement, the shared record cache, the batch helpers, and the
// registry adapters self-register into.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"trafego/trafegodns/types"
)

// OwnershipMarker is the fixed string stamped into record comments by
// providers that support comment fields. A record carrying this marker
// was created by trafegodns.
const OwnershipMarker = "managed-by=trafegodns"

// Info describes a provider's static capabilities. It is pure data and
// must be constructible without I/O.
type Info struct {
	Type             string             `json:"type"`
	TTLMin           int                `json:"ttl_min"`
	TTLMax           int                `json:"ttl_max"`
	SupportedTypes   []types.RecordType `json:"supported_types"`
	SupportsProxied  bool               `json:"supports_proxied"`
	SupportsComments bool               `json:"supports_comments"`
	BatchOperations  bool               `json:"batch_operations"`
}

// SupportsType reports whether the provider can manage the given
// record type.
func (i Info) SupportsType(rt types.RecordType) bool {
	for _, t := range i.SupportedTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Filter narrows ListRecords results. Zero values match everything.
// Name matching is case-insensitive.
type Filter struct {
	Type types.RecordType
	Name string
}

// Matches reports whether the record passes the filter.
func (f Filter) Matches(r types.DNSRecord) bool {
	if f.Type != "" && f.Type != r.Type {
		return false
	}
	if f.Name != "" && !strings.EqualFold(f.Name, r.Name) {
		return false
	}
	return true
}

// Provider is the contract every DNS vendor adapter implements.
//
// The id passed to UpdateRecord and DeleteRecord is the record's
// identity key: the provider-assigned id when the vendor has one,
// otherwise the composite "name:type" form (types.DNSRecord.Key).
type Provider interface {
	// Info returns static capabilities. Pure, no I/O.
	Info() Info

	// Init validates credentials and zone existence and primes the
	// record cache with one full listing. A *ConfigError return is
	// fatal for this provider instance only.
	Init(ctx context.Context) error

	// TestConnection is a non-destructive liveness probe. It never
	// fails hard; any error maps to false.
	TestConnection(ctx context.Context) bool

	// ZoneName returns the authoritative zone suffix, without a
	// trailing dot.
	ZoneName() string

	// RefreshRecordCache performs a full listing and atomically
	// replaces the cache contents. On failure the previous snapshot
	// is retained and the error surfaced.
	RefreshRecordCache(ctx context.Context) ([]types.DNSRecord, error)

	// ListRecords reads from the cache, refreshing first when the
	// cache is stale or empty.
	ListRecords(ctx context.Context, filter Filter) ([]types.DNSRecord, error)

	// CreateRecord mutates the provider, then updates the cache.
	CreateRecord(ctx context.Context, spec types.DesiredRecordSpec) (*types.DNSRecord, error)

	// UpdateRecord mutates the provider, then updates the cache.
	UpdateRecord(ctx context.Context, id string, spec types.DesiredRecordSpec) (*types.DNSRecord, error)

	// DeleteRecord removes the record from the provider and the cache.
	DeleteRecord(ctx context.Context, id string) error
}

// UpdateDecider is an optional interface adapters implement to
// override the shared NeedsUpdate comparison.
type UpdateDecider interface {
	NeedsUpdate(existing types.DNSRecord, desired types.DesiredRecordSpec) bool
}

// Owns reports whether the record carries the ownership marker. It
// returns false for providers without comment support; ownership is
// never inferred from naming heuristics.
func Owns(info Info, rec types.DNSRecord) bool {
	return info.SupportsComments && strings.Contains(rec.Comment, OwnershipMarker)
}

// Settings is the configuration shape handed to adapter factories.
type Settings struct {
	ID                   string
	Name                 string
	Zone                 string
	Credentials          map[string]string
	CacheRefreshInterval time.Duration
}

// Factory constructs a provider adapter from its settings. Adapters
// register a Factory from init() and are wired up by blank-importing
// the providers package.
type Factory func(s Settings) (Provider, error)

var (
	registryMu sync.Mutex
	factories  = make(map[string]Factory)
)

// Register adds a named adapter factory. It panics on duplicate
// registration, which indicates a programming error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("provider: %q already registered", name))
	}
	factories[name] = f
}

// New looks up the named adapter factory and constructs the provider.
func New(name string, s Settings) (Provider, error) {
	registryMu.Lock()
	f, ok := factories[name]
	var names []string
	if !ok {
		names = make([]string, 0, len(factories))
		for n := range factories {
			names = append(names, n)
		}
	}
	registryMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider: %q (registered: %v)", name, names)
	}
	return f(s)
}
