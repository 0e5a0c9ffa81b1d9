package router

import (
	"context"
	"testing"

	"trafego/trafegodns/provider"
	"trafego/trafegodns/types"
)

// zoneProvider is a stub satisfying provider.Provider for routing
// tests; only ZoneName matters here.
type zoneProvider struct {
	zone string
}

func (z *zoneProvider) Info() provider.Info                 { return provider.Info{Type: "stub"} }
func (z *zoneProvider) Init(context.Context) error          { return nil }
func (z *zoneProvider) TestConnection(context.Context) bool { return true }
func (z *zoneProvider) ZoneName() string                    { return z.zone }
func (z *zoneProvider) RefreshRecordCache(context.Context) ([]types.DNSRecord, error) {
	return nil, nil
}
func (z *zoneProvider) ListRecords(context.Context, provider.Filter) ([]types.DNSRecord, error) {
	return nil, nil
}
func (z *zoneProvider) CreateRecord(context.Context, types.DesiredRecordSpec) (*types.DNSRecord, error) {
	return nil, nil
}
func (z *zoneProvider) UpdateRecord(context.Context, string, types.DesiredRecordSpec) (*types.DNSRecord, error) {
	return nil, nil
}
func (z *zoneProvider) DeleteRecord(context.Context, string) error { return nil }

func testRouter() *Router {
	return New(
		&Instance{ID: "cf-main", Name: "cloudflare-main", Provider: &zoneProvider{zone: "example.com"}},
		&Instance{ID: "r53-internal", Name: "route53-internal", Provider: &zoneProvider{zone: "internal.example.com"}},
		&Instance{ID: "cf-backup", Name: "cloudflare-backup", Provider: &zoneProvider{zone: "example.com"}},
		&Instance{ID: "bind", Name: "bind-lab", Provider: &zoneProvider{zone: "lab.example.org"}},
	)
}

func ids(instances []*Instance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRouter_Route(t *testing.T) {
	r := testRouter()

	tests := []struct {
		name     string
		hostname string
		override *Override
		want     []string
	}{
		{
			name:     "longest suffix wins",
			hostname: "db.internal.example.com",
			want:     []string{"r53-internal"},
		},
		{
			name:     "shorter zone when no deeper match",
			hostname: "www.example.com",
			want:     []string{"cf-main", "cf-backup"},
		},
		{
			name:     "hostname equals zone",
			hostname: "example.com",
			want:     []string{"cf-main", "cf-backup"},
		},
		{
			name:     "case and trailing dot normalized",
			hostname: "WWW.Example.COM.",
			want:     []string{"cf-main", "cf-backup"},
		},
		{
			name:     "partial label is not a zone match",
			hostname: "badexample.com",
			want:     nil,
		},
		{
			name:     "no matching zone skips",
			hostname: "www.elsewhere.net",
			want:     nil,
		},
		{
			name:     "override single provider by id",
			hostname: "www.elsewhere.net",
			override: &Override{Provider: "bind"},
			want:     []string{"bind"},
		},
		{
			name:     "override by name",
			hostname: "www.elsewhere.net",
			override: &Override{Provider: "cloudflare-backup"},
			want:     []string{"cf-backup"},
		},
		{
			name:     "override subset",
			hostname: "www.example.com",
			override: &Override{Providers: []string{"cf-main", "bind"}},
			want:     []string{"cf-main", "bind"},
		},
		{
			name:     "override unknown provider skipped",
			hostname: "www.example.com",
			override: &Override{Providers: []string{"nope", "bind"}},
			want:     []string{"bind"},
		},
		{
			name:     "broadcast selects everything",
			hostname: "www.example.com",
			override: &Override{Broadcast: true},
			want:     []string{"cf-main", "r53-internal", "cf-backup", "bind"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(r.Route(tt.hostname, tt.override))
			if !equalIDs(got, tt.want) {
				t.Errorf("Route(%q, %+v) = %v, want %v", tt.hostname, tt.override, got, tt.want)
			}
		})
	}
}

func TestRouter_ByID(t *testing.T) {
	r := testRouter()

	if inst, ok := r.ByID("cf-main"); !ok || inst.ID != "cf-main" {
		t.Errorf("ByID(cf-main) = %v, %v", inst, ok)
	}
	if inst, ok := r.ByID("Route53-Internal"); !ok || inst.ID != "r53-internal" {
		t.Errorf("ByID by name should be case-insensitive, got %v, %v", inst, ok)
	}
	if _, ok := r.ByID("missing"); ok {
		t.Error("ByID(missing) should not resolve")
	}
}

func TestRouter_AddRemove(t *testing.T) {
	r := testRouter()
	r.Remove("bind")
	if _, ok := r.ByID("bind"); ok {
		t.Fatal("removed instance still resolvable")
	}
	if got := len(r.All()); got != 3 {
		t.Errorf("All() = %d instances, want 3", got)
	}

	r.Add(&Instance{ID: "new", Name: "new", Provider: &zoneProvider{zone: "new.example.net"}})
	if got := ids(r.Route("host.new.example.net", nil)); !equalIDs(got, []string{"new"}) {
		t.Errorf("Route after Add = %v, want [new]", got)
	}
}
