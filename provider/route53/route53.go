// Package route53 implements the provider contract over AWS Route 53.
// Route 53 has no per-record ids; records are identified by the
// composite "name:type" key, and mutations go through atomic
// ChangeResourceRecordSets batches.
package route53

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"trafego/trafegodns/provider"
	"trafego/trafegodns/types"
)

func init() {
	provider.Register("route53", func(s provider.Settings) (provider.Provider, error) {
		return New(s)
	})
}

// requestTimeout bounds each SDK call so a stalled connection cannot
// hang a reconciliation pass.
const requestTimeout = 30 * time.Second

// api is the subset of the Route 53 client the adapter uses. Tests
// substitute a fake.
type api interface {
	ListHostedZonesByName(ctx context.Context, in *route53.ListHostedZonesByNameInput, opts ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
	ListResourceRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput, opts ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, opts ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Provider is the Route 53 adapter.
type Provider struct {
	name   string
	zone   string
	zoneID string
	region string
	client api
	cache  *provider.Cache
}

// New creates a Route 53 provider from settings. Credentials come from
// the standard AWS chain (environment, shared config, instance role);
// the optional "region" setting overrides the chain's region.
func New(s provider.Settings) (*Provider, error) {
	if s.Zone == "" {
		return nil, &provider.ConfigError{Provider: "route53", Reason: "missing zone name"}
	}
	return &Provider{
		name:   s.Name,
		zone:   strings.TrimSuffix(s.Zone, "."),
		region: s.Credentials["region"],
		cache:  provider.NewCache(s.CacheRefreshInterval),
	}, nil
}

// Info returns Route 53's static capabilities.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Type:            "route53",
		TTLMin:          60,
		TTLMax:          172800,
		BatchOperations: true,
		SupportedTypes: []types.RecordType{
			types.RecordTypeA, types.RecordTypeAAAA, types.RecordTypeCNAME,
			types.RecordTypeMX, types.RecordTypeTXT, types.RecordTypeNS,
			types.RecordTypeSRV, types.RecordTypeCAA,
		},
	}
}

// ZoneName returns the configured zone.
func (p *Provider) ZoneName() string { return p.zone }

// Init builds the AWS client, resolves the hosted zone id, and primes
// the record cache.
func (p *Provider) Init(ctx context.Context) error {
	if p.client == nil {
		var opts []func(*awsconfig.LoadOptions) error
		if p.region != "" {
			opts = append(opts, awsconfig.WithRegion(p.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return &provider.ConfigError{Provider: "route53", Reason: "loading AWS credentials", Err: err}
		}
		p.client = route53.NewFromConfig(cfg)
	}

	id, err := p.lookupZoneID(ctx)
	if err != nil {
		return &provider.ConfigError{Provider: "route53", Reason: "hosted zone lookup failed", Err: err}
	}
	if id == "" {
		return &provider.ConfigError{
			Provider: "route53",
			Reason:   fmt.Sprintf("hosted zone %q not found", p.zone),
			Err:      types.ErrZoneNotFound,
		}
	}
	p.zoneID = id

	if _, err := p.RefreshRecordCache(ctx); err != nil {
		return &provider.ConfigError{Provider: "route53", Reason: "initial record listing failed", Err: err}
	}
	return nil
}

// TestConnection probes the hosted zone listing. Any failure maps to
// false.
func (p *Provider) TestConnection(ctx context.Context) bool {
	if p.client == nil {
		return false
	}
	id, err := p.lookupZoneID(ctx)
	return err == nil && id != ""
}

// RefreshRecordCache pages through all record sets and replaces the
// cache. SOA and apex NS sets are skipped; they belong to the zone,
// not to record management.
func (p *Provider) RefreshRecordCache(ctx context.Context) ([]types.DNSRecord, error) {
	var all []types.DNSRecord
	in := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(p.zoneID)}
	for {
		out, err := p.listRecordSets(ctx, in)
		if err != nil {
			return nil, &provider.APIError{Provider: "route53", Operation: "list records", Err: err}
		}
		for _, rrset := range out.ResourceRecordSets {
			name := strings.TrimSuffix(aws.ToString(rrset.Name), ".")
			rt := types.RecordType(rrset.Type)
			if rt == "SOA" || (rt == types.RecordTypeNS && strings.EqualFold(name, p.zone)) {
				continue
			}
			all = append(all, p.fromRRSet(rrset)...)
		}
		if !out.IsTruncated {
			break
		}
		in.StartRecordName = out.NextRecordName
		in.StartRecordType = out.NextRecordType
	}

	p.cache.Replace(all)
	return p.cache.Snapshot(), nil
}

// ListRecords reads from the cache, refreshing first when stale.
func (p *Provider) ListRecords(ctx context.Context, filter provider.Filter) ([]types.DNSRecord, error) {
	if p.cache.Stale() {
		if _, err := p.RefreshRecordCache(ctx); err != nil {
			return nil, err
		}
	}
	return p.cache.List(filter), nil
}

// CreateRecord upserts the record set, then caches the result.
func (p *Provider) CreateRecord(ctx context.Context, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	return p.upsert(ctx, spec, "create record")
}

// UpdateRecord upserts the record set identified by the composite key.
// Route 53's UPSERT covers both paths.
func (p *Provider) UpdateRecord(ctx context.Context, _ string, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	return p.upsert(ctx, spec, "update record")
}

func (p *Provider) upsert(ctx context.Context, spec types.DesiredRecordSpec, op string) (*types.DNSRecord, error) {
	rrset := p.toRRSet(spec)
	if err := p.change(ctx, r53types.ChangeActionUpsert, rrset, op); err != nil {
		return nil, err
	}
	rec := types.DNSRecord{
		Type:       spec.Type,
		Name:       spec.Name,
		Content:    spec.Content,
		TTL:        spec.TTL,
		Priority:   spec.Priority,
		Weight:     spec.Weight,
		Port:       spec.Port,
		Flags:      spec.Flags,
		Tag:        spec.Tag,
		ProviderID: p.name,
	}
	p.cache.Upsert(rec)
	return &rec, nil
}

// DeleteRecord removes the record set named by the composite
// "name:type" key. Route 53 DELETE requires the full current set, so
// the cached record supplies TTL and value.
func (p *Provider) DeleteRecord(ctx context.Context, id string) error {
	name, rt, ok := splitKey(id)
	if !ok {
		return &provider.APIError{Provider: "route53", Operation: "delete record",
			Message: fmt.Sprintf("malformed record key %q", id)}
	}
	rec, found := p.cache.Find(rt, name)
	if !found {
		return &provider.APIError{Provider: "route53", Operation: "delete record",
			Message: fmt.Sprintf("record %s not in cache", id), Err: types.ErrRecordNotFound}
	}

	rrset := p.toRRSet(types.DesiredRecordSpec{
		Type: rec.Type, Name: rec.Name, Content: rec.Content, TTL: rec.TTL,
		Priority: rec.Priority, Weight: rec.Weight, Port: rec.Port,
		Flags: rec.Flags, Tag: rec.Tag,
	})
	if err := p.change(ctx, r53types.ChangeActionDelete, rrset, "delete record"); err != nil {
		return err
	}
	p.cache.Remove(id)
	return nil
}

func (p *Provider) listRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput) (*route53.ListResourceRecordSetsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return p.client.ListResourceRecordSets(ctx, in)
}

func (p *Provider) change(ctx context.Context, action r53types.ChangeAction, rrset r53types.ResourceRecordSet, op string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(p.zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: []r53types.Change{{Action: action, ResourceRecordSet: &rrset}},
		},
	})
	if err != nil {
		return &provider.APIError{Provider: "route53", Operation: op, Err: err}
	}
	return nil
}

func (p *Provider) lookupZoneID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	out, err := p.client.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName: aws.String(p.zone + "."),
	})
	if err != nil {
		return "", err
	}
	for _, z := range out.HostedZones {
		if strings.TrimSuffix(aws.ToString(z.Name), ".") == p.zone {
			return strings.TrimPrefix(aws.ToString(z.Id), "/hostedzone/"), nil
		}
	}
	return "", nil
}

// toRRSet composes the Route 53 record set. MX, SRV, and CAA encode
// their extra fields inside the value string.
func (p *Provider) toRRSet(spec types.DesiredRecordSpec) r53types.ResourceRecordSet {
	value := spec.Content
	switch spec.Type {
	case types.RecordTypeMX:
		if spec.Priority != nil {
			value = fmt.Sprintf("%d %s", *spec.Priority, spec.Content)
		}
	case types.RecordTypeSRV:
		if spec.Priority != nil && spec.Weight != nil && spec.Port != nil {
			value = fmt.Sprintf("%d %d %d %s", *spec.Priority, *spec.Weight, *spec.Port, spec.Content)
		}
	case types.RecordTypeCAA:
		if spec.Flags != nil {
			value = fmt.Sprintf("%d %s %q", *spec.Flags, spec.Tag, spec.Content)
		}
	case types.RecordTypeTXT:
		value = strconv.Quote(spec.Content)
	}

	return r53types.ResourceRecordSet{
		Name:            aws.String(spec.Name + "."),
		Type:            r53types.RRType(spec.Type),
		TTL:             aws.Int64(int64(spec.TTL)),
		ResourceRecords: []r53types.ResourceRecord{{Value: aws.String(value)}},
	}
}

// fromRRSet decomposes a record set into one DNSRecord per value,
// parsing MX/SRV/CAA value encodings back into fields.
func (p *Provider) fromRRSet(rrset r53types.ResourceRecordSet) []types.DNSRecord {
	name := strings.TrimSuffix(aws.ToString(rrset.Name), ".")
	rt := types.RecordType(rrset.Type)
	ttl := int(aws.ToInt64(rrset.TTL))

	var out []types.DNSRecord
	for _, rr := range rrset.ResourceRecords {
		rec := types.DNSRecord{
			Type:       rt,
			Name:       name,
			TTL:        ttl,
			Content:    aws.ToString(rr.Value),
			ProviderID: p.name,
		}
		switch rt {
		case types.RecordTypeMX:
			if parts := strings.SplitN(rec.Content, " ", 2); len(parts) == 2 {
				if prio, err := strconv.Atoi(parts[0]); err == nil {
					rec.Priority = &prio
					rec.Content = parts[1]
				}
			}
		case types.RecordTypeSRV:
			if parts := strings.SplitN(rec.Content, " ", 4); len(parts) == 4 {
				prio, err1 := strconv.Atoi(parts[0])
				weight, err2 := strconv.Atoi(parts[1])
				port, err3 := strconv.Atoi(parts[2])
				if err1 == nil && err2 == nil && err3 == nil {
					rec.Priority, rec.Weight, rec.Port = &prio, &weight, &port
					rec.Content = parts[3]
				}
			}
		case types.RecordTypeCAA:
			if parts := strings.SplitN(rec.Content, " ", 3); len(parts) == 3 {
				if flags, err := strconv.Atoi(parts[0]); err == nil {
					rec.Flags = &flags
					rec.Tag = parts[1]
					rec.Content = strings.Trim(parts[2], `"`)
				}
			}
		case types.RecordTypeTXT:
			if unquoted, err := strconv.Unquote(rec.Content); err == nil {
				rec.Content = unquoted
			}
		}
		out = append(out, rec)
	}
	return out
}

func splitKey(key string) (name string, rt types.RecordType, ok bool) {
	idx := strings.LastIndex(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], types.RecordType(strings.ToUpper(key[idx+1:])), true
}
