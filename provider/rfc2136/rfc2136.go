// Package rfc2136 implements the provider contract over RFC 2136
// dynamic updates with TSIG authentication. Listing uses AXFR zone
// transfers. The protocol has no record ids, so records are identified
// by the composite "name:type" key.
package rfc2136

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"trafego/trafegodns/provider"
	"trafego/trafegodns/types"
)

func init() {
	provider.Register("rfc2136", func(s provider.Settings) (provider.Provider, error) {
		return New(s)
	})
}

// Provider is the RFC 2136 adapter.
type Provider struct {
	name     string
	zone     string
	host     string
	tsigName string
	tsigAlg  string
	tsigKey  string
	timeout  time.Duration
	cache    *provider.Cache
}

// New creates an RFC 2136 provider from settings. Required: "host"
// (server:port), "tsig_name", "tsig_secret". Optional: "tsig_algorithm"
// (default hmac-sha256).
func New(s provider.Settings) (*Provider, error) {
	if s.Zone == "" {
		return nil, &provider.ConfigError{Provider: "rfc2136", Reason: "missing zone name"}
	}
	host := s.Credentials["host"]
	if host == "" {
		return nil, &provider.ConfigError{Provider: "rfc2136", Reason: "missing required credential 'host'"}
	}
	tsigName := s.Credentials["tsig_name"]
	tsigKey := s.Credentials["tsig_secret"]
	if tsigName == "" || tsigKey == "" {
		return nil, &provider.ConfigError{Provider: "rfc2136", Reason: "missing TSIG credentials"}
	}
	alg := s.Credentials["tsig_algorithm"]
	if alg == "" {
		alg = "hmac-sha256."
	}
	if !strings.HasSuffix(alg, ".") {
		alg += "."
	}

	return &Provider{
		name:     s.Name,
		zone:     strings.TrimSuffix(s.Zone, "."),
		host:     host,
		tsigName: dns.Fqdn(tsigName),
		tsigAlg:  alg,
		tsigKey:  tsigKey,
		timeout:  10 * time.Second,
		cache:    provider.NewCache(s.CacheRefreshInterval),
	}, nil
}

// Info returns the adapter's static capabilities. No proxying, no
// comments, no atomic batches beyond a single UPDATE message.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Type:   "rfc2136",
		TTLMin: 60,
		TTLMax: 86400,
		SupportedTypes: []types.RecordType{
			types.RecordTypeA, types.RecordTypeAAAA, types.RecordTypeCNAME,
			types.RecordTypeMX, types.RecordTypeTXT, types.RecordTypeNS,
			types.RecordTypeSRV, types.RecordTypeCAA,
		},
	}
}

// ZoneName returns the configured zone.
func (p *Provider) ZoneName() string { return p.zone }

// Init verifies the server accepts an AXFR for the zone, which also
// primes the record cache.
func (p *Provider) Init(ctx context.Context) error {
	if _, err := p.RefreshRecordCache(ctx); err != nil {
		return &provider.ConfigError{Provider: "rfc2136", Reason: "zone transfer failed", Err: err}
	}
	return nil
}

// TestConnection sends a plain SOA query. Any failure maps to false.
func (p *Provider) TestConnection(_ context.Context) bool {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(p.zone), dns.TypeSOA)
	c := &dns.Client{Timeout: p.timeout}
	in, _, err := c.Exchange(m, p.host)
	return err == nil && in != nil && in.Rcode == dns.RcodeSuccess
}

// RefreshRecordCache performs an AXFR and replaces the cache. On
// failure the previous snapshot is retained.
func (p *Provider) RefreshRecordCache(_ context.Context) ([]types.DNSRecord, error) {
	tr := &dns.Transfer{
		TsigSecret:  map[string]string{p.tsigName: p.tsigKey},
		ReadTimeout: p.timeout,
	}
	m := new(dns.Msg)
	m.SetAxfr(dns.Fqdn(p.zone))
	m.SetTsig(p.tsigName, p.tsigAlg, 300, time.Now().Unix())

	ch, err := tr.In(m, p.host)
	if err != nil {
		return nil, &provider.APIError{Provider: "rfc2136", Operation: "zone transfer", Err: err}
	}

	var all []types.DNSRecord
	for envelope := range ch {
		if envelope.Error != nil {
			return nil, &provider.APIError{Provider: "rfc2136", Operation: "zone transfer", Err: envelope.Error}
		}
		for _, rr := range envelope.RR {
			if rec, ok := p.fromRR(rr); ok {
				all = append(all, rec)
			}
		}
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

// CreateRecord inserts the record via a dynamic update, then caches it.
func (p *Provider) CreateRecord(_ context.Context, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	rr, err := p.toRR(spec)
	if err != nil {
		return nil, err
	}

	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(p.zone))
	m.Insert([]dns.RR{rr})
	if err := p.send(m, "create record"); err != nil {
		return nil, err
	}

	rec := p.specToRecord(spec)
	p.cache.Upsert(rec)
	return &rec, nil
}

// UpdateRecord replaces the RRset for the record's (name, type) with
// the desired value in one UPDATE message.
func (p *Provider) UpdateRecord(_ context.Context, _ string, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	rr, err := p.toRR(spec)
	if err != nil {
		return nil, err
	}

	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(p.zone))
	m.RemoveRRset([]dns.RR{rr})
	m.Insert([]dns.RR{rr})
	if err := p.send(m, "update record"); err != nil {
		return nil, err
	}

	rec := p.specToRecord(spec)
	p.cache.Upsert(rec)
	return &rec, nil
}

// DeleteRecord removes the RRset named by the composite "name:type"
// key.
func (p *Provider) DeleteRecord(_ context.Context, id string) error {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return &provider.APIError{Provider: "rfc2136", Operation: "delete record",
			Message: fmt.Sprintf("malformed record key %q", id)}
	}
	name, rtName := id[:idx], strings.ToUpper(id[idx+1:])
	rtype, ok := dns.StringToType[rtName]
	if !ok {
		return &provider.APIError{Provider: "rfc2136", Operation: "delete record",
			Message: fmt.Sprintf("unknown record type %q", rtName)}
	}

	rr := &dns.ANY{Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: rtype, Class: dns.ClassINET}}
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(p.zone))
	m.RemoveRRset([]dns.RR{rr})
	if err := p.send(m, "delete record"); err != nil {
		return err
	}
	p.cache.Remove(id)
	return nil
}

// send signs and exchanges one UPDATE message over TCP.
func (p *Provider) send(m *dns.Msg, op string) error {
	c := &dns.Client{
		Net:        "tcp",
		Timeout:    p.timeout,
		TsigSecret: map[string]string{p.tsigName: p.tsigKey},
	}
	m.SetTsig(p.tsigName, p.tsigAlg, 300, time.Now().Unix())

	in, _, err := c.Exchange(m, p.host)
	if err != nil {
		return &provider.APIError{Provider: "rfc2136", Operation: op, Err: err}
	}
	if in.Rcode != dns.RcodeSuccess {
		return &provider.APIError{Provider: "rfc2136", Operation: op,
			Code: dns.RcodeToString[in.Rcode], Message: "server rejected update"}
	}
	return nil
}

// toRR renders the spec in zone-file syntax and parses it into an RR.
func (p *Provider) toRR(spec types.DesiredRecordSpec) (dns.RR, error) {
	var rdata string
	switch spec.Type {
	case types.RecordTypeMX:
		rdata = fmt.Sprintf("%d %s", deref(spec.Priority), dns.Fqdn(spec.Content))
	case types.RecordTypeSRV:
		rdata = fmt.Sprintf("%d %d %d %s", deref(spec.Priority), deref(spec.Weight), deref(spec.Port), dns.Fqdn(spec.Content))
	case types.RecordTypeCAA:
		rdata = fmt.Sprintf("%d %s %q", deref(spec.Flags), spec.Tag, spec.Content)
	case types.RecordTypeTXT:
		rdata = fmt.Sprintf("%q", spec.Content)
	case types.RecordTypeCNAME, types.RecordTypeNS:
		rdata = dns.Fqdn(spec.Content)
	default:
		rdata = spec.Content
	}

	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", dns.Fqdn(spec.Name), spec.TTL, spec.Type, rdata))
	if err != nil {
		return nil, &provider.APIError{Provider: "rfc2136", Operation: "build record", Err: err}
	}
	return rr, nil
}

func (p *Provider) specToRecord(spec types.DesiredRecordSpec) types.DNSRecord {
	return types.DNSRecord{
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
}

// fromRR converts an AXFR answer into a DNSRecord. SOA and unsupported
// types are skipped.
func (p *Provider) fromRR(rr dns.RR) (types.DNSRecord, bool) {
	hdr := rr.Header()
	rec := types.DNSRecord{
		Name:       strings.TrimSuffix(hdr.Name, "."),
		TTL:        int(hdr.Ttl),
		ProviderID: p.name,
	}

	switch v := rr.(type) {
	case *dns.A:
		rec.Type = types.RecordTypeA
		rec.Content = v.A.String()
	case *dns.AAAA:
		rec.Type = types.RecordTypeAAAA
		rec.Content = v.AAAA.String()
	case *dns.CNAME:
		rec.Type = types.RecordTypeCNAME
		rec.Content = strings.TrimSuffix(v.Target, ".")
	case *dns.MX:
		rec.Type = types.RecordTypeMX
		prio := int(v.Preference)
		rec.Priority = &prio
		rec.Content = strings.TrimSuffix(v.Mx, ".")
	case *dns.TXT:
		rec.Type = types.RecordTypeTXT
		rec.Content = strings.Join(v.Txt, "")
	case *dns.NS:
		rec.Type = types.RecordTypeNS
		rec.Content = strings.TrimSuffix(v.Ns, ".")
	case *dns.SRV:
		rec.Type = types.RecordTypeSRV
		prio, weight, port := int(v.Priority), int(v.Weight), int(v.Port)
		rec.Priority, rec.Weight, rec.Port = &prio, &weight, &port
		rec.Content = strings.TrimSuffix(v.Target, ".")
	case *dns.CAA:
		rec.Type = types.RecordTypeCAA
		flags := int(v.Flag)
		rec.Flags = &flags
		rec.Tag = v.Tag
		rec.Content = v.Value
	default:
		return types.DNSRecord{}, false
	}

	return rec, true
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
