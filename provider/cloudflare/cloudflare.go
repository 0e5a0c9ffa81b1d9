// Package cloudflare implements the provider contract over the
// Cloudflare v4 API. Cloudflare supports proxied records and record
// comments, which carry the ownership marker.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"trafego/trafegodns/provider"
	"trafego/trafegodns/types"
)

const apiBase = "https://api.cloudflare.com/client/v4"

func init() {
	provider.Register("cloudflare", func(s provider.Settings) (provider.Provider, error) {
		return New(s)
	})
}

// Provider is the Cloudflare adapter.
type Provider struct {
	name    string
	zone    string
	zoneID  string
	token   string
	apiKey  string
	email   string
	baseURL string
	client  *http.Client
	cache   *provider.Cache
}

// New creates a Cloudflare provider from settings. Credentials are
// either "api_token", or "api_key" plus "email".
func New(s provider.Settings) (*Provider, error) {
	if s.Zone == "" {
		return nil, &provider.ConfigError{Provider: "cloudflare", Reason: "missing zone name"}
	}
	token := s.Credentials["api_token"]
	apiKey := s.Credentials["api_key"]
	email := s.Credentials["email"]
	if token == "" && (apiKey == "" || email == "") {
		return nil, &provider.ConfigError{
			Provider: "cloudflare",
			Reason:   "missing credentials: set api_token, or api_key and email",
		}
	}

	baseURL := apiBase
	if alt := s.Credentials["api_url"]; alt != "" {
		baseURL = alt
	}

	return &Provider{
		name:    s.Name,
		zone:    s.Zone,
		token:   token,
		apiKey:  apiKey,
		email:   email,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		cache:   provider.NewCache(s.CacheRefreshInterval),
	}, nil
}

// Info returns Cloudflare's static capabilities. TTL 1 means "auto".
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Type:             "cloudflare",
		TTLMin:           1,
		TTLMax:           86400,
		SupportsProxied:  true,
		SupportsComments: true,
		SupportedTypes: []types.RecordType{
			types.RecordTypeA, types.RecordTypeAAAA, types.RecordTypeCNAME,
			types.RecordTypeMX, types.RecordTypeTXT, types.RecordTypeNS,
			types.RecordTypeSRV, types.RecordTypeCAA,
		},
	}
}

// ZoneName returns the configured zone.
func (p *Provider) ZoneName() string { return p.zone }

// Init resolves the zone id, verifying credentials in the process, and
// primes the record cache.
func (p *Provider) Init(ctx context.Context) error {
	id, err := p.lookupZoneID(ctx)
	if err != nil {
		return &provider.ConfigError{Provider: "cloudflare", Reason: "zone lookup failed", Err: err}
	}
	if id == "" {
		return &provider.ConfigError{
			Provider: "cloudflare",
			Reason:   fmt.Sprintf("zone %q not found or not accessible", p.zone),
			Err:      types.ErrZoneNotFound,
		}
	}
	p.zoneID = id

	if _, err := p.RefreshRecordCache(ctx); err != nil {
		return &provider.ConfigError{Provider: "cloudflare", Reason: "initial record listing failed", Err: err}
	}
	return nil
}

// TestConnection probes the zone endpoint. Any failure maps to false.
func (p *Provider) TestConnection(ctx context.Context) bool {
	id, err := p.lookupZoneID(ctx)
	return err == nil && id != ""
}

// cfRecord is the Cloudflare wire shape for a DNS record.
type cfRecord struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Proxied  *bool  `json:"proxied,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type cfEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	ResultInfo struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"result_info"`
	Result json.RawMessage `json:"result"`
}

// RefreshRecordCache performs a full paginated listing and replaces
// the cache. On failure the previous snapshot is retained.
func (p *Provider) RefreshRecordCache(ctx context.Context) ([]types.DNSRecord, error) {
	var all []types.DNSRecord
	for page := 1; ; page++ {
		path := fmt.Sprintf("/zones/%s/dns_records?per_page=100&page=%d", p.zoneID, page)
		env, err := p.do(ctx, http.MethodGet, path, nil, "list records")
		if err != nil {
			return nil, err
		}

		var rows []cfRecord
		if err := json.Unmarshal(env.Result, &rows); err != nil {
			return nil, &provider.APIError{Provider: "cloudflare", Operation: "list records", Err: err}
		}
		for _, row := range rows {
			all = append(all, p.toRecord(row))
		}

		if env.ResultInfo.TotalPages == 0 || page >= env.ResultInfo.TotalPages {
			break
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

// CreateRecord creates the record, stamping the ownership marker into
// the comment field, then caches the result.
func (p *Provider) CreateRecord(ctx context.Context, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	body := p.toWire(spec)
	env, err := p.do(ctx, http.MethodPost, "/zones/"+p.zoneID+"/dns_records", body, "create record")
	if err != nil {
		return nil, err
	}

	var row cfRecord
	if err := json.Unmarshal(env.Result, &row); err != nil {
		return nil, &provider.APIError{Provider: "cloudflare", Operation: "create record", Err: err}
	}
	rec := p.toRecord(row)
	p.cache.Upsert(rec)
	return &rec, nil
}

// UpdateRecord rewrites the record identified by id, then caches the
// result.
func (p *Provider) UpdateRecord(ctx context.Context, id string, spec types.DesiredRecordSpec) (*types.DNSRecord, error) {
	body := p.toWire(spec)
	env, err := p.do(ctx, http.MethodPut, "/zones/"+p.zoneID+"/dns_records/"+id, body, "update record")
	if err != nil {
		return nil, err
	}

	var row cfRecord
	if err := json.Unmarshal(env.Result, &row); err != nil {
		return nil, &provider.APIError{Provider: "cloudflare", Operation: "update record", Err: err}
	}
	rec := p.toRecord(row)
	p.cache.Upsert(rec)
	return &rec, nil
}

// DeleteRecord removes the record from Cloudflare and the cache.
func (p *Provider) DeleteRecord(ctx context.Context, id string) error {
	if _, err := p.do(ctx, http.MethodDelete, "/zones/"+p.zoneID+"/dns_records/"+id, nil, "delete record"); err != nil {
		return err
	}
	p.cache.Remove(id)
	return nil
}

func (p *Provider) toWire(spec types.DesiredRecordSpec) cfRecord {
	return cfRecord{
		Type:     string(spec.Type),
		Name:     spec.Name,
		Content:  spec.Content,
		TTL:      spec.TTL,
		Proxied:  spec.Proxied,
		Priority: spec.Priority,
		Comment:  provider.OwnershipMarker,
	}
}

func (p *Provider) toRecord(row cfRecord) types.DNSRecord {
	return types.DNSRecord{
		ID:         row.ID,
		Type:       types.RecordType(row.Type),
		Name:       row.Name,
		Content:    row.Content,
		TTL:        row.TTL,
		Proxied:    row.Proxied,
		Priority:   row.Priority,
		Comment:    row.Comment,
		ProviderID: p.name,
	}
}

func (p *Provider) lookupZoneID(ctx context.Context) (string, error) {
	env, err := p.do(ctx, http.MethodGet, "/zones?name="+url.QueryEscape(p.zone), nil, "zone lookup")
	if err != nil {
		return "", err
	}
	var zones []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Result, &zones); err != nil {
		return "", &provider.APIError{Provider: "cloudflare", Operation: "zone lookup", Err: err}
	}
	if len(zones) == 0 {
		return "", nil
	}
	return zones[0].ID, nil
}

// do executes one API call and decodes the standard envelope. Vendor
// errors are wrapped into *provider.APIError with the first error's
// code and message.
func (p *Provider) do(ctx context.Context, method, path string, body any, op string) (*cfEnvelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &provider.APIError{Provider: "cloudflare", Operation: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, &provider.APIError{Provider: "cloudflare", Operation: op, Err: err}
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &provider.APIError{Provider: "cloudflare", Operation: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.APIError{Provider: "cloudflare", Operation: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env cfEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &provider.APIError{Provider: "cloudflare", Operation: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := &provider.APIError{Provider: "cloudflare", Operation: op, StatusCode: resp.StatusCode}
		if len(env.Errors) > 0 {
			apiErr.Code = fmt.Sprintf("%d", env.Errors[0].Code)
			apiErr.Message = env.Errors[0].Message
		}
		return nil, apiErr
	}
	return &env, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	} else {
		req.Header.Set("X-Auth-Email", p.email)
		req.Header.Set("X-Auth-Key", p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}
