// Package types defines the core record types, batch results, and
// sentinel errors used throughout the trafegodns module.
package types

import (
	"errors"
	"strings"
	"time"
)

// RecordType represents a DNS record type.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeMX    RecordType = "MX"
	RecordTypeTXT   RecordType = "TXT"
	RecordTypeNS    RecordType = "NS"
	RecordTypeSRV   RecordType = "SRV"
	RecordTypeCAA   RecordType = "CAA"
)

// validRecordTypes is the set of all record types the engine manages.
var validRecordTypes = map[RecordType]bool{
	RecordTypeA:     true,
	RecordTypeAAAA:  true,
	RecordTypeCNAME: true,
	RecordTypeMX:    true,
	RecordTypeTXT:   true,
	RecordTypeNS:    true,
	RecordTypeSRV:   true,
	RecordTypeCAA:   true,
}

// IsValid reports whether the RecordType is a supported DNS record type.
func (rt RecordType) IsValid() bool {
	return validRecordTypes[RecordType(strings.ToUpper(string(rt)))]
}

// DesiredRecordSpec describes one record that should exist at a
// provider. It is produced by watchers (file source, management API)
// and never persisted. Name may be relative to the provider zone;
// FQDN normalization happens inside the reconciliation pass.
type DesiredRecordSpec struct {
	Type     RecordType `json:"type" yaml:"type"`
	Name     string     `json:"name" yaml:"name"`
	Content  string     `json:"content" yaml:"content"`
	TTL      int        `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Priority *int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	Weight   *int       `json:"weight,omitempty" yaml:"weight,omitempty"`
	Port     *int       `json:"port,omitempty" yaml:"port,omitempty"`
	Flags    *int       `json:"flags,omitempty" yaml:"flags,omitempty"`
	Tag      string     `json:"tag,omitempty" yaml:"tag,omitempty"`
	Proxied  *bool      `json:"proxied,omitempty" yaml:"proxied,omitempty"`
}

// DNSRecord is a provider-held record as seen through an adapter.
// ID is provider-assigned and empty for providers without stable ids.
type DNSRecord struct {
	ID         string     `json:"id,omitempty"`
	Type       RecordType `json:"type"`
	Name       string     `json:"name"` // always FQDN
	Content    string     `json:"content"`
	TTL        int        `json:"ttl"`
	Proxied    *bool      `json:"proxied,omitempty"`
	Priority   *int       `json:"priority,omitempty"`
	Weight     *int       `json:"weight,omitempty"`
	Port       *int       `json:"port,omitempty"`
	Flags      *int       `json:"flags,omitempty"`
	Tag        string     `json:"tag,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	ProviderID string     `json:"providerId,omitempty"`
}

// Key returns the identity key for the record: the provider-assigned
// id when present, otherwise the composite "name:type" form used for
// providers without stable ids. The composite form is lowercased so
// the key used at creation time always matches the key used at lookup
// time.
func (r DNSRecord) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return strings.ToLower(r.Name) + ":" + strings.ToUpper(string(r.Type))
}

// BatchResult is the structured outcome of one reconciliation pass.
// It is produced fresh per pass and never persisted.
type BatchResult struct {
	Created   []DNSRecord  `json:"created"`
	Updated   []DNSRecord  `json:"updated"`
	Unchanged []DNSRecord  `json:"unchanged"`
	Errors    []BatchError `json:"errors"`
}

// BatchError pairs a failed spec with the error that stopped it.
type BatchError struct {
	Record DesiredRecordSpec `json:"record"`
	Error  string            `json:"error"`
}

// HasChanges reports whether the pass did anything besides confirming
// existing state.
func (b BatchResult) HasChanges() bool {
	return len(b.Created) > 0 || len(b.Updated) > 0 || len(b.Errors) > 0
}

// TrackedRecord is one entry in the ownership ledger. An entry exists
// if and only if the engine believes it created or adopted the
// corresponding provider record.
type TrackedRecord struct {
	Provider   string            `json:"provider" yaml:"provider"`
	RecordKey  string            `json:"recordKey" yaml:"recordKey"`
	Name       string            `json:"name" yaml:"name"`
	Type       RecordType        `json:"type" yaml:"type"`
	IsOrphaned bool              `json:"isOrphaned" yaml:"isOrphaned"`
	OrphanedAt *time.Time        `json:"orphanedAt,omitempty" yaml:"orphanedAt,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Sentinel errors shared across packages.
var (
	ErrRecordNotFound    = errors.New("DNS record not found")
	ErrInvalidRecordType = errors.New("invalid DNS record type")
	ErrProviderNotFound  = errors.New("provider not found")
	ErrZoneNotFound      = errors.New("zone not found")
)
