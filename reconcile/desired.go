package reconcile

import (
	"trafego/trafegodns/router"
	"trafego/trafegodns/types"
)

// DesiredEntry is one desired-hostname tuple as produced by external
// watchers (file source, container labels, proxy rules).
type DesiredEntry struct {
	Hostname string           `json:"hostname" yaml:"hostname"`
	Type     types.RecordType `json:"type" yaml:"type"`
	Content  string           `json:"content" yaml:"content"`
	TTL      int              `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Priority *int             `json:"priority,omitempty" yaml:"priority,omitempty"`
	Weight   *int             `json:"weight,omitempty" yaml:"weight,omitempty"`
	Port     *int             `json:"port,omitempty" yaml:"port,omitempty"`
	Flags    *int             `json:"flags,omitempty" yaml:"flags,omitempty"`
	Tag      string           `json:"tag,omitempty" yaml:"tag,omitempty"`
	Proxied  *bool            `json:"proxied,omitempty" yaml:"proxied,omitempty"`
	// Override bypasses zone routing for this hostname.
	Override *router.Override `json:"override,omitempty" yaml:"override,omitempty"`
	// Skip marks the hostname as unmanaged; it is ignored entirely.
	Skip bool `json:"skip,omitempty" yaml:"skip,omitempty"`
}

// spec converts the entry into the record spec handed to a provider.
func (d DesiredEntry) spec() types.DesiredRecordSpec {
	return types.DesiredRecordSpec{
		Type:     d.Type,
		Name:     d.Hostname,
		Content:  d.Content,
		TTL:      d.TTL,
		Priority: d.Priority,
		Weight:   d.Weight,
		Port:     d.Port,
		Flags:    d.Flags,
		Tag:      d.Tag,
		Proxied:  d.Proxied,
	}
}
