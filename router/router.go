// Package router maps hostnames to the provider instances that own
// their zones, using longest-suffix matching with explicit
// per-hostname overrides.
package router

import (
	"log/slog"
	"strings"
	"sync"

	"trafego/trafegodns/provider"
)

// Instance is one configured provider with its registration identity.
type Instance struct {
	ID       string
	Name     string
	Provider provider.Provider
}

// Zone returns the instance's authoritative zone suffix.
func (i *Instance) Zone() string { return i.Provider.ZoneName() }

// Override is an explicit per-hostname routing directive that bypasses
// zone matching entirely.
type Override struct {
	// Provider forces a single provider, matched by id or name.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Providers forces a specific subset, each matched by id or name.
	Providers []string `json:"providers,omitempty" yaml:"providers,omitempty"`
	// Broadcast forces all configured providers.
	Broadcast bool `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
}

func (o *Override) empty() bool {
	return o == nil || (o.Provider == "" && len(o.Providers) == 0 && !o.Broadcast)
}

// Router holds the configured provider instances.
type Router struct {
	mu        sync.RWMutex
	instances []*Instance
}

// New creates a Router over the given instances.
func New(instances ...*Instance) *Router {
	return &Router{instances: instances}
}

// Add registers an instance.
func (r *Router) Add(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = append(r.instances, inst)
}

// Remove drops the instance with the given id. Results of a pass in
// flight for a removed instance are discarded by the engine.
func (r *Router) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, inst := range r.instances {
		if inst.ID == id {
			r.instances = append(r.instances[:i], r.instances[i+1:]...)
			return
		}
	}
}

// All returns every configured instance.
func (r *Router) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, len(r.instances))
	copy(out, r.instances)
	return out
}

// ByID returns the instance matching the given id or name.
func (r *Router) ByID(idOrName string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.ID == idOrName || strings.EqualFold(inst.Name, idOrName) {
			return inst, true
		}
	}
	return nil, false
}

// Route selects the provider instances to act on for a hostname. An
// override takes precedence over matching. With no override, the
// hostname matches an instance when it equals the instance's zone or
// ends with ".zone"; when several zones match, the most specific
// (longest) zone wins, and every instance serving that zone is
// selected. An unmatched hostname is skipped, not an error.
func (r *Router) Route(hostname string, override *Override) []*Instance {
	if !override.empty() {
		return r.resolveOverride(hostname, override)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	bestLen := -1
	var selected []*Instance
	for _, inst := range r.instances {
		zone := strings.ToLower(strings.TrimSuffix(inst.Zone(), "."))
		if zone == "" {
			continue
		}
		if hostname != zone && !strings.HasSuffix(hostname, "."+zone) {
			continue
		}
		switch {
		case len(zone) > bestLen:
			bestLen = len(zone)
			selected = []*Instance{inst}
		case len(zone) == bestLen:
			selected = append(selected, inst)
		}
	}

	if len(selected) == 0 {
		slog.Info("hostname matches no configured zone, skipping",
			"hostname", hostname, "zones", r.zoneNames())
	}
	return selected
}

func (r *Router) resolveOverride(hostname string, override *Override) []*Instance {
	if override.Broadcast {
		return r.All()
	}

	names := override.Providers
	if override.Provider != "" {
		names = append([]string{override.Provider}, names...)
	}

	var selected []*Instance
	for _, name := range names {
		inst, ok := r.ByID(name)
		if !ok {
			slog.Warn("provider override names unknown provider",
				"hostname", hostname, "provider", name)
			continue
		}
		selected = append(selected, inst)
	}
	return selected
}

func (r *Router) zoneNames() []string {
	zones := make([]string, 0, len(r.instances))
	for _, inst := range r.instances {
		zones = append(zones, inst.Zone())
	}
	return zones
}
