package tracker

import "strings"

// Protected holds user-protected hostnames, exact or wildcard
// ("*.example.com"). Matching hostnames are excluded from orphan
// detection entirely and are never auto-deleted.
type Protected struct {
	exact     map[string]bool
	wildcards []string
}

// NewProtected parses the configured patterns.
func NewProtected(patterns []string) *Protected {
	p := &Protected{exact: make(map[string]bool)}
	for _, pat := range patterns {
		pat = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(pat), "."))
		if pat == "" {
			continue
		}
		if strings.HasPrefix(pat, "*.") {
			p.wildcards = append(p.wildcards, pat[1:]) // keep the leading dot
			continue
		}
		p.exact[pat] = true
	}
	return p
}

// Match reports whether the hostname is protected.
func (p *Protected) Match(hostname string) bool {
	if p == nil {
		return false
	}
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	if p.exact[hostname] {
		return true
	}
	for _, suffix := range p.wildcards {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}
