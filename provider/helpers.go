package provider

import (
	"log/slog"
	"net"
	"strings"

	"trafego/trafegodns/types"
)

// EnsureFQDN appends the zone suffix unless the name is already
// qualified. "@" and the bare zone name both normalize to the zone
// itself. Trailing dots are stripped.
func EnsureFQDN(name, zone string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	zone = strings.TrimSuffix(strings.TrimSpace(zone), ".")

	if name == "" || name == "@" || strings.EqualFold(name, zone) {
		return zone
	}
	if strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(zone)) {
		return name
	}
	return name + "." + zone
}

// ClampTTL normalizes the desired TTL into the provider's supported
// range. A zero/negative TTL means "unset" and takes the provider
// minimum without counting as a clamp. Clamps are logged because the
// upstream spec may encode "auto" as a sentinel (e.g. TTL=1) that is
// invalid for providers without an auto concept.
func ClampTTL(info Info, ttl int) int {
	if ttl <= 0 {
		return info.TTLMin
	}
	if ttl < info.TTLMin {
		slog.Info("clamping TTL up to provider minimum",
			"provider", info.Type, "requested", ttl, "min", info.TTLMin)
		return info.TTLMin
	}
	if info.TTLMax > 0 && ttl > info.TTLMax {
		slog.Info("clamping TTL down to provider maximum",
			"provider", info.Type, "requested", ttl, "max", info.TTLMax)
		return info.TTLMax
	}
	return ttl
}

// NeedsUpdate is the shared field comparison deciding whether an
// existing record must be rewritten to match the desired spec. The
// desired TTL must already be normalized via ClampTTL.
//
// Rules:
//   - content difference always triggers an update
//   - TTL difference triggers an update unless both sides are proxied
//     (providers that force TTL=1 while proxied must not be flapped)
//   - proxied difference triggers an update only when both sides
//     explicitly report a proxied value
//   - type-specific fields are compared when present on the spec
func NeedsUpdate(existing types.DNSRecord, desired types.DesiredRecordSpec) bool {
	if existing.Content != desired.Content {
		return true
	}

	bothProxied := existing.Proxied != nil && *existing.Proxied &&
		desired.Proxied != nil && *desired.Proxied
	if !bothProxied && desired.TTL != 0 && existing.TTL != desired.TTL {
		return true
	}

	if existing.Proxied != nil && desired.Proxied != nil && *existing.Proxied != *desired.Proxied {
		return true
	}

	if desired.Priority != nil && (existing.Priority == nil || *existing.Priority != *desired.Priority) {
		return true
	}
	if desired.Weight != nil && (existing.Weight == nil || *existing.Weight != *desired.Weight) {
		return true
	}
	if desired.Port != nil && (existing.Port == nil || *existing.Port != *desired.Port) {
		return true
	}
	if desired.Flags != nil && (existing.Flags == nil || *existing.Flags != *desired.Flags) {
		return true
	}
	if desired.Tag != "" && !strings.EqualFold(existing.Tag, desired.Tag) {
		return true
	}

	return false
}

// ValidateSpec performs type-specific structural validation of a
// desired spec. It never performs I/O.
func ValidateSpec(info Info, spec types.DesiredRecordSpec) error {
	if !spec.Type.IsValid() {
		return &ValidationError{Field: "type", Reason: "unknown record type " + string(spec.Type)}
	}
	if len(info.SupportedTypes) > 0 && !info.SupportsType(spec.Type) {
		return &ValidationError{Field: "type", Reason: string(spec.Type) + " not supported by " + info.Type}
	}
	if strings.TrimSpace(spec.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(spec.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	switch spec.Type {
	case types.RecordTypeA:
		ip := net.ParseIP(spec.Content)
		if ip == nil || ip.To4() == nil {
			return &ValidationError{Field: "content", Reason: spec.Content + " is not a valid IPv4 address"}
		}
	case types.RecordTypeAAAA:
		ip := net.ParseIP(spec.Content)
		if ip == nil || ip.To4() != nil {
			return &ValidationError{Field: "content", Reason: spec.Content + " is not a valid IPv6 address"}
		}
	case types.RecordTypeMX:
		if spec.Priority == nil {
			return &ValidationError{Field: "priority", Reason: "required for MX records"}
		}
	case types.RecordTypeSRV:
		if spec.Priority == nil || spec.Weight == nil || spec.Port == nil {
			return &ValidationError{Field: "priority/weight/port", Reason: "required for SRV records"}
		}
	case types.RecordTypeCAA:
		if spec.Flags == nil || spec.Tag == "" {
			return &ValidationError{Field: "flags/tag", Reason: "required for CAA records"}
		}
	}

	return nil
}
