package provider

import (
	"context"
	"net/netip"
)

// Provider applies one record update against a DNS vendor. Builtin and
// custom variants satisfy the same contract; callers never branch on
// the variant.
type Provider interface {
	Name() string
	Apply(ctx context.Context, req Request) Outcome
}

// Request carries everything a provider needs for one update attempt.
type Request struct {
	Name string // record name within the zone, "@" for the apex
	Zone string
	Type string // "A" or "AAAA"
	IP   netip.Addr
}

// FQDN returns the fully qualified record name.
func (r Request) FQDN() string {
	if r.Name == "@" || r.Name == "" {
		return r.Zone
	}
	return r.Name + "." + r.Zone
}

// RecordType maps an address family string to the DNS record type.
func RecordType(family string) string {
	if family == "ipv6" {
		return "AAAA"
	}
	return "A"
}
