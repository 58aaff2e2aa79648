package domain

import (
	"context"
	"net/netip"
	"strings"
)

// MappingSource reads the per-domain record data of the fleet.
type MappingSource interface {
	// FetchIPMapping returns the address records of a domain, keyed by fully
	// qualified hostname. A nil domainID returns every address in the fleet.
	FetchIPMapping(ctx context.Context, domainID *int64) (IPMappings, error)
	// FetchRRsetMapping returns the non-address records of a domain, keyed by
	// name relative to the domain ("@" for the apex).
	FetchRRsetMapping(ctx context.Context, domainID int64) (RRsetMappings, error)
}

type DomainDirectory interface {
	DefaultDomain(ctx context.Context) (Domain, error)
	DelegatedChildren(ctx context.Context, parent Domain) ([]Delegation, error)
}

// Inventory is everything the zone generator reads from the fleet.
type Inventory interface {
	MappingSource
	DomainDirectory
}

type FleetSource interface {
	Fleet(ctx context.Context) (Fleet, error)
}

type ServerAddressResolver interface {
	ServerAddresses(ctx context.Context) ([]netip.Addr, error)
}

// AuthoritativeDomains returns the domains this region serves a forward zone
// for. Non-authoritative domains stay in the inventory so their parents can
// delegate to them.
func AuthoritativeDomains(all []Domain) []Domain {
	var out []Domain
	for _, d := range all {
		if d.Authoritative {
			out = append(out, d)
		}
	}
	return out
}

// ImmediateChildren returns the domains of all that sit directly below parent:
// their name ends in "."+parent.Name and no other domain of all lies between.
func ImmediateChildren(parent Domain, all []Domain) []Domain {
	suffix := "." + trimDot(parent.Name)
	var below []Domain
	for _, d := range all {
		if d.ID != parent.ID && strings.HasSuffix(trimDot(d.Name), suffix) {
			below = append(below, d)
		}
	}

	var out []Domain
	for _, d := range below {
		name := trimDot(d.Name)
		nested := false
		for _, other := range below {
			if other.ID != d.ID && strings.HasSuffix(name, "."+trimDot(other.Name)) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, d)
		}
	}
	return out
}

// RelativeName strips the zone suffix from a fully qualified name. The zone
// apex becomes "@"; names outside the zone are returned unchanged.
func RelativeName(fqdn, zone string) string {
	name := trimDot(fqdn)
	zone = trimDot(zone)
	if strings.EqualFold(name, zone) {
		return "@"
	}
	if len(name) > len(zone)+1 && strings.EqualFold(name[len(name)-len(zone)-1:], "."+zone) {
		return name[:len(name)-len(zone)-1]
	}
	return name
}

func trimDot(name string) string {
	return strings.TrimSuffix(name, ".")
}
