package zone

import (
	"context"
	"fmt"
	"net/netip"
	"slices"

	"github.com/miekg/dns"
	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// ForwardBuilder assembles forward zone configs for the domains of one run.
type ForwardBuilder struct {
	Cache      *MappingCache
	Directory  domain.DomainDirectory
	Serial     uint32
	NSHostName string
	DefaultTTL uint32
	// ServerAddrs are published at the apex of the default domain.
	ServerAddrs []netip.Addr
	// DefaultDomainRanges are the dynamic ranges exposed by the default domain.
	DefaultDomainRanges []netipx.IPRange
	Updates             []domain.DynamicDNSUpdate
	ForceConfigWrite    bool
}

// Build returns the forward zone of d.
func (b *ForwardBuilder) Build(ctx context.Context, d domain.Domain) (*ForwardZoneConfig, error) {
	ips, err := b.Cache.IPMapping(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	mapping := make(domain.IPMappings, len(ips))
	for hostname, m := range ips {
		mapping[domain.RelativeName(hostname, d.Name)] = m
	}

	rrsets, err := b.Cache.RRsetMapping(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	other := rrsets.Clone()

	delegations, err := b.Directory.DelegatedChildren(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("delegations of %s: %w", d.Name, err)
	}
	addDelegations(other, d, delegations, b.NSHostName, b.DefaultTTL)

	var dynamicRanges []netipx.IPRange
	if d.IsDefault {
		dynamicRanges = slices.Clone(b.DefaultDomainRanges)
		ttl := d.BaseTTL("A", b.DefaultTTL)
		apex := other.Entry("@")
		for _, ip := range b.ServerAddrs {
			apex.RRset.Add(domain.Record{TTL: ttl, RRType: addressType(ip), RRData: ip.String()})
		}
	}

	return &ForwardZoneConfig{
		Domain:           d.Name,
		Serial:           b.Serial,
		DefaultTTL:       d.ZoneTTL(b.DefaultTTL),
		NSTTL:            d.BaseTTL("NS", b.DefaultTTL),
		IPv4TTL:          d.BaseTTL("A", b.DefaultTTL),
		IPv6TTL:          d.BaseTTL("AAAA", b.DefaultTTL),
		NSHostName:       b.NSHostName,
		Mapping:          mapping,
		OtherMapping:     other,
		DynamicRanges:    dynamicRanges,
		DynamicUpdates:   domain.UpdatesForZone(b.Updates, d.Name),
		ForceConfigWrite: b.ForceConfigWrite,
	}, nil
}

// BuildInternal returns the forward zone of a synthetic domain. Its records
// come only from the domain's resources.
func (b *ForwardBuilder) BuildInternal(d domain.InternalDomain) *ForwardZoneConfig {
	other := make(domain.RRsetMappings)
	for _, resource := range d.Resources {
		entry := other.Entry(resource.Name)
		for _, record := range resource.Records {
			entry.RRset.Add(domain.Record{TTL: d.TTL, RRType: record.RRType, RRData: record.RRData})
		}
	}

	return &ForwardZoneConfig{
		Domain:           d.Name,
		Serial:           b.Serial,
		DefaultTTL:       d.TTL,
		NSTTL:            d.TTL,
		IPv4TTL:          d.TTL,
		IPv6TTL:          d.TTL,
		NSHostName:       b.NSHostName,
		Mapping:          domain.IPMappings{},
		OtherMapping:     other,
		DynamicUpdates:   domain.UpdatesForZone(b.Updates, d.Name),
		ForceConfigWrite: b.ForceConfigWrite,
	}
}

// addDelegations adds the NS records, and glue for in-zone NS targets, of
// every child domain delegated from parent.
func addDelegations(other domain.RRsetMappings, parent domain.Domain, delegations []domain.Delegation, nsHostName string, ttl uint32) {
	parentZone := dns.Fqdn(parent.Name)
	for _, delegation := range delegations {
		childZone := dns.Fqdn(delegation.Child.Name)
		if !dns.IsSubDomain(parentZone, childZone) || dns.CanonicalName(parentZone) == dns.CanonicalName(childZone) {
			continue
		}
		entry := other.Entry(domain.RelativeName(childZone, parentZone))
		if delegation.Child.Authoritative {
			entry.RRset.Add(domain.Record{TTL: ttl, RRType: "NS", RRData: dns.Fqdn(nsHostName)})
		}
		for _, target := range delegation.NSTargets {
			target = dns.Fqdn(target)
			entry.RRset.Add(domain.Record{TTL: ttl, RRType: "NS", RRData: target})
			if !dns.IsSubDomain(parentZone, target) {
				continue
			}
			addrs := delegation.Glue[target]
			if len(addrs) == 0 {
				continue
			}
			glue := other.Entry(domain.RelativeName(target, parentZone))
			for _, ip := range addrs {
				ip = ip.Unmap()
				glue.RRset.Add(domain.Record{TTL: ttl, RRType: addressType(ip), RRData: ip.String()})
			}
		}
	}
}

func addressType(ip netip.Addr) string {
	if ip.Unmap().Is4() {
		return "A"
	}
	return "AAAA"
}
