package zone

import (
	"net/netip"

	"github.com/miekg/dns"
	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/arpa"
	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// ZoneConfig is one generated zone, forward or reverse.
type ZoneConfig interface {
	ZoneName() string
	Records() ([]dns.RR, error)
}

var (
	_ ZoneConfig = (*ForwardZoneConfig)(nil)
	_ ZoneConfig = (*ReverseZoneConfig)(nil)
)

// ForwardZoneConfig describes the forward zone of one domain.
type ForwardZoneConfig struct {
	Domain     string
	Serial     uint32
	DefaultTTL uint32
	NSTTL      uint32
	IPv4TTL    uint32
	IPv6TTL    uint32
	NSHostName string
	// Mapping holds address records keyed by name relative to the zone.
	Mapping domain.IPMappings
	// OtherMapping holds every other record keyed by name relative to the zone.
	OtherMapping     domain.RRsetMappings
	DynamicRanges    []netipx.IPRange
	DynamicUpdates   []domain.DynamicDNSUpdate
	ForceConfigWrite bool
}

func (c *ForwardZoneConfig) ZoneName() string {
	return dns.Fqdn(c.Domain)
}

// ReverseZoneConfig describes the reverse zone of one network chunk. Configs
// kept in a ReverseZones accumulator are updated in place by later passes.
type ReverseZoneConfig struct {
	Network    netip.Prefix
	Serial     uint32
	DefaultTTL uint32
	NSHostName string
	// Mapping holds the forward names of addresses inside Network, keyed by
	// fully qualified hostname.
	Mapping domain.IPMappings
	// RFC2317Ranges are the classless networks delegated from this zone.
	RFC2317Ranges    PrefixSet
	DynamicRanges    []netipx.IPRange
	DynamicUpdates   []domain.DynamicDNSUpdate
	ForceConfigWrite bool
}

func (c *ReverseZoneConfig) ZoneName() string {
	return arpa.ZoneName(c.Network)
}

// stripGlue removes every mapped address owned by one of the delegated
// networks. Hostnames left without addresses are dropped.
func (c *ReverseZoneConfig) stripGlue() {
	if len(c.RFC2317Ranges) == 0 {
		return
	}
	for name, mapping := range c.Mapping {
		kept := make(domain.AddrSet, len(mapping.IPs))
		for ip := range mapping.IPs {
			if !c.RFC2317Ranges.ContainsAddr(ip) {
				kept.Add(ip)
			}
		}
		if len(kept) == 0 {
			delete(c.Mapping, name)
			continue
		}
		mapping.IPs = kept
	}
}

// ReverseZones accumulates reverse zone configs by network across generation
// passes. A ReverseZones must only be used by one generation at a time.
type ReverseZones struct {
	configs map[netip.Prefix]*ReverseZoneConfig
}

func NewReverseZones() *ReverseZones {
	return &ReverseZones{configs: make(map[netip.Prefix]*ReverseZoneConfig)}
}

func (z *ReverseZones) Get(network netip.Prefix) (*ReverseZoneConfig, bool) {
	c, ok := z.configs[network.Masked()]
	return c, ok
}

func (z *ReverseZones) put(c *ReverseZoneConfig) {
	z.configs[c.Network] = c
}

func (z *ReverseZones) Len() int {
	return len(z.configs)
}
