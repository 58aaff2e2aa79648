package zone

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/arpa"
	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// Records projects the zone onto resource records: the apex NS, one A or
// AAAA per mapped address and every record of OtherMapping.
func (c *ForwardZoneConfig) Records() ([]dns.RR, error) {
	origin := c.ZoneName()
	rrs := []dns.RR{nsRR(origin, c.NSTTL, c.NSHostName)}

	for _, name := range c.Mapping.Names() {
		mapping := c.Mapping[name]
		owner := absoluteName(name, origin)
		for _, ip := range mapping.IPs.Sorted() {
			ttl := c.IPv4TTL
			if ip.Is6() {
				ttl = c.IPv6TTL
			}
			if mapping.TTL != nil {
				ttl = *mapping.TTL
			}
			rrs = append(rrs, addressRR(owner, ttl, ip))
		}
	}

	for _, name := range c.OtherMapping.Names() {
		for _, record := range c.OtherMapping[name].RRset.Sorted() {
			rr, err := parseRR(origin, name, record)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", origin, err)
			}
			rrs = append(rrs, rr)
		}
	}
	return rrs, nil
}

// Records projects the zone onto resource records: the apex NS, one PTR per
// mapped address and, for each delegated classless network, its NS record
// plus a CNAME per address pointing into the delegated zone.
func (c *ReverseZoneConfig) Records() ([]dns.RR, error) {
	origin := c.ZoneName()
	rrs := []dns.RR{nsRR(origin, c.DefaultTTL, c.NSHostName)}

	for _, name := range c.Mapping.Names() {
		mapping := c.Mapping[name]
		ttl := c.DefaultTTL
		if mapping.TTL != nil {
			ttl = *mapping.TTL
		}
		for _, ip := range mapping.IPs.Sorted() {
			rrs = append(rrs, &dns.PTR{
				Hdr: header(arpa.ReverseNameIn(ip, c.Network), dns.TypePTR, ttl),
				Ptr: dns.Fqdn(name),
			})
		}
	}

	for _, glue := range c.RFC2317Ranges.Sorted() {
		rrs = append(rrs, nsRR(arpa.ZoneName(glue), c.DefaultTTL, c.NSHostName))
		last := netipx.PrefixLastIP(glue)
		for ip := glue.Addr(); ip.IsValid() && ip.Compare(last) <= 0; ip = ip.Next() {
			rrs = append(rrs, &dns.CNAME{
				Hdr:    header(arpa.ReverseName(ip), dns.TypeCNAME, c.DefaultTTL),
				Target: arpa.ReverseNameIn(ip, glue),
			})
		}
	}
	return rrs, nil
}

func header(owner string, rrtype uint16, ttl uint32) dns.RR_Header {
	return dns.RR_Header{
		Name:   dns.Fqdn(owner),
		Rrtype: rrtype,
		Class:  dns.ClassINET,
		Ttl:    ttl,
	}
}

func nsRR(owner string, ttl uint32, target string) *dns.NS {
	return &dns.NS{
		Hdr: header(owner, dns.TypeNS, ttl),
		Ns:  dns.Fqdn(target),
	}
}

func addressRR(owner string, ttl uint32, ip netip.Addr) dns.RR {
	if ip.Is4() {
		return &dns.A{Hdr: header(owner, dns.TypeA, ttl), A: ip.AsSlice()}
	}
	return &dns.AAAA{Hdr: header(owner, dns.TypeAAAA, ttl), AAAA: ip.AsSlice()}
}

// absoluteName qualifies a zone-relative name. "@" is the zone apex.
func absoluteName(name, origin string) string {
	if name == "@" || name == "" {
		return origin
	}
	if dns.IsFqdn(name) {
		return name
	}
	return name + "." + origin
}

// parseRR builds a record from its presentation form. Relative names in the
// owner and the data are qualified against origin.
func parseRR(origin, owner string, record domain.Record) (dns.RR, error) {
	if _, ok := dns.StringToType[record.RRType]; !ok {
		return nil, fmt.Errorf("%w: unknown rrtype %q", domain.ErrInvalidInput, record.RRType)
	}
	line := fmt.Sprintf("%s %d IN %s %s", owner, record.TTL, record.RRType, record.RRData)
	zp := dns.NewZoneParser(strings.NewReader(line), origin, "")
	rr, ok := zp.Next()
	if !ok {
		if err := zp.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s %s %q: %v", domain.ErrInvalidInput, owner, record.RRType, record.RRData, err)
		}
		return nil, fmt.Errorf("%w: empty record for %s", domain.ErrInvalidInput, owner)
	}
	return rr, nil
}
