package domain

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"go4.org/netipx"
)

// RDNSMode controls whether and how reverse zones are produced for a subnet.
type RDNSMode int

const (
	RDNSDisabled RDNSMode = iota
	RDNSEnabled
	RDNSRFC2317
)

func (m RDNSMode) String() string {
	switch m {
	case RDNSDisabled:
		return "disabled"
	case RDNSEnabled:
		return "enabled"
	case RDNSRFC2317:
		return "rfc2317"
	default:
		return fmt.Sprintf("RDNSMode(%d)", int(m))
	}
}

// ParseRDNSMode accepts the names produced by RDNSMode.String.
func ParseRDNSMode(s string) (RDNSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return RDNSDisabled, nil
	case "", "enabled":
		return RDNSEnabled, nil
	case "rfc2317":
		return RDNSRFC2317, nil
	}
	return RDNSDisabled, fmt.Errorf("%w: unknown rdns mode %q", ErrInvalidInput, s)
}

// NodeType mirrors the kind of node that owns an address.
type NodeType int

const (
	NodeTypeDefault NodeType = iota
	NodeTypeDevice
	NodeTypeRackController
	NodeTypeRegionController
	NodeTypeRegionAndRackController
)

type Domain struct {
	ID            int64
	Name          string
	TTL           *uint32
	Authoritative bool
	IsDefault     bool
	// BaseTTLs holds per-rrtype TTLs set on records at the domain apex.
	BaseTTLs map[string]uint32
}

// BaseTTL returns the TTL to use for rrtype records in this domain: an apex
// override for that type if one exists, else the domain TTL, else defaultTTL.
func (d Domain) BaseTTL(rrtype string, defaultTTL uint32) uint32 {
	if ttl, ok := d.BaseTTLs[strings.ToUpper(rrtype)]; ok {
		return ttl
	}
	if d.TTL != nil {
		return *d.TTL
	}
	return defaultTTL
}

// ZoneTTL is the default TTL of the zone generated for this domain.
func (d Domain) ZoneTTL(defaultTTL uint32) uint32 {
	if d.TTL != nil {
		return *d.TTL
	}
	return defaultTTL
}

type Subnet struct {
	ID            int64
	CIDR          netip.Prefix
	RDNSMode      RDNSMode
	DynamicRanges []netipx.IPRange
}

// ParseSubnetCIDR parses a CIDR and rejects host bits set below the mask.
func ParseSubnetCIDR(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q: %v", ErrInvalidNetwork, s, err)
	}
	if err := ValidateNetwork(p); err != nil {
		return netip.Prefix{}, err
	}
	return p, nil
}

// ValidateNetwork checks that p is a usable, canonical network.
func ValidateNetwork(p netip.Prefix) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidNetwork, p.String())
	}
	if p.Addr().Is4In6() || p.Addr().Zone() != "" {
		return fmt.Errorf("%w: %s is not a plain IPv4 or IPv6 network", ErrInvalidNetwork, p)
	}
	if p.Masked() != p {
		return fmt.Errorf("%w: %s has host bits set", ErrInvalidNetwork, p)
	}
	return nil
}

// AddrSet is a set of addresses.
type AddrSet map[netip.Addr]struct{}

func NewAddrSet(addrs ...netip.Addr) AddrSet {
	s := make(AddrSet, len(addrs))
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

func (s AddrSet) Add(a netip.Addr) {
	s[a.Unmap()] = struct{}{}
}

func (s AddrSet) Contains(a netip.Addr) bool {
	_, ok := s[a.Unmap()]
	return ok
}

// Union adds every address of other to s.
func (s AddrSet) Union(other AddrSet) {
	for a := range other {
		s[a] = struct{}{}
	}
}

// Sorted returns the addresses in ascending order.
func (s AddrSet) Sorted() []netip.Addr {
	out := make([]netip.Addr, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b netip.Addr) int { return a.Compare(b) })
	return out
}

func (s AddrSet) Clone() AddrSet {
	out := make(AddrSet, len(s))
	out.Union(s)
	return out
}

// HostnameIPMapping holds the address records of one hostname.
type HostnameIPMapping struct {
	SystemID      string
	TTL           *uint32
	IPs           AddrSet
	NodeType      NodeType
	DNSResourceID *int64
	UserID        *int64
}

// WithIPs returns a copy of m carrying ips instead of its own addresses.
func (m *HostnameIPMapping) WithIPs(ips AddrSet) *HostnameIPMapping {
	c := *m
	c.IPs = ips
	return &c
}

// IPMappings maps hostnames to their address records.
type IPMappings map[string]*HostnameIPMapping

// FilterNetwork returns copies of the mappings restricted to addresses inside
// network. Hostnames left without addresses are omitted.
func (m IPMappings) FilterNetwork(network netip.Prefix) IPMappings {
	out := make(IPMappings)
	for name, mapping := range m {
		ips := make(AddrSet)
		for ip := range mapping.IPs {
			if network.Contains(ip) {
				ips.Add(ip)
			}
		}
		if len(ips) > 0 {
			out[name] = mapping.WithIPs(ips)
		}
	}
	return out
}

// Names returns the hostnames in lexical order.
func (m IPMappings) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Record is one (ttl, rrtype, rrdata) tuple.
type Record struct {
	TTL    uint32
	RRType string
	RRData string
}

// RRset is a set of records.
type RRset map[Record]struct{}

func (s RRset) Add(r Record) {
	r.RRType = strings.ToUpper(r.RRType)
	s[r] = struct{}{}
}

// Sorted returns the records ordered by type, then data, then TTL.
func (s RRset) Sorted() []Record {
	out := make([]Record, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Record) int {
		if c := strings.Compare(a.RRType, b.RRType); c != 0 {
			return c
		}
		if c := strings.Compare(a.RRData, b.RRData); c != 0 {
			return c
		}
		return int(a.TTL) - int(b.TTL)
	})
	return out
}

// HostnameRRsetMapping holds the non-address records of one name.
type HostnameRRsetMapping struct {
	SystemID      string
	RRset         RRset
	NodeType      NodeType
	DNSResourceID *int64
	UserID        *int64
}

func NewHostnameRRsetMapping() *HostnameRRsetMapping {
	return &HostnameRRsetMapping{RRset: make(RRset)}
}

// RRsetMappings maps names to their non-address records.
type RRsetMappings map[string]*HostnameRRsetMapping

// Entry returns the mapping for name, creating an empty one if needed.
func (m RRsetMappings) Entry(name string) *HostnameRRsetMapping {
	entry, ok := m[name]
	if !ok {
		entry = NewHostnameRRsetMapping()
		m[name] = entry
	}
	if entry.RRset == nil {
		entry.RRset = make(RRset)
	}
	return entry
}

// Clone deep-copies the mappings so the copy can be modified freely.
func (m RRsetMappings) Clone() RRsetMappings {
	out := make(RRsetMappings, len(m))
	for name, entry := range m {
		c := *entry
		c.RRset = make(RRset, len(entry.RRset))
		for r := range entry.RRset {
			c.RRset[r] = struct{}{}
		}
		out[name] = &c
	}
	return out
}

// Names returns the names in lexical order.
func (m RRsetMappings) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Delegation describes a child domain delegated from its parent.
type Delegation struct {
	Child Domain
	// NSTargets are the fully qualified NS targets at the child apex.
	NSTargets []string
	// Glue holds the known addresses of NS targets, keyed by fully qualified
	// target name.
	Glue map[string][]netip.Addr
}

type InternalDomainRecord struct {
	RRType string
	RRData string
}

type InternalDomainResource struct {
	Name    string
	Records []InternalDomainRecord
}

// InternalDomain is a synthetic zone served alongside the managed domains.
type InternalDomain struct {
	Name      string
	TTL       uint32
	Resources []InternalDomainResource
}

// Fleet is the generation input read from an inventory.
type Fleet struct {
	Domains         []Domain
	Subnets         []Subnet
	InternalDomains []InternalDomain
	DynamicUpdates  []DynamicDNSUpdate
}
