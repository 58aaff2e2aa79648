package zone

import (
	"net/netip"
	"slices"

	"github.com/Flarenzy/dns-zonegen/internal/arpa"
	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// PrefixSet is a set of networks.
type PrefixSet map[netip.Prefix]struct{}

func NewPrefixSet(prefixes ...netip.Prefix) PrefixSet {
	s := make(PrefixSet, len(prefixes))
	for _, p := range prefixes {
		s[p.Masked()] = struct{}{}
	}
	return s
}

func (s PrefixSet) Add(p netip.Prefix) {
	s[p.Masked()] = struct{}{}
}

func (s PrefixSet) Union(other PrefixSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// ContainsAddr reports whether any network of s contains addr.
func (s PrefixSet) ContainsAddr(addr netip.Addr) bool {
	for p := range s {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Sorted returns the networks ordered by address, then prefix length.
func (s PrefixSet) Sorted() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.SortFunc(out, comparePrefix)
	return out
}

func comparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}

// GlueRegistry tracks the classless networks that need RFC2317 delegation
// from the reverse zone of their base network.
//
// Entries are consumed by Find: each base network hands its children to
// exactly one reverse zone. A registry is owned by a single generation pass.
type GlueRegistry struct {
	bases map[netip.Prefix]PrefixSet
}

// NewGlueRegistry registers every RFC2317 subnet that is narrower than a
// reverse label boundary under its base network.
func NewGlueRegistry(subnets []domain.Subnet) *GlueRegistry {
	r := &GlueRegistry{bases: make(map[netip.Prefix]PrefixSet)}
	for _, s := range subnets {
		if s.RDNSMode == domain.RDNSRFC2317 {
			r.RegisterGlue(s.CIDR)
		}
	}
	return r
}

// RegisterGlue records network under its base network. Networks that own a
// natural reverse zone are ignored.
func (r *GlueRegistry) RegisterGlue(network netip.Prefix) {
	network = network.Masked()
	if !arpa.IsClassless(network) {
		return
	}
	base := arpa.BaseNetwork(network)
	children, ok := r.bases[base]
	if !ok {
		children = make(PrefixSet)
		r.bases[base] = children
	}
	children.Add(network)
}

// Find removes and returns the glue networks owned by network. A network
// wider than the zone boundary collects every registered base it contains;
// otherwise only an exact base match is returned. The result is never nil.
func (r *GlueRegistry) Find(network netip.Prefix) PrefixSet {
	network = network.Masked()
	glue := make(PrefixSet)
	if network.Bits() < arpa.ZoneBoundary(network) {
		for base, children := range r.bases {
			if network.Contains(base.Addr()) {
				glue.Union(children)
				delete(r.bases, base)
			}
		}
		return glue
	}
	if children, ok := r.bases[network]; ok {
		glue.Union(children)
		delete(r.bases, network)
	}
	return glue
}

// Remaining returns the base networks whose glue has not been claimed yet.
func (r *GlueRegistry) Remaining() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(r.bases))
	for base := range r.bases {
		out = append(out, base)
	}
	slices.SortFunc(out, comparePrefix)
	return out
}

func (r *GlueRegistry) Len() int {
	return len(r.bases)
}
