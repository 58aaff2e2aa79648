package zone

import (
	"context"
	"net/netip"

	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

type fakeInventory struct {
	ipMappings    map[int64]domain.IPMappings
	fleet         domain.IPMappings
	rrsets        map[int64]domain.RRsetMappings
	defaultDomain domain.Domain
	delegations   map[int64][]domain.Delegation

	ipErr    error
	fleetErr error

	ipCalls    int
	fleetCalls int
	rrsetCalls int
}

func (f *fakeInventory) FetchIPMapping(_ context.Context, domainID *int64) (domain.IPMappings, error) {
	if domainID == nil {
		f.fleetCalls++
		if f.fleetErr != nil {
			return nil, f.fleetErr
		}
		return f.fleet, nil
	}
	f.ipCalls++
	if f.ipErr != nil {
		return nil, f.ipErr
	}
	return f.ipMappings[*domainID], nil
}

func (f *fakeInventory) FetchRRsetMapping(_ context.Context, domainID int64) (domain.RRsetMappings, error) {
	f.rrsetCalls++
	return f.rrsets[domainID], nil
}

func (f *fakeInventory) DefaultDomain(context.Context) (domain.Domain, error) {
	return f.defaultDomain, nil
}

func (f *fakeInventory) DelegatedChildren(_ context.Context, parent domain.Domain) ([]domain.Delegation, error) {
	return f.delegations[parent.ID], nil
}

type fakeResolver struct {
	addrs []netip.Addr
	err   error
}

func (r fakeResolver) ServerAddresses(context.Context) ([]netip.Addr, error) {
	return r.addrs, r.err
}

func prefix(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func hostIPs(ips ...string) *domain.HostnameIPMapping {
	set := make(domain.AddrSet)
	for _, ip := range ips {
		set.Add(addr(ip))
	}
	return &domain.HostnameIPMapping{IPs: set}
}

func subnet(id int64, cidr string, mode domain.RDNSMode) domain.Subnet {
	return domain.Subnet{ID: id, CIDR: prefix(cidr), RDNSMode: mode}
}

func ipRange(from, to string) netipx.IPRange {
	return netipx.IPRangeFrom(addr(from), addr(to))
}

func ttlPtr(v uint32) *uint32 {
	return &v
}

func sortedIPs(m domain.IPMappings, name string) []netip.Addr {
	entry, ok := m[name]
	if !ok {
		return nil
	}
	return entry.IPs.Sorted()
}
