package snapshot

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// Inventory serves a validated snapshot. It is read-only and safe for
// concurrent use.
type Inventory struct {
	snapshot   *Snapshot
	defaultTTL uint32
	domains    []domain.Domain
	byID       map[int64]Domain
}

// NewInventory indexes s. Records without a TTL get the base TTL of their
// domain, falling back to defaultTTL.
func NewInventory(s *Snapshot, defaultTTL uint32) *Inventory {
	inv := &Inventory{
		snapshot:   s,
		defaultTTL: defaultTTL,
		byID:       make(map[int64]Domain, len(s.Domains)),
	}
	for _, d := range s.Domains {
		inv.byID[d.ID] = d
		inv.domains = append(inv.domains, toDomain(d, s.DefaultDomain))
	}
	return inv
}

func toDomain(d Domain, defaultDomain string) domain.Domain {
	out := domain.Domain{
		ID:            d.ID,
		Name:          strings.TrimSuffix(d.Name, "."),
		TTL:           d.TTL,
		Authoritative: d.Authoritative == nil || *d.Authoritative,
		IsDefault:     defaultDomain != "" && normalize(d.Name) == normalize(defaultDomain),
	}
	for _, r := range d.Records {
		if r.Name == "@" && r.TTL != nil {
			if out.BaseTTLs == nil {
				out.BaseTTLs = make(map[string]uint32)
			}
			out.BaseTTLs[strings.ToUpper(r.Type)] = *r.TTL
		}
	}
	return out
}

func (inv *Inventory) Domains() []domain.Domain {
	return inv.domains
}

func (inv *Inventory) Fleet(context.Context) (domain.Fleet, error) {
	fleet := domain.Fleet{Domains: inv.domains}

	for _, sn := range inv.snapshot.Subnets {
		s, err := sn.toDomain()
		if err != nil {
			return domain.Fleet{}, err
		}
		fleet.Subnets = append(fleet.Subnets, s)
	}

	for _, d := range inv.snapshot.InternalDomains {
		internal := domain.InternalDomain{Name: d.Name, TTL: d.TTL}
		for _, res := range d.Resources {
			resource := domain.InternalDomainResource{Name: res.Name}
			for _, r := range res.Records {
				resource.Records = append(resource.Records, domain.InternalDomainRecord{RRType: strings.ToUpper(r.Type), RRData: r.Data})
			}
			internal.Resources = append(internal.Resources, resource)
		}
		fleet.InternalDomains = append(fleet.InternalDomains, internal)
	}

	for _, u := range inv.snapshot.DynamicUpdates {
		update := domain.NewDynamicDNSUpdateFromTrigger(u.Operation, u.Zone, u.Name, u.Type, u.Answer)
		update.TTL = u.TTL
		fleet.DynamicUpdates = append(fleet.DynamicUpdates, update)
	}
	return fleet, nil
}

func (inv *Inventory) FetchIPMapping(_ context.Context, domainID *int64) (domain.IPMappings, error) {
	out := make(domain.IPMappings)
	if domainID != nil {
		d, ok := inv.byID[*domainID]
		if !ok {
			return nil, fmt.Errorf("domain %d: %w", *domainID, domain.ErrNotFound)
		}
		addHosts(out, d)
		return out, nil
	}
	for _, d := range inv.snapshot.Domains {
		addHosts(out, d)
	}
	return out, nil
}

func addHosts(out domain.IPMappings, d Domain) {
	for _, h := range d.Hosts {
		fqdn := hostFQDN(h.Name, d.Name)
		entry, ok := out[fqdn]
		if !ok {
			nodeType, _ := parseNodeType(h.NodeType)
			entry = &domain.HostnameIPMapping{
				SystemID: h.SystemID,
				TTL:      h.TTL,
				IPs:      make(domain.AddrSet),
				NodeType: nodeType,
			}
			out[fqdn] = entry
		}
		for _, ip := range h.IPs {
			if a, err := netip.ParseAddr(ip); err == nil {
				entry.IPs.Add(a)
			}
		}
	}
}

func (inv *Inventory) FetchRRsetMapping(_ context.Context, domainID int64) (domain.RRsetMappings, error) {
	d, ok := inv.byID[domainID]
	if !ok {
		return nil, fmt.Errorf("domain %d: %w", domainID, domain.ErrNotFound)
	}
	base := toDomain(d, inv.snapshot.DefaultDomain)

	out := make(domain.RRsetMappings)
	for _, r := range d.Records {
		ttl := base.BaseTTL(r.Type, inv.defaultTTL)
		if r.TTL != nil {
			ttl = *r.TTL
		}
		out.Entry(r.Name).RRset.Add(domain.Record{TTL: ttl, RRType: r.Type, RRData: r.Data})
	}
	return out, nil
}

func (inv *Inventory) DefaultDomain(context.Context) (domain.Domain, error) {
	for _, d := range inv.domains {
		if d.IsDefault {
			return d, nil
		}
	}
	return domain.Domain{}, fmt.Errorf("default domain: %w", domain.ErrNotFound)
}

// DelegatedChildren returns the immediate children of parent with the NS
// records at their apex and the known addresses of those NS targets.
func (inv *Inventory) DelegatedChildren(_ context.Context, parent domain.Domain) ([]domain.Delegation, error) {
	var out []domain.Delegation
	for _, child := range domain.ImmediateChildren(parent, inv.domains) {
		delegation := domain.Delegation{Child: child, Glue: make(map[string][]netip.Addr)}
		for _, r := range inv.byID[child.ID].Records {
			if r.Name != "@" || !strings.EqualFold(r.Type, "NS") {
				continue
			}
			target := qualify(r.Data, child.Name)
			delegation.NSTargets = append(delegation.NSTargets, target)
			if addrs := inv.addressesOf(target); len(addrs) > 0 {
				delegation.Glue[target] = addrs
			}
		}
		out = append(out, delegation)
	}
	return out, nil
}

func (inv *Inventory) addressesOf(fqdn string) []netip.Addr {
	var out []netip.Addr
	for _, d := range inv.snapshot.Domains {
		for _, h := range d.Hosts {
			if !strings.EqualFold(dns.Fqdn(hostFQDN(h.Name, d.Name)), fqdn) {
				continue
			}
			for _, ip := range h.IPs {
				if a, err := netip.ParseAddr(ip); err == nil {
					out = append(out, a.Unmap())
				}
			}
		}
	}
	return out
}

func hostFQDN(name, domainName string) string {
	domainName = strings.TrimSuffix(domainName, ".")
	if name == "@" || name == "" {
		return domainName
	}
	return name + "." + domainName
}

// qualify makes an rrdata name absolute, relative names being inside zone.
func qualify(name, zone string) string {
	if dns.IsFqdn(name) {
		return name
	}
	return dns.Fqdn(hostFQDN(name, zone))
}
