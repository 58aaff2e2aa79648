// Package snapshot reads a fleet description from a YAML file and serves it
// as the zone generator's inventory.
package snapshot

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/miekg/dns"
	"go4.org/netipx"
	"sigs.k8s.io/yaml"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

type Snapshot struct {
	DefaultDomain   string           `json:"default_domain"`
	Domains         []Domain         `json:"domains"`
	Subnets         []Subnet         `json:"subnets"`
	InternalDomains []InternalDomain `json:"internal_domains,omitempty"`
	DynamicUpdates  []DynamicUpdate  `json:"dynamic_updates,omitempty"`
}

type Domain struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	TTL           *uint32  `json:"ttl,omitempty"`
	Authoritative *bool    `json:"authoritative,omitempty"`
	Hosts         []Host   `json:"hosts,omitempty"`
	Records       []Record `json:"records,omitempty"`
}

// Host is a name with addresses. Name is relative to its domain; "@" is the
// domain apex.
type Host struct {
	Name     string   `json:"name"`
	SystemID string   `json:"system_id,omitempty"`
	NodeType string   `json:"node_type,omitempty"`
	TTL      *uint32  `json:"ttl,omitempty"`
	IPs      []string `json:"ips"`
}

type Record struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	Data string  `json:"data"`
	TTL  *uint32 `json:"ttl,omitempty"`
}

type Subnet struct {
	ID            int64          `json:"id"`
	CIDR          string         `json:"cidr"`
	RDNSMode      string         `json:"rdns_mode,omitempty"`
	DynamicRanges []DynamicRange `json:"dynamic_ranges,omitempty"`
}

type DynamicRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type InternalDomain struct {
	Name      string             `json:"name"`
	TTL       uint32             `json:"ttl"`
	Resources []InternalResource `json:"resources,omitempty"`
}

type InternalResource struct {
	Name    string           `json:"name"`
	Records []InternalRecord `json:"records"`
}

type InternalRecord struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type DynamicUpdate struct {
	Operation string  `json:"operation"`
	Zone      string  `json:"zone"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Answer    string  `json:"answer"`
	TTL       *uint32 `json:"ttl,omitempty"`
}

// Load reads and validates the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a snapshot. Unknown fields are rejected.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", domain.ErrInvalidInput, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Snapshot) Validate() error {
	ids := make(map[int64]bool)
	names := make(map[string]bool)
	for _, d := range s.Domains {
		if ids[d.ID] {
			return fmt.Errorf("%w: duplicate domain id %d", domain.ErrInvalidInput, d.ID)
		}
		ids[d.ID] = true
		if !govalidator.IsDNSName(d.Name) {
			return fmt.Errorf("%w: domain %q is not a dns name", domain.ErrInvalidInput, d.Name)
		}
		names[normalize(d.Name)] = true
		for _, h := range d.Hosts {
			if err := validateHost(d.Name, h); err != nil {
				return err
			}
		}
		for _, r := range d.Records {
			if err := validateRecord(d.Name, r.Name, r.Type); err != nil {
				return err
			}
		}
	}
	if s.DefaultDomain != "" && !names[normalize(s.DefaultDomain)] {
		return fmt.Errorf("%w: default domain %q is not defined", domain.ErrInvalidInput, s.DefaultDomain)
	}

	subnetIDs := make(map[int64]bool)
	for _, sn := range s.Subnets {
		if subnetIDs[sn.ID] {
			return fmt.Errorf("%w: duplicate subnet id %d", domain.ErrInvalidInput, sn.ID)
		}
		subnetIDs[sn.ID] = true
		if _, err := sn.toDomain(); err != nil {
			return err
		}
	}

	for _, d := range s.InternalDomains {
		if !govalidator.IsDNSName(d.Name) {
			return fmt.Errorf("%w: internal domain %q is not a dns name", domain.ErrInvalidInput, d.Name)
		}
		for _, res := range d.Resources {
			for _, r := range res.Records {
				if err := validateRecord(d.Name, res.Name, r.Type); err != nil {
					return err
				}
			}
		}
	}

	for _, u := range s.DynamicUpdates {
		switch strings.ToUpper(u.Operation) {
		case domain.OperationInsert, domain.OperationDelete, domain.OperationUpdate:
		default:
			return fmt.Errorf("%w: dynamic update %q has unknown operation %q", domain.ErrInvalidInput, u.Name, u.Operation)
		}
		if _, ok := dns.StringToType[strings.ToUpper(u.Type)]; !ok {
			return fmt.Errorf("%w: dynamic update %q has unknown type %q", domain.ErrInvalidInput, u.Name, u.Type)
		}
	}
	return nil
}

func validateHost(domainName string, h Host) error {
	if h.Name != "@" && !govalidator.IsDNSName(h.Name) {
		return fmt.Errorf("%w: host %q in %s is not a dns name", domain.ErrInvalidInput, h.Name, domainName)
	}
	if len(h.IPs) == 0 {
		return fmt.Errorf("%w: host %q in %s has no addresses", domain.ErrInvalidInput, h.Name, domainName)
	}
	for _, ip := range h.IPs {
		if !govalidator.IsIPv4(ip) && !govalidator.IsIPv6(ip) {
			return fmt.Errorf("%w: host %q in %s: %q is not an ip address", domain.ErrInvalidInput, h.Name, domainName, ip)
		}
	}
	if _, err := parseNodeType(h.NodeType); err != nil {
		return err
	}
	return nil
}

func validateRecord(domainName, name, rrtype string) error {
	if name != "@" && !govalidator.IsDNSName(name) {
		return fmt.Errorf("%w: record name %q in %s is not a dns name", domain.ErrInvalidInput, name, domainName)
	}
	if _, ok := dns.StringToType[strings.ToUpper(rrtype)]; !ok {
		return fmt.Errorf("%w: record %q in %s has unknown type %q", domain.ErrInvalidInput, name, domainName, rrtype)
	}
	return nil
}

func (sn Subnet) toDomain() (domain.Subnet, error) {
	cidr, err := domain.ParseSubnetCIDR(sn.CIDR)
	if err != nil {
		return domain.Subnet{}, fmt.Errorf("subnet %d: %w", sn.ID, err)
	}
	mode, err := domain.ParseRDNSMode(sn.RDNSMode)
	if err != nil {
		return domain.Subnet{}, fmt.Errorf("subnet %d: %w", sn.ID, err)
	}

	out := domain.Subnet{ID: sn.ID, CIDR: cidr, RDNSMode: mode}
	for _, r := range sn.DynamicRanges {
		start, err1 := netip.ParseAddr(r.Start)
		end, err2 := netip.ParseAddr(r.End)
		if err1 != nil || err2 != nil {
			return domain.Subnet{}, fmt.Errorf("%w: subnet %d: bad dynamic range %s-%s", domain.ErrInvalidInput, sn.ID, r.Start, r.End)
		}
		rng := netipx.IPRangeFrom(start.Unmap(), end.Unmap())
		if !rng.IsValid() || !cidr.Contains(rng.From()) || !cidr.Contains(rng.To()) {
			return domain.Subnet{}, fmt.Errorf("%w: subnet %d: dynamic range %s is not inside %s", domain.ErrInvalidInput, sn.ID, rng, cidr)
		}
		out.DynamicRanges = append(out.DynamicRanges, rng)
	}
	return out, nil
}

func parseNodeType(s string) (domain.NodeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "machine", "default":
		return domain.NodeTypeDefault, nil
	case "device":
		return domain.NodeTypeDevice, nil
	case "rack_controller":
		return domain.NodeTypeRackController, nil
	case "region_controller":
		return domain.NodeTypeRegionController, nil
	case "region_and_rack_controller":
		return domain.NodeTypeRegionAndRackController, nil
	}
	return domain.NodeTypeDefault, fmt.Errorf("%w: unknown node type %q", domain.ErrInvalidInput, s)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
