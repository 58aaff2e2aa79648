package db

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/miekg/dns"
	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Inventory reads the fleet from PostgreSQL. The domain list read by Fleet
// or Domains is kept and reused by DefaultDomain and DelegatedChildren until
// the next Fleet call.
type Inventory struct {
	db         DBTX
	defaultTTL uint32

	mu      sync.Mutex
	domains []domain.Domain
}

// NewInventory returns an inventory over db. Records without a TTL get the
// base TTL of their domain, falling back to defaultTTL.
func NewInventory(db DBTX, defaultTTL uint32) *Inventory {
	return &Inventory{db: db, defaultTTL: defaultTTL}
}

const listDomains = `
SELECT d.id, d.name, d.ttl, d.authoritative, d.is_default,
       COALESCE(
           (SELECT json_object_agg(upper(dd.rrtype), dd.ttl)
              FROM dnsdata dd
             WHERE dd.domain_id = d.id AND dd.name = '@' AND dd.ttl IS NOT NULL),
           '{}'::json)
  FROM domain d
 ORDER BY d.id`

func (inv *Inventory) Domains(ctx context.Context) ([]domain.Domain, error) {
	rows, err := inv.db.Query(ctx, listDomains)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	domains, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Domain, error) {
		var (
			d        domain.Domain
			ttl      *int32
			baseTTLs map[string]int32
		)
		if err := row.Scan(&d.ID, &d.Name, &ttl, &d.Authoritative, &d.IsDefault, &baseTTLs); err != nil {
			return domain.Domain{}, err
		}
		d.TTL = toTTL(ttl)
		if len(baseTTLs) > 0 {
			d.BaseTTLs = make(map[string]uint32, len(baseTTLs))
			for rrtype, v := range baseTTLs {
				d.BaseTTLs[rrtype] = uint32(v)
			}
		}
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}

	inv.mu.Lock()
	inv.domains = domains
	inv.mu.Unlock()
	return domains, nil
}

// knownDomains returns the last domain list read, querying it when none has
// been read yet.
func (inv *Inventory) knownDomains(ctx context.Context) ([]domain.Domain, error) {
	inv.mu.Lock()
	domains := inv.domains
	inv.mu.Unlock()
	if domains != nil {
		return domains, nil
	}
	return inv.Domains(ctx)
}

const listSubnets = `
SELECT s.id, s.cidr::text, s.rdns_mode,
       COALESCE(array_agg(host(r.start_ip) ORDER BY r.start_ip) FILTER (WHERE r.id IS NOT NULL), '{}'),
       COALESCE(array_agg(host(r.end_ip) ORDER BY r.start_ip) FILTER (WHERE r.id IS NOT NULL), '{}')
  FROM subnet s
  LEFT JOIN iprange r ON r.subnet_id = s.id AND r.type = 'dynamic'
 GROUP BY s.id
 ORDER BY s.id`

func (inv *Inventory) Subnets(ctx context.Context) ([]domain.Subnet, error) {
	rows, err := inv.db.Query(ctx, listSubnets)
	if err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	subnets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Subnet, error) {
		var (
			s            domain.Subnet
			cidr, mode   string
			starts, ends []string
		)
		if err := row.Scan(&s.ID, &cidr, &mode, &starts, &ends); err != nil {
			return domain.Subnet{}, err
		}
		var err error
		if s.CIDR, err = domain.ParseSubnetCIDR(cidr); err != nil {
			return domain.Subnet{}, fmt.Errorf("subnet %d: %w", s.ID, err)
		}
		if s.RDNSMode, err = domain.ParseRDNSMode(mode); err != nil {
			return domain.Subnet{}, fmt.Errorf("subnet %d: %w", s.ID, err)
		}
		for i := range starts {
			rng := netipx.IPRangeFrom(parseAddr(starts[i]), parseAddr(ends[i]))
			if !rng.IsValid() {
				return domain.Subnet{}, fmt.Errorf("%w: subnet %d: bad dynamic range %s-%s", domain.ErrInvalidInput, s.ID, starts[i], ends[i])
			}
			s.DynamicRanges = append(s.DynamicRanges, rng)
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	return subnets, nil
}

const listUpdates = `
SELECT operation, zone, name, rrtype, ttl, answer
  FROM dnsupdate
 ORDER BY id`

func (inv *Inventory) DynamicUpdates(ctx context.Context) ([]domain.DynamicDNSUpdate, error) {
	rows, err := inv.db.Query(ctx, listUpdates)
	if err != nil {
		return nil, fmt.Errorf("list dynamic updates: %w", err)
	}
	updates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DynamicDNSUpdate, error) {
		var (
			op, zone, name, rrtype, answer string
			ttl                            *int32
		)
		if err := row.Scan(&op, &zone, &name, &rrtype, &ttl, &answer); err != nil {
			return domain.DynamicDNSUpdate{}, err
		}
		u := domain.NewDynamicDNSUpdateFromTrigger(op, zone, name, rrtype, answer)
		u.TTL = toTTL(ttl)
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list dynamic updates: %w", err)
	}
	return updates, nil
}

// Fleet reads every domain, subnet and pending update.
func (inv *Inventory) Fleet(ctx context.Context) (domain.Fleet, error) {
	domains, err := inv.Domains(ctx)
	if err != nil {
		return domain.Fleet{}, err
	}
	subnets, err := inv.Subnets(ctx)
	if err != nil {
		return domain.Fleet{}, err
	}
	updates, err := inv.DynamicUpdates(ctx)
	if err != nil {
		return domain.Fleet{}, err
	}
	return domain.Fleet{Domains: domains, Subnets: subnets, DynamicUpdates: updates}, nil
}

const listHostAddresses = `
SELECT CASE WHEN h.name = '@' THEN d.name ELSE h.name || '.' || d.name END,
       h.system_id, h.node_type, h.ttl, h.user_id, host(a.ip)
  FROM host h
  JOIN domain d ON d.id = h.domain_id
  JOIN host_address a ON a.host_id = h.id
 WHERE $1::bigint IS NULL OR h.domain_id = $1
 ORDER BY h.id, a.ip`

func (inv *Inventory) FetchIPMapping(ctx context.Context, domainID *int64) (domain.IPMappings, error) {
	rows, err := inv.db.Query(ctx, listHostAddresses, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(domain.IPMappings)
	for rows.Next() {
		var (
			fqdn, systemID, ip string
			nodeType           int
			ttl                *int32
			userID             *int64
		)
		if err := rows.Scan(&fqdn, &systemID, &nodeType, &ttl, &userID, &ip); err != nil {
			return nil, err
		}
		entry, ok := out[fqdn]
		if !ok {
			entry = &domain.HostnameIPMapping{
				SystemID: systemID,
				TTL:      toTTL(ttl),
				IPs:      make(domain.AddrSet),
				NodeType: domain.NodeType(nodeType),
				UserID:   userID,
			}
			out[fqdn] = entry
		}
		if a := parseAddr(ip); a.IsValid() {
			entry.IPs.Add(a)
		}
	}
	return out, rows.Err()
}

const listDNSData = `
SELECT name, upper(rrtype), rrdata, ttl
  FROM dnsdata
 WHERE domain_id = $1
 ORDER BY id`

const getDomain = `
SELECT d.id, d.name, d.ttl
  FROM domain d
 WHERE d.id = $1`

func (inv *Inventory) FetchRRsetMapping(ctx context.Context, domainID int64) (domain.RRsetMappings, error) {
	var (
		d   domain.Domain
		ttl *int32
	)
	if err := inv.db.QueryRow(ctx, getDomain, domainID).Scan(&d.ID, &d.Name, &ttl); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("domain %d: %w", domainID, domain.ErrNotFound)
		}
		return nil, err
	}
	d.TTL = toTTL(ttl)

	rows, err := inv.db.Query(ctx, listDNSData, domainID)
	if err != nil {
		return nil, err
	}
	type record struct {
		name string
		rec  domain.Record
		ttl  *int32
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record, error) {
		var r record
		err := row.Scan(&r.name, &r.rec.RRType, &r.rec.RRData, &r.ttl)
		return r, err
	})
	if err != nil {
		return nil, err
	}

	// Apex TTLs of each type act as the domain's base TTLs.
	d.BaseTTLs = make(map[string]uint32)
	for _, r := range records {
		if r.name == "@" && r.ttl != nil {
			d.BaseTTLs[r.rec.RRType] = uint32(*r.ttl)
		}
	}

	out := make(domain.RRsetMappings)
	for _, r := range records {
		r.rec.TTL = d.BaseTTL(r.rec.RRType, inv.defaultTTL)
		if r.ttl != nil {
			r.rec.TTL = uint32(*r.ttl)
		}
		out.Entry(r.name).RRset.Add(r.rec)
	}
	return out, nil
}

func (inv *Inventory) DefaultDomain(ctx context.Context) (domain.Domain, error) {
	domains, err := inv.knownDomains(ctx)
	if err != nil {
		return domain.Domain{}, err
	}
	for _, d := range domains {
		if d.IsDefault {
			return d, nil
		}
	}
	return domain.Domain{}, fmt.Errorf("default domain: %w", domain.ErrNotFound)
}

const listApexNS = `
SELECT rrdata
  FROM dnsdata
 WHERE domain_id = $1 AND name = '@' AND upper(rrtype) = 'NS'
 ORDER BY id`

const findAddressesByName = `
SELECT host(a.ip)
  FROM host h
  JOIN domain d ON d.id = h.domain_id
  JOIN host_address a ON a.host_id = h.id
 WHERE lower(CASE WHEN h.name = '@' THEN d.name ELSE h.name || '.' || d.name END) = lower($1)
 ORDER BY a.ip`

// DelegatedChildren returns the immediate children of parent with the NS
// records at their apex and the known addresses of those NS targets.
func (inv *Inventory) DelegatedChildren(ctx context.Context, parent domain.Domain) ([]domain.Delegation, error) {
	domains, err := inv.knownDomains(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.Delegation
	for _, child := range domain.ImmediateChildren(parent, domains) {
		rows, err := inv.db.Query(ctx, listApexNS, child.ID)
		if err != nil {
			return nil, err
		}
		targets, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, err
		}

		delegation := domain.Delegation{Child: child, Glue: make(map[string][]netip.Addr)}
		for _, target := range targets {
			target = qualify(target, child.Name)
			delegation.NSTargets = append(delegation.NSTargets, target)

			rows, err := inv.db.Query(ctx, findAddressesByName, strings.TrimSuffix(target, "."))
			if err != nil {
				return nil, err
			}
			ips, err := pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if a := parseAddr(ip); a.IsValid() {
					delegation.Glue[target] = append(delegation.Glue[target], a)
				}
			}
		}
		out = append(out, delegation)
	}
	return out, nil
}

func toTTL(v *int32) *uint32 {
	if v == nil || *v < 0 {
		return nil
	}
	ttl := uint32(*v)
	return &ttl
}

func parseAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}

// qualify makes an rrdata name absolute, relative names being inside zone.
func qualify(name, zone string) string {
	if dns.IsFqdn(name) {
		return name
	}
	return dns.Fqdn(name + "." + strings.TrimSuffix(zone, "."))
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
