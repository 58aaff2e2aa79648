package zone

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"net/netip"
	"slices"

	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// ReverseBuilder assembles reverse zone configs for the subnets of one run.
type ReverseBuilder struct {
	Cache            *MappingCache
	Serial           uint32
	NSHostName       string
	DefaultTTL       uint32
	Updates          []domain.DynamicDNSUpdate
	ForceConfigWrite bool
	Logger           *slog.Logger

	// order arranges the subnets before they are visited.
	order func([]domain.Subnet)
}

// mostSpecificFirst orders subnets by descending prefix length, then by
// address. Classless subnets must be seen before any network containing
// their base so that the base's glue is not claimed early.
func mostSpecificFirst(subnets []domain.Subnet) {
	slices.SortStableFunc(subnets, func(a, b domain.Subnet) int {
		if c := cmp.Compare(b.CIDR.Bits(), a.CIDR.Bits()); c != 0 {
			return c
		}
		return a.CIDR.Addr().Compare(b.CIDR.Addr())
	})
}

// Build returns the reverse zones of subnets. Zones already present in
// existing are merged in place; new zones are added to it. Each zone is
// yielded at most once per call. An inventory failure is yielded as the
// final pair.
func (b *ReverseBuilder) Build(ctx context.Context, subnets []domain.Subnet, existing *ReverseZones) iter.Seq2[*ReverseZoneConfig, error] {
	if existing == nil {
		existing = NewReverseZones()
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	order := b.order
	if order == nil {
		order = mostSpecificFirst
	}

	return func(yield func(*ReverseZoneConfig, error) bool) {
		registry := NewGlueRegistry(subnets)
		yielded := make(map[netip.Prefix]bool)
		emit := func(c *ReverseZoneConfig) bool {
			if yielded[c.Network] {
				return true
			}
			yielded[c.Network] = true
			return yield(c, nil)
		}

		ordered := slices.Clone(subnets)
		order(ordered)
		for _, subnet := range ordered {
			if subnet.RDNSMode == domain.RDNSDisabled {
				logger.DebugContext(ctx, "reverse dns disabled for subnet", "subnet", subnet.CIDR.String())
				continue
			}

			for _, network := range Split(subnet.CIDR) {
				fleet, err := b.Cache.ReverseIPMapping(ctx)
				if err != nil {
					yield(nil, err)
					return
				}
				c := b.place(existing, network, fleet.FilterNetwork(network), subnet.DynamicRanges, b.updatesFor(network, nil), registry.Find(network))
				if !emit(c) {
					return
				}
			}
		}

		// Glue whose base network is not a managed subnet of its own still
		// needs a parent zone to delegate from.
		for _, base := range registry.Remaining() {
			glue := registry.Find(base)
			c := b.place(existing, base, domain.IPMappings{}, nil, b.updatesFor(base, subnets), glue)
			logger.DebugContext(ctx, "rfc2317 parent zone without subnet", "network", base.String(), "glue", len(glue))
			if !emit(c) {
				return
			}
		}
	}
}

// updatesFor converts the updates answering inside network into PTR updates
// for its zone. Answers inside any of exclude are skipped.
func (b *ReverseBuilder) updatesFor(network netip.Prefix, exclude []domain.Subnet) []domain.DynamicDNSUpdate {
	var out []domain.DynamicDNSUpdate
	for _, u := range b.Updates {
		if !u.AnswerIn(network) || answerInAny(u, exclude) {
			continue
		}
		out = append(out, u.AsReverseRecordUpdate(network))
	}
	return out
}

func answerInAny(u domain.DynamicDNSUpdate, subnets []domain.Subnet) bool {
	for _, s := range subnets {
		if u.AnswerIn(s.CIDR) {
			return true
		}
	}
	return false
}

// place merges the chunk into its accumulated config, or creates one.
func (b *ReverseBuilder) place(existing *ReverseZones, network netip.Prefix, mapping domain.IPMappings, ranges []netipx.IPRange, updates []domain.DynamicDNSUpdate, glue PrefixSet) *ReverseZoneConfig {
	if c, ok := existing.Get(network); ok {
		c.Serial = b.Serial
		c.merge(mapping, ranges, updates, glue)
		return c
	}

	c := &ReverseZoneConfig{
		Network:          network,
		Serial:           b.Serial,
		DefaultTTL:       b.DefaultTTL,
		NSHostName:       b.NSHostName,
		Mapping:          mapping,
		RFC2317Ranges:    glue,
		DynamicRanges:    slices.Clone(ranges),
		DynamicUpdates:   updates,
		ForceConfigWrite: b.ForceConfigWrite,
	}
	c.stripGlue()
	existing.put(c)
	return c
}

// merge folds a later visit of the same network into c. Updates are only
// taken when c has none; glue and addresses are unioned and dynamic ranges
// appended once each.
func (c *ReverseZoneConfig) merge(mapping domain.IPMappings, ranges []netipx.IPRange, updates []domain.DynamicDNSUpdate, glue PrefixSet) {
	if len(c.DynamicUpdates) == 0 {
		c.DynamicUpdates = updates
	}

	if c.RFC2317Ranges == nil {
		c.RFC2317Ranges = make(PrefixSet)
	}
	c.RFC2317Ranges.Union(glue)

	if c.Mapping == nil {
		c.Mapping = make(domain.IPMappings)
	}
	for name, m := range mapping {
		current, ok := c.Mapping[name]
		if !ok {
			c.Mapping[name] = m
			continue
		}
		if current.IPs == nil {
			current.IPs = make(domain.AddrSet)
		}
		current.IPs.Union(m.IPs)
	}

	for _, r := range ranges {
		if !slices.Contains(c.DynamicRanges, r) {
			c.DynamicRanges = append(c.DynamicRanges, r)
		}
	}

	c.stripGlue()
}
