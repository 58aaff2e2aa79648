// Package zone turns fleet inventory into forward and reverse DNS zone
// configs, including RFC2317 delegation for classless subnets.
package zone

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// DefaultTTL is used when neither the request nor the generator sets one.
const DefaultTTL uint32 = 30

// Request is the input of one generation.
type Request struct {
	Domains         []domain.Domain
	Subnets         []domain.Subnet
	Serial          uint32
	DefaultTTL      uint32
	InternalDomains []domain.InternalDomain
	DynamicUpdates  []domain.DynamicDNSUpdate
	// ForceConfigWrite marks every zone for a full rewrite instead of an
	// incremental update.
	ForceConfigWrite bool
	// Existing carries reverse zones between generations. Zones found in it
	// are merged in place. Nil starts from scratch.
	Existing *ReverseZones
}

type Generator struct {
	inventory  domain.Inventory
	resolver   domain.ServerAddressResolver
	defaultTTL uint32
	logger     *slog.Logger
}

func NewGenerator(inventory domain.Inventory, resolver domain.ServerAddressResolver, defaultTTL uint32, logger *slog.Logger) *Generator {
	if defaultTTL == 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{
		inventory:  inventory,
		resolver:   resolver,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Generate validates req and returns the lazy sequence of its zones: forward
// zones of the domains in input order, then internal domains, then reverse
// zones from most to least specific network. The sequence may be ranged over
// once. A failure ends it with a (nil, err) pair.
func (g *Generator) Generate(ctx context.Context, req Request) (iter.Seq2[ZoneConfig, error], error) {
	if req.Serial == 0 {
		return nil, domain.ErrMissingSerial
	}
	for _, s := range req.Subnets {
		if err := domain.ValidateNetwork(s.CIDR); err != nil {
			return nil, fmt.Errorf("subnet %d: %w", s.ID, err)
		}
	}
	if g.inventory == nil || g.resolver == nil {
		return nil, errors.New("generator is missing its inventory or resolver")
	}

	defaultTTL := req.DefaultTTL
	if defaultTTL == 0 {
		defaultTTL = g.defaultTTL
	}

	used := false
	return func(yield func(ZoneConfig, error) bool) {
		if used {
			yield(nil, errors.New("zone sequence already consumed"))
			return
		}
		used = true

		cache := NewMappingCache(g.inventory)
		defaultDomain, err := g.inventory.DefaultDomain(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("default domain: %w", err))
			return
		}

		emit := func(z ZoneConfig) bool {
			g.logger.DebugContext(ctx, "zone generated", "zone", z.ZoneName())
			return yield(z, nil)
		}

		serverAddrs, err := g.resolver.ServerAddresses(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		forward := &ForwardBuilder{
			Cache:               cache,
			Directory:           g.inventory,
			Serial:              req.Serial,
			NSHostName:          defaultDomain.Name,
			DefaultTTL:          defaultTTL,
			ServerAddrs:         serverAddrs,
			DefaultDomainRanges: dynamicRanges(req.Subnets),
			Updates:             req.DynamicUpdates,
			ForceConfigWrite:    req.ForceConfigWrite,
		}
		seen := make(map[int64]bool)
		for _, d := range req.Domains {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			d.IsDefault = d.IsDefault || (defaultDomain.Name != "" && d.ID == defaultDomain.ID)
			z, err := forward.Build(ctx, d)
			if err != nil {
				yield(nil, err)
				return
			}
			if !emit(z) {
				return
			}
		}
		for _, d := range req.InternalDomains {
			if !emit(forward.BuildInternal(d)) {
				return
			}
		}

		reverse := &ReverseBuilder{
			Cache:            cache,
			Serial:           req.Serial,
			NSHostName:       defaultDomain.Name,
			DefaultTTL:       defaultTTL,
			Updates:          req.DynamicUpdates,
			ForceConfigWrite: req.ForceConfigWrite,
			Logger:           g.logger,
		}
		for z, err := range reverse.Build(ctx, req.Subnets, req.Existing) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !emit(z) {
				return
			}
		}
	}, nil
}

// Collect drains seq, stopping at the first error.
func Collect(seq iter.Seq2[ZoneConfig, error]) ([]ZoneConfig, error) {
	var zones []ZoneConfig
	for z, err := range seq {
		if err != nil {
			return zones, err
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func dynamicRanges(subnets []domain.Subnet) []netipx.IPRange {
	var out []netipx.IPRange
	for _, s := range subnets {
		out = append(out, s.DynamicRanges...)
	}
	return out
}
