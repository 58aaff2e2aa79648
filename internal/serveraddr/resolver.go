// Package serveraddr finds the addresses this MAAS region presents to DNS
// clients.
package serveraddr

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"slices"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// LookupFunc resolves host to its addresses.
type LookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

type Resolver struct {
	maasURL string
	lookup  LookupFunc
	logger  *slog.Logger
}

// NewResolver returns a resolver for the host of maasURL. A nil lookup uses
// the system resolver.
func NewResolver(maasURL string, lookup LookupFunc, logger *slog.Logger) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupNetIP
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		maasURL: maasURL,
		lookup:  lookup,
		logger:  logger,
	}
}

// ServerAddresses resolves the region host. Loopback addresses are dropped
// when any other address is available.
func (r *Resolver) ServerAddresses(ctx context.Context) ([]netip.Addr, error) {
	u, err := url.Parse(r.maasURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", domain.ErrUnresolvableHost, r.maasURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: no host in %q", domain.ErrUnresolvableHost, r.maasURL)
	}

	var addrs []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		addrs, err = r.lookup(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnresolvableHost, host, err)
		}
	}

	for i := range addrs {
		addrs[i] = addrs[i].Unmap().WithZone("")
	}
	slices.SortFunc(addrs, func(a, b netip.Addr) int { return a.Compare(b) })
	addrs = slices.Compact(addrs)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", domain.ErrUnresolvableHost, host)
	}

	public := slices.DeleteFunc(slices.Clone(addrs), func(a netip.Addr) bool { return a.IsLoopback() })
	if len(public) > 0 {
		return public, nil
	}
	for _, a := range addrs {
		r.logger.WarnContext(ctx, "dns server address is loopback; remote clients will not reach it", "host", host, "addr", a.String())
	}
	return addrs, nil
}
