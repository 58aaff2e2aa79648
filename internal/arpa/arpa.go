// Package arpa computes in-addr.arpa and ip6.arpa names for addresses and
// networks, including RFC2317 classless delegation labels.
package arpa

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

const (
	// IPv4LabelBits is the number of address bits covered by one in-addr.arpa label.
	IPv4LabelBits = 8
	// IPv6LabelBits is the number of address bits covered by one ip6.arpa label.
	IPv6LabelBits = 4
)

// LabelBits returns the number of address bits per reverse label for the
// address family of addr.
func LabelBits(addr netip.Addr) int {
	if addr.Is4() {
		return IPv4LabelBits
	}
	return IPv6LabelBits
}

// ZoneBoundary is the longest prefix length that still owns a natural reverse
// zone: 24 for IPv4 and 124 for IPv6.
func ZoneBoundary(p netip.Prefix) int {
	return p.Addr().BitLen() - LabelBits(p.Addr())
}

// IsClassless reports whether p is narrower than one reverse label and so
// needs RFC2317 delegation to get a zone of its own.
func IsClassless(p netip.Prefix) bool {
	return p.Bits() > ZoneBoundary(p)
}

// BaseNetwork returns the label-aligned network that contains a classless
// network, e.g. 192.168.99.32/29 -> 192.168.99.0/24. Networks that are not
// classless are returned masked but otherwise unchanged.
func BaseNetwork(p netip.Prefix) netip.Prefix {
	if !IsClassless(p) {
		return p.Masked()
	}
	base, _ := p.Addr().Prefix(ZoneBoundary(p))
	return base
}

// ReverseName returns the fully qualified reverse name of addr.
func ReverseName(addr netip.Addr) string {
	name, err := dns.ReverseAddr(addr.Unmap().String())
	if err != nil {
		// netip.Addr always formats to something ReverseAddr accepts.
		panic(fmt.Sprintf("reverse name for %s: %v", addr, err))
	}
	return name
}

// ClasslessLabel returns the RFC2317 label for a classless network: the last
// address component of the network followed by its prefix length. IPv4 uses
// the decimal last octet ("0-25"), IPv6 the last hextet in hex ("8000-126").
func ClasslessLabel(p netip.Prefix) string {
	addr := p.Masked().Addr()
	if addr.Is4() {
		a := addr.As4()
		return fmt.Sprintf("%d-%d", a[3], p.Bits())
	}
	a := addr.As16()
	return fmt.Sprintf("%x-%d", uint16(a[14])<<8|uint16(a[15]), p.Bits())
}

// ZoneName returns the reverse zone name owning network p. Aligned networks
// map onto their natural zone; classless networks get the RFC2317 label in
// front of their base zone.
func ZoneName(p netip.Prefix) string {
	p = p.Masked()
	if IsClassless(p) {
		return ClasslessLabel(p) + "." + ZoneName(BaseNetwork(p))
	}

	labels := dns.SplitDomainName(ReverseName(p.Addr()))
	suffix := labels[len(labels)-2:]
	host := labels[:len(labels)-2]
	keep := p.Bits() / LabelBits(p.Addr())

	parts := make([]string, 0, keep+2)
	parts = append(parts, host[len(host)-keep:]...)
	parts = append(parts, suffix...)
	return dns.Fqdn(strings.Join(parts, "."))
}

// ReverseNameIn returns the reverse name of addr as it appears inside the
// zone of network p. For classless networks the RFC2317 label is inserted
// after the host label ("5.0-25.1.1.10.in-addr.arpa.").
func ReverseNameIn(addr netip.Addr, p netip.Prefix) string {
	name := ReverseName(addr)
	if !IsClassless(p) {
		return name
	}
	host := HostLabel(addr)
	return host + "." + ClasslessLabel(p) + "." + strings.TrimPrefix(name, host+".")
}

// HostLabel returns the leftmost label of the reverse name of addr.
func HostLabel(addr netip.Addr) string {
	host, _, _ := strings.Cut(ReverseName(addr), ".")
	return host
}
