package zone

import (
	"net/netip"

	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/arpa"
)

// Split divides network into the reverse zones that cover it, lowest address
// first. Each chunk is the network's prefix length rounded up to the next
// reverse label boundary. A classless network is returned as its only chunk.
func Split(network netip.Prefix) []netip.Prefix {
	network = network.Masked()
	if !network.IsValid() {
		return nil
	}
	if arpa.IsClassless(network) {
		return []netip.Prefix{network}
	}

	label := arpa.LabelBits(network.Addr())
	bits := (network.Bits() + label - 1) / label * label
	last := netipx.PrefixLastIP(network)

	var chunks []netip.Prefix
	// Next on the last address of the family returns the zero Addr, which
	// ends the walk instead of wrapping to the start of the address space.
	for cursor := network.Addr(); cursor.IsValid() && cursor.Compare(last) <= 0; {
		chunk := netip.PrefixFrom(cursor, bits)
		chunks = append(chunks, chunk)
		cursor = netipx.PrefixLastIP(chunk).Next()
	}
	return chunks
}
