package zone

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go4.org/netipx"

	"github.com/Flarenzy/dns-zonegen/internal/arpa"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		network string
		want    []string
	}{
		{"10.0.0.0/24", []string{"10.0.0.0/24"}},
		{"10.0.0.0/22", []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24", "10.0.3.0/24"}},
		{"10.0.0.0/16", []string{"10.0.0.0/16"}},
		{"192.168.99.32/29", []string{"192.168.99.32/29"}},
		{"255.255.254.0/23", []string{"255.255.254.0/24", "255.255.255.0/24"}},
		{"0.0.0.0/0", []string{"0.0.0.0/0"}},
		{"2001:db8::/62", []string{"2001:db8::/64", "2001:db8:0:1::/64", "2001:db8:0:2::/64", "2001:db8:0:3::/64"}},
		{"2001:db8::/64", []string{"2001:db8::/64"}},
		{"2001:db8::8/126", []string{"2001:db8::8/126"}},
		{"ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffe0/123", []string{
			"ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffe0/124",
			"ffff:ffff:ffff:ffff:ffff:ffff:ffff:fff0/124",
		}},
		{"::/0", []string{"::/0"}},
	}

	for _, c := range cases {
		t.Run(c.network, func(t *testing.T) {
			var got []string
			for _, p := range Split(netip.MustParsePrefix(c.network)) {
				got = append(got, p.String())
			}
			assert.Equal(t, c.want, got)
		})
	}
}

func TestSplitCoversNetworkExactly(t *testing.T) {
	for _, base := range []string{"10.20.30.40", "255.255.255.255", "0.0.0.0", "2001:db8:1234:5678:9abc:def0:1234:5678", "ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff"} {
		a := netip.MustParseAddr(base)
		for bits := 0; bits <= a.BitLen(); bits++ {
			network := netip.PrefixFrom(a, bits).Masked()
			chunks := Split(network)
			require.NotEmpty(t, chunks, "network %s", network)

			var want, got netipx.IPSetBuilder
			want.AddPrefix(network)
			for i, chunk := range chunks {
				got.AddPrefix(chunk)
				require.True(t, network.Contains(chunk.Addr()), "chunk %s outside %s", chunk, network)
				require.True(t, network.Contains(netipx.PrefixLastIP(chunk)), "chunk %s outside %s", chunk, network)
				if i > 0 {
					prev := netipx.PrefixLastIP(chunks[i-1])
					require.Equal(t, prev.Next(), chunk.Addr(), "gap or overlap between %s and %s", chunks[i-1], chunk)
				}
			}
			wantSet, err := want.IPSet()
			require.NoError(t, err)
			gotSet, err := got.IPSet()
			require.NoError(t, err)
			require.True(t, wantSet.Equal(gotSet), "chunks of %s do not cover it", network)
		}
	}
}

func TestSplitAlignsChunksToLabelBoundaries(t *testing.T) {
	for _, base := range []string{"172.16.0.0", "fd00::"} {
		a := netip.MustParseAddr(base)
		label := arpa.LabelBits(a)
		for bits := 0; bits <= a.BitLen(); bits++ {
			network := netip.PrefixFrom(a, bits).Masked()
			chunks := Split(network)
			if arpa.IsClassless(network) {
				require.Equal(t, []netip.Prefix{network}, chunks)
				continue
			}
			for _, chunk := range chunks {
				require.Zero(t, chunk.Bits()%label, "chunk %s of %s is not aligned", chunk, network)
				require.GreaterOrEqual(t, chunk.Bits(), network.Bits())
				require.Less(t, chunk.Bits()-network.Bits(), label)
			}
		}
	}
}
