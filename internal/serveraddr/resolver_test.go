package serveraddr

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

type captureHandler struct {
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *captureHandler) Handle(_ context.Context, record slog.Record) error {
	h.records = append(h.records, record.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h *captureHandler) WithGroup(string) slog.Handler {
	return h
}

func staticLookup(addrs ...string) LookupFunc {
	return func(context.Context, string, string) ([]netip.Addr, error) {
		out := make([]netip.Addr, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, netip.MustParseAddr(a))
		}
		return out, nil
	}
}

func TestServerAddressesLiteralIP(t *testing.T) {
	called := false
	r := NewResolver("http://10.0.0.2:5240/MAAS", func(context.Context, string, string) ([]netip.Addr, error) {
		called = true
		return nil, nil
	}, nil)

	addrs, err := r.ServerAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.2")}, addrs)
	assert.False(t, called)
}

func TestServerAddressesDropsLoopbackWhenOthersExist(t *testing.T) {
	r := NewResolver("http://maas.example:5240/MAAS", staticLookup("127.0.0.1", "2001:db8::2", "10.0.0.2", "::ffff:10.0.0.2"), nil)

	addrs, err := r.ServerAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("2001:db8::2")}, addrs)
}

func TestServerAddressesWarnsWhenOnlyLoopback(t *testing.T) {
	handler := &captureHandler{}
	r := NewResolver("http://localhost:5240/MAAS", staticLookup("127.0.0.1", "::1"), slog.New(handler))

	addrs, err := r.ServerAddresses(context.Background())
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
	require.Len(t, handler.records, 2)
	assert.Equal(t, slog.LevelWarn, handler.records[0].Level)
}

func TestServerAddressesLookupFailure(t *testing.T) {
	r := NewResolver("http://maas.invalid/MAAS", func(context.Context, string, string) ([]netip.Addr, error) {
		return nil, errors.New("no such host")
	}, nil)

	_, err := r.ServerAddresses(context.Background())
	require.ErrorIs(t, err, domain.ErrUnresolvableHost)
}

func TestServerAddressesRejectsURLWithoutHost(t *testing.T) {
	r := NewResolver("/MAAS", staticLookup("10.0.0.2"), nil)

	_, err := r.ServerAddresses(context.Background())
	require.ErrorIs(t, err, domain.ErrUnresolvableHost)
}
