//go:build integration

package db_test

import (
	"context"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Flarenzy/dns-zonegen/internal/db"
	"github.com/Flarenzy/dns-zonegen/internal/domain"
	"github.com/Flarenzy/dns-zonegen/internal/zone"
)

const (
	postgresPort   = "5432/tcp"
	containerReady = 2 * time.Minute
)

const seed = `
INSERT INTO domain (id, name, ttl, authoritative, is_default) VALUES
    (1, 'maas', NULL, TRUE, TRUE),
    (2, 'lab.maas', 120, FALSE, FALSE);

INSERT INTO subnet (id, cidr, rdns_mode) VALUES
    (1, '192.168.99.0/24', 'enabled'),
    (2, '192.168.99.32/29', 'rfc2317'),
    (3, '10.9.0.0/24', 'disabled');

INSERT INTO iprange (subnet_id, type, start_ip, end_ip) VALUES
    (1, 'dynamic', '192.168.99.100', '192.168.99.150'),
    (1, 'reserved', '192.168.99.200', '192.168.99.210');

INSERT INTO host (id, domain_id, name, system_id, node_type, ttl) VALUES
    (1, 1, 'host1', 'abc123', 0, NULL),
    (2, 1, 'host2', 'def456', 1, 600),
    (3, 2, 'ns1', '', 1, NULL);

INSERT INTO host_address (host_id, ip) VALUES
    (1, '192.168.99.10'),
    (1, '2001:db8::10'),
    (2, '192.168.99.33'),
    (3, '192.168.99.53');

INSERT INTO dnsdata (domain_id, name, rrtype, rrdata, ttl) VALUES
    (1, '@', 'MX', '10 mail', 900),
    (1, 'www', 'cname', 'host1', NULL),
    (2, '@', 'NS', 'ns1', NULL);

INSERT INTO dnsupdate (operation, zone, name, rrtype, ttl, answer) VALUES
    ('INSERT', 'maas', 'host3.maas', 'A', 30, '192.168.99.77');
`

type fixedAddrs []netip.Addr

func (f fixedAddrs) ServerAddresses(context.Context) ([]netip.Addr, error) {
	return f, nil
}

func startPostgres(ctx context.Context) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_DB":       "maas",
			"POSTGRES_USER":     "maas",
			"POSTGRES_PASSWORD": "maas",
		},
		WaitingFor: wait.ForListeningPort(postgresPort).WithStartupTimeout(containerReady),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}
	return container, nil
}

func buildPostgresDSN(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres host: %w", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		return "", fmt.Errorf("postgres mapped port: %w", err)
	}
	return fmt.Sprintf("postgres://maas:maas@%s:%s/maas?sslmode=disable", host, port.Port()), nil
}

func newInventory(t *testing.T) *db.Inventory {
	t.Helper()
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := startPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Minute)
		defer closeCancel()
		if err := container.Terminate(closeCtx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := buildPostgresDSN(ctx, container)
	require.NoError(t, err)

	pool, err := db.NewPool(ctx, dsn, 20, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.ApplySchema(ctx, pool))
	// Applying twice must be harmless.
	require.NoError(t, db.ApplySchema(ctx, pool))
	_, err = pool.Exec(ctx, seed)
	require.NoError(t, err)

	return db.NewInventory(pool, 30)
}

func TestInventoryAgainstPostgres(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	t.Run("fleet", func(t *testing.T) {
		fleet, err := inv.Fleet(ctx)
		require.NoError(t, err)

		require.Len(t, fleet.Domains, 2)
		maas := fleet.Domains[0]
		assert.Equal(t, "maas", maas.Name)
		assert.True(t, maas.IsDefault)
		assert.Equal(t, uint32(900), maas.BaseTTL("MX", 30))
		assert.False(t, fleet.Domains[1].Authoritative)

		require.Len(t, fleet.Subnets, 3)
		assert.Equal(t, netip.MustParsePrefix("192.168.99.32/29"), fleet.Subnets[1].CIDR)
		assert.Equal(t, domain.RDNSRFC2317, fleet.Subnets[1].RDNSMode)
		assert.Equal(t, domain.RDNSDisabled, fleet.Subnets[2].RDNSMode)
		require.Len(t, fleet.Subnets[0].DynamicRanges, 1)
		assert.Equal(t, "192.168.99.100-192.168.99.150", fleet.Subnets[0].DynamicRanges[0].String())

		require.Len(t, fleet.DynamicUpdates, 1)
		assert.Equal(t, domain.OperationInsert, fleet.DynamicUpdates[0].Operation)
	})

	t.Run("ip mapping", func(t *testing.T) {
		id := int64(1)
		ips, err := inv.FetchIPMapping(ctx, &id)
		require.NoError(t, err)
		assert.Equal(t, []string{"host1.maas", "host2.maas"}, ips.Names())
		assert.Len(t, ips["host1.maas"].IPs, 2)
		require.NotNil(t, ips["host2.maas"].TTL)
		assert.Equal(t, uint32(600), *ips["host2.maas"].TTL)
		assert.Equal(t, domain.NodeTypeDevice, ips["host2.maas"].NodeType)

		all, err := inv.FetchIPMapping(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("rrset mapping", func(t *testing.T) {
		rrsets, err := inv.FetchRRsetMapping(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []domain.Record{{TTL: 30, RRType: "CNAME", RRData: "host1"}}, rrsets["www"].RRset.Sorted())
		assert.Equal(t, []domain.Record{{TTL: 900, RRType: "MX", RRData: "10 mail"}}, rrsets["@"].RRset.Sorted())

		_, err = inv.FetchRRsetMapping(ctx, 99)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delegations", func(t *testing.T) {
		def, err := inv.DefaultDomain(ctx)
		require.NoError(t, err)

		delegations, err := inv.DelegatedChildren(ctx, def)
		require.NoError(t, err)
		require.Len(t, delegations, 1)
		assert.Equal(t, []string{"ns1.lab.maas."}, delegations[0].NSTargets)
		assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.99.53")}, delegations[0].Glue["ns1.lab.maas."])
	})

	t.Run("generate", func(t *testing.T) {
		fleet, err := inv.Fleet(ctx)
		require.NoError(t, err)

		gen := zone.NewGenerator(inv, fixedAddrs{netip.MustParseAddr("192.168.99.1")}, 30, nil)
		seq, err := gen.Generate(ctx, zone.Request{
			Domains:        domain.AuthoritativeDomains(fleet.Domains),
			Subnets:        fleet.Subnets,
			Serial:         1,
			DynamicUpdates: fleet.DynamicUpdates,
		})
		require.NoError(t, err)
		zones, err := zone.Collect(seq)
		require.NoError(t, err)

		var names []string
		for _, z := range zones {
			names = append(names, z.ZoneName())
		}
		assert.Equal(t, []string{
			"maas.",
			"32-29.99.168.192.in-addr.arpa.",
			"99.168.192.in-addr.arpa.",
		}, names)

		parent := zones[2].(*zone.ReverseZoneConfig)
		assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("192.168.99.32/29")}, parent.RFC2317Ranges.Sorted())
		for _, m := range parent.Mapping {
			assert.False(t, m.IPs.Contains(netip.MustParseAddr("192.168.99.33")))
		}
	})
}
