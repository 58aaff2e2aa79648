package zone

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

func TestMappingCacheFetchesEachKeyOnce(t *testing.T) {
	inventory := &fakeInventory{
		ipMappings: map[int64]domain.IPMappings{1: {"host1.maas": hostIPs("10.0.0.5")}},
		fleet:      domain.IPMappings{"host1.maas": hostIPs("10.0.0.5")},
		rrsets:     map[int64]domain.RRsetMappings{1: {}},
	}
	cache := NewMappingCache(inventory)
	ctx := context.Background()

	for range 3 {
		_, err := cache.IPMapping(ctx, 1)
		require.NoError(t, err)
		_, err = cache.ReverseIPMapping(ctx)
		require.NoError(t, err)
		_, err = cache.RRsetMapping(ctx, 1)
		require.NoError(t, err)
	}
	_, err := cache.IPMapping(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, inventory.ipCalls)
	assert.Equal(t, 1, inventory.fleetCalls)
	assert.Equal(t, 1, inventory.rrsetCalls)
}

func TestMappingCacheDoesNotKeepFailures(t *testing.T) {
	fetchErr := errors.New("connection reset")
	inventory := &fakeInventory{fleetErr: fetchErr}
	cache := NewMappingCache(inventory)
	ctx := context.Background()

	_, err := cache.ReverseIPMapping(ctx)
	require.ErrorIs(t, err, fetchErr)

	inventory.fleetErr = nil
	inventory.fleet = domain.IPMappings{"host1.maas": hostIPs("10.0.0.5")}
	mapping, err := cache.ReverseIPMapping(ctx)
	require.NoError(t, err)
	assert.Len(t, mapping, 1)
	assert.Equal(t, 2, inventory.fleetCalls)
}

func TestMappingCacheReturnsEmptyMappingsForUnknownDomains(t *testing.T) {
	cache := NewMappingCache(&fakeInventory{})

	ips, err := cache.IPMapping(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, ips)

	rrsets, err := cache.RRsetMapping(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, rrsets)
}
