package zone

import (
	"context"
	"fmt"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

// lazyCache fetches each key at most once and keeps the result. Failed
// fetches are not stored, so a later call retries them.
type lazyCache[K comparable, V any] struct {
	fetch  func(context.Context, K) (V, error)
	values map[K]V
}

func newLazyCache[K comparable, V any](fetch func(context.Context, K) (V, error)) *lazyCache[K, V] {
	return &lazyCache[K, V]{
		fetch:  fetch,
		values: make(map[K]V),
	}
}

func (c *lazyCache[K, V]) getOrFetch(ctx context.Context, key K) (V, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	v, err := c.fetch(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.values[key] = v
	return v, nil
}

type ipMappingKey struct {
	domainID int64
	fleet    bool
}

// MappingCache memoizes inventory reads for one generation run. It is not
// safe for concurrent use.
type MappingCache struct {
	ips    *lazyCache[ipMappingKey, domain.IPMappings]
	rrsets *lazyCache[int64, domain.RRsetMappings]
}

func NewMappingCache(source domain.MappingSource) *MappingCache {
	return &MappingCache{
		ips: newLazyCache(func(ctx context.Context, key ipMappingKey) (domain.IPMappings, error) {
			var id *int64
			if !key.fleet {
				id = &key.domainID
			}
			mapping, err := source.FetchIPMapping(ctx, id)
			if err != nil {
				if key.fleet {
					return nil, fmt.Errorf("fetch fleet ip mapping: %w", err)
				}
				return nil, fmt.Errorf("fetch ip mapping for domain %d: %w", key.domainID, err)
			}
			if mapping == nil {
				mapping = domain.IPMappings{}
			}
			return mapping, nil
		}),
		rrsets: newLazyCache(func(ctx context.Context, id int64) (domain.RRsetMappings, error) {
			mapping, err := source.FetchRRsetMapping(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("fetch rrset mapping for domain %d: %w", id, err)
			}
			if mapping == nil {
				mapping = domain.RRsetMappings{}
			}
			return mapping, nil
		}),
	}
}

// IPMapping returns the address records of a domain.
func (c *MappingCache) IPMapping(ctx context.Context, domainID int64) (domain.IPMappings, error) {
	return c.ips.getOrFetch(ctx, ipMappingKey{domainID: domainID})
}

// ReverseIPMapping returns the address records of the whole fleet.
func (c *MappingCache) ReverseIPMapping(ctx context.Context) (domain.IPMappings, error) {
	return c.ips.getOrFetch(ctx, ipMappingKey{fleet: true})
}

// RRsetMapping returns the non-address records of a domain. Callers must
// Clone the result before modifying it.
func (c *MappingCache) RRsetMapping(ctx context.Context, domainID int64) (domain.RRsetMappings, error) {
	return c.rrsets.getOrFetch(ctx, domainID)
}
