package storage

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/port"
)

// CachedCatalog keeps recently looked-up variants in memory. Misses and
// errors are not cached.
type CachedCatalog struct {
	next  port.CatalogLookup
	cache *ttlcache.Cache[domain.ItemKey, domain.Variant]
}

func NewCachedCatalog(next port.CatalogLookup, ttl time.Duration, capacity uint64) *CachedCatalog {
	cache := ttlcache.New[domain.ItemKey, domain.Variant](
		ttlcache.WithTTL[domain.ItemKey, domain.Variant](ttl),
		ttlcache.WithCapacity[domain.ItemKey, domain.Variant](capacity),
	)
	return &CachedCatalog{next: next, cache: cache}
}

func (c *CachedCatalog) LookupVariant(ctx context.Context, productID, size string) (*domain.Variant, error) {
	key := domain.ItemKey{ProductID: productID, Size: size}
	if item := c.cache.Get(key); item != nil {
		v := item.Value()
		return &v, nil
	}

	v, err := c.next.LookupVariant(ctx, productID, size)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, port.ErrVariantNotFound
	}

	c.cache.Set(key, *v, ttlcache.DefaultTTL)
	return v, nil
}

// Start runs expiry cleanup until Stop is called.
func (c *CachedCatalog) Start() {
	c.cache.Start()
}

func (c *CachedCatalog) Stop() {
	c.cache.Stop()
}

func (c *CachedCatalog) Len() int {
	return c.cache.Len()
}
