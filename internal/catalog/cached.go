// Package catalog caches product existence lookups in process.
package catalog

import (
	"context"
	"time"

	"github.com/and161185/warranty-keeper/internal/repository"
	"github.com/patrickmn/go-cache"
)

// Cached wraps a ProductCatalog. Known SKUs are kept for positiveTTL and
// unknown ones for the shorter negativeTTL so newly listed products show up quickly.
type Cached struct {
	next        repository.ProductCatalog
	c           *cache.Cache
	positiveTTL time.Duration
	negativeTTL time.Duration
}

var _ repository.ProductCatalog = (*Cached)(nil)

// NewCached constructs a caching catalog.
func NewCached(next repository.ProductCatalog, positiveTTL, negativeTTL time.Duration) *Cached {
	return &Cached{
		next:        next,
		c:           cache.New(positiveTTL, 2*positiveTTL),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
	}
}

// ProductExists answers from cache or asks the wrapped catalog. Errors are not cached.
func (c *Cached) ProductExists(ctx context.Context, sku string) (bool, error) {
	if v, ok := c.c.Get(sku); ok {
		return v.(bool), nil
	}
	ok, err := c.next.ProductExists(ctx, sku)
	if err != nil {
		return false, err
	}
	ttl := c.positiveTTL
	if !ok {
		ttl = c.negativeTTL
	}
	c.c.Set(sku, ok, ttl)
	return ok, nil
}

// Forget drops a cached answer, e.g. after a catalog import.
func (c *Cached) Forget(sku string) { c.c.Delete(sku) }
