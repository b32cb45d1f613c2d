// Package cachestore wraps eko/gocache over a ristretto store for the two
// key/value stores the coordinator needs: ISBN13 → SearchResult (TTL'd) and
// systemId → health record (no TTL). Values are marshaled to bytes with
// bytedance/sonic before being handed to the underlying
// cache.SetterCacheInterface[[]byte], following the byte-cache convention
// a ByteCache test double can stand in for.
package cachestore

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/ristretto"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
)

// ByteCache is the narrow interface this package depends on; satisfied by
// *cache.Cache[[]byte] (and by any test double that implements it).
type ByteCache interface {
	Get(ctx context.Context, key any) ([]byte, error)
	Set(ctx context.Context, key any, value []byte, options ...store.Option) error
	Delete(ctx context.Context, key any) error
}

// SearchCache stores marshaled SearchResult payloads keyed by normalized
// ISBN13, with a fixed TTL (spec: ≈1 hour).
type SearchCache struct {
	backing ByteCache
	ttl     time.Duration
}

// NewRistrettoSearchCache builds a SearchCache over a freshly constructed
// ristretto store sized for numCounters/maxCostBytes, matching the
// dgraph-io/ristretto + eko/gocache/store/ristretto wiring named in
// go.mod.
func NewRistrettoSearchCache(numCounters, maxCostBytes int64, ttl time.Duration) (*SearchCache, error) {
	backing, err := newRistrettoByteCache(numCounters, maxCostBytes)
	if err != nil {
		return nil, err
	}
	return &SearchCache{backing: backing, ttl: ttl}, nil
}

// NewSearchCache wraps an already-constructed ByteCache, for tests or
// alternate store backends.
func NewSearchCache(backing ByteCache, ttl time.Duration) *SearchCache {
	return &SearchCache{backing: backing, ttl: ttl}
}

// Get looks up isbn13 and unmarshals the stored bytes into out. A cache miss,
// and any error from the backing store's Get, returns (false, nil); only a
// decode error is returned.
func (c *SearchCache) Get(ctx context.Context, isbn13 string, out any) (bool, error) {
	raw, err := c.backing.Get(ctx, isbn13)
	if err != nil {
		return false, nil //nolint:nilerr // gocache returns an error on miss; treat uniformly as "not found"
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Set marshals value and stores it under isbn13 with the cache's configured
// TTL.
func (c *SearchCache) Set(ctx context.Context, isbn13 string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	return c.backing.Set(ctx, isbn13, raw, store.WithExpiration(c.ttl))
}

// HealthCache stores marshaled health.Record payloads keyed by systemId,
// with no expiration.
type HealthCache struct {
	backing ByteCache
}

// NewRistrettoHealthCache builds a HealthCache over a freshly constructed,
// non-expiring ristretto store.
func NewRistrettoHealthCache(numCounters, maxCostBytes int64) (*HealthCache, error) {
	backing, err := newRistrettoByteCache(numCounters, maxCostBytes)
	if err != nil {
		return nil, err
	}
	return &HealthCache{backing: backing}, nil
}

// NewHealthCache wraps an already-constructed ByteCache.
func NewHealthCache(backing ByteCache) *HealthCache {
	return &HealthCache{backing: backing}
}

// Get looks up systemID and unmarshals the stored bytes into out.
func (c *HealthCache) Get(ctx context.Context, systemID string, out any) (bool, error) {
	raw, err := c.backing.Get(ctx, systemID)
	if err != nil {
		return false, nil //nolint:nilerr
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Set marshals value and stores it under systemID with no expiration.
func (c *HealthCache) Set(ctx context.Context, systemID string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	return c.backing.Set(ctx, systemID, raw, store.WithExpiration(0))
}

func newRistrettoByteCache(numCounters, maxCostBytes int64) (*cache.Cache[[]byte], error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	rstore := ristretto_store.NewRistretto(rc)
	return cache.New[[]byte](rstore), nil
}
