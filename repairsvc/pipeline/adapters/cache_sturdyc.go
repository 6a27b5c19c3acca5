package adapters

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
)

// SturdycAspectCache memoizes positive aspect lookups in process. sturdyc
// also de-duplicates concurrent lookups for the same key, so a burst of
// requests for one input issues a single store query. Fetch errors,
// ErrNotFound misses included, are never stored: a fresh request must be
// able to observe an aspect recorded at the store in the meantime.
type SturdycAspectCache struct {
	client *sturdyc.Client[*ports.CacheAspect]
}

// CacheSettings configures the sturdyc client.
type CacheSettings struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
}

// NewSturdycAspectCache creates the in-process aspect cache.
func NewSturdycAspectCache(s CacheSettings) *SturdycAspectCache {
	client := sturdyc.New[*ports.CacheAspect](
		s.Capacity,
		s.NumShards,
		s.TTL,
		s.EvictionPercentage,
	)
	return &SturdycAspectCache{client: client}
}

// Lookup implements ports.AspectCache.
func (c *SturdycAspectCache) Lookup(ctx context.Context, key string, fetch ports.AspectFetch) (*ports.CacheAspect, error) {
	return c.client.GetOrFetch(ctx, key, func(ctx context.Context) (*ports.CacheAspect, error) {
		return fetch(ctx)
	})
}

// PassthroughAspectCache forwards every lookup to the store. Used when the
// in-process cache is disabled.
type PassthroughAspectCache struct{}

// Lookup implements ports.AspectCache without memoization.
func (PassthroughAspectCache) Lookup(ctx context.Context, key string, fetch ports.AspectFetch) (*ports.CacheAspect, error) {
	return fetch(ctx)
}

// Ensure both caches implement the AspectCache interface.
var (
	_ ports.AspectCache = (*SturdycAspectCache)(nil)
	_ ports.AspectCache = PassthroughAspectCache{}
)
