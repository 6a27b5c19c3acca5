package ports

import "context"

// AspectFetch loads an aspect from the source of truth.
type AspectFetch func(ctx context.Context) (*CacheAspect, error)

// AspectCache memoizes positive aspect lookups in process. A fetch that
// fails (including ErrNotFound misses) must not be memoized: a later
// request has to observe an aspect recorded at the store in the meantime.
type AspectCache interface {
	Lookup(ctx context.Context, key string, fetch AspectFetch) (*CacheAspect, error)
}
