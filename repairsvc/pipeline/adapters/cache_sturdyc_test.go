package adapters

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

func testCache() *SturdycAspectCache {
	return NewSturdycAspectCache(CacheSettings{
		Capacity:           100,
		NumShards:          4,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	})
}

func TestSturdycCacheMemoizesHits(t *testing.T) {
	cache := testCache()
	aspect := &ports.CacheAspect{Input: urn.NewArtifact(), Repaired: urn.NewArtifact()}
	fetches := 0
	fetch := func(ctx context.Context) (*ports.CacheAspect, error) {
		fetches++
		return aspect, nil
	}

	for i := 0; i < 3; i++ {
		got, err := cache.Lookup(context.Background(), aspect.Input.String(), fetch)
		require.NoError(t, err)
		assert.Equal(t, aspect.Repaired, got.Repaired)
	}
	assert.Equal(t, 1, fetches)
}

func TestSturdycCacheDoesNotMemoizeMisses(t *testing.T) {
	cache := testCache()
	key := urn.NewArtifact().String()
	fetches := 0
	miss := func(ctx context.Context) (*ports.CacheAspect, error) {
		fetches++
		return nil, fmt.Errorf("nothing recorded: %w", ports.ErrNotFound)
	}

	_, err := cache.Lookup(context.Background(), key, miss)
	require.Error(t, err)
	_, err = cache.Lookup(context.Background(), key, miss)
	require.Error(t, err)

	// Both lookups hit the source of truth.
	assert.Equal(t, 2, fetches)

	// A later lookup observes an aspect recorded in the meantime.
	aspect := &ports.CacheAspect{Input: urn.NewArtifact(), Repaired: urn.NewArtifact()}
	got, err := cache.Lookup(context.Background(), key, func(ctx context.Context) (*ports.CacheAspect, error) {
		return aspect, nil
	})
	require.NoError(t, err)
	assert.Equal(t, aspect.Repaired, got.Repaired)
}

func TestPassthroughCacheAlwaysFetches(t *testing.T) {
	cache := PassthroughAspectCache{}
	fetches := 0
	aspect := &ports.CacheAspect{Input: urn.NewArtifact(), Repaired: urn.NewArtifact()}

	for i := 0; i < 2; i++ {
		_, err := cache.Lookup(context.Background(), "k", func(ctx context.Context) (*ports.CacheAspect, error) {
			fetches++
			return aspect, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fetches)
}
