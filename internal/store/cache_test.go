package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
	memkv "github.com/pageinsights/pageinsights-backend/pkg/kv/memory"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store := memkv.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewCacheWithStore(store, time.Minute, zap.NewNop().Sugar(), nil)
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	require.NoError(t, cache.Set(ctx, PageCacheKey("acme"), payload{Name: "Acme", Count: 3}, 0))

	var got payload
	require.NoError(t, cache.Get(ctx, PageCacheKey("acme"), &got))
	assert.Equal(t, payload{Name: "Acme", Count: 3}, got)

	var missing payload
	assert.ErrorIs(t, cache.Get(ctx, PageCacheKey("other"), &missing), ErrCacheMiss)
}

func TestCacheEntryExpires(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	require.NoError(t, cache.Set(ctx, "short-lived", payload{Name: "x"}, 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	var got payload
	assert.ErrorIs(t, cache.Get(ctx, "short-lived", &got), ErrCacheMiss)
}

func TestInvalidatePageScopesCorrectly(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	pg := interfaces.Pagination{Page: 1, PageSize: 20}
	keep := []string{
		PageCacheKey("globex"),
		PostsCacheKey("globex", pg),
	}
	drop := []string{
		PageCacheKey("acme"),
		PostsCacheKey("acme", pg),
		FollowersCacheKey("acme", pg),
		PageListCacheKey(interfaces.PageFilter{}, pg),
	}
	for _, k := range append(append([]string{}, keep...), drop...) {
		require.NoError(t, cache.Set(ctx, k, payload{Name: k}, 0))
	}

	removed := cache.InvalidatePage(ctx, "acme")
	assert.Equal(t, int64(len(drop)), removed)

	var got payload
	for _, k := range drop {
		assert.ErrorIs(t, cache.Get(ctx, k, &got), ErrCacheMiss, k)
	}
	for _, k := range keep {
		assert.NoError(t, cache.Get(ctx, k, &got), k)
	}
}

func TestWithCachePopulatesOnMiss(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	calls := 0
	produce := func(ctx context.Context) (interface{}, error) {
		calls++
		return payload{Name: "produced", Count: calls}, nil
	}

	var first payload
	require.NoError(t, cache.WithCache(ctx, "k", 0, &first, produce))
	assert.Equal(t, payload{Name: "produced", Count: 1}, first)

	// Second call must be served from the cache, byte for byte.
	var second payload
	require.NoError(t, cache.WithCache(ctx, "k", 0, &second, produce))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestDegradedCacheIsSilent(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithStore(nil, time.Minute, zap.NewNop().Sugar(), nil)

	assert.False(t, cache.Enabled())
	assert.NoError(t, cache.Set(ctx, "k", payload{Name: "x"}, 0))

	var got payload
	assert.ErrorIs(t, cache.Get(ctx, "k", &got), ErrCacheMiss)

	removed, err := cache.Invalidate(ctx, "pages:*")
	assert.NoError(t, err)
	assert.Zero(t, removed)

	// WithCache still produces; it just cannot remember.
	calls := 0
	produce := func(ctx context.Context) (interface{}, error) {
		calls++
		return payload{Name: "fresh", Count: calls}, nil
	}
	var out payload
	require.NoError(t, cache.WithCache(ctx, "k", 0, &out, produce))
	require.NoError(t, cache.WithCache(ctx, "k", 0, &out, produce))
	assert.Equal(t, 2, calls)
	assert.NoError(t, cache.Ping(ctx))
}

func TestUndecodableEntryDropped(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	cache := NewCacheWithStore(store, time.Minute, zap.NewNop().Sugar(), nil)

	require.NoError(t, store.Set(ctx, "bad", []byte("{not json")))

	var got payload
	assert.ErrorIs(t, cache.Get(ctx, "bad", &got), ErrCacheMiss)

	// The corrupt entry must be gone.
	n, err := store.Exists(ctx, "bad")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPageListCacheKeyStable(t *testing.T) {
	min := 100
	max := 5000
	pg := interfaces.Pagination{Page: 1, PageSize: 20}
	a := PageListCacheKey(interfaces.PageFilter{FollowerMin: &min}, pg)
	b := PageListCacheKey(interfaces.PageFilter{FollowerMin: &min}, pg)

	assert.Equal(t, a, b)

	// Every component of the filter and pagination tuple must change the key,
	// or one view's cached list could answer another's request.
	variants := []string{
		PageListCacheKey(interfaces.PageFilter{}, pg),
		PageListCacheKey(interfaces.PageFilter{FollowerMin: &max}, pg),
		PageListCacheKey(interfaces.PageFilter{FollowerMin: &min, FollowerMax: &max}, pg),
		PageListCacheKey(interfaces.PageFilter{FollowerMin: &min, Industry: "tech"}, pg),
		PageListCacheKey(interfaces.PageFilter{FollowerMin: &min, Name: "acme"}, pg),
		PageListCacheKey(interfaces.PageFilter{FollowerMin: &min}, interfaces.Pagination{Page: 2, PageSize: 20}),
		PageListCacheKey(interfaces.PageFilter{FollowerMin: &min}, interfaces.Pagination{Page: 1, PageSize: 50}),
	}
	seen := map[string]bool{a: true}
	for _, v := range variants {
		assert.False(t, seen[v], "key %s collided", v)
		seen[v] = true
	}
}
