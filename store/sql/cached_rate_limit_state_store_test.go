package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-iap/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubRateLimitStateStore struct {
	mu          sync.Mutex
	state       ratelimit.State
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubRateLimitStateStore) Get(_ context.Context, _ core.RateLimitKey) (ratelimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return ratelimit.State{}, s.getErr
	}
	return cloneRateLimitState(s.state), nil
}

func (s *stubRateLimitStateStore) Upsert(_ context.Context, state ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.state = cloneRateLimitState(state)
	return nil
}

func TestCachedRateLimitStateStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestCacheService(t)
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			Key: core.RateLimitKey{
				StoreID:   "apple",
				ScopeType: "app",
				ScopeID:   "app_cache_1",
				BucketKey: "server_api",
			},
			Limit:     3600,
			Remaining: 3599,
			UpdatedAt: time.Now().UTC(),
			Metadata:  map[string]any{"source": "base"},
		},
	}

	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	key := core.RateLimitKey{StoreID: "apple", ScopeType: "app", ScopeID: "app_cache_1", BucketKey: "server_api"}
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedRateLimitStateStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	cacheService := newTestCacheService(t)
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			Key: core.RateLimitKey{
				StoreID:   "apple",
				ScopeType: "app",
				ScopeID:   "app_cache_2",
				BucketKey: "server_api",
			},
			Limit:     3600,
			Remaining: 3599,
			UpdatedAt: time.Now().UTC(),
		},
	}

	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	key := core.RateLimitKey{StoreID: "apple", ScopeType: "app", ScopeID: "app_cache_2", BucketKey: "server_api"}
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.getCalls)
	}

	if err := store.Upsert(context.Background(), ratelimit.State{
		Key:       key,
		Limit:     3600,
		Remaining: 3000,
		UpdatedAt: time.Now().UTC(),
		Metadata:  map[string]any{"updated": true},
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected base upsert call count=1, got %d", base.upsertCalls)
	}

	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get after upsert invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if state.Remaining != 3000 {
		t.Fatalf("expected refreshed state remaining=3000, got %d", state.Remaining)
	}
}

func TestCachedRateLimitStateStore_KeyNormalizationUsesSingleCacheEntry(t *testing.T) {
	cacheService := newTestCacheService(t)
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			Key: core.RateLimitKey{
				StoreID:   "apple",
				ScopeType: "app",
				ScopeID:   "APP_KEY_3",
				BucketKey: "server_api",
			},
			Limit:     3600,
			Remaining: 3598,
			UpdatedAt: time.Now().UTC(),
		},
	}
	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	first := core.RateLimitKey{
		StoreID:   " Apple ",
		ScopeType: " APP ",
		ScopeID:   "APP_KEY_3",
		BucketKey: " Server_API ",
	}
	second := core.RateLimitKey{
		StoreID:   "apple",
		ScopeType: "app",
		ScopeID:   "APP_KEY_3",
		BucketKey: "server_api",
	}

	if _, err := store.Get(context.Background(), first); err != nil {
		t.Fatalf("first normalized get: %v", err)
	}
	if _, err := store.Get(context.Background(), second); err != nil {
		t.Fatalf("second normalized get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected normalized keys to share cache entry, base get calls=%d", base.getCalls)
	}

	firstCacheKey, err := RateLimitStateCacheKey(first)
	if err != nil {
		t.Fatalf("cache key for first input: %v", err)
	}
	secondCacheKey, err := RateLimitStateCacheKey(second)
	if err != nil {
		t.Fatalf("cache key for second input: %v", err)
	}
	if firstCacheKey != secondCacheKey {
		t.Fatalf("expected normalized cache keys to match, got %q != %q", firstCacheKey, secondCacheKey)
	}
}

func TestRateLimitStateCacheKey_Contract(t *testing.T) {
	key, err := RateLimitStateCacheKey(core.RateLimitKey{
		StoreID:   " Apple ",
		ScopeType: " APP ",
		ScopeID:   "App/Alpha Team",
		BucketKey: " Server_API:V1 ",
	})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}

	const expected = "go-iap::ratelimit_state::v1::apple::app::App%2FAlpha%20Team::server_api:v1"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}
}

func TestCachedRateLimitStateStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestCacheService(t)
	base := &stubRateLimitStateStore{getErr: ratelimit.ErrStateNotFound}
	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	_, err = store.Get(context.Background(), core.RateLimitKey{
		StoreID:   "apple",
		ScopeType: "app",
		ScopeID:   "app_cache_404",
		BucketKey: "server_api",
	})
	if !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
