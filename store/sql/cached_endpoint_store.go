package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-iap/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activeEndpointCacheKeyPrefix = "go-iap::active_endpoints::v1"

// CachedEndpointStore caches the active-endpoint fan-out list, the one
// endpoint read taken on every reconciled notification. Writes that can
// change the list drop the app's cached entry.
type CachedEndpointStore struct {
	base  core.EndpointStore
	cache repositorycache.CacheService
}

func NewCachedEndpointStore(
	base core.EndpointStore,
	cacheService repositorycache.CacheService,
) (*CachedEndpointStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook endpoint store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook endpoint cache service is required")
	}
	return &CachedEndpointStore{base: base, cache: cacheService}, nil
}

// ActiveEndpointCacheKey returns the cache key contract for one app's
// active-endpoint list: go-iap::active_endpoints::v1::<app_id>.
func ActiveEndpointCacheKey(appID string) (string, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return "", fmt.Errorf("sqlstore: app id is required")
	}
	return activeEndpointCacheKeyPrefix + "::" + url.PathEscape(appID), nil
}

func (s *CachedEndpointStore) Create(ctx context.Context, endpoint core.WebhookEndpoint) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached webhook endpoint store is not configured")
	}
	created, err := s.base.Create(ctx, endpoint)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	if err := s.invalidateApp(ctx, created.AppID); err != nil {
		return core.WebhookEndpoint{}, err
	}
	return created, nil
}

func (s *CachedEndpointStore) Get(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached webhook endpoint store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedEndpointStore) ListByApp(ctx context.Context, appID string) ([]core.WebhookEndpoint, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached webhook endpoint store is not configured")
	}
	return s.base.ListByApp(ctx, appID)
}

func (s *CachedEndpointStore) ListActiveByApp(ctx context.Context, appID string) ([]core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached webhook endpoint store is not configured")
	}
	cacheKey, err := ActiveEndpointCacheKey(appID)
	if err != nil {
		return nil, err
	}

	endpoints, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.WebhookEndpoint, error) {
		fetched, fetchErr := s.base.ListActiveByApp(ctx, appID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneEndpoints(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneEndpoints(endpoints), nil
}

func (s *CachedEndpointStore) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached webhook endpoint store is not configured")
	}
	endpoint, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.SetActive(ctx, id, active); err != nil {
		return err
	}
	return s.invalidateApp(ctx, endpoint.AppID)
}

func (s *CachedEndpointStore) invalidateApp(ctx context.Context, appID string) error {
	cacheKey, err := ActiveEndpointCacheKey(appID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneEndpoints(in []core.WebhookEndpoint) []core.WebhookEndpoint {
	if len(in) == 0 {
		return []core.WebhookEndpoint{}
	}
	return append([]core.WebhookEndpoint(nil), in...)
}

var _ core.EndpointStore = (*CachedEndpointStore)(nil)
