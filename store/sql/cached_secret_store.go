package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-mailroom/core"
)

const providerSecretCacheKeyPrefix = "go-mailroom::provider_secret::v1"

// CachedSecretStore wraps a secret store with a read-through cache. Secrets
// are read on every inbound delivery, so the cache sits on the hot path;
// Rotate invalidates the cached entry before readers see the new value.
type CachedSecretStore struct {
	base  core.SecretStore
	cache repositorycache.CacheService
}

func NewCachedSecretStore(base core.SecretStore, cacheService repositorycache.CacheService) (*CachedSecretStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base secret store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: secret cache service is required")
	}
	return &CachedSecretStore{base: base, cache: cacheService}, nil
}

// ProviderSecretCacheKey returns the deterministic cache key contract for
// secret reads: go-mailroom::provider_secret::v1::<provider> with the
// provider segment URL-path escaped.
func ProviderSecretCacheKey(providerID string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return "", fmt.Errorf("sqlstore: provider id is required")
	}
	return providerSecretCacheKeyPrefix + "::" + url.PathEscape(providerID), nil
}

func (s *CachedSecretStore) Get(ctx context.Context, providerID string) (core.ProviderSecret, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ProviderSecret{}, fmt.Errorf("sqlstore: cached secret store is not configured")
	}
	cacheKey, err := ProviderSecretCacheKey(providerID)
	if err != nil {
		return core.ProviderSecret{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ProviderSecret, error) {
		return s.base.Get(ctx, strings.TrimSpace(providerID))
	})
}

func (s *CachedSecretStore) Rotate(ctx context.Context, providerID, secret string) (core.ProviderSecret, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ProviderSecret{}, fmt.Errorf("sqlstore: cached secret store is not configured")
	}
	rotated, err := s.base.Rotate(ctx, providerID, secret)
	if err != nil {
		return core.ProviderSecret{}, err
	}
	cacheKey, err := ProviderSecretCacheKey(rotated.ProviderID)
	if err != nil {
		return core.ProviderSecret{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.ProviderSecret{}, err
	}
	return rotated, nil
}

var _ core.SecretStore = (*CachedSecretStore)(nil)
