package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-mailroom/core"
)

type stubSecretStore struct {
	mu          sync.Mutex
	secrets     map[string]core.ProviderSecret
	getCalls    int
	rotateCalls int
	getErr      error
}

func newStubSecretStore() *stubSecretStore {
	return &stubSecretStore{secrets: map[string]core.ProviderSecret{}}
}

func (s *stubSecretStore) Get(_ context.Context, providerID string) (core.ProviderSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.ProviderSecret{}, s.getErr
	}
	secret, ok := s.secrets[providerID]
	if !ok {
		return core.ProviderSecret{}, core.ErrSecretNotFound
	}
	return secret, nil
}

func (s *stubSecretStore) Rotate(_ context.Context, providerID, secret string) (core.ProviderSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateCalls++
	rotated := core.ProviderSecret{ProviderID: providerID, Secret: secret, RotatedAt: time.Now().UTC()}
	s.secrets[providerID] = rotated
	return rotated, nil
}

func TestCachedSecretStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestSecretCacheService(t)
	base := newStubSecretStore()
	base.secrets["mailgun"] = core.ProviderSecret{ProviderID: "mailgun", Secret: "whsec_1"}

	store, err := NewCachedSecretStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached secret store: %v", err)
	}

	if _, err := store.Get(context.Background(), "mailgun"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.Get(context.Background(), "mailgun"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedSecretStore_Rotate_InvalidatesCachedKey(t *testing.T) {
	cacheService := newTestSecretCacheService(t)
	base := newStubSecretStore()
	base.secrets["postmark"] = core.ProviderSecret{ProviderID: "postmark", Secret: "token_1"}

	store, err := NewCachedSecretStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached secret store: %v", err)
	}

	if _, err := store.Get(context.Background(), "postmark"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if _, err := store.Rotate(context.Background(), "postmark", "token_2"); err != nil {
		t.Fatalf("rotate through cached store: %v", err)
	}

	secret, err := store.Get(context.Background(), "postmark")
	if err != nil {
		t.Fatalf("get after rotate: %v", err)
	}
	if secret.Secret != "token_2" {
		t.Fatalf("expected rotated secret after invalidation, got %q", secret.Secret)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected rotate to invalidate cache entry, base get calls=%d", base.getCalls)
	}
}

func TestCachedSecretStore_Get_PropagatesBaseError(t *testing.T) {
	cacheService := newTestSecretCacheService(t)
	base := newStubSecretStore()

	store, err := NewCachedSecretStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached secret store: %v", err)
	}

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, core.ErrSecretNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestProviderSecretCacheKey_Contract(t *testing.T) {
	key, err := ProviderSecretCacheKey("mailgun")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-mailroom::provider_secret::v1::mailgun" {
		t.Fatalf("unexpected cache key %q", key)
	}

	escaped, err := ProviderSecretCacheKey("a/b c")
	if err != nil {
		t.Fatalf("escaped cache key: %v", err)
	}
	if escaped != "go-mailroom::provider_secret::v1::a%2Fb%20c" {
		t.Fatalf("unexpected escaped cache key %q", escaped)
	}

	if _, err := ProviderSecretCacheKey("  "); err == nil {
		t.Fatalf("expected error for blank provider id")
	}
}

func newTestSecretCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
