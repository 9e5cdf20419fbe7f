package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

// StaticSecretStore serves provider secrets from an in-process map, seeded
// from configuration or the environment. Useful as a bootstrap source before
// rows exist, and as the fallback arm of a FailoverSecretStore.
type StaticSecretStore struct {
	mu      sync.RWMutex
	secrets map[string]core.ProviderSecret
	now     func() time.Time
}

func NewStaticSecretStore(seed map[string]string) *StaticSecretStore {
	store := &StaticSecretStore{
		secrets: map[string]core.ProviderSecret{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for providerID, secret := range seed {
		providerID = normalizeProviderID(providerID)
		if providerID == "" || strings.TrimSpace(secret) == "" {
			continue
		}
		store.secrets[providerID] = core.ProviderSecret{
			ProviderID: providerID,
			Secret:     secret,
		}
	}
	return store
}

func (s *StaticSecretStore) Get(_ context.Context, providerID string) (core.ProviderSecret, error) {
	providerID = normalizeProviderID(providerID)
	if providerID == "" {
		return core.ProviderSecret{}, fmt.Errorf("secrets: provider id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[providerID]
	if !ok {
		return core.ProviderSecret{}, core.ErrSecretNotFound
	}
	return secret, nil
}

func (s *StaticSecretStore) Rotate(_ context.Context, providerID, secret string) (core.ProviderSecret, error) {
	providerID = normalizeProviderID(providerID)
	if providerID == "" {
		return core.ProviderSecret{}, fmt.Errorf("secrets: provider id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return core.ProviderSecret{}, fmt.Errorf("secrets: secret is required")
	}
	rotated := core.ProviderSecret{
		ProviderID: providerID,
		Secret:     secret,
		RotatedAt:  s.now(),
	}
	s.mu.Lock()
	s.secrets[providerID] = rotated
	s.mu.Unlock()
	return rotated, nil
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

var _ core.SecretStore = (*StaticSecretStore)(nil)
