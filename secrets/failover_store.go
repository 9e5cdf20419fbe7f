package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

type FailurePolicy string

const (
	// FailurePolicyStrict surfaces primary failures. Only a clean
	// not-found consults the fallback.
	FailurePolicyStrict FailurePolicy = "strict_fail"
	// FailurePolicyFallback consults the fallback on any primary failure,
	// trading freshness for availability during storage outages.
	FailurePolicyFallback FailurePolicy = "fallback_allowed"
)

// Diagnostic describes one failover decision for operational visibility.
type Diagnostic struct {
	OccurredAt time.Time
	Operation  string
	Policy     FailurePolicy
	Outcome    string
	ProviderID string
	Error      string
}

type DiagnosticHook func(event Diagnostic)

type FailoverOption func(*FailoverSecretStore)

// FailoverSecretStore reads through a primary secret store and falls back
// to a secondary source per policy. Rotation always writes the primary;
// a write that silently landed on a stale fallback would fork the truth.
type FailoverSecretStore struct {
	primary        core.SecretStore
	fallback       core.SecretStore
	policy         FailurePolicy
	diagnosticHook DiagnosticHook
	now            func() time.Time
}

func NewFailoverSecretStore(primary core.SecretStore, opts ...FailoverOption) (*FailoverSecretStore, error) {
	if primary == nil {
		return nil, fmt.Errorf("secrets: primary secret store is required")
	}
	store := &FailoverSecretStore{
		primary: primary,
		policy:  FailurePolicyStrict,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	store.policy = normalizeFailurePolicy(store.policy)
	if store.policy == FailurePolicyFallback && store.fallback == nil {
		return nil, fmt.Errorf("secrets: fallback policy requires a configured fallback store")
	}
	if store.now == nil {
		store.now = func() time.Time { return time.Now().UTC() }
	}
	return store, nil
}

func WithFallback(fallback core.SecretStore) FailoverOption {
	return func(s *FailoverSecretStore) {
		if s == nil {
			return
		}
		s.fallback = fallback
	}
}

func WithFailurePolicy(policy FailurePolicy) FailoverOption {
	return func(s *FailoverSecretStore) {
		if s == nil {
			return
		}
		s.policy = normalizeFailurePolicy(policy)
	}
}

func WithDiagnostics(hook DiagnosticHook) FailoverOption {
	return func(s *FailoverSecretStore) {
		if s == nil {
			return
		}
		s.diagnosticHook = hook
	}
}

func WithClock(now func() time.Time) FailoverOption {
	return func(s *FailoverSecretStore) {
		if s == nil {
			return
		}
		s.now = now
	}
}

func (s *FailoverSecretStore) Get(ctx context.Context, providerID string) (core.ProviderSecret, error) {
	if s == nil {
		return core.ProviderSecret{}, fmt.Errorf("secrets: secret store is nil")
	}
	secret, err := s.primary.Get(ctx, providerID)
	if err == nil {
		return secret, nil
	}
	if s.fallback == nil {
		return core.ProviderSecret{}, err
	}

	notFound := errors.Is(err, core.ErrSecretNotFound)
	if !notFound && s.policy == FailurePolicyStrict {
		s.emit("get", "primary_failed", providerID, err)
		return core.ProviderSecret{}, fmt.Errorf("secrets: primary lookup failed with %s policy: %w", s.policy, err)
	}
	if !notFound {
		s.emit("get", "primary_failed", providerID, err)
	}

	fallbackSecret, fallbackErr := s.fallback.Get(ctx, providerID)
	if fallbackErr != nil {
		if errors.Is(fallbackErr, core.ErrSecretNotFound) {
			return core.ProviderSecret{}, core.ErrSecretNotFound
		}
		s.emit("get", "fallback_failed", providerID, fallbackErr)
		return core.ProviderSecret{}, fmt.Errorf("secrets: primary lookup failed: %v; fallback lookup failed: %w", err, fallbackErr)
	}
	if !notFound {
		s.emit("get", "fallback_succeeded", providerID, err)
	}
	return fallbackSecret, nil
}

func (s *FailoverSecretStore) Rotate(ctx context.Context, providerID, secret string) (core.ProviderSecret, error) {
	if s == nil {
		return core.ProviderSecret{}, fmt.Errorf("secrets: secret store is nil")
	}
	rotated, err := s.primary.Rotate(ctx, providerID, secret)
	if err != nil {
		s.emit("rotate", "primary_failed", providerID, err)
		return core.ProviderSecret{}, err
	}
	return rotated, nil
}

func (s *FailoverSecretStore) emit(operation, outcome, providerID string, err error) {
	if s.diagnosticHook == nil {
		return
	}
	event := Diagnostic{
		OccurredAt: s.now(),
		Operation:  operation,
		Policy:     s.policy,
		Outcome:    outcome,
		ProviderID: providerID,
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.diagnosticHook(event)
}

func normalizeFailurePolicy(policy FailurePolicy) FailurePolicy {
	switch strings.ToLower(strings.TrimSpace(string(policy))) {
	case string(FailurePolicyFallback):
		return FailurePolicyFallback
	default:
		return FailurePolicyStrict
	}
}

var _ core.SecretStore = (*FailoverSecretStore)(nil)
