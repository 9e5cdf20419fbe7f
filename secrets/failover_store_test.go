package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

func TestFailoverSecretStore_PrimaryHitSkipsFallback(t *testing.T) {
	fallback := &trackedSecretStore{store: NewStaticSecretStore(map[string]string{"mailgun": "stale"})}
	primary := NewStaticSecretStore(map[string]string{"mailgun": "fresh"})

	store, err := NewFailoverSecretStore(primary, WithFallback(fallback))
	if err != nil {
		t.Fatalf("new failover store: %v", err)
	}

	secret, err := store.Get(context.Background(), "mailgun")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if secret.Secret != "fresh" {
		t.Fatalf("expected primary secret, got %q", secret.Secret)
	}
	if fallback.getCalls != 0 {
		t.Fatalf("expected fallback untouched, got %d calls", fallback.getCalls)
	}
}

func TestFailoverSecretStore_NotFoundConsultsFallbackUnderStrictPolicy(t *testing.T) {
	primary := NewStaticSecretStore(nil)
	fallback := NewStaticSecretStore(map[string]string{"postmark": "whsec_boot"})

	store, err := NewFailoverSecretStore(primary, WithFallback(fallback))
	if err != nil {
		t.Fatalf("new failover store: %v", err)
	}

	secret, err := store.Get(context.Background(), "postmark")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if secret.Secret != "whsec_boot" {
		t.Fatalf("expected bootstrap secret, got %q", secret.Secret)
	}

	if _, err := store.Get(context.Background(), "mandrill"); !errors.Is(err, core.ErrSecretNotFound) {
		t.Fatalf("expected not found when both stores miss, got %v", err)
	}
}

func TestFailoverSecretStore_StrictPolicySurfacesPrimaryFailure(t *testing.T) {
	boom := fmt.Errorf("connection refused")
	primary := &failingSecretStore{err: boom}
	fallback := NewStaticSecretStore(map[string]string{"mailgun": "whsec"})

	var events []Diagnostic
	store, err := NewFailoverSecretStore(primary,
		WithFallback(fallback),
		WithDiagnostics(func(event Diagnostic) { events = append(events, event) }),
		WithClock(func() time.Time { return time.Unix(1_716_230_000, 0).UTC() }),
	)
	if err != nil {
		t.Fatalf("new failover store: %v", err)
	}

	if _, err := store.Get(context.Background(), "mailgun"); !errors.Is(err, boom) {
		t.Fatalf("expected primary failure surfaced, got %v", err)
	}
	if len(events) != 1 || events[0].Outcome != "primary_failed" || events[0].Operation != "get" {
		t.Fatalf("unexpected diagnostics: %#v", events)
	}
}

func TestFailoverSecretStore_FallbackPolicyServesThroughOutage(t *testing.T) {
	primary := &failingSecretStore{err: fmt.Errorf("connection refused")}
	fallback := NewStaticSecretStore(map[string]string{"mailgun": "whsec"})

	var events []Diagnostic
	store, err := NewFailoverSecretStore(primary,
		WithFallback(fallback),
		WithFailurePolicy(FailurePolicyFallback),
		WithDiagnostics(func(event Diagnostic) { events = append(events, event) }),
	)
	if err != nil {
		t.Fatalf("new failover store: %v", err)
	}

	secret, err := store.Get(context.Background(), "mailgun")
	if err != nil {
		t.Fatalf("get through outage: %v", err)
	}
	if secret.Secret != "whsec" {
		t.Fatalf("expected fallback secret, got %q", secret.Secret)
	}
	if len(events) != 2 || events[1].Outcome != "fallback_succeeded" {
		t.Fatalf("unexpected diagnostics: %#v", events)
	}
}

func TestFailoverSecretStore_RotateWritesPrimaryOnly(t *testing.T) {
	primary := NewStaticSecretStore(nil)
	fallback := &trackedSecretStore{store: NewStaticSecretStore(nil)}

	store, err := NewFailoverSecretStore(primary, WithFallback(fallback))
	if err != nil {
		t.Fatalf("new failover store: %v", err)
	}

	rotated, err := store.Rotate(context.Background(), "mailgun", "whsec_next")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Secret != "whsec_next" || rotated.RotatedAt.IsZero() {
		t.Fatalf("unexpected rotation payload: %#v", rotated)
	}
	if fallback.rotateCalls != 0 {
		t.Fatalf("expected rotation to never touch the fallback")
	}
	if secret, err := primary.Get(context.Background(), "mailgun"); err != nil || secret.Secret != "whsec_next" {
		t.Fatalf("expected rotated secret in primary, got %#v err=%v", secret, err)
	}
}

func TestFailoverSecretStore_FallbackPolicyRequiresFallback(t *testing.T) {
	if _, err := NewFailoverSecretStore(NewStaticSecretStore(nil), WithFailurePolicy(FailurePolicyFallback)); err == nil {
		t.Fatalf("expected configuration error without fallback store")
	}
	if _, err := NewFailoverSecretStore(nil); err == nil {
		t.Fatalf("expected primary requirement error")
	}
}

func TestStaticSecretStore_NormalizesProviderIDs(t *testing.T) {
	store := NewStaticSecretStore(map[string]string{" Mailgun ": "whsec"})

	secret, err := store.Get(context.Background(), "MAILGUN")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if secret.ProviderID != "mailgun" || secret.Secret != "whsec" {
		t.Fatalf("unexpected secret: %#v", secret)
	}
	if _, err := store.Get(context.Background(), "  "); err == nil {
		t.Fatalf("expected blank provider id rejection")
	}
}

type failingSecretStore struct {
	err error
}

func (s *failingSecretStore) Get(context.Context, string) (core.ProviderSecret, error) {
	return core.ProviderSecret{}, s.err
}

func (s *failingSecretStore) Rotate(context.Context, string, string) (core.ProviderSecret, error) {
	return core.ProviderSecret{}, s.err
}

type trackedSecretStore struct {
	store       *StaticSecretStore
	getCalls    int
	rotateCalls int
}

func (s *trackedSecretStore) Get(ctx context.Context, providerID string) (core.ProviderSecret, error) {
	s.getCalls++
	return s.store.Get(ctx, providerID)
}

func (s *trackedSecretStore) Rotate(ctx context.Context, providerID, secret string) (core.ProviderSecret, error) {
	s.rotateCalls++
	return s.store.Rotate(ctx, providerID, secret)
}
