package core

import (
	"context"
	"testing"
)

type stubAdapter struct {
	id string
}

func (a stubAdapter) ID() string { return a.id }

func (a stubAdapter) VerifySignature(context.Context, InboundRequest, string) error {
	return nil
}

func (a stubAdapter) Parse(context.Context, InboundRequest) (Delivery, error) {
	return Delivery{}, nil
}

func TestProviderRegistry_RegisterAndGet(t *testing.T) {
	registry := NewProviderRegistry()

	if err := registry.Register(stubAdapter{id: "mandrill"}); err != nil {
		t.Fatalf("register mandrill: %v", err)
	}
	if err := registry.Register(stubAdapter{id: "mandrill"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register(stubAdapter{id: "  "}); err == nil {
		t.Fatalf("expected blank provider id to fail")
	}

	adapter, ok := registry.Get("mandrill")
	if !ok || adapter.ID() != "mandrill" {
		t.Fatalf("expected to resolve registered adapter")
	}
	if _, ok := registry.Get("unknown"); ok {
		t.Fatalf("expected unknown provider to miss")
	}
}

func TestProviderRegistry_ListSorted(t *testing.T) {
	registry := NewProviderRegistry()
	for _, id := range []string{"postmark", "mandrill", "mailgun"} {
		if err := registry.Register(stubAdapter{id: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	adapters := registry.List()
	if len(adapters) != 3 {
		t.Fatalf("expected 3 adapters, got %d", len(adapters))
	}
	want := []string{"mailgun", "mandrill", "postmark"}
	for i, adapter := range adapters {
		if adapter.ID() != want[i] {
			t.Fatalf("expected %q at index %d, got %q", want[i], i, adapter.ID())
		}
	}
}
