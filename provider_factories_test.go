package mailroom

import "testing"

func TestProviderFactories_ReturnExpectedIDs(t *testing.T) {
	cases := map[string]ProviderAdapter{
		"mailgun":  MailgunProvider(),
		"mandrill": MandrillProvider(),
		"postmark": PostmarkProvider(),
	}
	for id, adapter := range cases {
		if adapter == nil {
			t.Fatalf("expected %s adapter", id)
		}
		if adapter.ID() != id {
			t.Fatalf("expected provider id %q, got %q", id, adapter.ID())
		}
	}
}

func TestDefaultRegistry_PreloadsBuiltinProviders(t *testing.T) {
	registry, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	for _, id := range []string{"mailgun", "mandrill", "postmark"} {
		if _, ok := registry.Get(id); !ok {
			t.Fatalf("expected %s registered", id)
		}
	}
	if got := len(registry.List()); got != 3 {
		t.Fatalf("expected 3 adapters, got %d", got)
	}
}
