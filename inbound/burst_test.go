package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

func TestBurstController_CoalescesRepeatDeliveriesInWindow(t *testing.T) {
	now := time.Unix(1_716_230_000, 0).UTC()
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{
		ProviderID: "mailgun",
		Headers:    map[string]string{"X-Mailgun-Token": "token123"},
	}

	first, err := controller.Allow(context.Background(), req)
	if err != nil {
		t.Fatalf("allow first: %v", err)
	}
	if !first.Allow {
		t.Fatalf("expected first delivery allowed")
	}
	controller.Record(context.Background(), req)

	second, err := controller.Allow(context.Background(), req)
	if err != nil {
		t.Fatalf("allow second: %v", err)
	}
	if second.Allow {
		t.Fatalf("expected repeat delivery inside window to be shed")
	}
	if second.Metadata["coalesced"] != true || second.Metadata["burst_key"] != "mailgun:token123" {
		t.Fatalf("unexpected shed metadata: %#v", second.Metadata)
	}

	now = now.Add(3 * time.Second)
	third, err := controller.Allow(context.Background(), req)
	if err != nil {
		t.Fatalf("allow third: %v", err)
	}
	if !third.Allow {
		t.Fatalf("expected delivery outside window allowed")
	}
}

func TestBurstController_PassesThroughWithoutKeyOrMode(t *testing.T) {
	controller := NewBurstController(BurstOptions{Mode: BurstModeDebounce})

	keyless, err := controller.Allow(context.Background(), core.InboundRequest{ProviderID: "mailgun"})
	if err != nil {
		t.Fatalf("allow keyless: %v", err)
	}
	if !keyless.Allow {
		t.Fatalf("expected delivery without a burst key to pass through")
	}

	disabled := NewBurstController(BurstOptions{Mode: BurstModeNone})
	req := core.InboundRequest{
		ProviderID: "mailgun",
		Metadata:   map[string]any{"burst_key": "evt-1"},
	}
	for i := 0; i < 3; i++ {
		decision, err := disabled.Allow(context.Background(), req)
		if err != nil {
			t.Fatalf("allow with mode none: %v", err)
		}
		if !decision.Allow {
			t.Fatalf("expected mode none to never shed")
		}
	}
}

func TestBurstKeyExtractor_PrefersMetadataOverHeaders(t *testing.T) {
	key, ok := DefaultBurstKeyExtractor(core.InboundRequest{
		ProviderID: "Postmark",
		Metadata:   map[string]any{"external_event_id": "EVT-9"},
		Headers:    map[string]string{"X-Postmark-Delivery-Id": "dlv-1"},
	})
	if !ok || key != "postmark:evt-9" {
		t.Fatalf("unexpected burst key: %q ok=%v", key, ok)
	}

	if _, ok := DefaultBurstKeyExtractor(core.InboundRequest{ProviderID: "postmark"}); ok {
		t.Fatalf("expected no key when no identifier is present")
	}
}

func TestDispatcher_ShedsBurstBeforeVerification(t *testing.T) {
	adapter := &fakeAdapter{id: "mailgun", delivery: pdfDelivery("evt-1")}
	dispatcher, jobs := newTestDispatcher(t, adapter)

	now := time.Unix(1_716_230_000, 0).UTC()
	dispatcher.Bursts = NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{
		ProviderID: "mailgun",
		Metadata:   map[string]any{"delivery_id": "dlv-7"},
		Body:       []byte("{}"),
	}

	first, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch first: %v", err)
	}
	if first.Status != StatusAccepted {
		t.Fatalf("expected first delivery accepted, got %q", first.Status)
	}

	// Same delivery id inside the window never reaches the adapter.
	adapter.verifyErr = context.DeadlineExceeded
	second, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch shed delivery: %v", err)
	}
	if second.Status != StatusIgnored {
		t.Fatalf("expected shed delivery acknowledged as ignored, got %q", second.Status)
	}
	if second.Metadata["coalesced"] != true {
		t.Fatalf("expected coalesce metadata, got %#v", second.Metadata)
	}
	if jobs.count() != 1 {
		t.Fatalf("expected shed delivery to queue no jobs, have %d", jobs.count())
	}
}

func TestBurstController_AllowDoesNotArmWindow(t *testing.T) {
	now := time.Unix(1_716_230_000, 0).UTC()
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{
		ProviderID: "mailgun",
		Metadata:   map[string]any{"delivery_id": "dlv-unarmed"},
	}

	// Repeated checks without a Record must all pass: only a completed
	// authenticated dispatch arms the window.
	for i := 0; i < 3; i++ {
		decision, err := controller.Allow(context.Background(), req)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allow {
			t.Fatalf("expected unarmed key to pass on check %d", i)
		}
	}
}

func TestDispatcher_FailedDeliveryDoesNotArmBurstWindow(t *testing.T) {
	adapter := &fakeAdapter{id: "mailgun", delivery: pdfDelivery("evt-burst-retry")}
	registry := core.NewProviderRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	attachments := &memoryAttachmentStore{failNext: errors.New("connection reset")}
	jobs := newMemoryJobStore()
	dispatcher := NewDispatcher(
		registry,
		staticSecretStore{secret: "hunter2"},
		newMemoryEventStore(),
		attachments,
		newMemoryPayloadStore(),
		jobs,
	)

	now := time.Unix(1_716_230_000, 0).UTC()
	dispatcher.Bursts = NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{
		ProviderID: "mailgun",
		Metadata:   map[string]any{"delivery_id": "dlv-500"},
	}

	if _, err := dispatcher.Dispatch(context.Background(), req); err == nil {
		t.Fatalf("expected first delivery to fail on attachment persistence")
	}

	// The retry arrives inside the window. The failed attempt must not
	// have armed the key, so the retry runs and finishes the ingestion.
	retry, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if retry.Status != StatusAccepted {
		t.Fatalf("expected retry accepted, got %q", retry.Status)
	}
	if jobs.count() != 1 {
		t.Fatalf("expected retry to queue the pdf job, got %d", jobs.count())
	}

	// Only now is the key armed: the next redelivery inside the window
	// is shed before verification.
	third, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("third dispatch: %v", err)
	}
	if third.Status != StatusIgnored || third.Metadata["coalesced"] != true {
		t.Fatalf("expected armed key to shed, got %q %#v", third.Status, third.Metadata)
	}
}
