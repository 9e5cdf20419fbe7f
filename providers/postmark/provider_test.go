package postmark

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/goliatone/go-mailroom/core"
)

func TestAdapter_ParseInbound(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.6"))
	body := `{
		"MessageID": "pm-msg-7",
		"From": "sender@example.com",
		"FromFull": {"Email": "sender@example.com", "Name": "Sender"},
		"ToFull": [{"Email": "inbox@acme.test", "Name": "Inbox"}],
		"Subject": "Receipt",
		"Date": "Mon, 20 May 2024 18:33:20 +0000",
		"Attachments": [
			{"Name": "receipt.pdf", "Content": "` + pdf + `", "ContentType": "application/pdf", "ContentLength": 8}
		]
	}`

	delivery, err := New().Parse(context.Background(), core.InboundRequest{Body: []byte(body)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if delivery.Event.ExternalEventID != "pm-msg-7" {
		t.Fatalf("unexpected external event id %q", delivery.Event.ExternalEventID)
	}
	if delivery.Event.Sender != "sender@example.com" {
		t.Fatalf("unexpected sender %q", delivery.Event.Sender)
	}
	if len(delivery.Event.Recipients) != 1 || delivery.Event.Recipients[0] != "inbox@acme.test" {
		t.Fatalf("unexpected recipients %v", delivery.Event.Recipients)
	}
	if delivery.Event.ReceivedAt.IsZero() {
		t.Fatalf("expected received_at from Date header")
	}
	if len(delivery.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(delivery.Attachments))
	}
	if string(delivery.Attachments[0].Content) != "%PDF-1.6" {
		t.Fatalf("expected decoded attachment content")
	}
}

func TestAdapter_ParseTestRecordIsPing(t *testing.T) {
	delivery, err := New().Parse(context.Background(), core.InboundRequest{Body: []byte(`{"RecordType":"Test"}`)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !delivery.Ping {
		t.Fatalf("expected test record to parse as ping")
	}
}

func TestAdapter_ParseMalformed(t *testing.T) {
	if _, err := New().Parse(context.Background(), core.InboundRequest{Body: []byte(`{"From":"x"}`)}); err == nil {
		t.Fatalf("expected missing MessageID error")
	}
	if _, err := New().Parse(context.Background(), core.InboundRequest{Body: []byte("nope")}); err == nil {
		t.Fatalf("expected malformed json error")
	}
}

func TestAdapter_VerifyToken(t *testing.T) {
	adapter := New()
	req := core.InboundRequest{Headers: map[string]string{TokenHeader: "hook-token"}}
	if err := adapter.VerifySignature(context.Background(), req, "hook-token"); err != nil {
		t.Fatalf("expected matching token, got %v", err)
	}
	if err := adapter.VerifySignature(context.Background(), req, "other"); err == nil {
		t.Fatalf("expected token mismatch error")
	}
}
