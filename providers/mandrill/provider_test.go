package mandrill

import (
	"context"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/goliatone/go-mailroom/core"
	"github.com/goliatone/go-mailroom/providers"
)

func formBody(t *testing.T, events string) []byte {
	t.Helper()
	values := url.Values{}
	values.Set("mandrill_events", events)
	return []byte(values.Encode())
}

func TestAdapter_ParseInboundEvent(t *testing.T) {
	payload := `[{
		"event": "inbound",
		"_id": "evt-abc123",
		"ts": 1716230000,
		"msg": {
			"from_email": "sender@example.com",
			"email": "inbox@acme.test",
			"to": [["inbox@acme.test", "Acme Inbox"]],
			"subject": "Invoice attached",
			"attachments": {
				"invoice.pdf": {
					"name": "invoice.pdf",
					"type": "application/pdf",
					"content": "` + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")) + `",
					"base64": true
				},
				"notes.txt": {
					"name": "notes.txt",
					"type": "text/plain",
					"content": "plain text body",
					"base64": false
				}
			}
		}
	}]`

	delivery, err := New().Parse(context.Background(), core.InboundRequest{Body: formBody(t, payload)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if delivery.Ping {
		t.Fatalf("expected a real event, got ping")
	}
	if delivery.Event.ExternalEventID != "evt-abc123" {
		t.Fatalf("unexpected external event id %q", delivery.Event.ExternalEventID)
	}
	if delivery.Event.Sender != "sender@example.com" {
		t.Fatalf("unexpected sender %q", delivery.Event.Sender)
	}
	if len(delivery.Event.Recipients) != 1 || delivery.Event.Recipients[0] != "inbox@acme.test" {
		t.Fatalf("unexpected recipients %v", delivery.Event.Recipients)
	}
	if delivery.Event.ReceivedAt.IsZero() {
		t.Fatalf("expected received_at from ts")
	}
	if len(delivery.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(delivery.Attachments))
	}
	for _, attachment := range delivery.Attachments {
		if attachment.Filename == "invoice.pdf" && string(attachment.Content) != "%PDF-1.4" {
			t.Fatalf("expected decoded base64 content, got %q", attachment.Content)
		}
	}
}

func TestAdapter_ParseEmptyEventsIsPing(t *testing.T) {
	delivery, err := New().Parse(context.Background(), core.InboundRequest{Body: formBody(t, "[]")})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !delivery.Ping {
		t.Fatalf("expected validation ping for empty event array")
	}
}

func TestAdapter_ParseRejectsBatchedEvents(t *testing.T) {
	payload := `[{"event":"inbound","_id":"evt-1","msg":{}},{"event":"inbound","_id":"evt-2","msg":{}}]`
	_, err := New().Parse(context.Background(), core.InboundRequest{Body: formBody(t, payload)})
	if err == nil {
		t.Fatalf("expected batched delivery to be rejected")
	}
}

func TestAdapter_ParseMalformed(t *testing.T) {
	if _, err := New().Parse(context.Background(), core.InboundRequest{Body: formBody(t, "{not json")}); err == nil {
		t.Fatalf("expected malformed payload error")
	}
	if _, err := New().Parse(context.Background(), core.InboundRequest{Body: []byte("no_events=1")}); err == nil {
		t.Fatalf("expected missing mandrill_events error")
	}
}

func TestAdapter_VerifySignature(t *testing.T) {
	body := formBody(t, "[]")
	secret := "mandrill-secret"
	signature := base64.StdEncoding.EncodeToString(providers.ComputeHMAC(secret, body))

	adapter := New()
	req := core.InboundRequest{
		Headers: map[string]string{SignatureHeader: signature},
		Body:    body,
	}
	if err := adapter.VerifySignature(context.Background(), req, secret); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := adapter.VerifySignature(context.Background(), req, "wrong"); err == nil {
		t.Fatalf("expected invalid signature error")
	}
}
