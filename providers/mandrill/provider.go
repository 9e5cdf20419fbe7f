package mandrill

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-mailroom/core"
	"github.com/goliatone/go-mailroom/providers"
)

const (
	ProviderID      = "mandrill"
	SignatureHeader = "X-Mandrill-Signature"
)

// Adapter parses Mandrill inbound webhooks. Mandrill posts a form body with
// a mandrill_events field holding a JSON array; an empty array is the
// validation ping sent when the webhook is registered.
type Adapter struct {
	verifier providers.Verifier
}

type rawEvent struct {
	Event string     `json:"event"`
	ID    string     `json:"_id"`
	TS    int64      `json:"ts"`
	Msg   rawMessage `json:"msg"`
}

type rawMessage struct {
	FromEmail   string                   `json:"from_email"`
	Email       string                   `json:"email"`
	To          [][]any                  `json:"to"`
	Subject     string                   `json:"subject"`
	Attachments map[string]rawAttachment `json:"attachments"`
}

type rawAttachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Base64  bool   `json:"base64"`
}

func New() *Adapter {
	return &Adapter{
		verifier: providers.HeaderHMACVerifier{
			Header:   SignatureHeader,
			Encoding: "base64",
		},
	}
}

func (a *Adapter) ID() string { return ProviderID }

func (a *Adapter) VerifySignature(ctx context.Context, req core.InboundRequest, secret string) error {
	return a.verifier.Verify(ctx, req, secret)
}

func (a *Adapter) Parse(_ context.Context, req core.InboundRequest) (core.Delivery, error) {
	values, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return core.Delivery{}, fmt.Errorf("mandrill: parse form body: %w", err)
	}
	raw := strings.TrimSpace(values.Get("mandrill_events"))
	if raw == "" {
		return core.Delivery{}, fmt.Errorf("mandrill: mandrill_events field is required")
	}

	events := []rawEvent{}
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return core.Delivery{}, fmt.Errorf("mandrill: parse mandrill_events: %w", err)
	}
	if len(events) == 0 {
		return core.Delivery{Ping: true}, nil
	}
	// One delivery normalizes to one event. Mandrill can batch several
	// events per webhook; rejecting the batch keeps the surplus from being
	// dropped silently and surfaces the misconfigured webhook as a 400.
	if len(events) > 1 {
		return core.Delivery{}, fmt.Errorf("mandrill: %d events in one delivery; configure the webhook for single-event batches", len(events))
	}

	event := events[0]
	if strings.TrimSpace(event.ID) == "" {
		return core.Delivery{}, fmt.Errorf("mandrill: event _id is required")
	}

	normalized := core.EmailEvent{
		ProviderID:      ProviderID,
		ExternalEventID: strings.TrimSpace(event.ID),
		Sender:          strings.TrimSpace(event.Msg.FromEmail),
		Recipients:      recipients(event.Msg),
		Subject:         event.Msg.Subject,
	}
	if event.TS > 0 {
		normalized.ReceivedAt = time.Unix(event.TS, 0).UTC()
	}

	attachments, err := decodeAttachments(event.Msg.Attachments)
	if err != nil {
		return core.Delivery{}, err
	}

	return core.Delivery{Event: normalized, Attachments: attachments}, nil
}

func recipients(msg rawMessage) []string {
	var out []string
	if addr := strings.TrimSpace(msg.Email); addr != "" {
		out = append(out, addr)
	}
	for _, pair := range msg.To {
		if len(pair) == 0 {
			continue
		}
		addr, ok := pair[0].(string)
		if !ok {
			continue
		}
		addr = strings.TrimSpace(addr)
		if addr != "" && !contains(out, addr) {
			out = append(out, addr)
		}
	}
	return out
}

func decodeAttachments(raw map[string]rawAttachment) ([]core.IncomingAttachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]core.IncomingAttachment, 0, len(raw))
	for key, attachment := range raw {
		name := strings.TrimSpace(attachment.Name)
		if name == "" {
			name = key
		}
		content := []byte(attachment.Content)
		if attachment.Base64 {
			decoded, err := base64.StdEncoding.DecodeString(attachment.Content)
			if err != nil {
				return nil, fmt.Errorf("mandrill: decode attachment %q: %w", name, err)
			}
			content = decoded
		}
		out = append(out, core.IncomingAttachment{
			Filename:  name,
			MediaType: strings.TrimSpace(attachment.Type),
			Content:   content,
		})
	}
	return out, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
