package postmark

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailroom/attachments"
	"github.com/goliatone/go-mailroom/core"
	"github.com/goliatone/go-mailroom/providers"
)

const (
	ProviderID  = "postmark"
	TokenHeader = "X-Postmark-Webhook-Token"
)

// Adapter parses Postmark inbound webhooks. Postmark does not sign payloads;
// authenticity rides on a static token header configured per webhook.
type Adapter struct {
	verifier providers.Verifier
}

type inboundPayload struct {
	RecordType  string          `json:"RecordType"`
	MessageID   string          `json:"MessageID"`
	From        string          `json:"From"`
	FromFull    address         `json:"FromFull"`
	ToFull      []address       `json:"ToFull"`
	Subject     string          `json:"Subject"`
	Date        string          `json:"Date"`
	Attachments []rawAttachment `json:"Attachments"`
}

type address struct {
	Email string `json:"Email"`
	Name  string `json:"Name"`
}

type rawAttachment struct {
	Name          string `json:"Name"`
	Content       string `json:"Content"`
	ContentType   string `json:"ContentType"`
	ContentLength int64  `json:"ContentLength"`
}

func New() *Adapter {
	return &Adapter{verifier: providers.HeaderTokenVerifier{Header: TokenHeader}}
}

func (a *Adapter) ID() string { return ProviderID }

func (a *Adapter) VerifySignature(ctx context.Context, req core.InboundRequest, secret string) error {
	return a.verifier.Verify(ctx, req, secret)
}

func (a *Adapter) Parse(_ context.Context, req core.InboundRequest) (core.Delivery, error) {
	var payload inboundPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return core.Delivery{}, fmt.Errorf("postmark: parse inbound payload: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(payload.RecordType), "test") {
		return core.Delivery{Ping: true}, nil
	}
	if strings.TrimSpace(payload.MessageID) == "" {
		return core.Delivery{}, fmt.Errorf("postmark: MessageID is required")
	}

	event := core.EmailEvent{
		ProviderID:      ProviderID,
		ExternalEventID: strings.TrimSpace(payload.MessageID),
		Sender:          senderAddress(payload),
		Recipients:      recipientList(payload.ToFull),
		Subject:         payload.Subject,
	}
	if date := strings.TrimSpace(payload.Date); date != "" {
		if receivedAt, err := time.Parse(time.RFC1123Z, date); err == nil {
			event.ReceivedAt = receivedAt.UTC()
		}
	}

	incoming, err := decodeAttachments(payload.Attachments)
	if err != nil {
		return core.Delivery{}, err
	}
	return core.Delivery{Event: event, Attachments: incoming}, nil
}

func senderAddress(payload inboundPayload) string {
	if email := strings.TrimSpace(payload.FromFull.Email); email != "" {
		return email
	}
	return strings.TrimSpace(payload.From)
}

func recipientList(list []address) []string {
	var out []string
	for _, addr := range list {
		if email := strings.TrimSpace(addr.Email); email != "" {
			out = append(out, email)
		}
	}
	return out
}

func decodeAttachments(raw []rawAttachment) ([]core.IncomingAttachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]core.IncomingAttachment, 0, len(raw))
	for _, attachment := range raw {
		content, err := base64.StdEncoding.DecodeString(attachment.Content)
		if err != nil {
			return nil, fmt.Errorf("postmark: decode attachment %q: %w", attachment.Name, err)
		}
		out = append(out, core.IncomingAttachment{
			Filename:  strings.TrimSpace(attachment.Name),
			MediaType: attachments.DetectMediaType(attachment.ContentType, attachment.Name, content),
			Content:   content,
		})
	}
	return out, nil
}
