package mailgun

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goliatone/go-mailroom/attachments"
	"github.com/goliatone/go-mailroom/core"
	"github.com/goliatone/go-mailroom/providers"
)

const (
	ProviderID      = "mailgun"
	TimestampHeader = "X-Mailgun-Timestamp"
	TokenHeader     = "X-Mailgun-Token"
	SignatureHeader = "X-Mailgun-Signature"

	mimeContentType = "message/rfc822"
)

// Adapter parses Mailgun store-and-notify webhooks. The default payload is a
// JSON envelope whose signature block signs timestamp+token; forwarded raw
// messages arrive as message/rfc822 bodies with the signature triple in
// request headers.
type Adapter struct {
	verifier providers.Verifier
}

type envelope struct {
	Signature signatureBlock `json:"signature"`
	EventData *eventData     `json:"event-data"`
}

type signatureBlock struct {
	Timestamp string `json:"timestamp"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

type eventData struct {
	ID        string     `json:"id"`
	Event     string     `json:"event"`
	Timestamp float64    `json:"timestamp"`
	Message   rawMessage `json:"message"`
}

type rawMessage struct {
	Headers     messageHeaders  `json:"headers"`
	Recipients  []string        `json:"recipients"`
	Attachments []rawAttachment `json:"attachments"`
}

type messageHeaders struct {
	MessageID string `json:"message-id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
}

type rawAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content-type"`
	Size        int64  `json:"size"`
	Content     string `json:"content"`
}

func New() *Adapter {
	return &Adapter{
		verifier: providers.PayloadHMACVerifier{
			Encoding: "hex",
			Payload:  signaturePayload,
		},
	}
}

func (a *Adapter) ID() string { return ProviderID }

func (a *Adapter) VerifySignature(ctx context.Context, req core.InboundRequest, secret string) error {
	return a.verifier.Verify(ctx, req, secret)
}

// signaturePayload resolves the signed bytes for either payload shape: the
// JSON envelope's signature block, or the header triple on raw deliveries.
func signaturePayload(req core.InboundRequest) ([]byte, string, error) {
	block := signatureBlock{
		Timestamp: strings.TrimSpace(providers.HeaderValue(req.Headers, TimestampHeader)),
		Token:     strings.TrimSpace(providers.HeaderValue(req.Headers, TokenHeader)),
		Signature: strings.TrimSpace(providers.HeaderValue(req.Headers, SignatureHeader)),
	}
	if block.Signature == "" && json.Valid(req.Body) {
		var payload envelope
		if err := json.Unmarshal(req.Body, &payload); err == nil {
			block = payload.Signature
		}
	}
	if block.Timestamp == "" || block.Token == "" || block.Signature == "" {
		return nil, "", fmt.Errorf("mailgun: signature block is incomplete")
	}
	return []byte(block.Timestamp + block.Token), block.Signature, nil
}

func (a *Adapter) Parse(_ context.Context, req core.InboundRequest) (core.Delivery, error) {
	if isRawMIME(req) {
		return parseRawMIME(req)
	}

	var payload envelope
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return core.Delivery{}, fmt.Errorf("mailgun: parse event envelope: %w", err)
	}
	data := payload.EventData
	if data == nil || strings.EqualFold(strings.TrimSpace(data.Event), "test") {
		return core.Delivery{Ping: true}, nil
	}
	if strings.TrimSpace(data.ID) == "" {
		return core.Delivery{}, fmt.Errorf("mailgun: event id is required")
	}

	event := core.EmailEvent{
		ProviderID:      ProviderID,
		ExternalEventID: strings.TrimSpace(data.ID),
		Sender:          strings.TrimSpace(data.Message.Headers.From),
		Recipients:      recipientList(data.Message),
		Subject:         data.Message.Headers.Subject,
	}
	if data.Timestamp > 0 {
		seconds, fraction := math.Modf(data.Timestamp)
		event.ReceivedAt = time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC()
	}

	incoming, err := decodeAttachments(data.Message.Attachments)
	if err != nil {
		return core.Delivery{}, err
	}
	return core.Delivery{Event: event, Attachments: incoming}, nil
}

func isRawMIME(req core.InboundRequest) bool {
	contentType := providers.HeaderValue(req.Headers, "Content-Type")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), mimeContentType)
}

func parseRawMIME(req core.InboundRequest) (core.Delivery, error) {
	parsed, err := attachments.FromMIME(bytes.NewReader(req.Body))
	if err != nil {
		return core.Delivery{}, fmt.Errorf("mailgun: parse raw message: %w", err)
	}
	if parsed.MessageID == "" {
		return core.Delivery{}, fmt.Errorf("mailgun: raw message is missing a message id")
	}
	return core.Delivery{
		Event: core.EmailEvent{
			ProviderID:      ProviderID,
			ExternalEventID: parsed.MessageID,
			Sender:          parsed.From,
			Recipients:      parsed.To,
			Subject:         parsed.Subject,
		},
		Attachments: parsed.Attachments,
	}, nil
}

func recipientList(msg rawMessage) []string {
	if len(msg.Recipients) > 0 {
		out := make([]string, 0, len(msg.Recipients))
		for _, addr := range msg.Recipients {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
		return out
	}
	var out []string
	for _, addr := range strings.Split(msg.Headers.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
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
		content := []byte(nil)
		if trimmed := strings.TrimSpace(attachment.Content); trimmed != "" {
			decoded, err := base64.StdEncoding.DecodeString(trimmed)
			if err != nil {
				return nil, fmt.Errorf("mailgun: decode attachment %q: %w", attachment.Filename, err)
			}
			content = decoded
		}
		out = append(out, core.IncomingAttachment{
			Filename:  strings.TrimSpace(attachment.Filename),
			MediaType: attachments.DetectMediaType(attachment.ContentType, attachment.Filename, content),
			Content:   content,
		})
	}
	return out, nil
}
