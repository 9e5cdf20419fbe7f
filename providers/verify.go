package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-mailroom/core"
)

// Verifier checks the authenticity of one inbound webhook request against a
// provider secret before any payload parsing happens.
type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest, secret string) error
}

// HeaderHMACVerifier compares an HMAC-SHA256 of the raw request body against
// a signature carried in a request header.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest, secret string) error {
	header := strings.TrimSpace(HeaderValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("providers: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("providers: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("providers: signature value is required")
	}

	expected := ComputeHMAC(secret, req.Body)
	return compareSignature(signature, expected, v.Encoding)
}

// PayloadHMACVerifier verifies webhook envelopes that sign a derived payload
// rather than the raw body. Payload extracts the signed bytes and the
// signature from the request.
type PayloadHMACVerifier struct {
	Encoding string // hex | base64
	Payload  func(req core.InboundRequest) (signed []byte, signature string, err error)
}

func (v PayloadHMACVerifier) Verify(_ context.Context, req core.InboundRequest, secret string) error {
	if v.Payload == nil {
		return fmt.Errorf("providers: signature payload extractor is required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("providers: signature secret is required")
	}
	signed, signature, err := v.Payload(req)
	if err != nil {
		return err
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("providers: signature value is required")
	}

	expected := ComputeHMAC(secret, signed)
	return compareSignature(signature, expected, v.Encoding)
}

// HeaderTokenVerifier compares a static verification token carried in a
// request header. Used by providers that do not sign payloads.
type HeaderTokenVerifier struct {
	Header string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest, secret string) error {
	expected := strings.TrimSpace(secret)
	if expected == "" {
		return fmt.Errorf("providers: verification token is required")
	}
	actual := strings.TrimSpace(HeaderValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("providers: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("providers: verification token mismatch")
	}
	return nil
}

// ComputeHMAC returns the HMAC-SHA256 of data keyed by secret.
func ComputeHMAC(secret string, data []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(data)
	return mac.Sum(nil)
}

func compareSignature(signature string, expected []byte, encoding string) error {
	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("providers: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("providers: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("providers: signature verification failed")
	}
	return nil
}

// HeaderValue performs a case-insensitive header lookup.
func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	if value, ok := headers[key]; ok {
		return value
	}
	for candidate, value := range headers {
		if strings.EqualFold(candidate, key) {
			return value
		}
	}
	return ""
}
