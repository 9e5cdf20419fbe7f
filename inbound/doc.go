// Package inbound normalizes and admits provider webhook deliveries. It is
// the request-path orchestration: verify the signature, parse the payload,
// admit the event against the idempotency key, persist attachments, and
// enqueue extraction jobs. It never waits on OCR work.
package inbound
