// Package attachments classifies attachment media types and walks raw MIME
// messages into incoming attachments.
package attachments
