package attachments

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/goliatone/go-mailroom/core"
)

// Envelope holds the headers and parts lifted from one raw MIME message.
type Envelope struct {
	MessageID   string
	From        string
	To          []string
	Subject     string
	Text        string
	Attachments []core.IncomingAttachment
}

// FromMIME walks a raw RFC 5322 message and collects its addressing headers,
// the first text/plain inline part, and every attachment part.
func FromMIME(r io.Reader) (Envelope, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("attachments: open mime message: %w", err)
	}

	envelope := Envelope{
		MessageID: strings.Trim(strings.TrimSpace(mr.Header.Get("Message-Id")), "<>"),
		Subject:   headerSubject(mr.Header),
	}
	if fromList, err := mr.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		envelope.From = fromList[0].Address
	}
	if toList, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range toList {
			envelope.To = append(envelope.To, addr.Address)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Envelope{}, fmt.Errorf("attachments: read mime part: %w", err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, err := header.ContentType()
			if err != nil {
				continue
			}
			if contentType == "text/plain" && envelope.Text == "" {
				body, err := io.ReadAll(part.Body)
				if err != nil {
					continue
				}
				envelope.Text = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			contentType, _, _ := header.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return Envelope{}, fmt.Errorf("attachments: read attachment %q: %w", filename, err)
			}
			envelope.Attachments = append(envelope.Attachments, core.IncomingAttachment{
				Filename:  strings.TrimSpace(filename),
				MediaType: DetectMediaType(contentType, filename, content),
				Content:   content,
			})
		}
	}

	return envelope, nil
}

func headerSubject(header mail.Header) string {
	subject, err := header.Subject()
	if err != nil {
		return strings.TrimSpace(header.Get("Subject"))
	}
	return strings.TrimSpace(subject)
}
