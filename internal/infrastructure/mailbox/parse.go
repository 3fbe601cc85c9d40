package mailbox

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
)

// maxAttachmentBytes bounds a single decoded attachment
const maxAttachmentBytes = 30 << 20

// ParseMessage decodes an RFC 5322 message. The id is the mailbox-assigned
// identifier and is copied into the result unchanged. Attachments over the
// size limit are dropped and listed in Skipped.
func ParseMessage(id string, r io.Reader) (*port.MailMessage, error) {
	return parseMessage(id, r, maxAttachmentBytes)
}

func parseMessage(id string, r io.Reader, limit int) (*port.MailMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message %s: %w", id, err)
	}
	defer mr.Close()

	h := mr.Header
	msg := &port.MailMessage{
		ID:         id,
		MessageID:  oneLine(h.Get("Message-Id")),
		References: oneLine(h.Get("References")),
	}
	if msg.Subject, err = h.Subject(); err != nil {
		msg.Subject = oneLine(h.Get("Subject"))
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
		msg.FromName = from[0].Name
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date.UTC()
	}

	var plain, html strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read part of message %s: %w", id, err)
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, params, _ := ph.ContentType()
			switch ct {
			case "text/html", "text/plain", "":
				body, err := io.ReadAll(p.Body)
				if err != nil {
					return nil, fmt.Errorf("failed to read body of message %s: %w", id, err)
				}
				if ct == "text/html" {
					html.Write(body)
				} else {
					plain.Write(body)
				}
			default:
				// receipts pasted into the body arrive as inline parts
				_, disp, _ := ph.ContentDisposition()
				name := disp["filename"]
				if name == "" {
					name = params["name"]
				}
				if name == "" {
					continue
				}
				if err := addAttachment(msg, decodeWord(name), ct, p.Body, limit); err != nil {
					return nil, err
				}
			}
		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			if name == "" {
				continue
			}
			ct, _, _ := ph.ContentType()
			if err := addAttachment(msg, name, ct, p.Body, limit); err != nil {
				return nil, err
			}
		}
	}

	msg.Body = strings.TrimSpace(plain.String())
	if msg.Body == "" && html.Len() > 0 {
		msg.Body = HTMLToText(html.String())
	}
	return msg, nil
}

// addAttachment reads one attachment onto msg, or records it as skipped when
// it is larger than limit bytes
func addAttachment(msg *port.MailMessage, name, contentType string, r io.Reader, limit int) error {
	content, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", name, err)
	}
	if len(content) > limit {
		msg.Skipped = append(msg.Skipped, port.SkippedAttachment{
			FileName: name,
			Reason:   "too large, over " + sizeLabel(limit),
		})
		return nil
	}
	msg.Attachments = append(msg.Attachments, port.MailAttachment{
		FileName:    name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Content:     content,
	})
	return nil
}

func sizeLabel(n int) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// decodeWord decodes RFC 2047 encoded words such as =?GBK?B?...?=
func decodeWord(s string) string {
	if out, err := wordDecoder.DecodeHeader(s); err == nil {
		return out
	}
	return s
}

// oneLine unfolds a header value
func oneLine(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
