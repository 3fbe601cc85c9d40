package port

import (
	"context"
	"time"
)

// MessageRef identifies a mailbox message awaiting triage
type MessageRef struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
}

// MailAttachment is one attachment of a fetched message
type MailAttachment struct {
	FileName    string
	ContentType string
	Size        int64
	Content     []byte
}

// SkippedAttachment is an attachment left out of a fetched message
type SkippedAttachment struct {
	FileName string
	Reason   string
}

// MailMessage is a fetched and decoded message
type MailMessage struct {
	// ID is the mailbox-assigned identifier, stable for the life of the case
	ID string
	// MessageID is the RFC 5322 Message-ID header, used for reply threading
	MessageID   string
	References  string
	Subject     string
	From        string
	FromName    string
	Date        time.Time
	Body        string
	Attachments []MailAttachment
	// Skipped lists attachments that were dropped while decoding, such as oversized files
	Skipped []SkippedAttachment
}

// Mailbox reads reimbursement emails.
// Connection failures are returned to the caller, which decides whether to retry.
type Mailbox interface {
	// List returns unseen messages received since the given time, newest first
	List(ctx context.Context, since time.Time, limit int) ([]MessageRef, error)

	// Fetch downloads and decodes one message
	Fetch(ctx context.Context, id string) (*MailMessage, error)

	Close() error
}
