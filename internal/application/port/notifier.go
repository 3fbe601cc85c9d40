package port

import "context"

// OutgoingMessage is a clarification reply to a claimant
type OutgoingMessage struct {
	CaseID  string
	To      string
	Subject string
	Body    string
	// InReplyTo and References thread the reply under the original email
	InReplyTo  string
	References string
}

// Notifier delivers clarification replies
type Notifier interface {
	Send(ctx context.Context, msg OutgoingMessage) error
}

// Alerter posts short status lines to the reviewers' chat
type Alerter interface {
	Alert(ctx context.Context, text string) error
}
