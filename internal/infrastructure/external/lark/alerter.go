package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
)

// Alerter posts text messages to one Lark group chat
type Alerter struct {
	client *lark.Client
	chatID string
	logger *zap.Logger
}

// NewAlerter creates a new Alerter
func NewAlerter(client *lark.Client, chatID string, logger *zap.Logger) *Alerter {
	return &Alerter{client: client, chatID: chatID, logger: logger}
}

// Alert sends a text message to the configured chat
func (a *Alerter) Alert(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("alert text cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(a.chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := a.client.Im.Message.Create(ctx, req)
	if err != nil {
		a.logger.Error("Failed to send alert",
			zap.String("chat_id", a.chatID),
			zap.Error(err))
		return fmt.Errorf("failed to send alert: %w", err)
	}
	if !resp.Success() {
		a.logger.Error("API returned failure",
			zap.String("chat_id", a.chatID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// HandleCaseDecided alerts reviewers about READY and NEED_INFO cases.
// Other outcomes are ignored.
func (a *Alerter) HandleCaseDecided(ctx context.Context, evt *event.Event) error {
	decided, ok := evt.Decided()
	if !ok {
		return nil
	}
	text, ok := CaseAlertText(decided)
	if !ok {
		return nil
	}
	return a.Alert(ctx, text)
}

// CaseAlertText formats the alert line for a decided case
func CaseAlertText(d event.CaseDecided) (string, bool) {
	c := d.Case
	who := c.ApplicantName
	if who == "" {
		who = c.Sender
	}

	var b strings.Builder
	switch c.Status {
	case entity.CaseStatusReady:
		fmt.Fprintf(&b, "[Ready to reimburse] %s (%s)", who, c.ID)
		if c.TotalAmount != nil {
			fmt.Fprintf(&b, "\nTotal: %s %s", c.TotalAmount.StringFixed(2), c.Currency)
		}
	case entity.CaseStatusNeedInfo:
		fmt.Fprintf(&b, "[Needs information] %s (%s)", who, c.ID)
		for i, issue := range c.Issues {
			fmt.Fprintf(&b, "\n%d. %s", i+1, issue)
		}
		if d.NotifyError != "" {
			fmt.Fprintf(&b, "\nClarification email failed: %s", d.NotifyError)
		}
	default:
		return "", false
	}
	if c.Subject != "" {
		fmt.Fprintf(&b, "\nSubject: %s", c.Subject)
	}
	return b.String(), true
}

var _ port.Alerter = (*Alerter)(nil)
