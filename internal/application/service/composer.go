package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/pkg/utils"
)

var clarificationTemplate = template.Must(template.New("clarification").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(
	`Hello {{.Name}},

Thank you for your AI tool reimbursement request "{{.Subject}}".
We could not approve it automatically and need a few updates before it can be paid.
{{if .Missing}}
Missing receipts:
{{range .Missing}}  - {{.ToolName}}: {{.Reason}}
{{end}}{{end}}
Issues found:
{{range $i, $s := .Issues}}  {{inc $i}}. {{$s}}
{{end}}
Please reply to this email with the corrected amounts or currency, and attach
the missing invoices or payment receipts (images, PDF or a zip archive).

Finance team
`))

const draftSystemPrompt = "You write short, polite emails from a finance team asking an employee to fix an expense claim. " +
	"Reply with a single JSON object and nothing else."

const draftPromptTemplate = `Write a reply to the employee below.
Employee: %s
Original subject: %s
Problems:
%s
Reply with {"subject": "", "body": ""}. Do not promise payment. Keep it under 150 words.`

type draftReply struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ClarificationComposer writes the reply asking a claimant for missing or corrected material
type ClarificationComposer struct {
	oracle port.TextOracle
	logger Logger
}

// NewClarificationComposer creates a composer. A nil oracle always uses the template.
func NewClarificationComposer(oracle port.TextOracle, logger Logger) *ClarificationComposer {
	return &ClarificationComposer{oracle: oracle, logger: orNop(logger)}
}

// ReplySubject prefixes "Re: " unless the subject is already a reply
func ReplySubject(subject string) string {
	s := strings.TrimSpace(subject)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "re:") || strings.HasPrefix(s, "回复:") || strings.HasPrefix(s, "回复：") {
		return s
	}
	return "Re: " + s
}

// ThreadReferences appends the message id to an existing References header
func ThreadReferences(references, messageID string) string {
	references = strings.TrimSpace(references)
	if messageID == "" {
		return references
	}
	if references == "" {
		return messageID
	}
	return references + " " + messageID
}

// Compose builds the message for a case that needs more information.
// The issue list is always part of the body, whatever the draft says.
func (c *ClarificationComposer) Compose(ctx context.Context, rc *entity.ReimbursementCase, missing []entity.MissingMaterial, issues []string) (port.OutgoingMessage, error) {
	name := rc.ApplicantName
	if name == "" {
		name = "there"
	}

	msg := port.OutgoingMessage{
		CaseID:     rc.ID,
		To:         rc.Sender,
		Subject:    ReplySubject(rc.Subject),
		InReplyTo:  rc.MessageID,
		References: ThreadReferences(rc.References, rc.MessageID),
	}

	if c.oracle != nil {
		if draft, ok := c.draft(ctx, name, rc.Subject, issues); ok {
			msg.Body = draft + "\n\n" + issueList(issues)
			return msg, nil
		}
	}

	var buf bytes.Buffer
	err := clarificationTemplate.Execute(&buf, map[string]any{
		"Name":    name,
		"Subject": rc.Subject,
		"Missing": missing,
		"Issues":  issues,
	})
	if err != nil {
		return port.OutgoingMessage{}, fmt.Errorf("render clarification: %w", err)
	}
	msg.Body = buf.String()
	return msg, nil
}

func (c *ClarificationComposer) draft(ctx context.Context, name, subject string, issues []string) (string, bool) {
	reply, err := c.oracle.Complete(ctx, draftSystemPrompt, fmt.Sprintf(draftPromptTemplate, name, subject, issueList(issues)))
	if err != nil {
		c.logger.Warn("Clarification draft failed, using template", "error", err)
		return "", false
	}
	var parsed draftReply
	if err := utils.DecodeReply(reply, &parsed); err != nil || strings.TrimSpace(parsed.Body) == "" {
		c.logger.Warn("Clarification draft unusable, using template", "error", err)
		return "", false
	}
	return strings.TrimSpace(parsed.Body), true
}

func issueList(issues []string) string {
	var sb strings.Builder
	sb.WriteString("Issues found:\n")
	for i, s := range issues {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, s)
	}
	return sb.String()
}
