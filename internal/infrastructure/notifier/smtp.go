package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
)

// Security modes
const (
	SecurityTLS      = "tls"      // implicit TLS, usually port 465
	SecurityStartTLS = "starttls" // upgrade when offered, usually port 587
	SecurityNone     = "none"
)

// SMTPConfig holds SMTP delivery settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Security defaults from the port: 465 is tls, anything else starttls
	Security string
	Attempts uint
	Delay    time.Duration
}

// SMTPNotifier delivers clarification replies over SMTP
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSMTPNotifier creates a new SMTPNotifier
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
		if cfg.Port == 465 {
			cfg.Security = SecurityTLS
		}
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	return &SMTPNotifier{cfg: cfg, logger: logger, now: time.Now}
}

// Send composes the reply and delivers it. Transient failures are retried;
// a permanent 5xx rejection is returned immediately.
func (n *SMTPNotifier) Send(ctx context.Context, msg port.OutgoingMessage) error {
	if msg.To == "" {
		return errors.New("no recipient")
	}

	raw, err := BuildMessage(n.cfg.From, msg, n.now())
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error { return n.deliver(msg.To, raw) },
		retry.Context(ctx),
		retry.Attempts(n.cfg.Attempts),
		retry.Delay(n.cfg.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *smtp.SMTPError
			return !errors.As(err, &se) || se.Code < 500
		}),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Warn("SMTP delivery failed, retrying",
				zap.String("case_id", msg.CaseID),
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		n.logger.Error("Failed to send clarification",
			zap.String("case_id", msg.CaseID),
			zap.String("to", msg.To),
			zap.Error(err))
		return fmt.Errorf("smtp delivery to %s failed: %w", msg.To, err)
	}

	n.logger.Info("Clarification sent",
		zap.String("case_id", msg.CaseID),
		zap.String("to", msg.To))
	return nil
}

func (n *SMTPNotifier) deliver(to string, raw []byte) error {
	c, err := n.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if n.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", n.cfg.Username, n.cfg.Password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(n.cfg.From, nil); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish data: %w", err)
	}
	return c.Quit()
}

func (n *SMTPNotifier) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	tlsConfig := &tls.Config{ServerName: n.cfg.Host}

	switch n.cfg.Security {
	case SecurityTLS:
		return smtp.DialTLS(addr, tlsConfig)
	case SecurityNone:
		return smtp.Dial(addr)
	default:
		c, err := smtp.Dial(addr)
		if err != nil {
			return nil, err
		}
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				c.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
		return c, nil
	}
}

// BuildMessage renders a plain-text UTF-8 reply threaded under the
// original message
func BuildMessage(from string, msg port.OutgoingMessage, date time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	toAddr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", msg.InReplyTo)
	}
	if msg.References != "" {
		h.Set("References", msg.References)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

var _ port.Notifier = (*SMTPNotifier)(nil)
