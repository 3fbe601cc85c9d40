package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
)

func init() {
	// decode non-UTF-8 envelope subjects
	imap.CharsetReader = charset.Reader
}

// IMAPConfig holds IMAP connection settings
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
	// MarkSeen lets the server flag fetched messages as read
	MarkSeen     bool
	DialAttempts uint
	DialDelay    time.Duration
}

// IMAPMailbox reads unseen messages over IMAPS. Message ids are UIDs of the
// configured folder. One connection is shared and commands are serialised.
type IMAPMailbox struct {
	cfg    IMAPConfig
	filter KeywordFilter
	logger *zap.Logger

	mu sync.Mutex
	c  *client.Client
}

// NewIMAPMailbox creates a new IMAPMailbox. The connection is opened lazily.
func NewIMAPMailbox(cfg IMAPConfig, filter KeywordFilter, logger *zap.Logger) *IMAPMailbox {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 3
	}
	return &IMAPMailbox{cfg: cfg, filter: filter, logger: logger}
}

// List returns unseen messages since the given day whose subject or sender
// matches the keyword filter, highest UID first
func (m *IMAPMailbox) List(ctx context.Context, since time.Time, limit int) ([]port.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since
	uids, err := c.UidSearch(criteria)
	if err != nil {
		m.drop()
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	envelopes, err := m.fetch(c, seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid})
	if err != nil {
		return nil, err
	}
	sort.Slice(envelopes, func(i, j int) bool { return envelopes[i].Uid > envelopes[j].Uid })

	var refs []port.MessageRef
	for _, msg := range envelopes {
		if msg.Envelope == nil {
			continue
		}
		ref := port.MessageRef{
			ID:      strconv.FormatUint(uint64(msg.Uid), 10),
			Subject: msg.Envelope.Subject,
			Date:    msg.Envelope.Date.UTC(),
		}
		if len(msg.Envelope.From) > 0 {
			ref.From = msg.Envelope.From[0].Address()
		}
		if !m.filter.Match(ref.Subject, ref.From) {
			continue
		}
		refs = append(refs, ref)
		if limit > 0 && len(refs) >= limit {
			break
		}
	}

	m.logger.Info("Listed unseen messages",
		zap.Int("unseen", len(uids)),
		zap.Int("matched", len(refs)))
	return refs, nil
}

// Fetch downloads and decodes one message by UID
func (m *IMAPMailbox) Fetch(ctx context.Context, id string) (*port.MailMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap uid %q: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}

	section := &imap.BodySectionName{Peek: !m.cfg.MarkSeen}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	msgs, err := m.fetch(c, seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("imap message %s not found", id)
	}

	body := msgs[0].GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("imap message %s has no body", id)
	}
	return ParseMessage(id, body)
}

// Close logs out and drops the connection
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil
	}
	err := m.c.Logout()
	m.c = nil
	return err
}

func (m *IMAPMailbox) fetch(c *client.Client, seqset *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var out []*imap.Message
	for msg := range ch {
		out = append(out, msg)
	}
	if err := <-done; err != nil {
		m.drop()
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	return out, nil
}

// connect returns the live connection, dialing with retry when needed.
// Callers hold m.mu.
func (m *IMAPMailbox) connect(ctx context.Context) (*client.Client, error) {
	if m.c != nil && m.c.State() == imap.SelectedState {
		return m.c, nil
	}
	m.drop()

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	err := retry.Do(
		func() error {
			c, err := client.DialTLS(addr, &tls.Config{ServerName: m.cfg.Host})
			if err != nil {
				return err
			}
			if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
				_ = c.Logout()
				return fmt.Errorf("login: %w", err)
			}
			if _, err := c.Select(m.cfg.Folder, false); err != nil {
				_ = c.Logout()
				return fmt.Errorf("select %s: %w", m.cfg.Folder, err)
			}
			m.c = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(m.cfg.DialAttempts),
		retry.Delay(m.cfg.DialDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("IMAP connection failed, retrying",
				zap.String("addr", addr),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to imap %s: %w", addr, err)
	}

	m.logger.Info("IMAP connected",
		zap.String("addr", addr),
		zap.String("folder", m.cfg.Folder))
	return m.c, nil
}

func (m *IMAPMailbox) drop() {
	if m.c != nil {
		_ = m.c.Logout()
		m.c = nil
	}
}

var _ port.Mailbox = (*IMAPMailbox)(nil)
