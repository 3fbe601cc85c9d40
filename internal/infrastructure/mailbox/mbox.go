package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
)

// MboxMailbox replays messages from a local mbox file. A message is its
// Message-ID without angle brackets, or "msg-<position>" when it has none.
// Messages whose Status header carries R are treated as seen.
type MboxMailbox struct {
	path   string
	filter KeywordFilter
	logger *zap.Logger
}

// NewMboxMailbox creates a new MboxMailbox
func NewMboxMailbox(path string, filter KeywordFilter, logger *zap.Logger) *MboxMailbox {
	return &MboxMailbox{path: path, filter: filter, logger: logger}
}

type mboxEntry struct {
	id   string
	raw  []byte
	msg  *port.MailMessage
	seen bool
}

// List returns unseen messages dated on or after since, newest first
func (m *MboxMailbox) List(ctx context.Context, since time.Time, limit int) ([]port.MessageRef, error) {
	entries, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].msg.Date.After(entries[j].msg.Date) })

	var refs []port.MessageRef
	for _, e := range entries {
		if e.seen || (!since.IsZero() && e.msg.Date.Before(since)) {
			continue
		}
		if !m.filter.Match(e.msg.Subject, e.msg.From, e.msg.FromName) {
			continue
		}
		refs = append(refs, port.MessageRef{
			ID:      e.id,
			Subject: e.msg.Subject,
			From:    e.msg.From,
			Date:    e.msg.Date,
		})
		if limit > 0 && len(refs) >= limit {
			break
		}
	}
	return refs, nil
}

// Fetch re-reads the file and returns the message with the given id
func (m *MboxMailbox) Fetch(ctx context.Context, id string) (*port.MailMessage, error) {
	entries, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.id == id {
			return ParseMessage(id, bytes.NewReader(e.raw))
		}
	}
	return nil, fmt.Errorf("mbox message %s not found", id)
}

// Close is a no-op; the file is opened per call
func (m *MboxMailbox) Close() error {
	return nil
}

func (m *MboxMailbox) load(ctx context.Context) ([]mboxEntry, error) {
	f, err := os.Open(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbox: %w", err)
	}
	defer f.Close()

	r := mbox.NewReader(f)
	var entries []mboxEntry
	for pos := 1; ; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mr, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mbox: %w", err)
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			return nil, fmt.Errorf("failed to read mbox message %d: %w", pos, err)
		}

		msg, err := ParseMessage("", bytes.NewReader(raw))
		if err != nil {
			m.logger.Warn("Skipping unreadable mbox message",
				zap.Int("position", pos),
				zap.Error(err))
			continue
		}

		id := strings.Trim(msg.MessageID, "<>")
		if id == "" {
			id = fmt.Sprintf("msg-%d", pos)
		}
		entries = append(entries, mboxEntry{
			id:   id,
			raw:  raw,
			msg:  msg,
			seen: strings.Contains(statusHeader(raw), "R"),
		})
	}
	return entries, nil
}

// statusHeader returns the Status header of a raw message
func statusHeader(raw []byte) string {
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(name, "Status") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ port.Mailbox = (*MboxMailbox)(nil)
