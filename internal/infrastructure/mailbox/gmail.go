package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
)

const gmailUser = "me"

// GmailMailbox reads unread messages through the Gmail API. Message ids are
// Gmail message ids.
type GmailMailbox struct {
	svc    *gmail.Service
	filter KeywordFilter
	logger *zap.Logger
}

// NewGmailMailbox builds the Gmail service from an OAuth client secret and a
// previously saved token
func NewGmailMailbox(ctx context.Context, credentialsFile, tokenFile string, filter KeywordFilter, logger *zap.Logger) (*GmailMailbox, error) {
	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(secret, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("loading gmail token %s: %w", tokenFile, err)
	}

	return NewGmailMailboxWithOptions(ctx, filter, logger, option.WithHTTPClient(config.Client(ctx, tok)))
}

// NewGmailMailboxWithOptions builds the service from raw client options
func NewGmailMailboxWithOptions(ctx context.Context, filter KeywordFilter, logger *zap.Logger, opts ...option.ClientOption) (*GmailMailbox, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailMailbox{svc: svc, filter: filter, logger: logger}, nil
}

// List pages through unread messages newer than since. Headers are fetched
// in metadata format to apply the keyword filter.
func (g *GmailMailbox) List(ctx context.Context, since time.Time, limit int) ([]port.MessageRef, error) {
	query := fmt.Sprintf("is:unread after:%d", since.Unix())

	var (
		refs    []port.MessageRef
		scanned int
	)
	pageToken := ""
	for {
		call := g.svc.Users.Messages.List(gmailUser).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing gmail messages: %w", err)
		}

		for _, m := range resp.Messages {
			scanned++
			ref, err := g.header(ctx, m.Id)
			if err != nil {
				g.logger.Warn("Failed to read gmail headers",
					zap.String("message_id", m.Id),
					zap.Error(err))
				continue
			}
			if !g.filter.Match(ref.Subject, ref.From) {
				continue
			}
			refs = append(refs, ref)
			if limit > 0 && len(refs) >= limit {
				g.logListed(scanned, len(refs))
				return refs, nil
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	g.logListed(scanned, len(refs))
	return refs, nil
}

func (g *GmailMailbox) logListed(scanned, matched int) {
	g.logger.Info("Listed unread gmail messages",
		zap.Int("unread", scanned),
		zap.Int("matched", matched))
}

func (g *GmailMailbox) header(ctx context.Context, id string) (port.MessageRef, error) {
	msg, err := g.svc.Users.Messages.Get(gmailUser, id).
		Format("metadata").
		MetadataHeaders("Subject", "From").
		Context(ctx).Do()
	if err != nil {
		return port.MessageRef{}, err
	}

	ref := port.MessageRef{
		ID:   id,
		Date: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				ref.Subject = h.Value
			case "from":
				ref.From = h.Value
			}
		}
	}
	return ref, nil
}

// Fetch downloads the raw message and decodes it
func (g *GmailMailbox) Fetch(ctx context.Context, id string) (*port.MailMessage, error) {
	msg, err := g.svc.Users.Messages.Get(gmailUser, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting gmail message %s: %w", id, err)
	}
	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("decoding gmail message %s: %w", id, err)
	}
	return ParseMessage(id, bytes.NewReader(raw))
}

// Close is a no-op; the HTTP client holds no session
func (g *GmailMailbox) Close() error {
	return nil
}

// decodeRaw accepts padded and unpadded base64url
func decodeRaw(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty raw message")
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

var _ port.Mailbox = (*GmailMailbox)(nil)
