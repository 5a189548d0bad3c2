package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"bidintake/internal"
	"bidintake/internal/config"
	"bidintake/internal/connectors"
)

const (
	provider    = "gmail"
	unreadLabel = "UNREAD"
	pageSize    = 100
	// batchModifyLimit is the most ids users.messages.batchModify accepts.
	batchModifyLimit = 1000
)

type Connector struct {
	service *gmail.Service
	limiter *RateLimiter
	logger  *zap.Logger
}

func NewConnector(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailModifyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	return newConnector(ctx, cfg.GmailRateLimitRPS, logger, option.WithTokenSource(tokenSource))
}

func newConnector(ctx context.Context, rps int, logger *zap.Logger, opts ...option.ClientOption) (*Connector, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Connector{
		service: svc,
		limiter: NewRateLimiter(rps),
		logger:  logger.Named("gmail"),
	}, nil
}

// Connect verifies the credentials with a profile lookup. The Gmail API is
// stateless, so the session holds nothing that needs tearing down.
func (c *Connector) Connect(ctx context.Context) (connectors.Session, error) {
	if err := c.limiter.WaitTurn(ctx); err != nil {
		return nil, &internal.ConnectionError{Provider: provider, Err: err}
	}
	profile, err := c.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, &internal.ConnectionError{Provider: provider, Err: err}
	}
	c.logger.Debug("gmail session opened", zap.String("account", profile.EmailAddress))
	return &session{connector: c}, nil
}

type session struct {
	connector *Connector
}

func (s *session) FetchUnread(ctx context.Context, label string, opts connectors.FetchOptions) ([]internal.FetchedMessage, error) {
	c := s.connector
	ids, err := c.listUnread(ctx, label, opts.Max)
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMessage, 0, len(ids))
	for _, id := range ids {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}
		rawResp, err := c.service.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", id, err)
		}
		if rawResp.Raw == "" {
			c.logger.Warn("message without raw payload", zap.String("id", id))
			continue
		}
		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}

		received := time.Time{}
		if rawResp.InternalDate > 0 {
			received = time.UnixMilli(rawResp.InternalDate).UTC()
		}
		out = append(out, internal.FetchedMessage{
			Provider:   provider,
			UID:        id,
			Folder:     label,
			ReceivedAt: received,
			Raw:        rawBytes,
		})
	}

	if opts.MarkSeen && len(ids) > 0 {
		if err := s.MarkConsumed(ctx, label, ids); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkConsumed removes the UNREAD label in batches the API accepts.
func (s *session) MarkConsumed(ctx context.Context, _ string, ids []string) error {
	c := s.connector
	for start := 0; start < len(ids); start += batchModifyLimit {
		end := min(start+batchModifyLimit, len(ids))
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return err
		}
		err := c.service.Users.Messages.BatchModify("me", &gmail.BatchModifyMessagesRequest{
			Ids:            ids[start:end],
			RemoveLabelIds: []string{unreadLabel},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("gmail mark read: %w", err)
		}
	}
	return nil
}

func (s *session) Close() error {
	return nil
}

func (c *Connector) listUnread(ctx context.Context, label string, max int) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}
		call := c.service.Users.Messages.List("me").Q("is:unread").LabelIds(label).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gmail list %s: %w", label, err)
		}
		for _, ref := range resp.Messages {
			if ref.Id != "" {
				ids = append(ids, ref.Id)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	// The API lists newest first. Every page is read so the cap keeps the
	// oldest messages.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
