package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/config"
	"bidintake/internal/connectors"
)

const provider = "imap"

type Connector struct {
	host               string
	port               int
	secure             bool
	user               string
	password           string
	authTimeout        time.Duration
	insecureSkipVerify bool
	logger             *zap.Logger
}

func NewConnector(cfg config.Config, logger *zap.Logger) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	authTimeout := cfg.IMAPAuthTimeout()
	if authTimeout <= 0 {
		authTimeout = 10 * time.Second
	}

	return &Connector{
		host:               cfg.IMAPHost,
		port:               cfg.IMAPPort,
		secure:             cfg.IMAPSecure,
		user:               cfg.IMAPUser,
		password:           cfg.IMAPPassword,
		authTimeout:        authTimeout,
		insecureSkipVerify: cfg.IMAPInsecureSkipVerify,
		logger:             logger.Named("imap"),
	}, nil
}

func (c *Connector) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connect dials and logs in. The returned session is torn down as soon as
// ctx is done, which unblocks any command still waiting on the server.
func (c *Connector) Connect(ctx context.Context) (connectors.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &internal.ConnectionError{Provider: provider, Addr: c.addr(), Err: err}
	}

	dialer := &net.Dialer{Timeout: c.authTimeout}
	var (
		client *imapclient.Client
		err    error
	)
	if c.secure {
		client, err = imapclient.DialWithDialerTLS(dialer, c.addr(), &tls.Config{
			ServerName:         c.host,
			InsecureSkipVerify: c.insecureSkipVerify,
		})
	} else {
		client, err = imapclient.DialWithDialer(dialer, c.addr())
	}
	if err != nil {
		return nil, &internal.ConnectionError{Provider: provider, Addr: c.addr(), Err: err}
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Terminate() })

	loginDone := make(chan error, 1)
	go func() { loginDone <- client.Login(c.user, c.password) }()

	var loginErr error
	select {
	case loginErr = <-loginDone:
	case <-time.After(c.authTimeout):
		_ = client.Terminate()
		<-loginDone
		loginErr = fmt.Errorf("login timed out after %s", c.authTimeout)
	}
	if loginErr != nil {
		stop()
		_ = client.Logout()
		if ctxErr := ctx.Err(); ctxErr != nil {
			loginErr = ctxErr
		}
		return nil, &internal.ConnectionError{Provider: provider, Addr: c.addr(), Err: loginErr}
	}

	c.logger.Debug("imap session opened", zap.String("addr", c.addr()), zap.String("user", c.user))
	return &session{client: client, stop: stop, logger: c.logger}, nil
}

type session struct {
	client   *imapclient.Client
	stop     func() bool
	selected string
	logger   *zap.Logger
}

func (s *session) selectFolder(folder string) error {
	if s.selected == folder {
		return nil
	}
	if _, err := s.client.Select(folder, false); err != nil {
		return err
	}
	s.selected = folder
	return nil
}

func (s *session) FetchUnread(ctx context.Context, folder string, opts connectors.FetchOptions) ([]internal.FetchedMessage, error) {
	if err := s.selectFolder(folder); err != nil {
		return nil, commandError(ctx, "select "+folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, commandError(ctx, "search unseen", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if opts.Max > 0 && len(uids) > opts.Max {
		uids = uids[:opts.Max]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}
	messages := make(chan *imap.Message, len(uids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- s.client.UidFetch(seqset, items, messages) }()

	out := make([]internal.FetchedMessage, 0, len(uids))
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		raw, err := messageBody(msg)
		if err != nil {
			readErr = err
			continue
		}
		if raw == nil {
			s.logger.Warn("message without body", zap.Uint32("uid", msg.Uid))
			continue
		}
		out = append(out, internal.FetchedMessage{
			Provider:   provider,
			UID:        strconv.FormatUint(uint64(msg.Uid), 10),
			Folder:     folder,
			ReceivedAt: msg.InternalDate.UTC(),
			Raw:        raw,
		})
	}
	if err := <-fetchDone; err != nil {
		return nil, commandError(ctx, "fetch", err)
	}
	if readErr != nil {
		return nil, commandError(ctx, "read body", readErr)
	}

	if opts.MarkSeen {
		if err := s.addSeen(seqset); err != nil {
			return nil, commandError(ctx, "mark seen", err)
		}
	}
	return out, nil
}

func (s *session) MarkConsumed(ctx context.Context, folder string, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	for _, uid := range uids {
		n, err := strconv.ParseUint(uid, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid imap uid %q: %w", uid, err)
		}
		seqset.AddNum(uint32(n))
	}
	if err := s.selectFolder(folder); err != nil {
		return commandError(ctx, "select "+folder, err)
	}
	if err := s.addSeen(seqset); err != nil {
		return commandError(ctx, "mark seen", err)
	}
	return nil
}

func (s *session) addSeen(seqset *imap.SeqSet) error {
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	return s.client.UidStore(seqset, item, flags, nil)
}

func (s *session) Close() error {
	s.stop()
	if err := s.client.Logout(); err != nil && !errors.Is(err, imapclient.ErrAlreadyLoggedOut) {
		return err
	}
	return nil
}

func messageBody(msg *imap.Message) ([]byte, error) {
	for _, literal := range msg.Body {
		if literal == nil {
			continue
		}
		return io.ReadAll(literal)
	}
	return nil, nil
}

func commandError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("imap %s: %w", op, ctxErr)
	}
	return fmt.Errorf("imap %s: %w", op, err)
}
