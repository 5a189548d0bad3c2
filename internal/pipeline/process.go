package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/config"
	"bidintake/internal/connectors"
)

type Store interface {
	ContractorStore
	CreateEmail(ctx context.Context, rec internal.EmailRecord) (internal.EmailRecord, error)
	CreateBid(ctx context.Context, rec internal.BidRecord) (internal.BidRecord, error)
}

type Options struct {
	Folder     string
	FetchMax   int
	MarkSeenAt string
	// Recipient is stored on every email record as the inbox address.
	Recipient string
}

type RunResult struct {
	RunID      string
	Fetched    int
	Discarded  int
	Failed     int
	Bids       []internal.BidRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// sessionGrace is how long the mailbox session outlives a cancelled run, so
// messages that already reached an outcome can still be flagged.
const sessionGrace = 10 * time.Second

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeDiscarded
	outcomeFailed
)

// Pipeline turns unread mailbox messages into email and bid records.
type Pipeline struct {
	mailbox   connectors.Mailbox
	store     Store
	extractor *Extractor
	resolver  *IdentityResolver
	archive   *connectors.Archive
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func New(mailbox connectors.Mailbox, store Store, resolver *IdentityResolver, archive *connectors.Archive, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	if opts.MarkSeenAt == "" {
		opts.MarkSeenAt = config.MarkSeenAtFetch
	}
	return &Pipeline{
		mailbox:   mailbox,
		store:     store,
		extractor: NewExtractor(),
		resolver:  resolver,
		archive:   archive,
		opts:      opts,
		logger:    logger.Named("pipeline"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs one ingestion pass. It fails only when the mailbox cannot
// be opened or listed; per-message failures are logged, counted and skipped.
// Messages left when ctx ends count as failed and are archived.
// Callers must not run two passes against the same mailbox at once.
func (p *Pipeline) RunOnce(ctx context.Context) (RunResult, error) {
	result := RunResult{RunID: uuid.NewString(), StartedAt: p.now(), Bids: []internal.BidRecord{}}
	logger := p.logger.With(zap.String("run_id", result.RunID))

	sessionCtx, cancelSession := graceContext(ctx, sessionGrace)
	defer cancelSession()

	session, err := p.mailbox.Connect(sessionCtx)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing mailbox session", zap.Error(err))
		}
	}()

	markAtFetch := p.opts.MarkSeenAt != config.MarkSeenAtPersist
	messages, err := session.FetchUnread(ctx, p.opts.Folder, connectors.FetchOptions{Max: p.opts.FetchMax, MarkSeen: markAtFetch})
	if err != nil {
		return result, fmt.Errorf("fetch unread from %s: %w", p.opts.Folder, err)
	}
	result.Fetched = len(messages)

	for i, m := range messages {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted", zap.Error(err), zap.Int("remaining", len(messages)-i))
			for _, rest := range messages[i:] {
				p.abandon(logger, rest, err)
				result.Failed++
			}
			break
		}
		out, bid := p.processMessage(ctx, logger, m)
		switch out {
		case outcomeCreated:
			result.Bids = append(result.Bids, bid)
		case outcomeDiscarded:
			result.Discarded++
		case outcomeFailed:
			result.Failed++
			continue
		}
		if !markAtFetch {
			if err := session.MarkConsumed(sessionCtx, p.opts.Folder, []string{m.UID}); err != nil {
				logger.Error("marking message consumed", zap.String("uid", m.UID), zap.Error(err))
			}
		}
	}

	result.FinishedAt = p.now()
	logger.Info("ingestion run finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("created", len(result.Bids)),
		zap.Int("discarded", result.Discarded),
		zap.Int("failed", result.Failed),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// graceContext returns a context that ends grace after ctx does.
func graceContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	gctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() { time.AfterFunc(grace, cancel) })
	return gctx, func() {
		stop()
		cancel()
	}
}

// abandon records a fetched message the run had no time to process.
func (p *Pipeline) abandon(logger *zap.Logger, m internal.FetchedMessage, cause error) {
	msgLogger := logger.With(zap.String("uid", m.UID))
	if msg, err := Parse(m.Raw); err == nil {
		msgLogger = msgLogger.With(zap.String("sender", msg.Sender), zap.String("subject", msg.Subject))
	}
	msgLogger.Error("message not processed", zap.Error(cause))
	p.archiveFailed(msgLogger, m)
}

func (p *Pipeline) processMessage(ctx context.Context, logger *zap.Logger, m internal.FetchedMessage) (outcome, internal.BidRecord) {
	msgLogger := logger.With(zap.String("uid", m.UID))

	msg, err := Parse(m.Raw)
	if err != nil {
		msgLogger.Warn("skipping unparseable message", zap.Error(err))
		p.archiveFailed(msgLogger, m)
		return outcomeFailed, internal.BidRecord{}
	}
	if !m.ReceivedAt.IsZero() {
		msg.ReceivedAt = m.ReceivedAt
	} else if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = p.now()
	}
	msgLogger = msgLogger.With(zap.String("sender", msg.Sender), zap.String("subject", msg.Subject))

	classified := Classify(msg)
	if !classified.IsBidCandidate {
		msgLogger.Debug("not a bid, discarded")
		return outcomeDiscarded, internal.BidRecord{}
	}

	bid, err := p.persist(ctx, classified)
	if err != nil {
		msgLogger.Error("persisting bid", zap.Error(err))
		p.archiveFailed(msgLogger, m)
		return outcomeFailed, internal.BidRecord{}
	}
	msgLogger.Info("bid created", zap.String("bid_id", bid.ID), zap.String("project_id", bid.ProjectID), zap.String("keyword", classified.Keyword))
	return outcomeCreated, bid
}

// persist writes the email record, resolves the contractor, then writes the
// bid. There is no rollback: a failure after the first write leaves an
// email record without a bid.
func (p *Pipeline) persist(ctx context.Context, msg internal.ClassifiedMessage) (internal.BidRecord, error) {
	fields := p.extractor.Extract(msg)

	email, err := p.store.CreateEmail(ctx, internal.EmailRecord{
		Subject:     msg.Subject,
		Body:        msg.Body,
		Sender:      msg.Sender,
		Recipient:   p.recipient(msg),
		ReceivedAt:  msg.ReceivedAt,
		Attachments: []string{},
	})
	if err != nil {
		return internal.BidRecord{}, &internal.PersistenceError{Op: "create email record", Err: err}
	}

	contractor, err := p.resolver.Resolve(ctx, msg.Sender, msg.SenderName)
	if err != nil {
		return internal.BidRecord{}, &internal.PersistenceError{Op: "resolve contractor", Err: err}
	}

	bid, err := p.store.CreateBid(ctx, internal.BidRecord{
		ProjectName:       fields.ProjectLabel,
		ProjectID:         fields.ProjectID,
		ContractorAddress: msg.Sender,
		ContractorID:      contractor.ID,
		UserID:            contractor.ID,
		EmailID:           email.ID,
		Value:             fields.Value,
		DueDate:           fields.DueDate,
		Status:            internal.BidSubmitted,
	})
	if err != nil {
		return internal.BidRecord{}, &internal.PersistenceError{Op: "create bid record", Err: err}
	}
	return bid, nil
}

func (p *Pipeline) recipient(msg internal.ClassifiedMessage) string {
	if p.opts.Recipient != "" {
		return p.opts.Recipient
	}
	return msg.Recipient
}

func (p *Pipeline) archiveFailed(logger *zap.Logger, m internal.FetchedMessage) {
	if !p.archive.Enabled() {
		return
	}
	path, err := p.archive.Store(m)
	if err != nil {
		logger.Error("archiving failed message", zap.Error(err))
		return
	}
	logger.Info("failed message archived", zap.String("path", path))
}
