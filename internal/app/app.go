// Package app wires configuration into a running ingestion service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/api"
	"bidintake/internal/config"
	"bidintake/internal/connectors"
	gmailconnector "bidintake/internal/connectors/gmail"
	imapconnector "bidintake/internal/connectors/imap"
	"bidintake/internal/listener"
	"bidintake/internal/pipeline"
	"bidintake/internal/runlock"
	"bidintake/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    storage.Store
	Mailbox  connectors.Mailbox
	Pipeline *pipeline.Pipeline
	Listener *listener.Service

	redis *redis.Client
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: store}

	a.Mailbox, err = NewMailbox(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	gate, err := a.newGate(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	resolver := pipeline.NewIdentityResolver(store, internal.Role(cfg.ContractorDefaultRole), logger)
	a.Pipeline = pipeline.New(a.Mailbox, store, resolver, connectors.NewArchive(cfg.MailFailedDir), pipeline.Options{
		Folder:     cfg.MailFolder,
		FetchMax:   cfg.MailFetchMax,
		MarkSeenAt: cfg.MailMarkSeen,
		Recipient:  cfg.MailRecipient,
	}, logger)
	a.Listener = listener.NewService(a.Pipeline, gate, listener.Options{
		Interval:   cfg.ListenerInterval(),
		RunTimeout: cfg.RunTimeout(),
		RunOnStart: cfg.ListenerRunOnStart,
	}, logger)
	return a, nil
}

func NewMailbox(ctx context.Context, cfg config.Config, logger *zap.Logger) (connectors.Mailbox, error) {
	switch cfg.MailProvider {
	case "imap":
		conn, err := imapconnector.NewConnector(cfg, logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "gmail":
		conn, err := gmailconnector.NewConnector(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.MailProvider)
	}
}

func (a *App) newGate(ctx context.Context) (runlock.Gate, error) {
	local := runlock.NewLocalGate()
	if a.Config.RedisURL == "" {
		return local, nil
	}
	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	a.redis = redis.NewClient(opts)
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return runlock.Chain(local, runlock.NewRedisGate(a.redis, a.Config.RunLockKey, a.Config.RunLockTTL(), a.Logger)), nil
}

// HealthCheck opens and closes a mailbox session within the auth timeout.
func (a *App) HealthCheck(ctx context.Context) bool {
	timeout := a.Config.IMAPAuthTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return connectors.TestConnection(ctx, a.Mailbox)
}

// Serve runs the schedule and, when HTTP_ADDR is set, the trigger API until
// ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Listener.Start(ctx); err != nil {
		return err
	}
	defer a.Listener.Stop()

	if a.Config.HTTPAddr == "" {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           api.NewServer(a.Listener, a.HealthCheck, a.Config.TriggerWait(), a.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	a.Logger.Info("http server stopped")
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
