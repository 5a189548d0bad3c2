package connectors

import (
	"context"

	"bidintake/internal"
)

// Mailbox opens authenticated sessions against a mail provider.
type Mailbox interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is one authenticated connection. Close must be called on every
// path once Connect succeeded.
type Session interface {
	// FetchUnread returns every unseen message in folder. With MarkSeen set
	// the returned messages are flagged as seen before FetchUnread returns.
	FetchUnread(ctx context.Context, folder string, opts FetchOptions) ([]internal.FetchedMessage, error)
	MarkConsumed(ctx context.Context, folder string, uids []string) error
	Close() error
}

type FetchOptions struct {
	// Max caps the number of messages returned, oldest first. Zero means all.
	Max      int
	MarkSeen bool
}

// TestConnection reports whether a session can be opened and closed.
func TestConnection(ctx context.Context, mailbox Mailbox) bool {
	session, err := mailbox.Connect(ctx)
	if err != nil {
		return false
	}
	_ = session.Close()
	return true
}
