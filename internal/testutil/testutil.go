// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bidintake/internal"
	"bidintake/internal/connectors"
	"bidintake/internal/storage"
)

func NewTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// BuildMessage renders a minimal plain-text RFC 5322 message.
func BuildMessage(from, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	b.WriteString("To: bids@example.com\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Date: Wed, 20 Aug 2025 09:30:00 +0000\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

type fakeMessage struct {
	uid  string
	raw  []byte
	seen bool
}

// FakeMailbox is an in-memory mailbox with seen flags. It records how many
// sessions were open at the same time.
type FakeMailbox struct {
	mu       sync.Mutex
	messages []*fakeMessage
	nextUID  int

	ConnectErr error
	FetchErr   error
	// FetchDelay widens the window between listing and flagging messages.
	FetchDelay time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
	connects  atomic.Int32
	closes    atomic.Int32
}

func (f *FakeMailbox) Add(raw []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUID++
	uid := strconv.Itoa(f.nextUID)
	f.messages = append(f.messages, &fakeMessage{uid: uid, raw: raw})
	return uid
}

func (f *FakeMailbox) Unseen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if !m.seen {
			n++
		}
	}
	return n
}

func (f *FakeMailbox) MaxConcurrentSessions() int { return int(f.maxActive.Load()) }

func (f *FakeMailbox) Connects() int { return int(f.connects.Load()) }

func (f *FakeMailbox) Closes() int { return int(f.closes.Load()) }

func (f *FakeMailbox) Connect(ctx context.Context) (connectors.Session, error) {
	f.connects.Add(1)
	if f.ConnectErr != nil {
		return nil, &internal.ConnectionError{Provider: "fake", Err: f.ConnectErr}
	}
	if err := ctx.Err(); err != nil {
		return nil, &internal.ConnectionError{Provider: "fake", Err: err}
	}
	n := f.active.Add(1)
	for {
		max := f.maxActive.Load()
		if n <= max || f.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	return &fakeSession{box: f}, nil
}

type fakeSession struct {
	box    *FakeMailbox
	closed bool
}

func (s *fakeSession) FetchUnread(ctx context.Context, folder string, opts connectors.FetchOptions) ([]internal.FetchedMessage, error) {
	f := s.box
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}

	f.mu.Lock()
	var picked []*fakeMessage
	for _, m := range f.messages {
		if m.seen {
			continue
		}
		picked = append(picked, m)
		if opts.Max > 0 && len(picked) == opts.Max {
			break
		}
	}
	f.mu.Unlock()

	if f.FetchDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.FetchDelay):
		}
	}

	out := make([]internal.FetchedMessage, 0, len(picked))
	f.mu.Lock()
	for _, m := range picked {
		if opts.MarkSeen {
			m.seen = true
		}
		out = append(out, internal.FetchedMessage{Provider: "fake", UID: m.uid, Folder: folder, Raw: m.raw})
	}
	f.mu.Unlock()
	return out, nil
}

func (s *fakeSession) MarkConsumed(ctx context.Context, _ string, uids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := s.box
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(uids))
	for _, uid := range uids {
		want[uid] = true
	}
	for _, m := range f.messages {
		if want[m.uid] {
			m.seen = true
		}
	}
	return nil
}

func (s *fakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.box.active.Add(-1)
	s.box.closes.Add(1)
	return nil
}
