package imap

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/config"
	"bidintake/internal/connectors"
)

func startServer(t *testing.T) config.Config {
	t.Helper()
	srv := server.New(memory.New())
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return config.Config{
		IMAPHost:          "127.0.0.1",
		IMAPPort:          ln.Addr().(*net.TCPAddr).Port,
		IMAPSecure:        false,
		IMAPUser:          "username",
		IMAPPassword:      "password",
		IMAPAuthTimeoutMs: 5000,
	}
}

func appendMessages(t *testing.T, cfg config.Config, subjects ...string) {
	t.Helper()
	c, err := imapclient.Dial(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Logout()
	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		t.Fatal(err)
	}
	for _, subject := range subjects {
		raw := "From: Roofer <roofer@example.com>\r\n" +
			"To: bids@example.com\r\n" +
			"Subject: " + subject + "\r\n" +
			"\r\n" +
			"We quote $4,500 for the job.\r\n"
		if err := c.Append("INBOX", nil, time.Now(), bytes.NewBufferString(raw)); err != nil {
			t.Fatal(err)
		}
	}
}

func newSession(t *testing.T, cfg config.Config) connectors.Session {
	t.Helper()
	conn, err := NewConnector(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s, err := conn.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// drain marks whatever the backend seeds the inbox with as seen.
func drain(t *testing.T, s connectors.Session) {
	t.Helper()
	if _, err := s.FetchUnread(context.Background(), "INBOX", connectors.FetchOptions{MarkSeen: true}); err != nil {
		t.Fatal(err)
	}
}

func TestFetchUnreadMarksSeen(t *testing.T) {
	cfg := startServer(t)
	s := newSession(t, cfg)
	drain(t, s)
	appendMessages(t, cfg, "Quotation for Roof Repair", "Tender: Parking Lot")

	ctx := context.Background()
	msgs, err := s.FetchUnread(ctx, "INBOX", connectors.FetchOptions{MarkSeen: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("fetched %d messages", len(msgs))
	}
	for _, m := range msgs {
		if m.Provider != "imap" || m.UID == "" || m.Folder != "INBOX" {
			t.Fatalf("bad message metadata: %+v", m)
		}
		if !strings.Contains(string(m.Raw), "roofer@example.com") {
			t.Fatalf("raw body missing headers: %q", m.Raw)
		}
	}

	again, err := s.FetchUnread(ctx, "INBOX", connectors.FetchOptions{MarkSeen: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second fetch returned %d messages", len(again))
	}
}

func TestFetchUnreadPeekThenMarkConsumed(t *testing.T) {
	cfg := startServer(t)
	s := newSession(t, cfg)
	drain(t, s)
	appendMessages(t, cfg, "Bid one", "Bid two", "Bid three")

	ctx := context.Background()
	first, err := s.FetchUnread(ctx, "INBOX", connectors.FetchOptions{Max: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("max not applied: %d", len(first))
	}

	peeked, err := s.FetchUnread(ctx, "INBOX", connectors.FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(peeked) != 3 {
		t.Fatalf("peek should leave messages unseen, got %d", len(peeked))
	}

	if err := s.MarkConsumed(ctx, "INBOX", []string{first[0].UID, first[1].UID}); err != nil {
		t.Fatal(err)
	}
	rest, err := s.FetchUnread(ctx, "INBOX", connectors.FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 {
		t.Fatalf("remaining=%d", len(rest))
	}
}

func TestConnectRejectsBadPassword(t *testing.T) {
	cfg := startServer(t)
	cfg.IMAPPassword = "wrong"
	conn, err := NewConnector(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Connect(context.Background()); !internal.IsConnectionError(err) {
		t.Fatalf("err=%v", err)
	}
	if connectors.TestConnection(context.Background(), conn) {
		t.Fatal("TestConnection should fail")
	}
}

func TestConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	conn, err := NewConnector(config.Config{IMAPHost: "127.0.0.1", IMAPPort: port, IMAPUser: "u", IMAPPassword: "p", IMAPAuthTimeoutMs: 1000}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Connect(context.Background()); !internal.IsConnectionError(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestNewConnectorRequiresCredentials(t *testing.T) {
	if _, err := NewConnector(config.Config{IMAPHost: "imap.example.com"}, zap.NewNop()); err == nil {
		t.Fatal("expected missing IMAP_USER error")
	}
}
