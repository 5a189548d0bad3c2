package gmail

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"go.uber.org/zap"

	"bidintake/internal/config"
)

func TestDecodeBase64URL(t *testing.T) {
	raw := "Subject: Bid\r\n\r\n₹ 4,500?>"
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeBase64URL(enc.EncodeToString([]byte(raw)))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != raw {
			t.Fatalf("got %q", got)
		}
	}
	if _, err := decodeBase64URL("%%%"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewConnectorRequiresRefreshToken(t *testing.T) {
	cfg := config.Config{GmailClientID: "id", GmailClientSecret: "secret"}
	if _, err := NewConnector(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected missing GMAIL_REFRESH_TOKEN error")
	}
}

func TestRateLimiterSpacesCalls(t *testing.T) {
	limiter := NewRateLimiter(20)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.WaitTurn(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("three calls at 20 rps took only %s", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(1)
	if err := limiter.WaitTurn(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.WaitTurn(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
