package runlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisGateAcquireAndRelease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	gate := NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop())
	ctx := context.Background()

	release, err := gate.TryAcquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("bidintake:run") {
		t.Fatal("lock key not set")
	}
	if ttl := mr.TTL("bidintake:run"); ttl != time.Minute {
		t.Fatalf("ttl=%s", ttl)
	}

	if _, err := gate.TryAcquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("second acquire err=%v", err)
	}

	release()
	if mr.Exists("bidintake:run") {
		t.Fatal("lock key left after release")
	}
	again, err := gate.TryAcquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again()
}

func TestRedisGateReleaseKeepsForeignToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	gate := NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop())

	release, err := gate.TryAcquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The lock expired and another process took it over.
	mr.FastForward(2 * time.Minute)
	if err := mr.Set("bidintake:run", "other-process"); err != nil {
		t.Fatal(err)
	}

	release()
	got, err := mr.Get("bidintake:run")
	if err != nil {
		t.Fatal(err)
	}
	if got != "other-process" {
		t.Fatalf("foreign lock overwritten: %q", got)
	}
}

func TestRedisGateAcquireGivesUp(t *testing.T) {
	_, rdb := newTestRedis(t)
	gate := NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop())
	held, err := gate.TryAcquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer held()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := gate.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v", err)
	}
}

func TestRedisGateAcquireWaitsForRelease(t *testing.T) {
	_, rdb := newTestRedis(t)
	gate := NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop())
	held, err := gate.TryAcquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	time.AfterFunc(100*time.Millisecond, held)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	release, err := gate.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	release()
}

func TestRedisGateReportsServerErrors(t *testing.T) {
	mr, rdb := newTestRedis(t)
	gate := NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop())
	mr.SetError("ERR server unavailable")

	_, err := gate.TryAcquire(context.Background())
	if err == nil || errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v", err)
	}
}

func TestChainLocalAndRedis(t *testing.T) {
	_, rdb := newTestRedis(t)
	local := NewLocalGate()
	gate := Chain(local, NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop()))
	other := NewRedisGate(rdb, "bidintake:run", time.Minute, zap.NewNop())

	release, err := gate.TryAcquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.TryAcquire(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("other process err=%v", err)
	}
	release()
	if _, err := local.TryAcquire(context.Background()); err != nil {
		t.Fatalf("local gate still held: %v", err)
	}
}
