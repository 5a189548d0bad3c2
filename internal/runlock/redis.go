package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultTTL   = 10 * time.Minute
	pollInterval = 500 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGate extends the single-run guarantee across processes that share a
// mailbox. The TTL must exceed the longest run.
type RedisGate struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisGate(rdb *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisGate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGate{rdb: rdb, key: key, ttl: ttl, logger: logger.Named("runlock")}
}

func (g *RedisGate) TryAcquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("run lock SETNX: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return g.releaseFunc(token), nil
}

func (g *RedisGate) Acquire(ctx context.Context) (func(), error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		release, err := g.TryAcquire(ctx)
		if !errors.Is(err, ErrBusy) {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *RedisGate) releaseFunc(token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.rdb, []string{g.key}, token).Err(); err != nil {
			g.logger.Warn("releasing run lock", zap.String("key", g.key), zap.Error(err))
		}
	}
}
