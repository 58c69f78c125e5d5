package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisLockTTL  = 5 * time.Second
	defaultRetryInterval = 10 * time.Millisecond
	releaseTimeout       = time.Second
)

// Deletes the lock only if it still carries the caller's token, so a holder
// whose lease already expired can't release someone else's lock.
var releaseLockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLocker is a Locker shared by every API instance pointing at the same
// Redis. The lease expires after ttl so a crashed holder can't block a show
// forever.
type RedisLocker struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	ttl           time.Duration
	retryInterval time.Duration
	newToken      func() string
}

func NewRedisLocker(client redis.UniversalClient, logger *slog.Logger, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultRedisLockTTL
	}

	return &RedisLocker{
		client:        client,
		logger:        logger,
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
		newToken:      uuid.NewString,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := redisLockKey(key)
	token := l.newToken()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	return func() {
		// the request context may already be cancelled at this point
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		err := releaseLockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
		if err != nil {
			l.logger.Error("failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func redisLockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
