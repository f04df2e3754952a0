package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/project-reconciler/internal/errors"
)

const (
	defaultKeyPrefix    = "lock:project:"
	defaultPollInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so a
// lock that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker is a lock shared by every process using the same Redis.
// Locks expire after ttl so a crashed holder cannot block a key forever.
type RedisLocker struct {
	redis        redis.Cmdable
	ttl          time.Duration
	wait         time.Duration
	pollInterval time.Duration
	prefix       string
}

// RedisLockerConfig holds configuration for the Redis locker.
type RedisLockerConfig struct {
	// Redis is required.
	Redis redis.Cmdable

	// TTL bounds how long a lock may be held. Default: 10s.
	TTL time.Duration

	// Wait bounds how long Acquire polls for a busy key. Default: 5s.
	Wait time.Duration

	// PollInterval is the delay between attempts. Default: 25ms.
	PollInterval time.Duration

	// KeyPrefix namespaces lock keys. Default: "lock:project:".
	KeyPrefix string
}

// NewRedisLocker creates a Redis locker
func NewRedisLocker(cfg RedisLockerConfig) *RedisLocker {
	l := &RedisLocker{
		redis:        cfg.Redis,
		ttl:          cfg.TTL,
		wait:         cfg.Wait,
		pollInterval: cfg.PollInterval,
		prefix:       cfg.KeyPrefix,
	}
	if l.ttl <= 0 {
		l.ttl = 10 * time.Second
	}
	if l.wait <= 0 {
		l.wait = 5 * time.Second
	}
	if l.pollInterval <= 0 {
		l.pollInterval = defaultPollInterval
	}
	if l.prefix == "" {
		l.prefix = defaultKeyPrefix
	}
	return l
}

// Acquire polls SET NX until the key is free or the wait budget is spent.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.redis.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, apperrors.NewLockError(key, err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		if !time.Now().Before(deadline) {
			return nil, apperrors.NewLockError(key, ErrLockTimeout)
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.NewLockError(key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(redisKey, token string) Unlock {
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.redis, []string{redisKey}, token).Err(); err != nil {
			return apperrors.NewLockError(redisKey, err)
		}
		return nil
	}
}
