package locker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock key only when still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const redisLockPollInterval = 25 * time.Millisecond

// RedisLocker implements GlobalLocker on top of SET NX PX. The TTL acts
// as forced release when a holder crashes without unlocking.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		log:    log.Named("locker.redis"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string, timeout time.Duration) (*Handle, error) {
	token, err := lockToken()
	if err != nil {
		return nil, err
	}
	redisKey := "paycore:lock:" + key

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(redisLockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return NewHandle(key, func() { l.release(redisKey, token) }), nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(redisKey string, token string) {
	// Release must not inherit a canceled request context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
		l.log.Warn("failed to release account lock", zap.String("key", redisKey), zap.Error(err))
	}
}

func lockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
