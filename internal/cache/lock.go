package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockKeyEmpty 锁 key 为空
var ErrLockKeyEmpty = errors.New("lock key is empty")

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 已持有的分布式锁
type Lock struct {
	key   string
	token string
}

// AcquireLock 以 SET NX 抢占锁；Redis 未启用时直接视为获得锁
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrLockKeyEmpty
	}
	lock := &Lock{key: buildKey("lock:" + key)}
	if !Enabled() {
		return lock, true, nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	lock.token = uuid.NewString()
	ok, err := redisClient.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// Release 仅删除自己持有的锁
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.token == "" || !Enabled() {
		return nil
	}
	return releaseLockScript.Run(ctx, redisClient, []string{l.key}, l.token).Err()
}
