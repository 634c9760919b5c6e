package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrIdentityLockTimeout 在等待时间内未拿到本地标识锁
var ErrIdentityLockTimeout = errors.New("identity lock wait timeout")

const identityLockPollInterval = 25 * time.Millisecond

// 只释放自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func identityLockKey(userID uint, clientLocalID string) string {
	return fmt.Sprintf("sync:identity:%d:%s", userID, clientLocalID)
}

func syncStatusKey(userID uint) string {
	return fmt.Sprintf("sync:status:%d", userID)
}

// AcquireIdentityLock 获取 (用户, 本地标识) 的分布式锁
// Redis 未启用时直接返回空释放函数，唯一索引仍然兜底
func AcquireIdentityLock(ctx context.Context, userID uint, clientLocalID string, ttl, wait time.Duration) (func(), error) {
	noop := func() {}
	client := shared.client
	if client == nil || userID == 0 || clientLocalID == "" {
		return noop, nil
	}
	key := shared.key(identityLockKey(userID, clientLocalID))
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return noop, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseLockScript.Run(releaseCtx, client, []string{key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return noop, ErrIdentityLockTimeout
		}
		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(identityLockPollInterval):
		}
	}
}

// GetSyncStatus 读取同步状态快照
func GetSyncStatus(ctx context.Context, userID uint, dest interface{}) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	return shared.loadJSON(ctx, syncStatusKey(userID), dest)
}

// SetSyncStatus 写入同步状态快照
func SetSyncStatus(ctx context.Context, userID uint, value interface{}, ttl time.Duration) error {
	if userID == 0 || ttl <= 0 {
		return nil
	}
	return shared.storeJSON(ctx, syncStatusKey(userID), value, ttl)
}

// DelSyncStatus 批次结束后失效同步状态快照
func DelSyncStatus(ctx context.Context, userIDs ...uint) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != 0 {
			keys = append(keys, syncStatusKey(id))
		}
	}
	return shared.drop(ctx, keys...)
}
