package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fleetsync/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "fs"

// store 进程内唯一的 Redis 连接与 key 前缀；client 为 nil 表示缓存关闭
type store struct {
	client *redis.Client
	prefix string
}

var shared = &store{prefix: defaultKeyPrefix}

// InitRedis 按配置建立 Redis 连接，未启用时保持关闭状态
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		shared = &store{prefix: defaultKeyPrefix}
		return nil
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	shared = &store{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
	}
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return shared.client != nil
}

// Client 原始客户端，供限流等需要 Lua 的场景使用；关闭时返回 nil
func Client() *redis.Client {
	return shared.client
}

// Ping 检查 Redis 连通性，未启用时视为可用
func Ping(ctx context.Context) error {
	if !Enabled() {
		return nil
	}
	return shared.client.Ping(ctx).Err()
}

// Close 关闭连接，之后所有读写退化为空操作
func Close() error {
	client := shared.client
	if client == nil {
		return nil
	}
	shared = &store{prefix: shared.prefix}
	return client.Close()
}

func (s *store) key(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.prefix
	}
	return s.prefix + ":" + name
}

// loadJSON 未命中返回 false；缓存关闭视同未命中
func (s *store) loadJSON(ctx context.Context, name string, dest any) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	raw, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *store) storeJSON(ctx context.Context, name string, value any, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(name), payload, ttl).Err()
}

func (s *store) drop(ctx context.Context, names ...string) error {
	if s.client == nil || len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.key(name)
	}
	return s.client.Del(ctx, keys...).Err()
}
